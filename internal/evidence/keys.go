package evidence

import "strings"

// KeyLess orders capture keys chronologically. Keys made only of digits are
// compared by numeric value, so "9" sorts before "10" without zero padding;
// equal values fall back to lexical order. Numeric keys sort before any other
// key, and non-numeric keys compare lexically.
func KeyLess(a, b string) bool {
	an, bn := isDigits(a), isDigits(b)
	switch {
	case an && bn:
		ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(ta) != len(tb) {
			return len(ta) < len(tb)
		}
		if ta != tb {
			return ta < tb
		}
		return a < b
	case an:
		return true
	case bn:
		return false
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
