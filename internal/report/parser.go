// Package report decodes the oracle's free-form text into the structured
// documents stored on jobs.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const fence = "```"

// Parsed is the outcome of parsing one oracle response.
type Parsed struct {
	// Text is the response exactly as the oracle returned it.
	Text string
	// Cleaned is the text with code fences stripped.
	Cleaned string
	// Value is the decoded JSON value when OK.
	Value any
	OK    bool
	Err   error
}

// StripFences removes a leading code fence line and a trailing fence marker.
// A leading fence with no line break leaves nothing.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, fence) {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = ""
		}
	}
	s = strings.TrimSuffix(s, fence)
	return strings.TrimSpace(s)
}

// Parse strips fences and strictly decodes the remainder as one JSON value.
func Parse(text string) Parsed {
	p := Parsed{Text: text, Cleaned: StripFences(text)}

	dec := json.NewDecoder(strings.NewReader(p.Cleaned))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		p.Err = fmt.Errorf("decode oracle response: %w", err)
		return p
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		p.Err = errors.New("decode oracle response: trailing data after JSON value")
		return p
	}
	p.Value = v
	p.OK = true
	return p
}

// Envelope wraps the original text for storage when parsing failed.
func (p Parsed) Envelope() map[string]any {
	return map[string]any{"raw": p.Text}
}

// Object returns the decoded value as a JSON object, or nil when the
// response was not an object.
func (p Parsed) Object() map[string]any {
	m, _ := p.Value.(map[string]any)
	return m
}

// Decode decodes the cleaned text into v.
func (p Parsed) Decode(v any) error {
	if !p.OK {
		return p.Err
	}
	return json.Unmarshal([]byte(p.Cleaned), v)
}

// Result returns the stored form of the response: the decoded value when
// parsing succeeded, the raw envelope otherwise.
func (p Parsed) Result() (json.RawMessage, error) {
	var v any = p.Envelope()
	if p.OK {
		v = p.Value
	}
	return Encode(v)
}

// Encode marshals a result document without HTML escaping.
func Encode(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return json.RawMessage(bytes.TrimSpace(buf.Bytes())), nil
}
