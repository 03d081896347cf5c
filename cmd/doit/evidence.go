package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fentz26/doit/internal/blobstore"
	"github.com/spf13/cobra"
)

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Upload and list evidence blobs",
}

var evidenceUploadCmd = &cobra.Command{
	Use:   "upload [dir]",
	Short: "Upload the files of a directory under a prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvidenceUpload,
}

var evidenceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evidence blobs under a prefix",
	RunE:  runEvidenceList,
}

var evidencePrefix string

func init() {
	evidenceCmd.AddCommand(evidenceUploadCmd, evidenceListCmd)

	evidenceUploadCmd.Flags().StringVar(&evidencePrefix, "prefix", "", "Destination prefix, e.g. uploads/<user>/<session>/ (required)")
	evidenceUploadCmd.MarkFlagRequired("prefix")

	evidenceListCmd.Flags().StringVar(&evidencePrefix, "prefix", "", "Prefix to list")
}

// uploadPlan maps the regular files directly inside dir onto blob names under
// prefix, sorted by name. Hidden files are skipped.
func uploadPlan(dir, prefix string) (map[string]string, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", dir, err)
	}

	prefix = strings.Trim(prefix, "/")
	plan := make(map[string]string)
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := path.Join(prefix, e.Name())
		plan[name] = filepath.Join(dir, e.Name())
		names = append(names, name)
	}
	sort.Strings(names)
	return plan, names, nil
}

func runEvidenceUpload(cmd *cobra.Command, args []string) error {
	plan, names, err := uploadPlan(args[0], evidencePrefix)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no files to upload in %s", args[0])
	}

	for _, name := range names {
		if err := uploadFile(name, plan[name]); err != nil {
			return err
		}
		fmt.Printf("  uploaded %s\n", name)
	}
	fmt.Printf("Uploaded %d files to %s/\n", len(names), strings.Trim(evidencePrefix, "/"))
	return nil
}

func uploadFile(name, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = apiDo(http.MethodPut, "/evidence/"+escapeBlobName(name), blobstore.ContentType(name), f)
	return err
}

func escapeBlobName(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func runEvidenceList(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/evidence?prefix=" + url.QueryEscape(evidencePrefix))
	if err != nil {
		return err
	}

	var blobs []blobstore.Blob
	if err := json.Unmarshal(resp, &blobs); err != nil {
		return err
	}

	if len(blobs) == 0 {
		fmt.Println("No evidence found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tTYPE")
	for _, b := range blobs {
		fmt.Fprintf(w, "%s\t%d\t%s\n", b.Name, b.Size, b.ContentType)
	}
	w.Flush()
	return nil
}
