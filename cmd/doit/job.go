package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fentz26/doit/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage jobs",
}

var jobAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a job and dispatch it",
	RunE:  runJobAdd,
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobList,
}

var jobShowCmd = &cobra.Command{
	Use:   "show [job-id]",
	Short: "Show job details and result",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobShow,
}

var jobDispatchCmd = &cobra.Command{
	Use:   "dispatch [job-id]",
	Short: "Queue a created job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobDispatch,
}

var jobAuditCmd = &cobra.Command{
	Use:   "audit [job-id]",
	Short: "Show the audit trail of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobAudit,
}

var (
	jobType      string
	jobEvidence  string
	jobUser      string
	jobGoalsFile string
	jobReview    string
	jobStatus    string
)

func init() {
	jobCmd.AddCommand(jobAddCmd, jobListCmd, jobShowCmd, jobDispatchCmd, jobAuditCmd)

	jobAddCmd.Flags().StringVar(&jobType, "type", "analysis", "Job type (analysis, bookmark, review)")
	jobAddCmd.Flags().StringVar(&jobEvidence, "evidence", "", "Evidence location (blob prefix)")
	jobAddCmd.Flags().StringVar(&jobUser, "user", "", "User id whose stored profile applies")
	jobAddCmd.Flags().StringVar(&jobGoalsFile, "goals-file", "", "YAML or JSON file with user goals")
	jobAddCmd.Flags().StringVar(&jobReview, "review-file", "", "JSON file with review data")

	jobListCmd.Flags().StringVar(&jobType, "type", "", "Filter by type")
	jobListCmd.Flags().StringVar(&jobStatus, "status", "", "Filter by status (created, queued, complete, failed)")
}

// buildPayload assembles a job payload from the add flags.
func buildPayload(evidence, user, goalsFile, reviewFile string) (models.JobPayload, error) {
	payload := models.JobPayload{
		EvidenceLocation: evidence,
		UserID:           user,
	}

	if goalsFile != "" {
		goals, err := readGoals(goalsFile)
		if err != nil {
			return payload, err
		}
		payload.UserGoals = goals
	}

	if reviewFile != "" {
		data, err := os.ReadFile(reviewFile)
		if err != nil {
			return payload, fmt.Errorf("read review file: %w", err)
		}
		var rd models.ReviewData
		if err := json.Unmarshal(data, &rd); err != nil {
			return payload, fmt.Errorf("parse review file: %w", err)
		}
		payload.ReviewData = &rd
	}
	return payload, nil
}

// readGoals reads a goals document. JSON is accepted as a subset of YAML.
func readGoals(path string) (models.Goals, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read goals file: %w", err)
	}
	var goals models.Goals
	if err := yaml.Unmarshal(data, &goals); err != nil {
		return nil, fmt.Errorf("parse goals file: %w", err)
	}
	if goals == nil {
		return nil, fmt.Errorf("goals file %s is empty", path)
	}
	return goals, nil
}

func runJobAdd(cmd *cobra.Command, args []string) error {
	payload, err := buildPayload(jobEvidence, jobUser, jobGoalsFile, jobReview)
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"type":    jobType,
		"payload": payload,
	}
	resp, err := apiPost("/jobs", body)
	if err != nil {
		return err
	}

	var job models.Job
	if err := json.Unmarshal(resp, &job); err != nil {
		return err
	}

	fmt.Printf("Created job: %s (%s)\n", job.ID, job.Status)
	return nil
}

func runJobList(cmd *cobra.Command, args []string) error {
	query := make([]string, 0, 2)
	if jobType != "" {
		query = append(query, "type="+jobType)
	}
	if jobStatus != "" {
		query = append(query, "status="+jobStatus)
	}
	path := "/jobs"
	if len(query) > 0 {
		path += "?" + strings.Join(query, "&")
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var jobs []models.Job
	if err := json.Unmarshal(resp, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tUPDATED\tERROR")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.Type, j.Status, j.UpdatedAt.Local().Format("2006-01-02 15:04:05"), truncate(j.Error, 40))
	}
	w.Flush()
	return nil
}

func runJobShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/jobs/" + args[0])
	if err != nil {
		return err
	}

	var job models.Job
	if err := json.Unmarshal(resp, &job); err != nil {
		return err
	}

	fmt.Printf("ID:       %s\n", job.ID)
	fmt.Printf("Type:     %s\n", job.Type)
	fmt.Printf("Status:   %s\n", job.Status)
	if job.Payload.EvidenceLocation != "" {
		fmt.Printf("Evidence: %s\n", job.Payload.EvidenceLocation)
	}
	if job.Payload.UserID != "" {
		fmt.Printf("User:     %s\n", job.Payload.UserID)
	}
	fmt.Printf("Created:  %s\n", job.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:  %s\n", job.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	if job.Error != "" {
		fmt.Printf("Error:    %s\n", job.Error)
	}

	if len(job.Result) > 0 {
		pretty, err := json.MarshalIndent(job.Result, "", "  ")
		if err != nil {
			pretty = job.Result
		}
		fmt.Println("\n--- RESULT ---")
		fmt.Println(string(pretty))
	}
	if job.RawResponse != "" {
		fmt.Println("\n--- RAW RESPONSE ---")
		fmt.Println(job.RawResponse)
	}
	return nil
}

func runJobDispatch(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/jobs/"+args[0]+"/dispatch", struct{}{})
	if err != nil {
		return err
	}

	var item models.QueueItem
	if err := json.Unmarshal(resp, &item); err != nil {
		return err
	}

	fmt.Printf("Dispatched job %s (queue item %s)\n", args[0], item.ID)
	return nil
}

func runJobAudit(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/jobs/" + args[0] + "/audit")
	if err != nil {
		return err
	}

	var records []models.AuditRecord
	if err := json.Unmarshal(resp, &records); err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No audit records")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tDETAILS")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Action, r.Outcome, truncate(r.Details, 60))
	}
	w.Flush()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
