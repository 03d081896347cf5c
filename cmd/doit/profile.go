package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage stored user goal profiles",
}

var profileSetCmd = &cobra.Command{
	Use:   "set [user-id]",
	Short: "Store a user's goals from a YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileSet,
}

var profileShowCmd = &cobra.Command{
	Use:   "show [user-id]",
	Short: "Show a user's stored goals",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileShow,
}

var profileFile string

func init() {
	profileCmd.AddCommand(profileSetCmd, profileShowCmd)

	profileSetCmd.Flags().StringVar(&profileFile, "file", "", "Goals file (required)")
	profileSetCmd.MarkFlagRequired("file")
}

func runProfileSet(cmd *cobra.Command, args []string) error {
	goals, err := readGoals(profileFile)
	if err != nil {
		return err
	}

	if _, err := apiPut("/profiles/"+url.PathEscape(args[0]), goals); err != nil {
		return err
	}

	fmt.Printf("Stored profile for %s (%d keys)\n", args[0], len(goals))
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/profiles/" + url.PathEscape(args[0]))
	if err != nil {
		return err
	}

	var goals map[string]interface{}
	if err := json.Unmarshal(resp, &goals); err != nil {
		return err
	}

	pretty, err := json.MarshalIndent(goals, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
