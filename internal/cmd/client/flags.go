package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// NewFlagsCommand constructs the `flags` command group and subcommands.
func NewFlagsCommand(baseURL BaseURLFunc) *cobra.Command {
	flagsCmd := &cobra.Command{Use: "flags", Short: "Feature flag operations"}

	flagsCmd.AddCommand(
		newFlagsListCommand(baseURL),
		newFlagsToggleCommand(baseURL),
		newFlagsRefreshCommand(baseURL),
	)

	return flagsCmd
}

// newFlagsListCommand constructs the `flags list` subcommand.
func newFlagsListCommand(baseURL BaseURLFunc) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's flags",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")

			url := fmt.Sprintf("%s/v1/flags?tenant=%s", baseURL(), tenant)
			resp, err := http.Get(url)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode >= 300 {
				_, _ = io.Copy(io.Discard, resp.Body)
				return fmt.Errorf("http error: %s", resp.Status)
			}
			var data struct {
				Tenant string `json:"tenant"`
				Flags  []struct {
					Key       string `json:"key"`
					Name      string `json:"name"`
					Enabled   bool   `json:"enabled"`
					UpdatedAt int64  `json:"updatedAtMs"`
				} `json:"flags"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		},
	}
	listCmd.Flags().StringP("tenant", "t", "", "Tenant name")
	return listCmd
}

// newFlagsToggleCommand constructs the `flags toggle` subcommand.
func newFlagsToggleCommand(baseURL BaseURLFunc) *cobra.Command {
	toggleCmd := &cobra.Command{
		Use:   "toggle",
		Short: "Enable or disable a flag",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			key, _ := cmd.Flags().GetString("key")
			enabled, _ := cmd.Flags().GetBool("enabled")

			if key == "" {
				return fmt.Errorf("--key is required")
			}
			body, err := json.Marshal(map[string]any{
				"tenant":  tenant,
				"key":     key,
				"enabled": enabled,
			})
			if err != nil {
				return err
			}
			resp, err := http.Post(baseURL()+"/v1/flags/toggle", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("flag %q not found for tenant %q", key, tenant)
			}
			if resp.StatusCode >= 300 {
				_, _ = io.Copy(io.Discard, resp.Body)
				return fmt.Errorf("http error: %s", resp.Status)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	toggleCmd.Flags().StringP("tenant", "t", "", "Tenant name")
	toggleCmd.Flags().String("key", "", "Flag key")
	toggleCmd.Flags().Bool("enabled", false, "Desired state")
	return toggleCmd
}

// newFlagsRefreshCommand constructs the `flags refresh` subcommand.
func newFlagsRefreshCommand(baseURL BaseURLFunc) *cobra.Command {
	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Reload all flags from storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := http.Post(baseURL()+"/v1/flags/refresh", "application/json", nil)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode >= 300 {
				_, _ = io.Copy(io.Discard, resp.Body)
				return fmt.Errorf("http error: %s", resp.Status)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	return refreshCmd
}
