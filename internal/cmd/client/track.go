package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewTrackCommand constructs the `track` command.
func NewTrackCommand(baseURL BaseURLFunc) *cobra.Command {
	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "Send an analytics event over a WebSocket connection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			session, _ := cmd.Flags().GetString("session")
			anon, _ := cmd.Flags().GetString("anon")
			event, _ := cmd.Flags().GetString("event")
			props, _ := cmd.Flags().GetString("props")
			ts, _ := cmd.Flags().GetInt64("ts")

			if event == "" {
				return fmt.Errorf("--event is required")
			}
			if props == "" {
				props = "{}"
			}
			if !json.Valid([]byte(props)) {
				return fmt.Errorf("--props must be a JSON value")
			}
			if ts == 0 {
				ts = time.Now().UnixMilli()
			}
			session = orNewID(session)
			anon = orNewID(anon)

			frame, err := json.Marshal(map[string]any{
				"type":  "event",
				"event": event,
				"props": props, // properties travel as an encoded JSON string
				"ts":    ts,
			})
			if err != nil {
				return err
			}
			wsURL, err := connectURL(baseURL(), tenant, session, anon)
			if err != nil {
				return err
			}
			if err := deliver(cmd.Context(), wsURL, frame); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "session:", session)
			return nil
		},
	}
	trackCmd.Flags().StringP("tenant", "t", "", "Tenant name")
	trackCmd.Flags().String("session", "", "Session id (default: fresh UUID)")
	trackCmd.Flags().String("anon", "", "Anonymous id (default: fresh UUID)")
	trackCmd.Flags().String("event", "", "Event name")
	trackCmd.Flags().String("props", "{}", "Event properties (JSON)")
	trackCmd.Flags().Int64("ts", 0, "Client timestamp in ms (default: now)")
	return trackCmd
}

// NewIdentifyCommand constructs the `identify` command.
func NewIdentifyCommand(baseURL BaseURLFunc) *cobra.Command {
	identifyCmd := &cobra.Command{
		Use:   "identify",
		Short: "Bind a user id to a session over a WebSocket connection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			session, _ := cmd.Flags().GetString("session")
			anon, _ := cmd.Flags().GetString("anon")
			user, _ := cmd.Flags().GetString("user")
			traits, _ := cmd.Flags().GetString("traits")

			if user == "" {
				return fmt.Errorf("--user is required")
			}
			if traits == "" {
				traits = "{}"
			}
			if !json.Valid([]byte(traits)) {
				return fmt.Errorf("--traits must be a JSON value")
			}
			session = orNewID(session)
			anon = orNewID(anon)

			frame, err := json.Marshal(map[string]any{
				"type":   "identify",
				"userId": user,
				"traits": traits, // traits travel as an encoded JSON string
			})
			if err != nil {
				return err
			}
			wsURL, err := connectURL(baseURL(), tenant, session, anon)
			if err != nil {
				return err
			}
			if err := deliver(cmd.Context(), wsURL, frame); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "session:", session)
			return nil
		},
	}
	identifyCmd.Flags().StringP("tenant", "t", "", "Tenant name")
	identifyCmd.Flags().String("session", "", "Session id (default: fresh UUID)")
	identifyCmd.Flags().String("anon", "", "Anonymous id (default: fresh UUID)")
	identifyCmd.Flags().String("user", "", "User id")
	identifyCmd.Flags().String("traits", "{}", "User traits (JSON)")
	return identifyCmd
}
