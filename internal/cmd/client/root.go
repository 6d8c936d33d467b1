package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the Pulse client.
// It registers the track, identify and flags command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "pulse",
		Short: "Pulse client commands",
	}
	root.AddCommand(NewTrackCommand(baseURL))
	root.AddCommand(NewIdentifyCommand(baseURL))
	root.AddCommand(NewFlagsCommand(baseURL))
	return root
}
