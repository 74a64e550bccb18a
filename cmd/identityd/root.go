package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the identityd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identityd",
		Short: "identityd - identity and session lifecycle service",
		Long: `identityd fronts an external identity provider with registration,
login, refresh rotation and verified email change. Configuration is read from
IDENTITYD_* environment variables.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
