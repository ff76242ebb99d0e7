package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tasksync/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .tasksync/config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Init(force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Created %s\n", path)
			_, _ = fmt.Fprintf(out, "Set %s to your API token, then run: tasksync sync --dry-run\n", config.DefaultTokenEnvVar)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")

	return cmd
}
