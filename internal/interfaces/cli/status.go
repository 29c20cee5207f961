package cli

import (
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show an analysis job and, once completed, its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.callContext(cmd.Context())
			defer cancel()
			view, err := cliCtx.Analyses.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), view)
			}
			renderStatus(cmd.OutOrStdout(), view, top)
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", defaultTop, "documents to show per section")
	return cmd
}
