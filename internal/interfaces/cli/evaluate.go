package cli

import (
	"github.com/spf13/cobra"
)

func newEvaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Run one alert evaluation pass on the server now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.callContext(cmd.Context())
			defer cancel()
			report, err := cliCtx.Alerts.Evaluate(ctx)
			if err != nil {
				return err
			}
			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), report)
			}
			renderReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}
