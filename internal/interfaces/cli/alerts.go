package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/PriorArt-Intelligence/pkg/client"
)

func newAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Manage standing prior-art alerts and their notifications",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Cobra runs only the nearest persistent pre-run; chain to root.
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return cliCtx.requireOwner()
		},
	}
	cmd.AddCommand(
		newAlertsCreateCmd(),
		newAlertsListCmd(),
		newAlertStateCmd("pause", "Stop evaluating an alert", func(api AlertAPI) alertStateFunc { return api.Pause }),
		newAlertStateCmd("resume", "Resume evaluating an alert", func(api AlertAPI) alertStateFunc { return api.Resume }),
		newAlertsDeleteCmd(),
		newAlertsNotificationsCmd(),
		newAlertsReadCmd(),
	)
	return cmd
}

type createAlertOptions struct {
	title     string
	abstract  string
	keywords  []string
	sources   []string
	threshold float64
	lookback  int
	frequency string
}

func newAlertsCreateCmd() *cobra.Command {
	o := &createAlertOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an alert from a research profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			req := client.CreateAlertRequest{
				ProfileRequest: client.ProfileRequest{Title: o.title, Abstract: o.abstract, Keywords: o.keywords},
				Sources:        o.sources,
				LookbackDays:   o.lookback,
				Frequency:      o.frequency,
			}
			if cmd.Flags().Changed("threshold") {
				req.SimilarityThreshold = &o.threshold
			}
			ctx, cancel := cliCtx.callContext(cmd.Context())
			defer cancel()
			a, err := cliCtx.Alerts.Create(ctx, req)
			if err != nil {
				return err
			}
			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), a)
			}
			PrintSuccess(cmd, "alert created")
			renderAlert(cmd.OutOrStdout(), a)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.title, "title", "", "profile title")
	f.StringVar(&o.abstract, "abstract", "", "profile abstract")
	f.StringSliceVar(&o.keywords, "keywords", nil, "comma separated keywords")
	f.StringSliceVar(&o.sources, "sources", nil, "document types to watch: patent,publication (default both)")
	f.Float64Var(&o.threshold, "threshold", 0.75, "minimum similarity for a notification")
	f.IntVar(&o.lookback, "lookback-days", 0, "only consider documents published in the last N days (default 30)")
	f.StringVar(&o.frequency, "frequency", "", "daily, weekly or monthly (default weekly)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("abstract")
	return cmd
}

func newAlertsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.callContext(cmd.Context())
			defer cancel()
			list, err := cliCtx.Alerts.List(ctx)
			if err != nil {
				return err
			}
			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), list)
			}
			renderAlerts(cmd.OutOrStdout(), list.Alerts)
			return nil
		},
	}
}

type alertStateFunc func(ctx context.Context, id string) (*client.AlertView, error)

func newAlertStateCmd(verb, short string, pick func(AlertAPI) alertStateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <alert-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.callContext(cmd.Context())
			defer cancel()
			a, err := pick(cliCtx.Alerts)(ctx, args[0])
			if err != nil {
				return err
			}
			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), a)
			}
			PrintSuccess(cmd, fmt.Sprintf("alert %s is %s", args[0], a.Status))
			return nil
		},
	}
}

func newAlertsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <alert-id>",
		Short: "Delete an alert with its notifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.callContext(cmd.Context())
			defer cancel()
			if err := cliCtx.Alerts.Delete(ctx, args[0]); err != nil {
				return err
			}
			PrintSuccess(cmd, "alert "+args[0]+" deleted")
			return nil
		},
	}
}

func newAlertsNotificationsCmd() *cobra.Command {
	var (
		unread bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "notifications [alert-id]",
		Short: "List notifications for one alert, or across all your alerts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.callContext(cmd.Context())
			defer cancel()

			var list *client.NotificationList
			if len(args) == 1 {
				list, err = cliCtx.Alerts.Notifications(ctx, args[0], limit)
			} else {
				list, err = cliCtx.Alerts.Inbox(ctx, unread, limit)
			}
			if err != nil {
				return err
			}
			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), list)
			}
			renderNotifications(cmd.OutOrStdout(), list.Notifications)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread notifications (inbox only)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum notifications to return (server default 50)")
	return cmd
}

func newAlertsReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.callContext(cmd.Context())
			defer cancel()
			if err := cliCtx.Alerts.MarkRead(ctx, args[0]); err != nil {
				return err
			}
			PrintSuccess(cmd, "notification "+args[0]+" marked read")
			return nil
		},
	}
}
