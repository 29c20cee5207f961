// Package cli implements the priorart command line: remote analyses and
// alert management through the HTTP API, local ranking runs, and database
// migrations.
package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/PriorArt-Intelligence/internal/app"
	"github.com/turtacn/PriorArt-Intelligence/internal/config"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/client"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	NoColor      bool
	Timeout      time.Duration
	ServerAddr   string
	Owner        string
}

// AnalysisAPI is the part of the SDK the analysis commands use.
type AnalysisAPI interface {
	Submit(ctx context.Context, profile client.ProfileRequest) (*client.SubmitResponse, error)
	Get(ctx context.Context, jobID string) (*client.AnalysisStatus, error)
	Wait(ctx context.Context, jobID string) (*client.AnalysisStatus, error)
}

// AlertAPI is the part of the SDK the alert commands use.
type AlertAPI interface {
	Create(ctx context.Context, req client.CreateAlertRequest) (*client.AlertView, error)
	List(ctx context.Context) (*client.AlertList, error)
	Pause(ctx context.Context, id string) (*client.AlertView, error)
	Resume(ctx context.Context, id string) (*client.AlertView, error)
	Delete(ctx context.Context, id string) error
	Notifications(ctx context.Context, id string, limit int) (*client.NotificationList, error)
	Inbox(ctx context.Context, unreadOnly bool, limit int) (*client.NotificationList, error)
	MarkRead(ctx context.Context, notificationID string) error
	Evaluate(ctx context.Context) (*client.EvaluationReport, error)
}

// Migrator applies the embedded schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
	Status() (version uint, dirty bool, err error)
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	Analyses     AnalysisAPI
	Alerts       AlertAPI
	NewMigrator  func() Migrator
	NewLoaders   func(ctx context.Context) ([]app.DocumentLoader, func() error, error)
	Owner        string
	OutputFormat string
	Timeout      time.Duration
}

// ContextFactory builds the CLIContext from the parsed global flags.
type ContextFactory func(opts *RootOptions) (*CLIContext, error)

type rootConfig struct {
	factory ContextFactory
}

type RootOption func(*rootConfig)

// WithContextFactory replaces the default config/logger/SDK wiring.
func WithContextFactory(f ContextFactory) RootOption {
	return func(c *rootConfig) { c.factory = f }
}

// NewRootCommand creates the root command with all global flags and
// subcommands.
func NewRootCommand(options ...RootOption) *cobra.Command {
	rc := &rootConfig{factory: defaultContext}
	for _, o := range options {
		o(rc)
	}
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "priorart",
		Short: "PriorArt-Intelligence CLI: prior-art ranking, technology scoring and alerts",
		Long: "priorart submits research profiles for prior-art analysis, shows job status,\n" +
			"manages standing alerts and their notifications, and runs database migrations.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.OutputFormat != "text" && opts.OutputFormat != "json" {
				return errors.NewValidationError("invalid flags", []errors.FieldViolation{
					{Field: "output", Message: "must be text or json"},
				})
			}
			if opts.NoColor {
				color.NoColor = true
			}
			cliCtx, err := rc.factory(opts)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./priorart.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json)")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	pf.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "timeout for a single API call")
	pf.StringVar(&opts.ServerAddr, "server", "", "API server address (default: from config, else http://localhost:8080)")
	pf.StringVar(&opts.Owner, "owner", os.Getenv("PRIORART_OWNER"), "owner id sent as X-Owner-ID (env PRIORART_OWNER)")

	cmd.AddCommand(
		newAnalyzeCmd(),
		newStatusCmd(),
		newAlertsCmd(),
		newEvaluateCmd(),
		newMigrateCmd(),
		newIndexCmd(),
	)
	return cmd
}

func defaultContext(opts *RootOptions) (*CLIContext, error) {
	cfg, err := initConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("config initialization failed: %w", err)
	}
	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            opts.LogLevel,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, fmt.Errorf("logger initialization failed: %w", err)
	}

	api, err := client.NewClient(serverAddr(cfg, opts),
		client.WithOwner(opts.Owner),
		client.WithTimeout(opts.Timeout),
		client.WithLogger(sdkLogger{logger.Named("sdk")}),
		client.WithUserAgent("priorart-cli/"+Version),
		client.WithWaitTimeout(cfg.Analysis.CallerTimeout),
	)
	if err != nil {
		return nil, err
	}

	return &CLIContext{
		Config:   cfg,
		Logger:   logger,
		Analyses: api.Analyses(),
		Alerts:   api.Alerts(),
		NewMigrator: func() Migrator {
			return postgres.NewMigrator(postgres.BuildDSN(cfg.Database.Postgres), logger)
		},
		NewLoaders: func(ctx context.Context) ([]app.DocumentLoader, func() error, error) {
			return app.NewDocumentLoaders(ctx, cfg, logger)
		},
		Owner:        opts.Owner,
		OutputFormat: opts.OutputFormat,
		Timeout:      opts.Timeout,
	}, nil
}

// initConfig loads the file named by --config, else the first file found on
// the search path, else defaults. PRIORART_* variables apply in every case.
func initConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}
	searchPaths := []string{"./priorart.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".priorart", "config.yaml"))
	}
	searchPaths = append(searchPaths, "/etc/priorart/config.yaml")
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	if cfg, err := config.LoadFromEnv(); err == nil {
		return cfg, nil
	}
	return config.NewDefaultConfig(), nil
}

func serverAddr(cfg *config.Config, opts *RootOptions) string {
	if opts.ServerAddr != "" {
		return opts.ServerAddr
	}
	host := cfg.Server.HTTP.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	port := cfg.Server.HTTP.Port
	if port == 0 {
		port = 8080
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// GetCLIContext extracts the CLIContext stored by the root pre-run hook.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.Internal("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.Internal("CLI context not initialized")
	}
	return cliCtx, nil
}

// callContext bounds one API call by --timeout.
func (c *CLIContext) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

func (c *CLIContext) requireOwner() error {
	if c.Owner == "" {
		return errors.NewValidationError("owner is required", []errors.FieldViolation{
			{Field: "owner", Message: "set --owner or PRIORART_OWNER"},
		})
	}
	return nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return 1
	}
	return 0
}

// PrintError writes err to stderr, listing field violations one per line.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.RedString("Error:"), err.Error())
	for _, v := range errors.Violations(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "  - %s: %s\n", v.Field, v.Message)
	}
}

// PrintSuccess writes a formatted success message to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("OK:"), msg)
}

type sdkLogger struct{ l logging.Logger }

func (s sdkLogger) Debugf(format string, args ...interface{}) { s.l.Debug(fmt.Sprintf(format, args...)) }
func (s sdkLogger) Infof(format string, args ...interface{})  { s.l.Info(fmt.Sprintf(format, args...)) }
func (s sdkLogger) Errorf(format string, args ...interface{}) { s.l.Warn(fmt.Sprintf(format, args...)) }
