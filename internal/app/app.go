package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ilia01/deliver/internal/config"
	"github.com/Ilia01/deliver/internal/telemetry"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:   "deliver",
		Short: "Reconcile a GitLab delivery merge request with Jira",
		Long: "deliver prepares the description of a team's delivery merge request and " +
			"checks the inconsistencies between GitLab and Jira.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(verbose)
			return telemetry.Init(cmd.Context(), "deliver", Version)
		},
	}

	verbose bool

	runHandler        = handleRun
	teamsHandler      = handleTeams
	checkHandler      = handleCheck
	configInitHandler = handleConfigInit
	configShowHandler = handleConfigShow
	configSetHandler  = handleConfigSet
	configValHandler  = handleConfigValidate
	configPathHandler = handleConfigPath
)

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	telemetry.Shutdown(shutdownCtx)

	return err
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(teamsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(configCmd)
}

var runOpts = runOptions{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile a delivery merge request and write its report",
	Example: `  deliver run -p front/webapp -m 7777 -t foundations
  deliver run --project front/webapp --merge-request 7777 --team foundations
  deliver run -m 7777 --preview          # project taken from the origin remote
  deliver run -m 7777 --print-state json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runOpts.MergeRequest <= 0 {
			return errors.New("--merge-request is required")
		}
		switch runOpts.PrintState {
		case "", stateFormatJSON, stateFormatYAML:
		default:
			return errors.New("--print-state must be json or yaml")
		}
		return runHandler(cmd.Context(), runOpts)
	},
}

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List the teams with their branches and Jira team ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return teamsHandler()
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test the GitLab and Jira connections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkHandler(cmd.Context())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitHandler(cmd.Context())
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowHandler()
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return configSetHandler(args[0], args[1])
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configValHandler(cmd.Context())
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config path",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configPathHandler()
	},
}

func init() {
	flags := runCmd.Flags()
	flags.StringVarP(&runOpts.Project, "project", "p", "", "GitLab project path or id (default: origin remote)")
	flags.Int64VarP(&runOpts.MergeRequest, "merge-request", "m", 0, "GitLab merge request iid")
	flags.StringVarP(&runOpts.Team, "team", "t", "", "Jira team (default: delivery.team, then "+config.DefaultTeam+")")
	flags.StringVarP(&runOpts.Output, "output", "o", "", "Report path (default: delivery.report_path)")
	flags.BoolVar(&runOpts.Preview, "preview", false, "Render the report in the terminal")
	flags.BoolVar(&runOpts.Open, "open", false, "Open the merge request in the browser")
	flags.StringVar(&runOpts.PrintState, "print-state", "", "Print the delivery state as json or yaml")

	configCmd.AddCommand(configInitCmd, configShowCmd, configSetCmd, configValidateCmd, configPathCmd)
}
