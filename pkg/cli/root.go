// Package cli implements the mvadvisor command line.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mv-advisor/internal/config"
	"mv-advisor/internal/domain"
	"mv-advisor/internal/store"
)

var (
	version = "dev"
	commit  = "none"
)

// app is the state shared by all subcommands once the root pre-run has
// resolved configuration.
type app struct {
	envFile   string
	output    string
	storePath string
	logLevel  string

	cfg    *config.Config
	logger *slog.Logger
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return execute(os.Args[1:], os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = printJSON(stdout, map[string]interface{}{
				"error": err.Error(),
				"kind":  errorKind(err),
			})
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func errorKind(err error) string {
	var (
		notFound   *domain.NotFoundError
		validation *domain.ValidationError
		malformed  *domain.MalformedEdgeError
		conflict   *domain.ConflictError
	)
	switch {
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &malformed):
		return "malformed_edge"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &conflict):
		return "conflict"
	}
	return "internal"
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "mvadvisor",
		Short:         "Materialized view candidate advisor",
		Long:          "Derives candidate join patterns for materialized views from a query workload and a relational schema.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "", "Output format (table, json); defaults to table on a terminal")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file loaded before reading configuration")
	rootCmd.PersistentFlags().StringVar(&a.storePath, "store", "", "SQLite run store path (overrides STORE_PATH)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(newAnalyzeCmd(a))
	rootCmd.AddCommand(newSchemaCmd(a))
	rootCmd.AddCommand(newRunsCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return fmt.Errorf("load %s: %w", a.envFile, err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if a.storePath != "" {
		cfg.StorePath = a.storePath
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	// flag > MVADVISOR_OUTPUT > terminal detection
	if !cmd.Flags().Changed("output") {
		if v := os.Getenv("MVADVISOR_OUTPUT"); v != "" {
			a.output = v
		} else if f, ok := cmd.OutOrStdout().(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
			a.output = "table"
		} else {
			a.output = "json"
		}
	}
	if err := validateOutputFormat(a.output); err != nil {
		return err
	}

	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	for _, w := range cfg.Warnings {
		a.logger.Warn(w)
	}
	return nil
}

func (a *app) openStore() (*store.Store, error) {
	if !a.cfg.HasStore() {
		return nil, domain.ErrValidation("no run store configured: set STORE_PATH or --store")
	}
	st, err := store.Open(a.cfg.StorePath)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("run store opened", "path", a.cfg.StorePath, "schema_version", st.SchemaVersion())
	return st, nil
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
