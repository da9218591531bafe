// Package commands defines all Cobra CLI commands for the groundrag binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/groundrag/internal/audit"
	"github.com/54b3r/groundrag/internal/config"
	"github.com/54b3r/groundrag/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// settings is the resolved configuration, set by the root PersistentPreRunE
// before any subcommand runs.
var settings *config.Settings

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "groundrag",
		Short: "groundrag: retrieval-augmented answers with a groundedness self-check",
		Long: `groundrag answers questions from your own documents.

Documents are chunked and embedded into Qdrant with 'groundrag ingest'.
Each question retrieves the most similar passages, optionally reranks them
with a cross-encoder, and generates an answer from them. The answer is then
scored for groundedness against the same passages; a low score triggers one
wider retrieval retry, and the better-grounded answer is kept.

Configuration layers, highest precedence first: environment variables,
a .env file, a YAML config file (~/.groundrag/config.yaml), built-in defaults.
See 'groundrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			boot := logging.NewFromEnv()

			// .env first: both layers skip keys already set, so .env beats YAML.
			if err := config.LoadDotEnv(envFile, boot); err != nil {
				return err
			}
			path, err := config.Load(configPath, boot)
			if err != nil {
				return err
			}

			s, err := config.FromEnv()
			if err != nil {
				return err
			}
			settings = s

			log := logging.New(s.LogLevel, s.LogFormat)
			slog.SetDefault(log)
			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(ctx, log, cmd.Name(), path)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.groundrag/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file; missing files are ignored")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
