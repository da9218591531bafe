package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/groundrag/internal/logging"
	"github.com/54b3r/groundrag/internal/provider"
	"github.com/54b3r/groundrag/internal/server"
)

// NewServeCmd constructs the `groundrag serve` command, which starts the
// HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the groundrag HTTP API",
		Long: `Start the groundrag HTTP server.

Endpoints:
  POST /v1/query     {"query": "...", "top_k": 5, "rerank": false}
  GET  /v1/history   recent answered queries (?limit=N)
  GET  /health       liveness and configuration summary
  GET  /api/ready    Qdrant and model reachability
  GET  /metrics      Prometheus metrics

When GROUNDRAG_API_KEY is set, /v1 routes require it as X-API-Key or as
an Authorization: Bearer token.

Examples:
  groundrag serve
  groundrag serve --port 9090
  MODEL_PROVIDER=ollama OLLAMA_MODEL=llama3.1 groundrag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s := settings
			log := logging.FromContext(ctx)

			if cmd.Flags().Changed("host") {
				s.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				s.Server.Port = port
			}

			log.Info("serve starting", slog.String("provider", string(s.Provider.Backend)))

			flush := setupTracing(s, log)
			defer flush()

			st, err := buildStack(ctx, s, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer st.Close()

			queryLog, closeLog := openQueryLog(s, log)
			defer closeLog()

			pingers := []server.Pinger{server.NewQdrantPinger(st.index)}
			if g, ok := st.generator.(*provider.ChatGenerator); ok {
				pingers = append(pingers, server.NewLLMPinger(g, string(s.Provider.Backend)))
			}

			srv, err := server.New(st.engine, &server.Config{
				Host:      s.Server.Host,
				Port:      s.Server.Port,
				Logger:    log,
				Pingers:   pingers,
				RateLimit: s.Server.RateLimit,
				RateBurst: s.Server.RateBurst,
				APIKey:    s.Server.APIKey,
				QueryLog:  queryLog,
				Health: server.HealthInfo{
					Provider:           string(s.Provider.Backend),
					Model:              s.Provider.ModelName(),
					ProviderConfigured: s.Provider.Backend != provider.BackendEcho,
					VectorDBConfigured: s.Qdrant.Host != "",
					Collection:         s.Collection,
				},
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides SERVER_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides SERVER_PORT)")

	return cmd
}
