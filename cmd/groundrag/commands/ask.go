package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/groundrag/internal/engine"
	"github.com/54b3r/groundrag/internal/logging"
	"github.com/54b3r/groundrag/internal/store"
)

// NewAskCmd constructs the `groundrag ask` command, which answers a single
// question from the ingested documents and prints the answer with its sources.
func NewAskCmd() *cobra.Command {
	var topK int
	var rerank bool
	var asJSON bool
	var noLog bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the ingested documents",
		Long: `Answer a natural language question from the documents in Qdrant.

The answer is printed with the passages it was generated from, its
groundedness score, and per-stage timings. Unless --no-log is given, the
query is also recorded in the query log (see 'groundrag history').

Examples:
  groundrag ask "what is the refund window?"
  groundrag ask --top-k 8 --rerank "how do I rotate the API key?"
  groundrag ask --json "who owns the billing service?" | jq .groundedness`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s := settings
			log := logging.FromContext(ctx)

			flush := setupTracing(s, log)
			defer flush()

			st, err := buildStack(ctx, s, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer st.Close()

			question := strings.Join(args, " ")
			res, err := st.engine.Run(ctx, question, topK, rerank)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if !noLog {
				queryLog, closeLog := openQueryLog(s, log)
				if queryLog != nil {
					if _, err := queryLog.Record(ctx, store.NewEntry(question, topK, rerank, res)); err != nil {
						log.Warn("query log write failed", slog.Any("error", err))
					}
				}
				closeLog()
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res) //nolint:wrapcheck // CLI entry point, error goes directly to cobra
			}
			printResult(out, res)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, fmt.Sprintf("Number of passages to answer from (1-%d)", engine.MaxTopK))
	cmd.Flags().BoolVar(&rerank, "rerank", false, "Rerank candidates with the cross-encoder (needs RERANKER_ENDPOINT)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVar(&noLog, "no-log", false, "Do not record the query in the query log")

	return cmd
}

// printResult renders a QueryResult for a terminal.
func printResult(w io.Writer, res *engine.QueryResult) {
	if len(res.Citations) == 0 {
		fmt.Fprintln(w, "No relevant passages found. Run 'groundrag ingest' first?")
		return
	}

	fmt.Fprintln(w, strings.TrimSpace(res.Answer))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for i, c := range res.Citations {
		score := fmt.Sprintf("score %.3f", c.Score)
		if c.RerankScore != nil {
			score += fmt.Sprintf(", rerank %.3f", *c.RerankScore)
		}
		fmt.Fprintf(w, "  [%d] %s#%d (%s)\n", i+1, c.SourceID, c.ChunkIndex, score)
	}

	fmt.Fprintln(w)
	if res.Groundedness != nil {
		fmt.Fprintf(w, "Groundedness: %.2f", *res.Groundedness)
	} else {
		fmt.Fprint(w, "Groundedness: unavailable")
	}
	switch {
	case res.Retry.Adopted:
		fmt.Fprint(w, " (retried, retry answer kept)")
	case res.Retry.Attempted:
		fmt.Fprint(w, " (retried, first answer kept)")
	}
	fmt.Fprintln(w)

	stages := make([]string, 0, len(res.Timings))
	for k := range res.Timings {
		stages = append(stages, k)
	}
	slices.Sort(stages)
	parts := make([]string, len(stages))
	for i, k := range stages {
		parts[i] = fmt.Sprintf("%s=%.0fms", k, res.Timings[k])
	}
	fmt.Fprintf(w, "Timings: %s\n", strings.Join(parts, " "))
}
