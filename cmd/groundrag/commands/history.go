package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/groundrag/internal/store"
)

// evalSample is one record in the shape offline RAG evaluators consume.
type evalSample struct {
	Question     string   `json:"question"`
	Contexts     []string `json:"contexts"`
	Answer       string   `json:"answer"`
	GroundTruths []string `json:"ground_truths"`
}

// NewHistoryCmd constructs the `groundrag history` command, which lists
// recently answered queries from the query log.
func NewHistoryCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently answered queries",
		Long: `List the most recent queries recorded by 'groundrag ask' and the HTTP API.

With --json, entries are printed as evaluation samples
({question, contexts, answer, ground_truths}) ready to be scored by an
offline RAG evaluator. ground_truths is always empty; fill it in by hand.

Examples:
  groundrag history
  groundrag history --limit 100 --json > samples.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("history: --limit must be positive")
			}
			path := settings.HistoryDB
			if path == historyDisabled {
				return errors.New("history: query log is disabled (GROUNDRAG_HISTORY_DB=disabled)")
			}
			if path == "" {
				var err error
				if path, err = store.DefaultDBPath(); err != nil {
					return fmt.Errorf("history: %w", err)
				}
			}

			qs, err := store.Open(path)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer func() { _ = qs.Close() }()

			entries, err := qs.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeSamples(out, entries)
			}
			return writeTable(out, entries)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as evaluation samples")

	return cmd
}

// writeSamples prints entries as a JSON array of evaluation samples.
func writeSamples(w io.Writer, entries []store.Entry) error {
	samples := make([]evalSample, len(entries))
	for i, e := range entries {
		samples[i] = evalSample{
			Question:     e.Question,
			Contexts:     e.Contexts,
			Answer:       e.Answer,
			GroundTruths: []string{},
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(samples) //nolint:wrapcheck // CLI entry point, error goes directly to cobra
}

// writeTable prints one line per entry.
func writeTable(w io.Writer, entries []store.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No queries recorded yet.")
		return err //nolint:wrapcheck // CLI entry point
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tGROUNDED\tRETRY\tSOURCES\tQUESTION")
	for _, e := range entries {
		g := "-"
		if e.Groundedness != nil {
			g = fmt.Sprintf("%.2f", *e.Groundedness)
		}
		retry := "-"
		switch {
		case e.RetryAdopted:
			retry = "adopted"
		case e.RetryAttempted:
			retry = "kept"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			e.ID, e.CreatedAt.Local().Format(time.DateTime), g, retry, len(e.Sources), truncate(e.Question, 60))
	}
	return tw.Flush() //nolint:wrapcheck // CLI entry point
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
