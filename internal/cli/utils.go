// Package cli renders command results as text or JSON.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/observability"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const (
	rule         = "─────────────────────────────────────────────────────────"
	previewRunes = 200
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer with its sources.
func WriteAnswer(w io.Writer, resp *chat.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	if resp.Rejected != nil {
		fmt.Fprintf(w, "Question rejected (%s): %s\n", resp.Rejected.Reason, resp.Rejected.Message)
		return nil
	}
	fmt.Fprintf(w, "\n%s\n", resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, s := range resp.Sources {
			fmt.Fprintf(w, "  [%d] %s (chunk %d, similarity %.2f%%)\n", s.ID, s.Filename, s.ChunkIndex, s.Similarity*100)
		}
	}
	if m := resp.Metrics; m != nil {
		fmt.Fprintf(w, "\n%.2fs total (retrieval %.2fs, generation %.2fs), %d tokens, $%.6f\n",
			m.TotalLatency, m.RetrievalLatency, m.LLMLatency, m.TotalTokens, m.Cost)
	}
	return nil
}

// WriteRetrieval writes similarity search results.
func WriteRetrieval(w io.Writer, query string, summary *models.RetrievalSummary, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, summary)
	}
	fmt.Fprintf(w, "\nFound %d results for %q (avg similarity %.3f)\n\n", summary.TotalFound, query, summary.AvgSimilarity)
	for i, r := range summary.Results {
		fmt.Fprintln(w, rule)
		name := r.Chunk.DocumentID
		if r.Document != nil {
			name = r.Document.Filename
		}
		fmt.Fprintf(w, "#%d %s | chunk %d | similarity %.4f\n", i+1, name, r.Chunk.ChunkIndex, r.Similarity)
		if r.Chunk.SectionTitle != "" {
			fmt.Fprintf(w, "Section: %s\n", r.Chunk.SectionTitle)
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Preview(r.Chunk.Content, previewRunes))
	}
	return nil
}

// KeywordResult is a lexical match resolved to its chunk.
type KeywordResult struct {
	Chunk     *models.Chunk `json:"chunk"`
	Filename  string        `json:"filename"`
	Score     float64       `json:"score"`
	Fragments []string      `json:"fragments,omitempty"`
}

// WriteKeywordResults writes keyword search matches.
func WriteKeywordResults(w io.Writer, query string, results []KeywordResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, map[string]any{"query": query, "results": results, "total": len(results)})
	}
	fmt.Fprintf(w, "\nFound %d keyword matches for %q\n\n", len(results), query)
	for i, r := range results {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "#%d %s | chunk %d | score %.4f\n", i+1, r.Filename, r.Chunk.ChunkIndex, r.Score)
		if len(r.Fragments) > 0 {
			fmt.Fprintf(w, "\n%s\n\n", strings.Join(r.Fragments, "\n…\n"))
			continue
		}
		fmt.Fprintf(w, "\n%s\n\n", TruncateWords(r.Chunk.Content, 40))
	}
	return nil
}

// WritePipelineResults writes per-file ingestion outcomes.
func WritePipelineResults(w io.Writer, results []*models.PipelineResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, results)
	}
	var done, skipped, failed int
	for _, r := range results {
		switch {
		case r.Err != nil || r.Error != "":
			failed++
			fmt.Fprintf(w, "FAIL  %s: %s\n", r.Source, r.Error)
		case r.Skipped:
			skipped++
			fmt.Fprintf(w, "SKIP  %s (already processed, %d chunks)\n", r.Source, r.Chunks)
		default:
			if r.Status == models.StatusCompleted {
				done++
			} else {
				failed++
			}
			embedded, total := 0, 0
			if r.Embed != nil {
				embedded, total = r.Embed.Processed, r.Embed.Total
			}
			fmt.Fprintf(w, "%-5s %s: %d chunks, %d/%d embedded, %d indexed\n",
				statusLabel(r.Status), r.Source, r.Chunks, embedded, total, r.Synced)
		}
	}
	fmt.Fprintf(w, "\n%d processed, %d skipped, %d failed\n", done, skipped, failed)
	return nil
}

func statusLabel(s models.Status) string {
	if s == models.StatusCompleted {
		return "OK"
	}
	return strings.ToUpper(string(s))
}

// WriteSyncResult writes the outcome of an index sync.
func WriteSyncResult(w io.Writer, res *models.SyncResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	fmt.Fprintf(w, "Synced %d vectors, quarantined %d, %d pending\n", res.Synced, res.Skipped, res.Pending)
	return nil
}

// Report is the output of the stats command.
type Report struct {
	Statistics  *observability.Statistics  `json:"statistics"`
	Bottlenecks *observability.Bottlenecks `json:"bottlenecks"`
}

// WriteReport writes question statistics and the bottleneck analysis.
func WriteReport(w io.Writer, r Report, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, r)
	}
	s := r.Statistics
	if s.TotalQueries == 0 {
		fmt.Fprintln(w, s.Message)
		return nil
	}
	fmt.Fprintf(w, "Queries:     %d (%d ok, %d failed, %.2f%% success)\n",
		s.TotalQueries, s.SuccessfulQueries, s.FailedQueries, s.SuccessRate)
	fmt.Fprintf(w, "Latency:     avg %.3fs (llm %.3fs, retrieval %.3fs), min %.3fs, max %.3fs\n",
		s.Latency.AvgTotal, s.Latency.AvgLLM, s.Latency.AvgRetrieval, s.Latency.MinTotal, s.Latency.MaxTotal)
	fmt.Fprintf(w, "Tokens:      %d total, %.1f per query\n", s.Tokens.Total, s.Tokens.AvgPerQuery)
	fmt.Fprintf(w, "Cost:        $%.6f total, $%.6f per query, $%.2f per 1k queries\n",
		s.Cost.Total, s.Cost.AvgPerQuery, s.Cost.EstimatedPer1KQueries)
	fmt.Fprintf(w, "Retrieval:   %.2f chunks, %.3f avg similarity\n", s.Retrieval.AvgChunksRetrieved, s.Retrieval.AvgSimilarity)
	fmt.Fprintf(w, "Guardrails:  %d violations (%.2f%%)\n", s.Guardrails.Violations, s.Guardrails.ViolationRate)

	if b := r.Bottlenecks; b != nil && len(b.Breakdown) > 0 {
		stages := make([]string, 0, len(b.Breakdown))
		for stage := range b.Breakdown {
			stages = append(stages, string(stage))
		}
		sort.Strings(stages)
		fmt.Fprintln(w, "\nTime breakdown:")
		for _, stage := range stages {
			fmt.Fprintf(w, "  %-11s %6.2f%%\n", stage, b.Breakdown[observability.Stage(stage)])
		}
		fmt.Fprintf(w, "Bottleneck:  %s (%s)\n", b.Primary, b.Recommendation)
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
