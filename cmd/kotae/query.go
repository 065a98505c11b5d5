package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

var (
	queryTopK          int
	queryMinSimilarity float64
	searchLimit        int
	searchFuzzy        bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the ingested documents",
	Long: `Retrieves the passages most similar to the question and asks the language
model to answer from them, citing each passage as [Source N]. Multi-word
questions work with or without quotes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question, err := joinQuery(args)
		if err != nil {
			return err
		}
		return withComponents(func(ctx context.Context, s *session, c *Components) error {
			resp, err := c.Chat.Ask(ctx, chat.AskRequest{Question: question, TopK: queryTopK})
			if err != nil {
				return err
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), resp, s.format)
		})
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Show the chunks most similar to a query",
	Long: `Runs the similarity search behind ask without calling the language model.
At most one chunk per document is returned.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := joinQuery(args)
		if err != nil {
			return err
		}
		return withComponents(func(ctx context.Context, s *session, c *Components) error {
			floor := s.cfg.Retrieval.MinSimilarityOrDefault()
			if cmd.Flags().Changed("min-similarity") {
				floor = queryMinSimilarity
			}
			summary, err := c.Retriever.RetrieveWithMetadata(ctx, query, queryTopK, floor)
			if err != nil {
				return err
			}
			return cli.WriteRetrieval(cmd.OutOrStdout(), query, summary, s.format)
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <terms>",
	Short: "Keyword search over chunks",
	Long: `Ranks chunks by BM25 over their text, file name and section title. Use
--fuzzy to tolerate spelling mistakes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := joinQuery(args)
		if err != nil {
			return err
		}
		return withComponents(func(ctx context.Context, s *session, c *Components) error {
			opts := &keyword.SearchOptions{FuzzyEnabled: searchFuzzy, Highlight: keyword.HighlightHTML}
			if s.format == cli.OutputText {
				opts.Highlight = keyword.HighlightANSI
			}
			results, err := keywordSearch(ctx, c.Keywords, c.Store, query, searchLimit, opts)
			if err != nil {
				return err
			}
			return cli.WriteKeywordResults(cmd.OutOrStdout(), query, results, s.format)
		})
	},
}

func init() {
	askCmd.Flags().IntVar(&queryTopK, "top-k", 0, "number of passages to retrieve (default from config)")

	retrieveCmd.Flags().IntVar(&queryTopK, "top-k", 0, "number of results (default from config)")
	retrieveCmd.Flags().Float64Var(&queryMinSimilarity, "min-similarity", 0, "similarity floor in [0, 1] (default from config)")

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "number of results")
	searchCmd.Flags().BoolVar(&searchFuzzy, "fuzzy", false, "enable fuzzy matching for typo tolerance")

	rootCmd.AddCommand(askCmd, retrieveCmd, searchCmd)
}

// joinQuery joins positional args with spaces so multi-word queries work the same with
// or without shell quoting.
func joinQuery(args []string) (string, error) {
	q := strings.TrimSpace(strings.Join(args, " "))
	if q == "" {
		return "", errors.New("query must not be empty")
	}
	return q, nil
}

// keywordSearch resolves keyword hits to their chunks and file names. Hits whose chunk
// was deleted after it was indexed are dropped.
func keywordSearch(ctx context.Context, idx keyword.Index, store storage.Storage, query string, limit int, opts *keyword.SearchOptions) ([]cli.KeywordResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", models.ErrValidation)
	}
	hits, err := idx.Search(ctx, query, limit, opts)
	if err != nil {
		return nil, err
	}
	filenames := make(map[string]string)
	results := make([]cli.KeywordResult, 0, len(hits))
	for _, h := range hits {
		chunk, err := store.GetChunk(ctx, h.ChunkID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		name, ok := filenames[chunk.DocumentID]
		if !ok {
			doc, err := store.GetDocument(ctx, chunk.DocumentID)
			if err != nil && !errors.Is(err, models.ErrNotFound) {
				return nil, err
			}
			name = chunk.DocumentID
			if doc != nil {
				name = doc.Filename
			}
			filenames[chunk.DocumentID] = name
		}
		results = append(results, cli.KeywordResult{Chunk: chunk, Filename: name, Score: h.Score, Fragments: h.Fragments})
	}
	return results, nil
}
