package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/distill-labs/distillprep/internal/corpus"
	"github.com/distill-labs/distillprep/internal/dataset"
	"github.com/distill-labs/distillprep/internal/state"
	"github.com/distill-labs/distillprep/internal/tokenizer"
)

// TokenizeOptions holds options for the tokenize command.
type TokenizeOptions struct {
	Workers int
	Limit   int
	Probe   bool
}

// NewTokenizeCommand creates the tokenize command.
func NewTokenizeCommand() *cobra.Command {
	opts := &TokenizeOptions{}

	cmd := &cobra.Command{
		Use:   "tokenize <corpus>",
		Short: "Encode a cached corpus into a token-id dataset",
		Long: `Tokenize every text file of a cached corpus with the GPT-2 byte-level
BPE tokenizer and write the token IDs as little-endian uint32 streams,
one .bin per source file, with a JSON stats sidecar.

The tokenizer assets (gpt2-tokenizer corpus) and the target corpus
must have been fetched first.`,
		Example: `  # Tokenize the whole training corpus
  distillprep tokenize wikitext-2-raw

  # Probe: encode the first 5 lines and print the IDs
  distillprep tokenize wikitext-2-raw --limit 5 --probe`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenize(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "Encoding workers (default: GOMAXPROCS)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "l", 0, "Encode only the first N lines per file")
	cmd.Flags().BoolVar(&opts.Probe, "probe", false, "Print the encoded IDs instead of summarizing")

	return cmd
}

func runTokenize(cmd *cobra.Command, corpusName string, opts *TokenizeOptions) error {
	cfg := getConfig()
	logger := getLogger(cmd)

	c, err := corpus.Lookup(corpusName)
	if err != nil {
		return err
	}
	if corpusName == corpus.CorpusGPT2Assets {
		return fmt.Errorf("corpus %s holds tokenizer assets, nothing to tokenize", corpusName)
	}

	fetcher := corpus.NewFetcher(cfg.CacheDir)
	vocabPath := fetcher.FilePath(corpus.CorpusGPT2Assets, "vocab.json")
	mergesPath := fetcher.FilePath(corpus.CorpusGPT2Assets, "merges.txt")
	tk, err := tokenizer.Load(vocabPath, mergesPath)
	if err != nil {
		return fmt.Errorf("tokenizer assets not usable (run 'distillprep corpus fetch %s'): %w",
			corpus.CorpusGPT2Assets, err)
	}
	logger.Debug("tokenizer loaded", "vocab_size", tk.VocabSize())

	store, cleanup, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	run, err := store.CreateRun(state.RunKindTokenize, corpusName)
	if err != nil {
		return err
	}

	if err := tokenizeCorpus(cmd, tk, fetcher, c, opts); err != nil {
		_ = store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
		return err
	}
	return store.CompleteRun(run.ID, state.RunStatusCompleted, "")
}

func tokenizeCorpus(cmd *cobra.Command, tk *tokenizer.Tokenizer, fetcher *corpus.Fetcher, c corpus.Corpus, opts *TokenizeOptions) error {
	ctx := cmd.Context()
	startTime := time.Now()

	encoded := 0
	for _, file := range c.Files {
		src := fetcher.FilePath(c.Name, file.Name)
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("corpus file %s not cached (run 'distillprep corpus fetch %s')", file.Name, c.Name)
		}

		if opts.Probe {
			if err := probeFile(cmd, tk, src, opts.Limit); err != nil {
				return err
			}
			continue
		}

		dest := strings.TrimSuffix(src, filepath.Ext(src)) + ".tokens.bin"
		stats, err := dataset.EncodeFile(ctx, tk, src, dest, dataset.Options{
			Workers: opts.Workers,
			Limit:   opts.Limit,
		})
		if err != nil {
			return err
		}
		if err := stats.WriteFile(dest + ".stats.json"); err != nil {
			return err
		}

		encoded++
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d lines -> %d tokens (%s)\n",
			file.Name, stats.Lines, stats.Tokens, filepath.Base(dest))
	}

	if !opts.Probe {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Encoded %d files in %s\n",
			encoded, time.Since(startTime).Round(time.Millisecond))
	}
	return nil
}

// probeFile prints the token IDs of the first lines of a file.
func probeFile(cmd *cobra.Command, tk *tokenizer.Tokenizer, src string, limit int) error {
	if limit <= 0 {
		limit = 1
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read corpus file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) > limit {
		lines = lines[:limit]
	}
	for _, line := range lines {
		ids := tk.Encode(line)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%q -> %v\n", line, ids)
	}
	return nil
}
