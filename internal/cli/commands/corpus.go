package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/distill-labs/distillprep/internal/corpus"
	"github.com/distill-labs/distillprep/internal/state"
)

// NewCorpusCommand creates the corpus command group.
func NewCorpusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Fetch and inspect cached text corpora",
	}

	cmd.AddCommand(newCorpusFetchCommand())
	cmd.AddCommand(newCorpusListCommand())
	cmd.AddCommand(newCorpusRunsCommand())
	return cmd
}

func newCorpusFetchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <corpus>...",
		Short: "Download corpora into the local cache",
		Long: `Download the named corpora into the shared cache directory.

Files already present and matching their pinned digest are skipped.
Transient download failures are retried with backoff. Every completed
download is recorded in the manifest database.`,
		Example: `  # Fetch the tokenizer assets and the training corpus
  distillprep corpus fetch gpt2-tokenizer wikitext-2-raw

  # Known corpus names
  distillprep corpus fetch --help`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCorpusFetch(cmd, args)
		},
	}
	return cmd
}

func runCorpusFetch(cmd *cobra.Command, names []string) error {
	cfg := getConfig()
	logger := getLogger(cmd)

	if err := cfg.EnsureCacheDir(); err != nil {
		return err
	}

	store, cleanup, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	fetcher := corpus.NewFetcher(cfg.CacheDir, corpus.WithLogger(logger))
	ctx := cmd.Context()

	for _, name := range names {
		c, err := corpus.Lookup(name)
		if err != nil {
			return err
		}

		run, err := store.CreateRun(state.RunKindFetch, name)
		if err != nil {
			return err
		}

		results, fetchErr := fetcher.Fetch(ctx, c)
		for _, res := range results {
			if err := store.RecordDownload(&state.Download{
				Corpus:      res.Corpus,
				File:        res.Name,
				Path:        res.Path,
				Bytes:       res.Bytes,
				SHA256:      res.SHA256,
				CompletedAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
		}

		if fetchErr != nil {
			_ = store.CompleteRun(run.ID, state.RunStatusFailed, fetchErr.Error())
			return fetchErr
		}
		if err := store.CompleteRun(run.ID, state.RunStatusCompleted, ""); err != nil {
			return err
		}

		cached := 0
		var bytes int64
		for _, res := range results {
			if res.Cached {
				cached++
			}
			bytes += res.Bytes
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files (%d cached, %d bytes)\n",
			name, len(results), cached, bytes)
	}
	return nil
}

func newCorpusRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent fetch and tokenize runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig()
			logger := getLogger(cmd)

			store, cleanup, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Kind", "Corpus", "Status", "Started", "Finished"})
			for _, r := range runs {
				id := r.ID
				if len(id) > 8 {
					id = id[:8]
				}
				finished := "-"
				if r.FinishedAt != nil {
					finished = r.FinishedAt.Format(time.RFC3339)
				}
				t.AppendRow(table.Row{
					id, string(r.Kind), r.Corpus, string(r.Status),
					r.StartedAt.Format(time.RFC3339), finished,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Show at most N runs (0 = all)")

	return cmd
}

func newCorpusListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached corpus files from the manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig()
			logger := getLogger(cmd)

			store, cleanup, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			downloads, err := store.ListDownloads()
			if err != nil {
				return err
			}
			if len(downloads) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No cached corpora. Run 'distillprep corpus fetch' first.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Corpus", "File", "Bytes", "SHA256", "Completed"})
			for _, d := range downloads {
				digest := d.SHA256
				if len(digest) > 12 {
					digest = digest[:12]
				}
				t.AppendRow(table.Row{
					d.Corpus, d.File, d.Bytes, digest,
					d.CompletedAt.Format(time.RFC3339),
				})
			}
			t.Render()
			return nil
		},
	}
	return cmd
}
