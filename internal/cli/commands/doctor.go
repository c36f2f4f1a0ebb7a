package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/distill-labs/distillprep/internal/cli/config"
	"github.com/distill-labs/distillprep/internal/corpus"
	"github.com/distill-labs/distillprep/internal/mapping"
	"github.com/distill-labs/distillprep/internal/tensor"
)

// checkResult is one doctor finding.
type checkResult struct {
	name   string
	ok     bool
	detail string
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the project setup",
		Long: `Run environment checks: configuration, cache and manifest paths,
mapping document, tokenizer assets, and an activation-buffer self-test.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd)
		},
	}
	return cmd
}

func runDoctor(cmd *cobra.Command) error {
	cfg := getConfig()

	checks := []checkResult{
		checkGeometry(cfg),
		checkCacheDir(cfg),
		checkMapping(cfg),
		checkTokenizerAssets(cfg),
		checkActivationBuffers(),
	}

	failed := 0
	for _, c := range checks {
		mark := "ok"
		if !c.ok {
			mark = "FAIL"
			failed++
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %-22s %s\n", mark, c.name, c.detail)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "All %d checks passed\n", len(checks))
	return nil
}

func checkGeometry(cfg *config.Config) checkResult {
	if err := cfg.Geometry.Validate(); err != nil {
		return checkResult{name: "geometry", detail: err.Error()}
	}
	return checkResult{name: "geometry", ok: true, detail: fmt.Sprintf(
		"teacher %d -> student %d blocks, %d heads x %d dims",
		cfg.Geometry.TeacherLayers, cfg.Geometry.StudentLayers,
		cfg.Geometry.Heads, cfg.Geometry.HeadDim)}
}

func checkCacheDir(cfg *config.Config) checkResult {
	info, err := os.Stat(cfg.CacheDir)
	if err != nil {
		return checkResult{name: "cache directory", detail: cfg.CacheDir + " does not exist (created on first fetch)", ok: true}
	}
	if !info.IsDir() {
		return checkResult{name: "cache directory", detail: cfg.CacheDir + " is not a directory"}
	}
	return checkResult{name: "cache directory", ok: true, detail: cfg.CacheDir}
}

func checkMapping(cfg *config.Config) checkResult {
	doc, err := mapping.ReadFile(cfg.MappingPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return checkResult{name: "mapping document", ok: true,
				detail: cfg.MappingPath + " not generated yet"}
		}
		return checkResult{name: "mapping document", detail: err.Error()}
	}
	if err := doc.Validate(cfg.Geometry); err != nil {
		return checkResult{name: "mapping document", detail: err.Error()}
	}
	return checkResult{name: "mapping document", ok: true,
		detail: fmt.Sprintf("%d pairings, valid", len(doc.InterchangeVariableMappings))}
}

func checkTokenizerAssets(cfg *config.Config) checkResult {
	fetcher := corpus.NewFetcher(cfg.CacheDir)
	for _, name := range []string{"vocab.json", "merges.txt"} {
		if _, err := os.Stat(fetcher.FilePath(corpus.CorpusGPT2Assets, name)); err != nil {
			return checkResult{name: "tokenizer assets", ok: true,
				detail: name + " not fetched yet"}
		}
	}
	return checkResult{name: "tokenizer assets", ok: true, detail: "vocab.json, merges.txt cached"}
}

// checkActivationBuffers verifies the tensor slicing an
// interchange-variable address describes on a known buffer.
func checkActivationBuffers() checkResult {
	fail := func(err error) checkResult {
		return checkResult{name: "activation buffers", detail: err.Error()}
	}

	// [2 layers, 3 heads, 2 dims] with cell value layer*100+head*10+dim.
	buf, err := tensor.New(2, 3, 2)
	if err != nil {
		return fail(err)
	}
	for l := 0; l < 2; l++ {
		for h := 0; h < 3; h++ {
			for d := 0; d < 2; d++ {
				if err := buf.Set(float32(l*100+h*10+d), l, h, d); err != nil {
					return fail(err)
				}
			}
		}
	}

	// Extract $L:1$H:[1:3]$[0:2]$ and spot-check it.
	layer, err := buf.Slice(0, 1, 2)
	if err != nil {
		return fail(err)
	}
	heads, err := layer.Slice(1, 1, 3)
	if err != nil {
		return fail(err)
	}
	want, err := tensor.FromSlice([]float32{110, 111, 120, 121}, 1, 2, 2)
	if err != nil {
		return fail(err)
	}
	if !heads.Equal(want) {
		return checkResult{name: "activation buffers",
			detail: fmt.Sprintf("slice mismatch: got %v", heads.Data())}
	}

	return checkResult{name: "activation buffers", ok: true, detail: "slice self-test passed"}
}
