// Package corpus downloads and caches the public text corpora and
// tokenizer assets a distillation run consumes.
package corpus

import (
	"fmt"
	"sort"
)

// File is one downloadable artifact of a corpus.
type File struct {
	Name string // file name inside the corpus cache directory
	URL  string
	// SHA256 pins the expected digest, hex-encoded. Empty means
	// unpinned: the digest is recorded but not enforced.
	SHA256 string
}

// Corpus is a named set of files cached together.
type Corpus struct {
	Name        string
	Description string
	Files       []File
}

// Built-in corpus names.
const (
	CorpusWikitext   = "wikitext-2-raw"
	CorpusOpenWeb    = "openwebtext-sample"
	CorpusGPT2Assets = "gpt2-tokenizer"
)

// builtin is the default registry. The two text corpora are the ones
// the distillation recipe trains on; the tokenizer assets are the
// GPT-2 vocab and merges files every tokenize run needs.
var builtin = map[string]Corpus{
	CorpusWikitext: {
		Name:        CorpusWikitext,
		Description: "WikiText-2 raw character-level corpus",
		Files: []File{
			{Name: "wiki.train.raw", URL: "https://huggingface.co/datasets/Salesforce/wikitext/resolve/main/wikitext-2-raw-v1/train-00000-of-00001.txt"},
			{Name: "wiki.valid.raw", URL: "https://huggingface.co/datasets/Salesforce/wikitext/resolve/main/wikitext-2-raw-v1/validation-00000-of-00001.txt"},
		},
	},
	CorpusOpenWeb: {
		Name:        CorpusOpenWeb,
		Description: "OpenWebText sample shard",
		Files: []File{
			{Name: "openwebtext.sample.txt", URL: "https://huggingface.co/datasets/stas/openwebtext-10k/resolve/main/openwebtext-10k.txt"},
		},
	},
	CorpusGPT2Assets: {
		Name:        CorpusGPT2Assets,
		Description: "GPT-2 byte-level BPE vocab and merges",
		Files: []File{
			{Name: "vocab.json", URL: "https://huggingface.co/openai-community/gpt2/resolve/main/vocab.json"},
			{Name: "merges.txt", URL: "https://huggingface.co/openai-community/gpt2/resolve/main/merges.txt"},
		},
	},
}

// Lookup returns the named corpus from the built-in registry.
func Lookup(name string) (Corpus, error) {
	c, ok := builtin[name]
	if !ok {
		return Corpus{}, fmt.Errorf("unknown corpus %q (known: %v)", name, Names())
	}
	return c, nil
}

// Names returns the registered corpus names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
