package tokenizer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAssets builds a minimal GPT-2 format vocab/merges set: all 256
// base byte tokens plus the merges needed to tokenize "hello" into a
// single token.
func testAssets(t *testing.T) (vocabJSON, mergesTxt []byte) {
	t.Helper()

	encoder := byteEncoderForTest()

	vocab := make(map[string]int, 260)
	for b := 0; b < 256; b++ {
		vocab[encoder[byte(b)]] = b
	}
	vocab["he"] = 256
	vocab["ll"] = 257
	vocab["hell"] = 258
	vocab["hello"] = 259

	vocabJSON, err := json.Marshal(vocab)
	require.NoError(t, err)

	mergesTxt = []byte("#version: 0.2\nh e\nl l\nhe ll\nhell o\n")
	return vocabJSON, mergesTxt
}

// byteEncoderForTest is the forward direction of the byte remap that
// byteDecoder inverts.
func byteEncoderForTest() map[byte]string {
	printable := func(b int) bool {
		return (b >= 33 && b <= 126) || (b >= 161 && b <= 172) || (b >= 174 && b <= 255)
	}
	enc := make(map[byte]string, 256)
	next := rune(256)
	for b := 0; b < 256; b++ {
		if printable(b) {
			enc[byte(b)] = string(rune(b))
		} else {
			enc[byte(b)] = string(next)
			next++
		}
	}
	return enc
}

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	vocabJSON, mergesTxt := testAssets(t)
	tk, err := New(vocabJSON, mergesTxt)
	require.NoError(t, err)
	return tk
}

func TestNew_BuildsTables(t *testing.T) {
	tk := newTestTokenizer(t)
	assert.Equal(t, 260, tk.VocabSize())
}

func TestLoad_FromFiles(t *testing.T) {
	vocabJSON, mergesTxt := testAssets(t)
	dir := t.TempDir()
	vocabPath := filepath.Join(dir, "vocab.json")
	mergesPath := filepath.Join(dir, "merges.txt")
	require.NoError(t, os.WriteFile(vocabPath, vocabJSON, 0644))
	require.NoError(t, os.WriteFile(mergesPath, mergesTxt, 0644))

	tk, err := Load(vocabPath, mergesPath)
	require.NoError(t, err)
	assert.Equal(t, 260, tk.VocabSize())

	_, err = Load(filepath.Join(dir, "missing.json"), mergesPath)
	assert.Error(t, err)
}

func TestEncode_AppliesMergesByRank(t *testing.T) {
	tk := newTestTokenizer(t)

	tests := []struct {
		name string
		text string
		want []int
	}{
		{name: "full merge chain", text: "hello", want: []int{259}},
		{name: "partial merge", text: "hell", want: []int{258}},
		{name: "pair merge", text: "he", want: []int{256}},
		{name: "no applicable merges", text: "oh", want: []int{'o', 'h'}},
		{name: "empty input", text: "", want: nil},
		{name: "merges inside longer text", text: "ohello", want: []int{'o', 259}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tk.Encode(tt.text))
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tk := newTestTokenizer(t)

	inputs := []string{
		"hello",
		"oh hello, hell!",
		"café", // multi-byte UTF-8 falls back to byte tokens
		"line\nbreak\tand spaces",
	}

	for _, in := range inputs {
		ids := tk.Encode(in)
		got, err := tk.Decode(ids)
		require.NoError(t, err, "decode %q", in)
		assert.Equal(t, in, got)
	}
}

func TestDecode_UnknownID(t *testing.T) {
	tk := newTestTokenizer(t)

	_, err := tk.Decode([]int{0, 9999})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = tk.Decode([]int{-1})
	require.Error(t, err)
}

func TestNew_RejectsBadAssets(t *testing.T) {
	goodVocab, goodMerges := testAssets(t)

	tests := []struct {
		name   string
		vocab  []byte
		merges []byte
	}{
		{name: "invalid vocab json", vocab: []byte("{"), merges: goodMerges},
		{name: "empty vocab", vocab: []byte("{}"), merges: goodMerges},
		{name: "sparse vocab ids", vocab: []byte(`{"a": 0, "b": 5}`), merges: goodMerges},
		{name: "merge token missing from vocab", vocab: goodVocab, merges: []byte("h zz\n")},
		{name: "merge product missing from vocab", vocab: goodVocab, merges: []byte("o h\n")},
		{name: "malformed merge line", vocab: goodVocab, merges: []byte("justonetoken\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.vocab, tt.merges)
			assert.Error(t, err)
		})
	}
}
