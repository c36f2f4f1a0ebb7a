// Package tokenizer implements a byte-level BPE tokenizer compatible
// with GPT-2 format vocab.json / merges.txt assets.
package tokenizer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// pair is a pair of adjacent token IDs, usable as a map key.
type pair struct {
	a int
	b int
}

// Tokenizer holds immutable tables derived from a BPE vocab/merges
// set. It is safe for concurrent use once built.
//
// Invariants:
//   - tokenBytes[id] is the exact byte sequence for token id
//   - byteSeed[b] is a valid base token for every byte b
//   - every key of mergeRank is also a key of mergeResult
type Tokenizer struct {
	tokenBytes  [][]byte
	tokenOf     map[string]int
	byteSeed    [256]int
	mergeRank   map[pair]int
	mergeResult map[pair]int
}

// Load builds a tokenizer from GPT-2 format vocab and merges files.
func Load(vocabPath, mergesPath string) (*Tokenizer, error) {
	vocabData, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab file: %w", err)
	}
	mergesData, err := os.ReadFile(mergesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read merges file: %w", err)
	}
	return New(vocabData, mergesData)
}

// New builds a tokenizer from the raw contents of vocab.json and
// merges.txt.
func New(vocabJSON, mergesTxt []byte) (*Tokenizer, error) {
	var vocab map[string]int
	if err := json.Unmarshal(vocabJSON, &vocab); err != nil {
		return nil, fmt.Errorf("failed to parse vocab: %w", err)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("vocab is empty")
	}

	t := &Tokenizer{
		tokenOf:     make(map[string]int, len(vocab)),
		mergeRank:   make(map[pair]int),
		mergeResult: make(map[pair]int),
	}

	if err := t.buildVocabTables(vocab); err != nil {
		return nil, err
	}
	if err := t.buildMergeTables(mergesTxt); err != nil {
		return nil, err
	}
	return t, nil
}

// VocabSize returns the number of token IDs.
func (t *Tokenizer) VocabSize() int {
	return len(t.tokenBytes)
}

// buildVocabTables fills tokenBytes, tokenOf and byteSeed from the
// parsed vocab. Token IDs must be dense in [0, len(vocab)).
func (t *Tokenizer) buildVocabTables(vocab map[string]int) error {
	decoder := byteDecoder()

	t.tokenBytes = make([][]byte, len(vocab))
	for tok, id := range vocab {
		if id < 0 || id >= len(vocab) {
			return fmt.Errorf("token id %d out of range, vocab has %d entries", id, len(vocab))
		}
		if t.tokenBytes[id] != nil {
			return fmt.Errorf("duplicate token id %d", id)
		}
		raw, err := tokenToBytes(tok, decoder)
		if err != nil {
			return fmt.Errorf("token %q (id %d): %w", tok, id, err)
		}
		t.tokenBytes[id] = raw
		t.tokenOf[string(raw)] = id
	}
	for id, b := range t.tokenBytes {
		if b == nil {
			return fmt.Errorf("vocab ids are not dense: id %d missing", id)
		}
	}

	// Every raw byte must have a base token, or arbitrary input
	// cannot be seeded.
	for b := 0; b < 256; b++ {
		id, ok := t.tokenOf[string([]byte{byte(b)})]
		if !ok {
			return fmt.Errorf("vocab has no base token for byte 0x%02x", b)
		}
		t.byteSeed[b] = id
	}
	return nil
}

// buildMergeTables parses merges.txt: one "<left> <right>" pair per
// line, earlier lines ranking higher. A leading "#version" header and
// blank lines are skipped.
func (t *Tokenizer) buildMergeTables(mergesTxt []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(mergesTxt))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	decoder := byteDecoder()
	rank := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		left, right, ok := strings.Cut(line, " ")
		if !ok {
			return fmt.Errorf("merges line %q: expected two space-separated tokens", line)
		}

		leftBytes, err := tokenToBytes(left, decoder)
		if err != nil {
			return fmt.Errorf("merges line %q: %w", line, err)
		}
		rightBytes, err := tokenToBytes(right, decoder)
		if err != nil {
			return fmt.Errorf("merges line %q: %w", line, err)
		}

		leftID, ok := t.tokenOf[string(leftBytes)]
		if !ok {
			return fmt.Errorf("merges line %q: left token not in vocab", line)
		}
		rightID, ok := t.tokenOf[string(rightBytes)]
		if !ok {
			return fmt.Errorf("merges line %q: right token not in vocab", line)
		}
		merged, ok := t.tokenOf[string(append(append([]byte{}, leftBytes...), rightBytes...))]
		if !ok {
			return fmt.Errorf("merges line %q: merged token not in vocab", line)
		}

		p := pair{a: leftID, b: rightID}
		if _, dup := t.mergeRank[p]; dup {
			return fmt.Errorf("merges line %q: duplicate pair", line)
		}
		t.mergeRank[p] = rank
		t.mergeResult[p] = merged
		rank++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan merges: %w", err)
	}
	return nil
}

// Encode tokenizes text into token IDs. Input is NFC-normalized,
// seeded as per-byte base tokens, then merged greedily by rank until
// no ranked pair remains.
func (t *Tokenizer) Encode(text string) []int {
	raw := []byte(norm.NFC.String(text))
	if len(raw) == 0 {
		return nil
	}

	tokens := make([]int, len(raw))
	for i, b := range raw {
		tokens[i] = t.byteSeed[b]
	}

	for len(tokens) > 1 {
		bestRank := -1
		bestPos := -1
		for i := 0; i+1 < len(tokens); i++ {
			r, ok := t.mergeRank[pair{a: tokens[i], b: tokens[i+1]}]
			if ok && (bestRank == -1 || r < bestRank) {
				bestRank = r
				bestPos = i
			}
		}
		if bestPos == -1 {
			break
		}

		merged := t.mergeResult[pair{a: tokens[bestPos], b: tokens[bestPos+1]}]
		tokens[bestPos] = merged
		tokens = append(tokens[:bestPos+1], tokens[bestPos+2:]...)
	}
	return tokens
}

// Decode converts token IDs back to text. It is the exact inverse of
// Encode on valid IDs; an out-of-range ID is an error.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	var buf bytes.Buffer
	for _, id := range ids {
		if id < 0 || id >= len(t.tokenBytes) {
			return "", fmt.Errorf("token id %d out of range, vocab has %d entries", id, len(t.tokenBytes))
		}
		buf.Write(t.tokenBytes[id])
	}
	return buf.String(), nil
}

// tokenToBytes recovers the raw byte sequence a vocab key stands for.
// GPT-2 vocab keys remap every raw byte to a printable rune so the
// vocab survives JSON; runes in that remap table decode to their
// original byte, any other rune is meant literally.
func tokenToBytes(tok string, decoder map[rune]byte) ([]byte, error) {
	out := make([]byte, 0, len(tok))
	for len(tok) > 0 {
		r, size := utf8.DecodeRuneInString(tok)
		if r == utf8.RuneError && size == 1 {
			return nil, fmt.Errorf("invalid utf-8 in token")
		}
		if b, ok := decoder[r]; ok {
			out = append(out, b)
		} else {
			var tmp [utf8.UTFMax]byte
			n := utf8.EncodeRune(tmp[:], r)
			out = append(out, tmp[:n]...)
		}
		tok = tok[size:]
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("token decodes to zero bytes")
	}
	return out, nil
}

// byteDecoder inverts the GPT-2 byte-to-printable-rune remapping.
// Printable latin bytes map to themselves; the rest get stand-in
// runes starting at 256, assigned in byte order.
func byteDecoder() map[rune]byte {
	printable := func(b int) bool {
		return (b >= 33 && b <= 126) || (b >= 161 && b <= 172) || (b >= 174 && b <= 255)
	}

	dec := make(map[rune]byte, 256)
	next := rune(256)
	for b := 0; b < 256; b++ {
		if printable(b) {
			dec[rune(b)] = byte(b)
		} else {
			dec[next] = byte(b)
			next++
		}
	}
	return dec
}
