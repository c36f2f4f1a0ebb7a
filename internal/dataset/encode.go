// Package dataset turns cached corpus text into token-id datasets.
package dataset

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// Encoder converts text into token IDs.
type Encoder interface {
	Encode(text string) []int
}

// Options controls an encoding run.
type Options struct {
	// Workers bounds the encoding pool. <= 0 means GOMAXPROCS.
	Workers int
	// Limit stops after encoding the first N lines. <= 0 means all.
	Limit int
}

// Stats summarizes one encoded file.
type Stats struct {
	Source     string    `json:"source"`
	Output     string    `json:"output"`
	Lines      int       `json:"lines"`
	Tokens     int       `json:"tokens"`
	InputBytes int64     `json:"input_bytes"`
	EncodedAt  time.Time `json:"encoded_at"`
}

// WriteFile writes the stats sidecar next to the dataset.
func (s *Stats) WriteFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}
	return nil
}

// chunkLines is how many lines each worker takes per unit of work.
const chunkLines = 256

// EncodeFile tokenizes srcPath line by line and writes the IDs to
// destPath as a little-endian uint32 stream, preserving input order.
// Lines are encoded concurrently in chunks by a bounded pool.
func EncodeFile(ctx context.Context, enc Encoder, srcPath, destPath string, opts Options) (*Stats, error) {
	lines, inputBytes, err := readLines(srcPath, opts.Limit)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	chunks := make([][]string, 0, len(lines)/chunkLines+1)
	for len(lines) > 0 {
		n := min(chunkLines, len(lines))
		chunks = append(chunks, lines[:n])
		lines = lines[n:]
	}

	encoded := make([][]int, len(chunks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var ids []int
			for _, line := range chunk {
				// Encode the trailing newline too, so the stream is
				// the exact tokenization of the source bytes.
				ids = append(ids, enc.Encode(line+"\n")...)
			}
			encoded[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("encoding failed: %w", err)
	}

	totalTokens := 0
	for _, ids := range encoded {
		totalTokens += len(ids)
	}

	if err := writeTokens(destPath, encoded); err != nil {
		return nil, err
	}

	lineCount := 0
	for _, c := range chunks {
		lineCount += len(c)
	}

	return &Stats{
		Source:     srcPath,
		Output:     destPath,
		Lines:      lineCount,
		Tokens:     totalTokens,
		InputBytes: inputBytes,
		EncodedAt:  time.Now().UTC(),
	}, nil
}

// ReadTokens reads back a little-endian uint32 token stream.
func ReadTokens(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("dataset %s is truncated: %d bytes", path, len(data))
	}

	ids := make([]int, len(data)/4)
	for i := range ids {
		ids[i] = int(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return ids, nil
}

func readLines(path string, limit int) ([]string, int64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open corpus file: %w", err)
	}
	defer fh.Close()

	var lines []string
	var bytes int64
	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		bytes += int64(len(line)) + 1
		lines = append(lines, line)
		if limit > 0 && len(lines) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to scan corpus file: %w", err)
	}
	return lines, bytes, nil
}

func writeTokens(path string, encoded [][]int) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create dataset directory: %w", err)
		}
	}

	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer fh.Close()

	w := bufio.NewWriter(fh)
	var buf [4]byte
	for _, ids := range encoded {
		for _, id := range ids {
			if id < 0 || uint64(id) > math.MaxUint32 {
				return fmt.Errorf("token id %d does not fit in uint32", id)
			}
			binary.LittleEndian.PutUint32(buf[:], uint32(id))
			if _, err := w.Write(buf[:]); err != nil {
				return fmt.Errorf("failed to write dataset: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush dataset: %w", err)
	}
	return fh.Close()
}
