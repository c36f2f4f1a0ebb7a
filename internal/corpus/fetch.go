package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-retry"
)

// FetchResult describes one downloaded (or already cached) file.
type FetchResult struct {
	Corpus string
	Name   string
	Path   string
	Bytes  int64
	SHA256 string
	Cached bool
}

// Fetcher downloads corpus files into a shared cache directory.
type Fetcher struct {
	cacheDir string
	client   *http.Client
	logger   *slog.Logger

	// retry knobs, overridable in tests
	maxRetries uint64
	retryBase  time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithRetry overrides the retry schedule.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(f *Fetcher) {
		f.maxRetries = maxRetries
		f.retryBase = base
	}
}

// NewFetcher creates a fetcher rooted at cacheDir.
func NewFetcher(cacheDir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		cacheDir:   cacheDir,
		client:     &http.Client{Timeout: 5 * time.Minute},
		logger:     slog.New(slog.DiscardHandler),
		maxRetries: 4,
		retryBase:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Dir returns the cache directory for a corpus.
func (f *Fetcher) Dir(corpusName string) string {
	return filepath.Join(f.cacheDir, corpusName)
}

// FilePath returns the cache path of one corpus file.
func (f *Fetcher) FilePath(corpusName, fileName string) string {
	return filepath.Join(f.cacheDir, corpusName, fileName)
}

// Fetch downloads every file of the corpus that is not already cached
// and verified. Transport errors and 5xx responses are retried with
// exponential backoff; 4xx responses fail immediately.
func (f *Fetcher) Fetch(ctx context.Context, c Corpus) ([]FetchResult, error) {
	dir := f.Dir(c.Name)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	results := make([]FetchResult, 0, len(c.Files))
	for _, file := range c.Files {
		res, err := f.fetchFile(ctx, c.Name, file)
		if err != nil {
			return results, fmt.Errorf("corpus %s: file %s: %w", c.Name, file.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (f *Fetcher) fetchFile(ctx context.Context, corpusName string, file File) (FetchResult, error) {
	dest := f.FilePath(corpusName, file.Name)

	// A cached file counts only if it still matches its pinned digest.
	if info, err := os.Stat(dest); err == nil {
		sum, err := fileSHA256(dest)
		if err == nil && (file.SHA256 == "" || sum == file.SHA256) {
			f.logger.Debug("cache hit", slog.String("corpus", corpusName), slog.String("file", file.Name))
			return FetchResult{
				Corpus: corpusName,
				Name:   file.Name,
				Path:   dest,
				Bytes:  info.Size(),
				SHA256: sum,
				Cached: true,
			}, nil
		}
		f.logger.Warn("cached file failed verification, refetching",
			slog.String("file", file.Name))
	}

	tmp := dest + ".partial"
	defer os.Remove(tmp)

	backoff := retry.WithMaxRetries(f.maxRetries, retry.NewExponential(f.retryBase))
	var written int64
	var sum string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		n, s, err := f.downloadOnce(ctx, file.URL, tmp)
		if err != nil {
			return err
		}
		written, sum = n, s
		return nil
	})
	if err != nil {
		return FetchResult{}, err
	}

	if file.SHA256 != "" && sum != file.SHA256 {
		return FetchResult{}, fmt.Errorf("sha256 mismatch: got %s, want %s", sum, file.SHA256)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return FetchResult{}, fmt.Errorf("failed to move download into cache: %w", err)
	}

	f.logger.Info("fetched",
		slog.String("corpus", corpusName),
		slog.String("file", file.Name),
		slog.Int64("bytes", written))

	return FetchResult{
		Corpus: corpusName,
		Name:   file.Name,
		Path:   dest,
		Bytes:  written,
		SHA256: sum,
	}, nil
}

// downloadOnce performs a single GET into dest, returning the byte
// count and hex digest. Retryable failures are wrapped with
// retry.RetryableError.
func (f *Fetcher) downloadOnce(ctx context.Context, url, dest string) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", retry.RetryableError(fmt.Errorf("GET %s: %w", url, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return 0, "", retry.RetryableError(fmt.Errorf("GET %s: status %s", url, resp.Status))
	default:
		return 0, "", fmt.Errorf("GET %s: status %s", url, resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), resp.Body)
	if err != nil {
		return 0, "", retry.RetryableError(fmt.Errorf("read %s: %w", url, err))
	}
	if n == 0 {
		return 0, "", retry.RetryableError(fmt.Errorf("GET %s: empty body", url))
	}
	if err := out.Close(); err != nil {
		return 0, "", fmt.Errorf("failed to flush %s: %w", dest, err)
	}

	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func fileSHA256(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
