package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/metrics"
	"github.com/kailas-cloud/crossret/internal/progress"
)

// DefaultConfig is the parquet export config name of single-config datasets.
const DefaultConfig = "default"

// Hub downloads parquet exports of HuggingFace datasets.
// Completed files are skipped; partial downloads resume with HTTP Range.
type Hub struct {
	baseURL  string
	token    string
	dataDir  string
	client   *http.Client
	logger   *zap.Logger
	progress bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) HubOption {
	return func(h *Hub) { h.client = c }
}

// WithProgress toggles terminal progress bars.
func WithProgress(enabled bool) HubOption {
	return func(h *Hub) { h.progress = enabled }
}

// NewHub creates a downloader rooted at dataDir.
func NewHub(baseURL, token, dataDir string, logger *zap.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		dataDir: dataDir,
		client:  &http.Client{Timeout: 30 * time.Minute},
		logger:  logger,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// LocalDir is where the parquet files of repo/split are stored.
func LocalDir(dataDir, repo, split string) string {
	return filepath.Join(dataDir, strings.ReplaceAll(repo, "/", "__"), split)
}

// Dir is LocalDir under the hub's data dir.
func (h *Hub) Dir(repo, split string) string {
	return LocalDir(h.dataDir, repo, split)
}

// hubFile is one entry of the parquet listing. The API answers either with
// plain URLs or with objects.
type hubFile struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Download fetches the parquet files of repo/split. maxFiles=0 fetches all.
// Returns the local paths in listing order.
func (h *Hub) Download(ctx context.Context, repo, split string, maxFiles int) ([]string, error) {
	outDir := h.Dir(repo, split)
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", outDir, err)
	}

	files, err := h.list(ctx, repo, DefaultConfig, split)
	if err != nil {
		return nil, fmt.Errorf("list parquet files: %w", err)
	}
	if maxFiles > 0 && len(files) > maxFiles {
		files = files[:maxFiles]
	}

	h.logger.Info("Downloading parquet files",
		zap.String("repo", repo),
		zap.String("split", split),
		zap.Int("files", len(files)),
		zap.String("dir", outDir),
	)

	paths := make([]string, 0, len(files))
	for i, f := range files {
		name := fmt.Sprintf("%05d.parquet", i)
		outPath := filepath.Join(outDir, name)
		paths = append(paths, outPath)

		if st, err := os.Stat(outPath); err == nil && (f.Size == 0 || st.Size() == f.Size) {
			h.logger.Debug("Already downloaded", zap.String("file", name), zap.Int64("bytes", st.Size()))
			continue
		}
		if err := h.fetch(ctx, f.URL, outPath); err != nil {
			return nil, fmt.Errorf("download %s: %w", name, err)
		}
	}
	return paths, nil
}

func (h *Hub) list(ctx context.Context, repo, config, split string) ([]hubFile, error) {
	url := fmt.Sprintf("%s/api/datasets/%s/parquet/%s/%s", h.baseURL, repo, config, split)
	req, err := h.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("hub: status %d: %s", resp.StatusCode, string(body))
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse hub response: %w", err)
	}

	files := make([]hubFile, 0, len(raw))
	for _, r := range raw {
		var f hubFile
		if err := json.Unmarshal(r, &f.URL); err != nil {
			if err := json.Unmarshal(r, &f); err != nil {
				return nil, fmt.Errorf("parse hub entry: %w", err)
			}
		}
		if strings.HasSuffix(f.URL, ".parquet") || strings.HasSuffix(f.Filename, ".parquet") {
			files = append(files, f)
		}
	}
	return files, nil
}

// fetch downloads url into outPath through outPath.tmp.
func (h *Hub) fetch(ctx context.Context, url, outPath string) error {
	cleanPath := filepath.Clean(outPath)
	tmpPath := cleanPath + ".tmp"

	var offset int64
	if st, err := os.Stat(tmpPath); err == nil {
		offset = st.Size()
	}

	req, err := h.newRequest(ctx, url)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		h.logger.Info("Resuming download", zap.String("file", filepath.Base(outPath)), zap.Int64("offset", offset))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("download request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	flags := os.O_WRONLY | os.O_CREATE
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		flags |= os.O_TRUNC
		offset = 0
	default:
		return fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}

	f, err := os.OpenFile(tmpPath, flags, 0o600)
	if err != nil {
		return fmt.Errorf("open tmp: %w", err)
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = resp.ContentLength + offset
	}
	bar := progress.Bytes(total, filepath.Base(outPath), h.progress)
	_ = bar.Set64(offset)

	written, err := io.Copy(io.MultiWriter(f, bar, byteCounter{}), resp.Body)
	_ = bar.Finish()
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	h.logger.Info("Downloaded",
		zap.String("file", filepath.Base(outPath)),
		zap.Int64("bytes", offset+written),
	)

	if err := os.Rename(tmpPath, cleanPath); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (h *Hub) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	return req, nil
}

// byteCounter feeds the download byte counter.
type byteCounter struct{}

func (byteCounter) Write(p []byte) (int, error) {
	metrics.DownloadBytesTotal.Add(float64(len(p)))
	return len(p), nil
}
