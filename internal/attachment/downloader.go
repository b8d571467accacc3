// Package attachment materializes user attachments on local disk.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/incident-intake/internal/domain"
	"github.com/google/uuid"
)

// ErrDownload wraps every failure to materialize an attachment.
var ErrDownload = errors.New("attachment download failed")

const defaultMaxBytes = 20 << 20 // 20MB

// Downloader saves attachments under a data directory.
type Downloader struct {
	dir      string
	client   *http.Client
	maxBytes int64
}

// NewDownloader creates a downloader writing into dir. A nil client gets a
// 30s timeout; maxBytes <= 0 selects the 20MB default.
func NewDownloader(dir string, client *http.Client, maxBytes int64) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Downloader{dir: dir, client: client, maxBytes: maxBytes}
}

// Download writes the attachment to disk and returns its absolute path.
func (d *Downloader) Download(ctx context.Context, a domain.Attachment) (string, error) {
	if len(a.Data) == 0 && a.URL == "" {
		return "", fmt.Errorf("%w: attachment has neither data nor url", ErrDownload)
	}
	if int64(len(a.Data)) > d.maxBytes {
		return "", fmt.Errorf("%w: attachment exceeds %d bytes", ErrDownload, d.maxBytes)
	}

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", fmt.Errorf("%w: create data directory: %v", ErrDownload, err)
	}

	dest, err := filepath.Abs(filepath.Join(d.dir, uuid.NewString()+"-"+safeName(a.FileName)))
	if err != nil {
		return "", fmt.Errorf("%w: resolve path: %v", ErrDownload, err)
	}

	if len(a.Data) > 0 {
		if err := os.WriteFile(dest, a.Data, 0644); err != nil {
			return "", fmt.Errorf("%w: write file: %v", ErrDownload, err)
		}
		slog.Info("Attachment saved", "path", dest, "bytes", len(a.Data))
		return dest, nil
	}

	if err := d.fetch(ctx, a.URL, dest); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	slog.Info("Attachment downloaded", "path", dest, "url", a.URL)
	return dest, nil
}

func (d *Downloader) fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, d.maxBytes+1))
	if closeErr := f.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return fmt.Errorf("write file: %w", copyErr)
	}
	if n > d.maxBytes {
		return fmt.Errorf("attachment exceeds %d bytes", d.maxBytes)
	}
	return nil
}

func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	return name
}
