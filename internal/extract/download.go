package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"nutrition-rag/internal/apperr"
	"nutrition-rag/internal/contextutil"
)

// Download fetches url into path unless path already exists. It reports
// whether a download happened. The file is written to a temporary name and
// renamed so that an interrupted download never leaves a truncated PDF behind.
func Download(ctx context.Context, client *http.Client, url, path string) (bool, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if _, err := os.Stat(path); err == nil {
		logger.InfoContext(ctx, "source document already present", "path", path)
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	logger.InfoContext(ctx, "downloading source document", "url", url, "path", path)
	resp, err := client.Do(req)
	if err != nil {
		return false, apperr.New(apperr.KindTransientUpstream, "download", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		kind := apperr.KindUpstream
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = apperr.KindTransientUpstream
		}
		return false, apperr.Errorf(kind, "download", "failed to download file: status code %d", resp.StatusCode)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return false, fmt.Errorf("failed to write download: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return false, fmt.Errorf("failed to move download into place: %w", err)
	}

	logger.InfoContext(ctx, "downloaded source document", "path", path, "bytes", n)
	return true, nil
}
