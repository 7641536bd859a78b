package market

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harborview-capital/regionscan/internal/fetcher"
)

// RefreshWorkbook replaces the local price workbook with the copy at
// cfg.URL when the remote one changed, and reports whether it did. The
// ETag from the last download is kept in a sidecar file next to the
// workbook so an unchanged upstream costs one conditional request and no
// transfer. When the workbook itself is missing the stored ETag is
// ignored, otherwise a 304 would leave us with nothing to load.
func RefreshWorkbook(ctx context.Context, f fetcher.ConditionalFetcher, cfg WorkbookConfig) (bool, error) {
	if cfg.URL == "" {
		return false, nil
	}
	if cfg.Path == "" {
		return false, eris.New("market: workbook url set but path is empty")
	}

	log := zap.L().With(zap.String("component", "market"))

	etagPath := cfg.Path + ".etag"
	etag := ""
	if _, err := os.Stat(cfg.Path); err == nil {
		if data, err := os.ReadFile(etagPath); err == nil {
			etag = strings.TrimSpace(string(data))
		}
	}

	body, newETag, changed, err := f.DownloadIfChanged(ctx, cfg.URL, etag)
	if err != nil {
		return false, eris.Wrapf(err, "market: refresh workbook from %s", cfg.URL)
	}
	if !changed {
		log.Debug("workbook unchanged upstream", zap.String("path", cfg.Path))
		return false, nil
	}
	defer body.Close() //nolint:errcheck

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, eris.Wrapf(err, "market: create workbook dir %s", dir)
		}
	}

	tmpPath := cfg.Path + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return false, eris.Wrapf(err, "market: create temp workbook %s", tmpPath)
	}
	n, err := io.Copy(tmpFile, body)
	if cerr := tmpFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return false, eris.Wrapf(err, "market: write workbook %s", tmpPath)
	}
	if err := os.Rename(tmpPath, cfg.Path); err != nil {
		_ = os.Remove(tmpPath)
		return false, eris.Wrapf(err, "market: replace workbook %s", cfg.Path)
	}

	if newETag != "" {
		if err := os.WriteFile(etagPath, []byte(newETag), 0o644); err != nil {
			log.Warn("workbook etag not stored", zap.Error(err))
		}
	} else {
		_ = os.Remove(etagPath)
	}

	log.Info("workbook refreshed",
		zap.String("url", cfg.URL),
		zap.String("path", cfg.Path),
		zap.Int64("bytes", n),
	)
	return true, nil
}
