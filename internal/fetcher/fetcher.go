// Package fetcher retrieves remote datasets over HTTP and FTP and parses the
// container formats they arrive in: ZIP archives of shapefiles, XLSX price
// workbooks, and CSV region lists.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote data. Both the HTTP and FTP fetchers satisfy it.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// ConditionalFetcher is a Fetcher whose source reports content versions, so
// callers can skip downloads of files they already hold.
type ConditionalFetcher interface {
	Fetcher

	// DownloadIfChanged fetches the URL only if the ETag has changed.
	// Returns (body, newETag, changed, error). If not changed, body is nil and changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
