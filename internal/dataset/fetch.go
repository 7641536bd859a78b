package dataset

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harborview-capital/regionscan/internal/fetcher"
)

// isShapefileMember keeps the .shp and the sidecar files a shapefile reader
// may consult, and drops everything else an archive carries.
func isShapefileMember(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".shp", ".shx", ".dbf", ".prj", ".cpg":
		return true
	}
	return false
}

// resolveShapefile makes a source's .shp available on disk and returns its
// path. Remote archives land under workDir keyed by feature, and a file that
// is already present with content is not downloaded again, so interrupted
// builds resume where they stopped.
func (b *Builder) resolveShapefile(ctx context.Context, src FeatureSource, workDir string) (string, error) {
	u, err := url.Parse(src.URL)
	if err != nil {
		return "", eris.Wrapf(err, "dataset: parse source url %s", src.URL)
	}

	log := zap.L().With(
		zap.String("component", "dataset.fetch"),
		zap.String("feature", string(src.Feature)),
	)

	local := src.URL
	switch u.Scheme {
	case "http", "https", "ftp":
		name := path.Base(u.Path)
		if name == "" || name == "." || name == "/" {
			return "", eris.Errorf("dataset: source url %s has no file name", src.URL)
		}

		srcDir := filepath.Join(workDir, string(src.Feature))
		if err := os.MkdirAll(srcDir, 0o755); err != nil {
			return "", eris.Wrap(err, "dataset: create source dir")
		}
		local = filepath.Join(srcDir, name)

		if info, statErr := os.Stat(local); statErr == nil && info.Size() > 0 {
			log.Debug("archive already exists, skipping download", zap.String("path", local))
			break
		}

		log.Info("downloading feature source", zap.String("url", src.URL))
		if u.Scheme == "ftp" {
			_, err = b.ftp.DownloadToFile(ctx, src.URL, local)
		} else {
			_, err = b.http.DownloadToFile(ctx, src.URL, local)
		}
		if err != nil {
			return "", eris.Wrapf(err, "dataset: download %s", src.URL)
		}

	case "", "file":
		if u.Scheme == "file" {
			local = u.Path
		}

	default:
		return "", eris.Errorf("dataset: unsupported source scheme %q", u.Scheme)
	}

	switch strings.ToLower(filepath.Ext(local)) {
	case ".shp":
		return local, nil

	case ".zip":
		extractDir := filepath.Join(workDir, string(src.Feature),
			strings.TrimSuffix(filepath.Base(local), filepath.Ext(local)))
		// Portal archives bundle readmes and license texts with the
		// shapefile; extract only the shapefile members.
		files, err := fetcher.ExtractZIPMatching(local, extractDir, isShapefileMember)
		if err != nil {
			return "", eris.Wrapf(err, "dataset: extract %s", local)
		}
		for _, f := range files {
			if strings.EqualFold(filepath.Ext(f), ".shp") {
				return f, nil
			}
		}
		return "", eris.Errorf("dataset: no .shp file inside %s", local)

	default:
		return "", eris.Errorf("dataset: source %s is neither a .shp nor a .zip", src.URL)
	}
}
