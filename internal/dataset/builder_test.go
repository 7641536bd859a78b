package dataset

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview-capital/regionscan/internal/analyzer"
	"github.com/harborview-capital/regionscan/internal/fetcher"
	"github.com/harborview-capital/regionscan/internal/model"
	"github.com/harborview-capital/regionscan/internal/proximity"
)

func testRegions() []model.Region {
	return []model.Region{
		{Name: "Porto Metro", Center: model.Coordinate{Lat: 41.15, Lon: -8.61}, BaseScore: 30},
		{Name: "Douro Valley", Center: model.Coordinate{Lat: 41.16, Lon: -7.78}, BaseScore: 25},
	}
}

func newTestBuilder(t *testing.T, cfg Config) *Builder {
	t.Helper()
	b, err := NewBuilder(cfg, analyzer.DefaultConfig(),
		WithHTTPFetcher(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  "test-agent",
			Timeout:    5 * time.Second,
			MaxRetries: 1,
		})),
	)
	require.NoError(t, err)
	return b
}

func TestConfigValidate(t *testing.T) {
	t.Run("no sources", func(t *testing.T) {
		err := Config{}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one feature source")
	})

	t.Run("unknown feature", func(t *testing.T) {
		cfg := Config{Sources: []FeatureSource{{Feature: "tramway", URL: "trams.shp"}}}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown feature type")
	})

	t.Run("duplicate feature", func(t *testing.T) {
		cfg := Config{Sources: []FeatureSource{
			{Feature: model.FeatureHighway, URL: "a.shp"},
			{Feature: model.FeatureHighway, URL: "b.shp"},
		}}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate source")
	})

	t.Run("missing url", func(t *testing.T) {
		cfg := Config{Sources: []FeatureSource{{Feature: model.FeaturePort}}}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no url")
	})

	t.Run("ok", func(t *testing.T) {
		cfg := Config{Sources: []FeatureSource{
			{Feature: model.FeatureHighway, URL: "highways.shp"},
			{Feature: model.FeaturePort, URL: "https://example.com/ports.zip"},
		}}
		assert.NoError(t, cfg.Validate())
	})
}

func TestNewBuilder_InvalidConfig(t *testing.T) {
	_, err := NewBuilder(Config{}, analyzer.DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one feature source")
}

func TestNewBuilder_InvalidAnalyzerConfig(t *testing.T) {
	cfg := Config{Sources: []FeatureSource{{Feature: model.FeatureHighway, URL: "h.shp"}}}
	_, err := NewBuilder(cfg, analyzer.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestNewBuilder_Defaults(t *testing.T) {
	cfg := Config{Sources: []FeatureSource{{Feature: model.FeatureHighway, URL: "h.shp"}}}
	b, err := NewBuilder(cfg, analyzer.DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, b.http)
	assert.NotNil(t, b.ftp)
	assert.NotNil(t, b.loadMarks)
}

func TestBuild_CountsAndScores(t *testing.T) {
	cfg := Config{
		WorkDir: t.TempDir(),
		Sources: []FeatureSource{
			{Feature: model.FeatureHighway, URL: "highways.shp"},
			{Feature: model.FeatureRailway, URL: "railways.shp"},
		},
	}
	b := newTestBuilder(t, cfg)
	b.loadMarks = func(shpPath string) ([]Mark, error) {
		switch filepath.Base(shpPath) {
		case "highways.shp":
			return []Mark{
				{points: []orb.Point{{-8.61, 41.15}}}, // at the Porto center
				{points: []orb.Point{{-8.50, 41.20}}}, // ~11 km from Porto
				{points: []orb.Point{{-7.78, 41.16}}}, // at the Douro center
			}, nil
		case "railways.shp":
			return []Mark{
				{points: []orb.Point{{-8.61, 41.35}}}, // ~22 km north of Porto
				{points: []orb.Point{{-7.90, 41.00}}}, // ~20 km from Douro
			}, nil
		}
		return nil, assert.AnError
	}

	records, err := b.Build(context.Background(), testRegions())
	require.NoError(t, err)
	require.Len(t, records, 2)

	porto := records["porto-metro"]
	assert.Equal(t, 2, porto.Highways)
	assert.Equal(t, 1, porto.Railways)
	assert.Equal(t, 0, porto.Airports)
	assert.Equal(t, 0, porto.Ports)
	assert.Equal(t, 9, porto.Score)

	douro := records["douro-valley"]
	assert.Equal(t, 1, douro.Highways)
	assert.Equal(t, 1, douro.Railways)
	assert.Equal(t, 6, douro.Score)
}

func TestBuild_NoRegions(t *testing.T) {
	cfg := Config{Sources: []FeatureSource{{Feature: model.FeatureHighway, URL: "h.shp"}}}
	b := newTestBuilder(t, cfg)

	_, err := b.Build(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no regions")
}

func TestBuild_InvalidRegion(t *testing.T) {
	cfg := Config{Sources: []FeatureSource{{Feature: model.FeatureHighway, URL: "h.shp"}}}
	b := newTestBuilder(t, cfg)

	regions := []model.Region{{Name: "North Pole Plus", Center: model.Coordinate{Lat: 95, Lon: 0}}}
	_, err := b.Build(context.Background(), regions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")
}

func TestBuild_RegionKeyCollision(t *testing.T) {
	cfg := Config{Sources: []FeatureSource{{Feature: model.FeatureHighway, URL: "h.shp"}}}
	b := newTestBuilder(t, cfg)

	regions := []model.Region{
		{Name: "Porto Metro", Center: model.Coordinate{Lat: 41.15, Lon: -8.61}},
		{Name: "Porto  Metro", Center: model.Coordinate{Lat: 41.20, Lon: -8.60}},
	}
	_, err := b.Build(context.Background(), regions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collide on key")
}

func TestBuild_LoadMarksError(t *testing.T) {
	cfg := Config{
		WorkDir: t.TempDir(),
		Sources: []FeatureSource{{Feature: model.FeatureHighway, URL: "h.shp"}},
	}
	b := newTestBuilder(t, cfg)
	b.loadMarks = func(string) ([]Mark, error) { return nil, assert.AnError }

	_, err := b.Build(context.Background(), testRegions())
	require.Error(t, err)
}

func TestBuild_ContextCanceled(t *testing.T) {
	cfg := Config{
		WorkDir: t.TempDir(),
		Sources: []FeatureSource{{Feature: model.FeatureHighway, URL: "h.shp"}},
	}
	b := newTestBuilder(t, cfg)
	b.loadMarks = func(string) ([]Mark, error) { return nil, nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Build(ctx, testRegions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interrupted")
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestResolveShapefile_LocalShp(t *testing.T) {
	b := newTestBuilder(t, Config{Sources: []FeatureSource{{Feature: model.FeatureHighway, URL: "h.shp"}}})

	src := FeatureSource{Feature: model.FeatureHighway, URL: "/data/shapes/highways.shp"}
	path, err := b.resolveShapefile(context.Background(), src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "/data/shapes/highways.shp", path)
}

func TestResolveShapefile_LocalZip(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "pt_ports.zip")
	require.NoError(t, os.WriteFile(zipPath, zipBytes(t, map[string]string{
		"pt_ports.shp": "shape bytes",
		"pt_ports.dbf": "attribute bytes",
	}), 0o644))

	b := newTestBuilder(t, Config{Sources: []FeatureSource{{Feature: model.FeaturePort, URL: zipPath}}})

	workDir := t.TempDir()
	src := FeatureSource{Feature: model.FeaturePort, URL: zipPath}
	path, err := b.resolveShapefile(context.Background(), src, workDir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".shp"))
	assert.Contains(t, path, workDir)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "shape bytes", string(data))
}

func TestResolveShapefile_SkipsNonShapefileMembers(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "pt_rail.zip")
	require.NoError(t, os.WriteFile(zipPath, zipBytes(t, map[string]string{
		"pt_rail.shp": "shape bytes",
		"pt_rail.shx": "index bytes",
		"pt_rail.dbf": "attribute bytes",
		"readme.txt":  "about this archive",
		"LICENSE.txt": "ODbL",
	}), 0o644))

	b := newTestBuilder(t, Config{Sources: []FeatureSource{{Feature: model.FeatureRailway, URL: zipPath}}})

	workDir := t.TempDir()
	src := FeatureSource{Feature: model.FeatureRailway, URL: zipPath}
	path, err := b.resolveShapefile(context.Background(), src, workDir)
	require.NoError(t, err)

	extractDir := filepath.Dir(path)
	_, err = os.Stat(filepath.Join(extractDir, "pt_rail.dbf"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(extractDir, "readme.txt"))
	assert.True(t, os.IsNotExist(err), "archive chaff must not be extracted")
	_, err = os.Stat(filepath.Join(extractDir, "LICENSE.txt"))
	assert.True(t, os.IsNotExist(err), "archive chaff must not be extracted")
}

func TestIsShapefileMember(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"pt_rail.shp", "pt_rail.SHX", "pt_rail.dbf", "pt_rail.prj", "pt_rail.cpg"} {
		assert.True(t, isShapefileMember(name), name)
	}
	for _, name := range []string{"readme.txt", "LICENSE", "pt_rail.shp.xml", "preview.png"} {
		assert.False(t, isShapefileMember(name), name)
	}
}

func TestResolveShapefile_ZipWithoutShp(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(zipPath, zipBytes(t, map[string]string{
		"readme.txt": "no shapes here",
	}), 0o644))

	b := newTestBuilder(t, Config{Sources: []FeatureSource{{Feature: model.FeaturePort, URL: zipPath}}})

	src := FeatureSource{Feature: model.FeaturePort, URL: zipPath}
	_, err := b.resolveShapefile(context.Background(), src, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .shp file inside")
}

func TestResolveShapefile_UnsupportedScheme(t *testing.T) {
	b := newTestBuilder(t, Config{Sources: []FeatureSource{{Feature: model.FeaturePort, URL: "p.shp"}}})

	src := FeatureSource{Feature: model.FeaturePort, URL: "s3://bucket/ports.zip"}
	_, err := b.resolveShapefile(context.Background(), src, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported source scheme")
}

func TestResolveShapefile_WrongExtension(t *testing.T) {
	b := newTestBuilder(t, Config{Sources: []FeatureSource{{Feature: model.FeaturePort, URL: "p.shp"}}})

	src := FeatureSource{Feature: model.FeaturePort, URL: "/data/ports.geojson"}
	_, err := b.resolveShapefile(context.Background(), src, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither a .shp nor a .zip")
}

func TestResolveShapefile_NoFileName(t *testing.T) {
	b := newTestBuilder(t, Config{Sources: []FeatureSource{{Feature: model.FeaturePort, URL: "p.shp"}}})

	src := FeatureSource{Feature: model.FeaturePort, URL: "https://example.com/"}
	_, err := b.resolveShapefile(context.Background(), src, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no file name")
}

func TestResolveShapefile_HTTPDownloadOnce(t *testing.T) {
	payload := zipBytes(t, map[string]string{
		"pt_highways.shp": "shape bytes",
		"pt_highways.prj": "projection",
	})

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(payload) //nolint:errcheck
	}))
	defer srv.Close()

	b := newTestBuilder(t, Config{Sources: []FeatureSource{{Feature: model.FeatureHighway, URL: "h.shp"}}})

	workDir := t.TempDir()
	src := FeatureSource{Feature: model.FeatureHighway, URL: srv.URL + "/pt_highways.zip"}

	path, err := b.resolveShapefile(context.Background(), src, workDir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "pt_highways.shp"))
	assert.Contains(t, path, filepath.Join(workDir, "highway"))

	// A second resolve reuses the downloaded archive.
	again, err := b.resolveShapefile(context.Background(), src, workDir)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), hits.Load())
}

func TestWriteFallback_RoundTrip(t *testing.T) {
	records := map[string]model.InfrastructureRecord{
		"porto-metro": {Score: 62, Highways: 9, Ports: 2, Airports: 1, Railways: 5},
		"azores-rim":  {Score: 20, Highways: 1},
	}

	path := filepath.Join(t.TempDir(), "fallback.yaml")
	require.NoError(t, WriteFallback(path, records))

	db, err := proximity.LoadFallbackDB(path)
	require.NoError(t, err)
	assert.Equal(t, 2, db.Len())

	rec, ok := db.Lookup("porto-metro")
	require.True(t, ok)
	assert.Equal(t, 62, rec.Score)
	assert.Equal(t, 9, rec.Highways)
	assert.Equal(t, 5, rec.Railways)
	assert.Equal(t, model.SourceFallback, rec.Source)
}

func TestWriteFallback_Empty(t *testing.T) {
	err := WriteFallback(filepath.Join(t.TempDir(), "fallback.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty fallback database")
}

func TestWriteFallback_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "fallback.yaml")
	records := map[string]model.InfrastructureRecord{"porto-metro": {Score: 10, Highways: 1}}

	require.NoError(t, WriteFallback(path, records))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestWriteFallback_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.yaml")

	require.NoError(t, WriteFallback(path, map[string]model.InfrastructureRecord{
		"porto-metro": {Score: 10, Highways: 1},
	}))
	require.NoError(t, WriteFallback(path, map[string]model.InfrastructureRecord{
		"porto-metro":  {Score: 55, Highways: 8},
		"douro-valley": {Score: 30, Railways: 2},
	}))

	db, err := proximity.LoadFallbackDB(path)
	require.NoError(t, err)
	assert.Equal(t, 2, db.Len())

	rec, ok := db.Lookup("porto-metro")
	require.True(t, ok)
	assert.Equal(t, 55, rec.Score)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
