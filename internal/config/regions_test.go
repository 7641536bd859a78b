package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview-capital/regionscan/internal/model"
)

func writeRegionsFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRegionsFileYAML(t *testing.T) {
	t.Parallel()

	path := writeRegionsFile(t, "regions.yaml", `
regions:
  - name: Porto Metro
    center: {lat: 41.15, lon: -8.61}
    base_score: 30
  - key: douro
    name: Douro Valley
    center: {lat: 41.16, lon: -7.78}
    base_score: 25
    market_trend_pct: 3.2
`)

	regions, err := LoadRegionsFile(context.Background(), RegionsFileConfig{Path: path})
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, "Porto Metro", regions[0].Name)
	assert.InDelta(t, 41.15, regions[0].Center.Lat, 1e-9)
	assert.InDelta(t, 30.0, regions[0].BaseScore, 1e-9)
	assert.Nil(t, regions[0].MarketTrendPct)

	assert.Equal(t, "douro", regions[1].Key)
	require.NotNil(t, regions[1].MarketTrendPct)
	assert.InDelta(t, 3.2, *regions[1].MarketTrendPct, 1e-9)
}

func TestLoadRegionsFileYAMLEmpty(t *testing.T) {
	t.Parallel()

	path := writeRegionsFile(t, "regions.yaml", "regions: []\n")

	_, err := LoadRegionsFile(context.Background(), RegionsFileConfig{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lists no regions")
}

func TestLoadRegionsFileYAMLMalformed(t *testing.T) {
	t.Parallel()

	path := writeRegionsFile(t, "regions.yml", "regions: {not: a list}\n")

	_, err := LoadRegionsFile(context.Background(), RegionsFileConfig{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse regions file")
}

func TestLoadRegionsFileCSV(t *testing.T) {
	t.Parallel()

	path := writeRegionsFile(t, "regions.csv",
		"key,name,lat,lon,base_score,market_trend_pct\n"+
			",Porto Metro,41.15,-8.61,30,\n"+
			"douro,Douro Valley,41.16,-7.78,25,3.2\n")

	regions, err := LoadRegionsFile(context.Background(), RegionsFileConfig{Path: path})
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Empty(t, regions[0].Key)
	assert.Equal(t, "Porto Metro", regions[0].Name)
	assert.InDelta(t, -8.61, regions[0].Center.Lon, 1e-9)
	assert.Nil(t, regions[0].MarketTrendPct)

	assert.Equal(t, "douro", regions[1].Key)
	require.NotNil(t, regions[1].MarketTrendPct)
	assert.InDelta(t, 3.2, *regions[1].MarketTrendPct, 1e-9)
}

func TestLoadRegionsFileCSVColumnOrderFree(t *testing.T) {
	t.Parallel()

	// Columns in a different order, headers with stray case and spacing.
	path := writeRegionsFile(t, "regions.csv",
		"Base_Score, Name ,LON,LAT\n"+
			"30,Porto Metro,-8.61,41.15\n")

	regions, err := LoadRegionsFile(context.Background(), RegionsFileConfig{Path: path})
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "Porto Metro", regions[0].Name)
	assert.InDelta(t, 41.15, regions[0].Center.Lat, 1e-9)
	assert.InDelta(t, 30.0, regions[0].BaseScore, 1e-9)
}

func TestLoadRegionsFileCSVCharset(t *testing.T) {
	t.Parallel()

	// ISO-8859-1 bytes: 0xc9 = É.
	path := writeRegionsFile(t, "regions.csv",
		"name,lat,lon,base_score\n\xc9vora,38.57,-7.91,20\n")

	regions, err := LoadRegionsFile(context.Background(), RegionsFileConfig{
		Path:    path,
		Charset: "iso-8859-1",
	})
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "Évora", regions[0].Name)
}

func TestLoadRegionsFileCSVMissingColumn(t *testing.T) {
	t.Parallel()

	path := writeRegionsFile(t, "regions.csv", "name,lon,base_score\nPorto Metro,-8.61,30\n")

	_, err := LoadRegionsFile(context.Background(), RegionsFileConfig{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing the lat column")
}

func TestLoadRegionsFileCSVBadNumber(t *testing.T) {
	t.Parallel()

	path := writeRegionsFile(t, "regions.csv",
		"name,lat,lon,base_score\n"+
			"Porto Metro,41.15,-8.61,30\n"+
			"Douro Valley,north,-7.78,25\n")

	_, err := LoadRegionsFile(context.Background(), RegionsFileConfig{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
	assert.Contains(t, err.Error(), "lat")
}

func TestLoadRegionsFileCSVSkipsBlankNames(t *testing.T) {
	t.Parallel()

	path := writeRegionsFile(t, "regions.csv",
		"name,lat,lon,base_score\n"+
			"Porto Metro,41.15,-8.61,30\n"+
			",0,0,0\n")

	regions, err := LoadRegionsFile(context.Background(), RegionsFileConfig{Path: path})
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "Porto Metro", regions[0].Name)
}

func TestLoadRegionsFileCSVNoHeader(t *testing.T) {
	t.Parallel()

	path := writeRegionsFile(t, "regions.csv", "")

	_, err := LoadRegionsFile(context.Background(), RegionsFileConfig{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestLoadRegionsFileUnknownExtension(t *testing.T) {
	t.Parallel()

	path := writeRegionsFile(t, "regions.txt", "whatever")

	_, err := LoadRegionsFile(context.Background(), RegionsFileConfig{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither YAML nor CSV")
}

func TestLoadRegionsFileMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadRegionsFile(context.Background(), RegionsFileConfig{
		Path: filepath.Join(t.TempDir(), "absent.yaml"),
	})
	require.Error(t, err)
}

func TestMergeRegions(t *testing.T) {
	t.Parallel()

	inline := []model.Region{
		{Name: "Porto Metro", Center: model.Coordinate{Lat: 41.15, Lon: -8.61}, BaseScore: 30},
	}
	fromFile := []model.Region{
		{Name: "Douro Valley", Center: model.Coordinate{Lat: 41.16, Lon: -7.78}, BaseScore: 25},
	}

	merged, err := MergeRegions(inline, fromFile)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Equal(t, "porto-metro", merged[0].Key)
	assert.Equal(t, "douro-valley", merged[1].Key)
}

func TestMergeRegionsKeyCollision(t *testing.T) {
	t.Parallel()

	a := []model.Region{
		{Name: "Porto Metro", Center: model.Coordinate{Lat: 41.15, Lon: -8.61}, BaseScore: 30},
	}
	b := []model.Region{
		{Name: "Porto  Metro", Center: model.Coordinate{Lat: 41.14, Lon: -8.60}, BaseScore: 28},
	}

	_, err := MergeRegions(a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `collide on key "porto-metro"`)
}

func TestMergeRegionsInvalidRegion(t *testing.T) {
	t.Parallel()

	_, err := MergeRegions([]model.Region{
		{Name: "Nowhere", Center: model.Coordinate{Lat: 95, Lon: 0}, BaseScore: 10},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")
}

func TestMergeRegionsEmpty(t *testing.T) {
	t.Parallel()

	_, err := MergeRegions(nil, []model.Region{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no regions configured")
}
