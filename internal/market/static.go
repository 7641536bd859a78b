package market

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/harborview-capital/regionscan/internal/model"
)

// Static serves trends from a read-only table loaded at startup.
type Static struct {
	trends map[string]float64
}

// staticFile is the YAML shape of a static trend file.
type staticFile struct {
	Trends map[string]float64 `yaml:"trends"`
}

// NewStatic builds a provider from an in-memory table. Keys are normalized
// with the same slugging as region names.
func NewStatic(trends map[string]float64) (*Static, error) {
	s := &Static{trends: make(map[string]float64, len(trends))}
	for key, pct := range trends {
		slug := model.Slugify(key)
		if slug == "" {
			return nil, eris.Errorf("market: static trend key %q normalizes to nothing", key)
		}
		if _, dup := s.trends[slug]; dup {
			return nil, eris.Errorf("market: static trend keys collide on %q", slug)
		}
		s.trends[slug] = pct
	}
	return s, nil
}

// LoadStatic reads and validates a YAML trend table.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "market: read static trends %s", path)
	}

	var file staticFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "market: parse static trends %s", path)
	}

	s, err := NewStatic(file.Trends)
	if err != nil {
		return nil, err
	}

	zap.L().Info("static market trends loaded",
		zap.String("path", path),
		zap.Int("regions", len(s.trends)),
	)
	return s, nil
}

// Name implements Provider.
func (s *Static) Name() string { return "static" }

// Available implements Provider.
func (s *Static) Available() bool { return s != nil && len(s.trends) > 0 }

// Trend implements Provider.
func (s *Static) Trend(_ context.Context, regionKey string) (Trend, bool, error) {
	pct, ok := s.trends[model.Slugify(regionKey)]
	if !ok {
		return Trend{}, false, nil
	}
	return Trend{Pct: pct, Source: s.Name()}, true, nil
}
