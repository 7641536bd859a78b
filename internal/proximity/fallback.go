package proximity

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/harborview-capital/regionscan/internal/model"
)

// FallbackDB is the static infrastructure table consulted when every live
// query for a region fails. It is immutable after load and safe for
// concurrent readers; callers receive copies, never references.
type FallbackDB struct {
	regions map[string]model.InfrastructureRecord
}

// fallbackFile is the YAML shape of a fallback database file.
type fallbackFile struct {
	Regions map[string]model.InfrastructureRecord `yaml:"regions"`
}

// NewFallbackDB builds a database from an in-memory table. Keys are
// normalized with the same slugging as region names.
func NewFallbackDB(records map[string]model.InfrastructureRecord) (*FallbackDB, error) {
	db := &FallbackDB{regions: make(map[string]model.InfrastructureRecord, len(records))}
	for key, rec := range records {
		slug := model.Slugify(key)
		if slug == "" {
			return nil, eris.Errorf("proximity: fallback key %q normalizes to nothing", key)
		}
		if _, dup := db.regions[slug]; dup {
			return nil, eris.Errorf("proximity: fallback keys collide on %q", slug)
		}
		if err := rec.Validate(); err != nil {
			return nil, eris.Wrapf(err, "proximity: fallback entry %q", key)
		}
		db.regions[slug] = rec
	}
	return db, nil
}

// LoadFallbackDB reads and validates a fallback database file.
func LoadFallbackDB(path string) (*FallbackDB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "proximity: read fallback database %s", path)
	}

	var file fallbackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "proximity: parse fallback database %s", path)
	}

	db, err := NewFallbackDB(file.Regions)
	if err != nil {
		return nil, err
	}

	zap.L().Info("fallback database loaded",
		zap.String("path", path),
		zap.Int("regions", db.Len()),
	)
	return db, nil
}

// Lookup returns the stored record for a region key, marked as
// fallback-sourced. The second return is false when the region is unknown.
func (db *FallbackDB) Lookup(key string) (model.InfrastructureRecord, bool) {
	if db == nil || db.regions == nil {
		return model.InfrastructureRecord{}, false
	}
	rec, ok := db.regions[model.Slugify(key)]
	if !ok {
		return model.InfrastructureRecord{}, false
	}
	rec.Source = model.SourceFallback
	return rec, true
}

// Len reports how many regions the database covers.
func (db *FallbackDB) Len() int {
	if db == nil {
		return 0
	}
	return len(db.regions)
}
