package zones

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// Load reads zone features from GeoJSON files or directories searched
// recursively for *.geojson and *.json. Unreadable sources are logged and
// skipped; features without a geometry are dropped.
func Load(log *zap.SugaredLogger, paths ...string) *Set {
	var features []*geojson.Feature

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			log.Warnw("zone source not found", "path", p, "error", err)
			continue
		}

		if !info.IsDir() {
			features = append(features, loadFile(log, p)...)
			continue
		}

		found := 0
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			ext := strings.ToLower(filepath.Ext(path))
			if d.IsDir() || (ext != ".geojson" && ext != ".json") {
				return nil
			}
			found++
			features = append(features, loadFile(log, path)...)
			return nil
		})
		if err != nil {
			log.Errorw("failed to load zones", "path", p, "error", err)
		}
		if found == 0 {
			log.Infow("no GeoJSON files in directory", "path", p)
		}
	}

	log.Infow("loaded UAS zones", "features", len(features), "sources", len(paths))

	fc := geojson.NewFeatureCollection()
	fc.Features = features
	return NewSet(fc)
}

func loadFile(log *zap.SugaredLogger, path string) []*geojson.Feature {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Errorw("failed to open zone file", "path", path, "error", err)
		return nil
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		log.Errorw("invalid GeoJSON in zone file", "path", path, "error", err)
		return nil
	}

	if len(fc.Features) == 0 {
		log.Warnw("no features in zone file", "path", path)
		return nil
	}

	valid := make([]*geojson.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		valid = append(valid, f)
	}

	log.Debugw("zone file loaded", "path", filepath.Base(path), "features", len(valid))
	return valid
}
