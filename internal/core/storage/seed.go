package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/viewcone/internal/core/visibility"
)

// Seed is the document layout of object fixture files.
type Seed struct {
	Objects []visibility.SpatialObject `json:"objects" yaml:"objects"`
}

// LoadJSON loads seed objects from a JSON reader.
func LoadJSON(r io.Reader) ([]visibility.SpatialObject, error) {
	var s Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode json seed: %w", err)
	}
	return s.validate()
}

// LoadYAML loads seed objects from a YAML reader.
func LoadYAML(r io.Reader) ([]visibility.SpatialObject, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode yaml seed: %w", err)
	}
	return s.validate()
}

// LoadFile picks the decoder from the file extension.
func LoadFile(path string) ([]visibility.SpatialObject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(f)
	case ".yaml", ".yml":
		return LoadYAML(f)
	default:
		return nil, fmt.Errorf("seed %s: unsupported extension: %w", path, ErrInvalidSeed)
	}
}

func (s Seed) validate() ([]visibility.SpatialObject, error) {
	seen := make(map[string]struct{}, len(s.Objects))
	for i, o := range s.Objects {
		if o.ID == "" {
			return nil, fmt.Errorf("object #%d: empty id: %w", i, ErrInvalidSeed)
		}
		if _, ok := seen[o.ID]; ok {
			return nil, fmt.Errorf("object %q: %w", o.ID, ErrDuplicateID)
		}
		seen[o.ID] = struct{}{}
	}
	return s.Objects, nil
}
