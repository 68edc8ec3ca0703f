package calibration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultProfileFile = "clawctl.json"

// Load reads a profile from path. JSON is assumed unless the extension is
// .yaml or .yml. A missing file keeps its fs.ErrNotExist cause; unparseable
// or inconsistent content wraps ErrInvalid.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read profile")
	}

	var p Profile
	if isYAML(path) {
		err = yaml.Unmarshal(data, &p)
	} else {
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrInvalid, "parse %s: %v", filepath.Base(path), err)
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", filepath.Base(path))
	}
	return &p, nil
}

// LoadOrDefault loads path, or returns the built-in default when the file
// does not exist. The bool reports whether the default was used.
func LoadOrDefault(path string) (*Profile, bool, error) {
	if !Exists(path) {
		return Default(), true, nil
	}
	p, err := Load(path)
	return p, false, err
}

// SaveTo writes the profile to path in canonical order.
func (p *Profile) SaveTo(path string) error {
	data, err := p.Marshal(isYAML(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Marshal encodes the profile with mappings in logical order.
func (p *Profile) Marshal(asYAML bool) ([]byte, error) {
	c := p.Clone()
	c.canonicalize()

	if asYAML {
		data, err := yaml.Marshal(c)
		return data, errors.Wrap(err, "encode profile")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode profile")
	}
	return append(data, '\n'), nil
}

// Exists returns true if a profile file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
