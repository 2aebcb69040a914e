// Package manifest handles refract.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// File is the manifest file name FindAndLoad looks for.
const File = "refract.toml"

// Manifest represents a refract.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Extract Extract `toml:"extract"`
	Emit    Emit    `toml:"emit"`
	Store   Store   `toml:"store"`

	// Dir is the directory containing the refract.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Extract configures which package gets extracted and how.
type Extract struct {
	// Mode selects "source" (read type information, the default) or
	// "reflect" (classes register themselves in hosting code; the
	// command line cannot drive it).
	Mode    string   `toml:"mode"`
	Package string   `toml:"package"`
	Classes []string `toml:"classes"`
}

// Emit configures generated output.
type Emit struct {
	Dir             string `toml:"dir"`
	Package         string `toml:"package"`
	LegacyMapValues bool   `toml:"legacy-map-values"`
}

// Store configures the signature store.
type Store struct {
	Path string `toml:"path"`
}

// Load parses a refract.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, File)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Extract.Mode == "" {
		m.Extract.Mode = "source"
	}
	if m.Emit.Dir == "" {
		m.Emit.Dir = "refractgen"
	}
	if m.Emit.Package == "" {
		m.Emit.Package = filepath.Base(m.Emit.Dir)
	}
	if m.Store.Path == "" {
		m.Store.Path = filepath.Join(".refract", "signatures.db")
	}

	if m.Extract.Mode != "source" && m.Extract.Mode != "reflect" {
		return nil, fmt.Errorf("%s: extract.mode %q is not source or reflect", path, m.Extract.Mode)
	}
	if !ValidPackageName(m.Emit.Package) {
		return nil, fmt.Errorf("%s: emit.package %q is not a usable package name", path, m.Emit.Package)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a refract.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, File)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EmitDirPath returns the absolute path of the generated-output directory.
func (m *Manifest) EmitDirPath() string {
	return filepath.Join(m.Dir, m.Emit.Dir)
}

// StorePath returns the absolute path of the signature database.
func (m *Manifest) StorePath() string {
	return filepath.Join(m.Dir, m.Store.Path)
}
