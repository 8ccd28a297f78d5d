// Package manifest handles nativebridge.toml plugin definitions.
//
// A manifest declares wrapper classes without Go code:
//
//	[[plugin]]
//	name = "DeviceOrientation"
//	ref = "navigator.compass"
//	platforms = ["ios", "android"]
//
//	[[plugin.method]]
//	name = "watchHeading"
//	order = "reverse"
//	mode = "observable"
//	cancel = "clearWatch"
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "nativebridge.toml"

// Manifest represents a nativebridge.toml file.
type Manifest struct {
	Plugins []Plugin `toml:"plugin" json:"plugin,omitempty"`

	// Dir is the directory containing the manifest (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Plugin declares one wrapper class.
type Plugin struct {
	Name      string   `toml:"name" json:"name,omitempty"`
	Ref       string   `toml:"ref" json:"ref"`
	Repo      string   `toml:"repo" json:"repo,omitempty"`
	Platforms []string `toml:"platforms" json:"platforms,omitempty"`
	Methods   []Method `toml:"method" json:"method,omitempty"`
}

// Method declares one wrapped native method.
type Method struct {
	Name           string `toml:"name" json:"name"`
	Style          string `toml:"style" json:"style,omitempty"`
	Order          string `toml:"order" json:"order,omitempty"`
	Mode           string `toml:"mode" json:"mode,omitempty"`
	Cancel         string `toml:"cancel" json:"cancel,omitempty"`
	CancelWithArgs bool   `toml:"cancel-with-args" json:"cancel-with-args,omitempty"`
	SuccessIndex   *int   `toml:"success-index" json:"success-index,omitempty"`
	ErrorIndex     *int   `toml:"error-index" json:"error-index,omitempty"`
}

// Load parses and validates the nativebridge.toml in dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes and validates manifest text. Unknown keys are errors.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a nativebridge.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
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

// Path returns the manifest file path, or "" for a parsed manifest.
func (m *Manifest) Path() string {
	if m.Dir == "" {
		return ""
	}
	return filepath.Join(m.Dir, FileName)
}
