// Package manifest handles jsvm.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "jsvm.toml"

// Default limits, matching the VM and parser defaults.
const (
	DefaultStackSize      = 24
	DefaultLocalsPerScope = 24
	DefaultMaxScopes      = 64
	DefaultMaxParseDepth  = 64
	DefaultAddr           = ":4567"
	DefaultCachePath      = ".jsvm/cache.db"
)

// Config represents a jsvm.toml configuration.
type Config struct {
	Project Project      `toml:"project"`
	Engine  EngineConfig `toml:"engine"`
	Server  ServerConfig `toml:"server"`
	Cache   CacheConfig  `toml:"cache"`

	// Dir is the directory containing the jsvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata and the scripts to load.
type Project struct {
	Name    string   `toml:"name"`
	Entry   string   `toml:"entry"`   // script run when the CLI gets no file
	Prelude []string `toml:"prelude"` // scripts run before every session
}

// EngineConfig sets parser and VM limits.
type EngineConfig struct {
	StackSize      int  `toml:"stack-size"`
	LocalsPerScope int  `toml:"locals-per-scope"`
	MaxScopes      int  `toml:"max-scopes"`
	MaxParseDepth  int  `toml:"max-parse-depth"`
	Analyze        bool `toml:"analyze"` // report semantic warnings
}

// ServerConfig configures the evaluation service.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// CacheConfig configures the compiled bytecode cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns a configuration with every default applied, rooted at
// the current directory.
func Default() *Config {
	c := &Config{Dir: "."}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Engine.StackSize <= 0 {
		c.Engine.StackSize = DefaultStackSize
	}
	if c.Engine.LocalsPerScope <= 0 {
		c.Engine.LocalsPerScope = DefaultLocalsPerScope
	}
	if c.Engine.MaxScopes <= 0 {
		c.Engine.MaxScopes = DefaultMaxScopes
	}
	if c.Engine.MaxParseDepth <= 0 {
		c.Engine.MaxParseDepth = DefaultMaxParseDepth
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCachePath
	}
}

// Parse decodes configuration text. Dir is left empty.
func Parse(data []byte) (*Config, error) {
	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s", undecoded[0])
	}
	c.applyDefaults()
	return &c, nil
}

// Load parses a jsvm.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a jsvm.toml file, then loads
// and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
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

// Resolve returns p relative to the config directory unless p is absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// PreludePaths returns absolute paths for the configured prelude scripts.
func (c *Config) PreludePaths() []string {
	var paths []string
	for _, p := range c.Project.Prelude {
		paths = append(paths, c.Resolve(p))
	}
	return paths
}

// EntryPath returns the path of the entry script, or "" if none is set.
func (c *Config) EntryPath() string {
	return c.Resolve(c.Project.Entry)
}

// CachePath returns the path of the bytecode cache database.
func (c *Config) CachePath() string {
	return c.Resolve(c.Cache.Path)
}
