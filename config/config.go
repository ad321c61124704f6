// Package config handles hostbind.toml (or hostbind.yaml) session
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
	"gopkg.in/yaml.v3"
)

// File names searched for, in order.
var fileNames = []string{"hostbind.toml", "hostbind.yaml", "hostbind.yml"}

// Config represents a hostbind.toml file.
type Config struct {
	Session Session `toml:"session" yaml:"session"`
	Log     Log     `toml:"log" yaml:"log"`

	// Dir is the directory containing the config file (set at load time).
	Dir string `toml:"-" yaml:"-"`
}

// Session configures the interpreter session.
type Session struct {
	// StrictNumeric requires the integer flag for integer parameters, the
	// float flag for float parameters and the string flag for string
	// parameters. Defaults to true.
	StrictNumeric  *bool    `toml:"strict-numeric" yaml:"strict-numeric"`
	RecursionLimit int      `toml:"recursion-limit" yaml:"recursion-limit"`
	Prelude        []Script `toml:"prelude" yaml:"prelude"`
}

// Script is a file loaded into a package when the session starts.
type Script struct {
	Package string `toml:"package" yaml:"package"`
	File    string `toml:"file" yaml:"file"`
}

// Log configures logging.
type Log struct {
	// Verbosity follows commonlog: 0 errors only, up to 2 for debug.
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{Log: Log{Verbosity: 0}}
}

// Load parses the config file in dir, preferring hostbind.toml.
func Load(dir string) (*Config, error) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("no %s in %s", strings.Join(fileNames, " or "), dir)
}

// LoadFile parses one config file; the format follows the extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = toml.Unmarshal(data, c)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a config file, then loads and
// returns it. Returns nil if no config file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range fileNames {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return Load(dir)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) validate() error {
	if c.Session.RecursionLimit < 0 {
		return fmt.Errorf("session.recursion-limit must not be negative, got %d", c.Session.RecursionLimit)
	}
	for i, s := range c.Session.Prelude {
		if s.File == "" {
			return fmt.Errorf("session.prelude[%d]: file is required", i)
		}
	}
	return nil
}

// Strict reports whether strict numeric reads are enabled.
func (c *Config) Strict() bool {
	return c.Session.StrictNumeric == nil || *c.Session.StrictNumeric
}

// PreludeScripts returns the prelude with file paths resolved against the
// config directory and empty packages defaulted to main.
func (c *Config) PreludeScripts() []Script {
	out := make([]Script, 0, len(c.Session.Prelude))
	for _, s := range c.Session.Prelude {
		if !filepath.IsAbs(s.File) && c.Dir != "" {
			s.File = filepath.Join(c.Dir, s.File)
		}
		if s.Package == "" {
			s.Package = "main"
		}
		out = append(out, s)
	}
	return out
}

// ConfigureLogging applies the log section to commonlog.
func (c *Config) ConfigureLogging() {
	var path *string
	if c.Log.File != "" {
		file := c.Log.File
		if !filepath.IsAbs(file) && c.Dir != "" {
			file = filepath.Join(c.Dir, file)
		}
		path = &file
	}
	commonlog.Configure(c.Log.Verbosity, path)
}
