package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hostbind.toml"), `
[session]
strict-numeric = false
recursion-limit = 50

[[session.prelude]]
package = "Util"
file = "lib/util.pl"

[[session.prelude]]
file = "/abs/main.pl"

[log]
verbosity = 2
file = "hostbind.log"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Strict() {
		t.Errorf("Strict() = true, want false")
	}
	if c.Session.RecursionLimit != 50 {
		t.Errorf("RecursionLimit = %d", c.Session.RecursionLimit)
	}
	if c.Log.Verbosity != 2 || c.Log.File != "hostbind.log" {
		t.Errorf("Log = %+v", c.Log)
	}

	scripts := c.PreludeScripts()
	if len(scripts) != 2 {
		t.Fatalf("prelude = %+v", scripts)
	}
	if scripts[0].Package != "Util" || scripts[0].File != filepath.Join(c.Dir, "lib", "util.pl") {
		t.Errorf("prelude[0] = %+v", scripts[0])
	}
	if scripts[1].Package != "main" || scripts[1].File != "/abs/main.pl" {
		t.Errorf("prelude[1] = %+v", scripts[1])
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hostbind.yaml"), `
session:
  recursion-limit: 10
  prelude:
    - package: Shapes
      file: shapes.pl
log:
  verbosity: 1
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.Strict() {
		t.Errorf("strict numeric should default to true")
	}
	if c.Session.RecursionLimit != 10 || c.Log.Verbosity != 1 {
		t.Errorf("config = %+v", c)
	}
	if got := c.PreludeScripts(); len(got) != 1 || got[0].Package != "Shapes" {
		t.Errorf("prelude = %+v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad toml", "hostbind.toml", "[session\n"},
		{"negative limit", "hostbind.toml", "[session]\nrecursion-limit = -1\n"},
		{"prelude without file", "hostbind.yaml", "session:\n  prelude:\n    - package: X\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, tt.file), tt.content)
			if _, err := Load(dir); err == nil {
				t.Errorf("expected error")
			}
		})
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Errorf("expected error for a directory without config")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "hostbind.toml"), "[session]\nrecursion-limit = 7\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c == nil || c.Session.RecursionLimit != 7 {
		t.Fatalf("config = %+v", c)
	}
	abs, _ := filepath.Abs(root)
	if c.Dir != abs {
		t.Errorf("Dir = %q, want %q", c.Dir, abs)
	}
}
