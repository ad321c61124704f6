package harness

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile parses a test suite from the given file path.
func ParseFile(path string) (*TestSuite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	suite, err := Parse(f)
	if err != nil {
		return nil, err
	}
	suite.Path = path
	if suite.Name == "" {
		base := filepath.Base(path)
		suite.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return suite, nil
}

// Parse parses a test suite from the given reader. Unknown keys are an
// error so a misspelled expectation does not silently pass.
func Parse(r io.Reader) (*TestSuite, error) {
	var suite TestSuite
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&suite); err != nil {
		if err == io.EOF {
			return &suite, nil
		}
		return nil, err
	}

	for i := range suite.Cases {
		tc := &suite.Cases[i]
		if tc.Name == "" {
			return nil, fmt.Errorf("test case %d has no name", i+1)
		}
		tc.Script = strings.TrimSpace(tc.Script)
		tc.Error = strings.TrimSpace(tc.Error)
		tc.Stdout = strings.TrimSpace(tc.Stdout)
		tc.Stderr = strings.TrimSpace(tc.Stderr)
		switch tc.Status {
		case "", "ok", "error", "incomplete":
		default:
			return nil, fmt.Errorf("test case %q: unknown status %q", tc.Name, tc.Status)
		}
	}
	return &suite, nil
}
