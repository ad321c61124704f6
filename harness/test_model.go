package harness

import "time"

// DefaultTimeout is the default timeout for test cases when not specified.
const DefaultTimeout = 5 * time.Second

// TestCase captures the relevant information about
// a single test case in the harness.
type TestCase struct {
	Name     string        `yaml:"name"`
	Script   string        `yaml:"script"`
	Args     []string      `yaml:"args"`   // extra host arguments, placed before the script
	Status   string        `yaml:"status"` // ok, error or incomplete; empty means not checked
	Error    string        `yaml:"error"`
	Stdout   string        `yaml:"stdout"`
	Stderr   string        `yaml:"stderr"`
	ExitCode int           `yaml:"exit-code"`
	Timeout  time.Duration `yaml:"timeout"` // 0 means use suite/default
}

// TestSuite represents a collection of test cases parsed from a YAML file.
type TestSuite struct {
	Name    string        `yaml:"name"`
	Path    string        `yaml:"-"`
	Timeout time.Duration `yaml:"timeout"`
	Cases   []TestCase    `yaml:"tests"`
}

func (s *TestSuite) timeoutFor(tc *TestCase) time.Duration {
	switch {
	case tc.Timeout > 0:
		return tc.Timeout
	case s.Timeout > 0:
		return s.Timeout
	}
	return DefaultTimeout
}
