package harness

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("hostbind.harness")

// HarnessEnv is set to 1 in the environment of every host process. Hosts
// that see it report their outcome on file descriptor 3.
const HarnessEnv = "HOSTBIND_IN_HARNESS"

// TestResult holds the outcome of running a single test case.
type TestResult struct {
	TestCase TestCase
	Passed   bool
	Actual   ActualResult
	Failures []string
}

// ActualResult captures what actually happened when the test ran.
type ActualResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Status   string // ok, error or incomplete, as reported by the host
	Error    string // error message reported by the host
}

// Runner executes test suites against a host implementation.
type Runner struct {
	HostPath string
	Output   io.Writer
}

// NewRunner creates a new test runner for the given host executable.
func NewRunner(hostPath string, output io.Writer) *Runner {
	return &Runner{
		HostPath: hostPath,
		Output:   output,
	}
}

// RunSuite executes all test cases in a suite and returns the results.
func (r *Runner) RunSuite(suite *TestSuite) []TestResult {
	results := make([]TestResult, 0, len(suite.Cases))
	for i := range suite.Cases {
		tc := &suite.Cases[i]
		ctx, cancel := context.WithTimeout(context.Background(), suite.timeoutFor(tc))
		results = append(results, r.RunTest(ctx, *tc))
		cancel()
	}
	return results
}

// RunTest executes a single test case and returns the result. The host is
// killed when ctx is done.
func (r *Runner) RunTest(ctx context.Context, tc TestCase) TestResult {
	result := TestResult{
		TestCase: tc,
		Passed:   true,
	}
	fail := func(format string, args ...any) {
		result.Passed = false
		result.Failures = append(result.Failures, fmt.Sprintf(format, args...))
	}

	// Create a pipe for the harness communication channel (fd 3)
	harnessReader, harnessWriter, err := os.Pipe()
	if err != nil {
		fail("failed to create pipe: %v", err)
		return result
	}
	defer harnessReader.Close()

	cmd := exec.CommandContext(ctx, r.HostPath, tc.Args...)
	cmd.Stdin = strings.NewReader(tc.Script)
	cmd.Env = append(os.Environ(), HarnessEnv+"=1")

	// Set up the extra file descriptor (will be fd 3 in the child)
	cmd.ExtraFiles = []*os.File{harnessWriter}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debugf("running %q", tc.Name)
	if err := cmd.Start(); err != nil {
		harnessWriter.Close()
		fail("failed to start host: %v", err)
		return result
	}

	// Close the write end in the parent so we can read EOF
	harnessWriter.Close()

	harnessOutput := parseHarnessOutput(harnessReader)
	err = cmd.Wait()

	result.Actual.Stdout = normalizeLines(stdout.String())
	result.Actual.Stderr = normalizeLines(stderr.String())
	result.Actual.Status = harnessOutput.Status
	result.Actual.Error = harnessOutput.Error

	if ctx.Err() != nil {
		fail("timed out: %v", ctx.Err())
		return result
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			fail("failed to run host: %v", err)
			return result
		}
		result.Actual.ExitCode = exitErr.ExitCode()
	}

	if tc.Stdout != result.Actual.Stdout {
		fail("stdout mismatch:\n  expected: %q\n  actual:   %q", tc.Stdout, result.Actual.Stdout)
	}
	if tc.Stderr != result.Actual.Stderr {
		fail("stderr mismatch:\n  expected: %q\n  actual:   %q", tc.Stderr, result.Actual.Stderr)
	}
	if tc.ExitCode != result.Actual.ExitCode {
		fail("exit code mismatch:\n  expected: %d\n  actual:   %d", tc.ExitCode, result.Actual.ExitCode)
	}
	if tc.Status != "" && tc.Status != result.Actual.Status {
		fail("status mismatch:\n  expected: %q\n  actual:   %q", tc.Status, result.Actual.Status)
	}
	if tc.Error != "" && tc.Error != result.Actual.Error {
		fail("error mismatch:\n  expected: %q\n  actual:   %q", tc.Error, result.Actual.Error)
	}
	return result
}

// harnessOutput holds parsed output from the harness channel
type harnessOutput struct {
	Status string
	Error  string
}

// parseHarnessOutput reads the "status:" and "error:" lines the host writes
// to the harness channel. Lines after "error:" that carry no key continue
// the error message.
func parseHarnessOutput(r io.Reader) harnessOutput {
	var out harnessOutput
	inError := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "status: "):
			out.Status = strings.TrimPrefix(line, "status: ")
			inError = false
		case strings.HasPrefix(line, "error: "):
			out.Error = strings.TrimPrefix(line, "error: ")
			inError = true
		case inError:
			out.Error += "\n" + line
		}
	}
	out.Error = strings.TrimSpace(out.Error)
	return out
}

func normalizeLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// Summary holds aggregate statistics about a test run.
type Summary struct {
	Total  int
	Passed int
	Failed int
}

// Summarize calculates summary statistics from test results.
func Summarize(results []TestResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}
