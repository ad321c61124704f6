// hostbind runs scripts against an interpreter session with a set of demo
// Go bindings (say_hello, echo, count and the Counter class).
//
// With a file argument the file is run; with -e the given source is run.
// Otherwise a terminal on stdin starts the REPL and anything else is read
// as a script.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/term"

	"github.com/feather-lang/hostbind"
	"github.com/feather-lang/hostbind/config"
	"github.com/feather-lang/hostbind/harness"
	"github.com/feather-lang/hostbind/internal/script"
)

var log = commonlog.GetLogger("hostbind.cmd")

// Exit codes understood by the test harness.
const (
	exitError      = 1
	exitIncomplete = 2
	exitParseError = 3
)

var (
	configPath string
	evalSource string
	looseNums  bool
	verbose    int
	logFile    string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var ex exitCode
		if errors.As(err, &ex) {
			os.Exit(int(ex))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitError)
	}
}

// exitCode ends the process with a specific status after cobra returns.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "hostbind [file]",
		Short:         "Run scripts with Go bindings",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			interp, err := openSession()
			if err != nil {
				return err
			}
			defer interp.Close()

			switch {
			case evalSource != "":
				return runSource(interp, "-e", evalSource)
			case len(args) == 1:
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				return runSource(interp, args[0], string(data))
			case term.IsTerminal(int(os.Stdin.Fd())):
				return runREPL(interp)
			}
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error reading script: %v\n", err)
				writeHarnessResult("error", err.Error())
				return exitCode(exitError)
			}
			return runSource(interp, "-", string(data))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "config file (default: hostbind.toml or hostbind.yaml found upwards from the working directory)")
	flags.CountVarP(&verbose, "verbose", "v", "log more; repeat for debug output")
	flags.StringVar(&logFile, "log-file", "", "write the log to a file instead of stderr")
	root.Flags().StringVarP(&evalSource, "eval", "e", "", "run the given source instead of a file")
	root.Flags().BoolVar(&looseNums, "loose", false, "read numeric strings as numbers in bound function arguments")

	root.AddCommand(newCheckCommand(), newClassesCommand())
	return root
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check file...",
		Short: "Check scripts for syntax errors without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			for _, file := range args {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if _, err := script.Parse(string(data), file, "main"); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					failed = true
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s syntax OK\n", file)
			}
			if failed {
				return exitCode(exitParseError)
			}
			return nil
		},
	}
}

func newClassesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "List the Go types bound as classes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			interp, err := openSession()
			if err != nil {
				return err
			}
			defer interp.Close()
			tm := hostbind.TypeMapOf(interp.Engine())
			for _, class := range tm.Classes() {
				t, _ := tm.Type(class)
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", class, t)
			}
			return nil
		},
	}
}

// openSession loads the configuration, applies the command line on top and
// starts a session with the demo bindings.
func openSession() (*hostbind.Interp, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if verbose > cfg.Log.Verbosity {
		cfg.Log.Verbosity = verbose
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	if looseNums {
		strict := false
		cfg.Session.StrictNumeric = &strict
	}

	interp, err := hostbind.New(hostbind.WithConfig(cfg))
	if err != nil {
		return nil, err
	}
	if err := registerDemo(interp); err != nil {
		interp.Close()
		return nil, err
	}
	log.Debugf("session ready, config dir %q", cfg.Dir)
	return interp, nil
}

func runSource(interp *hostbind.Interp, name, src string) error {
	if _, err := script.Parse(src, name, "main"); err != nil {
		var se *script.SyntaxError
		if errors.As(err, &se) && se.Incomplete {
			writeHarnessResult("incomplete", se.Error())
			return exitCode(exitIncomplete)
		}
		fmt.Fprintln(os.Stderr, err)
		writeHarnessResult("error", err.Error())
		return exitCode(exitParseError)
	}

	if err := interp.Engine().Eval(src, "main", name); err != nil {
		fmt.Fprint(os.Stderr, withNewline(err.Error()))
		writeHarnessResult("error", err.Error())
		return exitCode(exitError)
	}
	writeHarnessResult("ok", "")
	return nil
}

func withNewline(s string) string {
	if s == "" || s[len(s)-1] != '\n' {
		return s + "\n"
	}
	return s
}

// writeHarnessResult reports the outcome on file descriptor 3 when running
// under the test harness.
func writeHarnessResult(status string, errorMsg string) {
	if os.Getenv(harness.HarnessEnv) != "1" {
		return
	}

	f := os.NewFile(3, "harness")
	if f == nil {
		return
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "status: %s\n", status)
	if errorMsg = strings.TrimRight(errorMsg, "\n"); errorMsg != "" {
		fmt.Fprintf(w, "error: %s\n", errorMsg)
	}
	w.Flush()
}
