// hostbind-harness runs YAML test suites against a host executable, usually
// a build of cmd/hostbind.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/feather-lang/hostbind/harness"
)

func main() {
	var cfg harness.Config
	var list bool

	cmd := &cobra.Command{
		Use:   "hostbind-harness [flags] <test-files-or-dirs>...",
		Short: "Test harness for hostbind hosts",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg.TestPaths = args
			cfg.Output = os.Stdout
			cfg.ErrOutput = os.Stderr
			if cfg.Verbose {
				commonlog.Configure(2, nil)
			}
			if list {
				os.Exit(harness.List(cfg))
			}
			os.Exit(harness.Run(cfg))
		},
	}

	cmd.Flags().StringVar(&cfg.HostPath, "host", "", "path to the host executable (required)")
	cmd.Flags().StringVar(&cfg.NamePattern, "run", "", "only run tests whose \"suite > test\" name matches this regular expression")
	cmd.Flags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "list passing tests too")
	cmd.Flags().BoolVar(&list, "list", false, "list the selected tests instead of running them")
	cmd.MarkFlagRequired("host")

	cmd.Execute()
}
