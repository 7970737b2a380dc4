package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"silc/pkg/diag"
)

var (
	configPath string
	outDir     string
	noOptimize bool
	manifest   string
	lang       string
	verbose    bool
)

// msgs renders errors for users; loadSession replaces it with the
// configured language.
var msgs = diag.MustNew("en")

var rootCmd = &cobra.Command{
	Use:   "silc",
	Short: "Compile silc scripts to CIL assembly",
	Long: `silc compiles silc scripts into CIL assembly text and drives
ilasm and the .NET runtime to assemble and run them.

Commands:
  build    Compile a script into <name>.il
  run      Compile, assemble and run a script
  tokens   Dump the token stream of a script at a chosen stage
  listing  Write an HTML listing of a compilation
  symbols  Dump the loaded symbol manifest
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetOutput(os.Stderr)
		} else {
			log.SetOutput(io.Discard)
		}
	},
}

// Execute runs the CLI. Errors are printed to stderr before they are
// returned.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, msgs.Error(err))
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file (default ./silc.textproto if present)")
	rootCmd.PersistentFlags().StringVarP(&outDir, "out", "o", "", "output directory for build artifacts")
	rootCmd.PersistentFlags().BoolVar(&noOptimize, "no-optimize", false, "disable constant folding")
	rootCmd.PersistentFlags().StringVar(&manifest, "manifest", "", "extra symbol manifest (textproto)")
	rootCmd.PersistentFlags().StringVar(&lang, "lang", "", "message language (en, ru)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress")

	rootCmd.AddCommand(BuildCmd, RunCmd, TokensCmd, ListingCmd, SymbolsCmd)
}
