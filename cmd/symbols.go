package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"silc/pkg/metadata"
)

// symbols: dump the manifest index
var SymbolsCmd = &cobra.Command{
	Use:   "symbols [prefix]",
	Short: "Dump the libraries, types and methods known to the compiler",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd)
		if err != nil {
			return err
		}
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		dumpSymbols(cmd.OutOrStdout(), s.index, prefix)
		return nil
	},
}

func dumpSymbols(w io.Writer, ix *metadata.Index, prefix string) {
	fmt.Fprintln(w, "Libraries")
	for _, lib := range ix.Libraries() {
		fmt.Fprintf(w, "  %-24s %s\n", lib.Name, lib.Version)
	}
	for _, t := range ix.Types() {
		if !strings.HasPrefix(t.Name, prefix) {
			continue
		}
		fmt.Fprintf(w, "\n[%s]%s\n", t.Library, t.Name)
		for _, m := range t.Methods {
			fmt.Fprintln(w, "  ", m.Signature())
		}
	}
}
