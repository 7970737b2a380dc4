package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"silc/pkg/compiler"
	"silc/pkg/diag"
	"silc/pkg/report"
	"silc/pkg/utils"
)

// listing: render a compilation as HTML
var ListingCmd = &cobra.Command{
	Use:   "listing [file]",
	Short: "Write an HTML listing of a compilation to <name>.html",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd)
		if err != nil {
			return err
		}
		src, err := readSource(args[0])
		if err != nil {
			return err
		}

		// A failed compilation still gets a page showing the error.
		res, compileErr := s.compiler.Compile(src)
		var cerr *compiler.Error
		if compileErr != nil && !errors.As(compileErr, &cerr) {
			return compileErr
		}

		r, err := report.NewRenderer()
		if err != nil {
			return err
		}
		out, err := utils.ArtifactPath(args[0], s.settings.OutputDir, ".html")
		if err != nil {
			return err
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()

		page := report.NewPage(filepath.Base(args[0]), src, res, compileErr, msgs)
		if err := r.Render(f, page); err != nil {
			return fmt.Errorf("failed to render listing: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), msgs.Message(diag.Wrote, out))
		return compileErr
	},
}
