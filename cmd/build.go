package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"silc/pkg/diag"
	"silc/pkg/utils"
)

// build: compile a script into assembly text
var BuildCmd = &cobra.Command{
	Use:   "build [file]",
	Short: "Compile a silc script into <name>.il",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd)
		if err != nil {
			return err
		}
		_, res, err := s.compileFile(args[0])
		if err != nil {
			return err
		}

		out, err := utils.ArtifactPath(args[0], s.settings.OutputDir, ".il")
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, []byte(res.Assembly), 0o644); err != nil {
			return fmt.Errorf("failed to write assembly: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), msgs.Message(diag.Wrote, out))
		return nil
	},
}
