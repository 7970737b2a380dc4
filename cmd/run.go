package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"silc/pkg/diag"
	"silc/pkg/toolchain"
	"silc/pkg/utils"
)

var keepBuild bool

// run: compile, assemble with ilasm and execute
var RunCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Compile, assemble and run a silc script",
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

		workRoot, _, err := utils.GetPathInfo(filepath.Join(s.settings.OutputDir, "build"))
		if err != nil {
			return err
		}
		if err := os.MkdirAll(workRoot, 0o755); err != nil {
			return err
		}

		ctx, cancel := s.toolContext(cmd.Context())
		defer cancel()

		asm := toolchain.NewILAsm(s.settings.ILAsm, workRoot)
		log.Printf("assembling with %s", asm.Command)
		bin, d, err := asm.Assemble(ctx, utils.ProgramName(args[0]), res.Assembly)
		if err != nil {
			return err
		}
		if d.Failed {
			for _, text := range []string{d.Output, d.Errors} {
				if t := strings.TrimSpace(text); t != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), t)
				}
			}
			return errors.New(msgs.Message(diag.CodeWithErrors))
		}
		if !keepBuild {
			defer os.RemoveAll(bin.Dir)
		}
		log.Printf("assembled %s", bin.Path)

		runCtx, cancelRun := s.toolContext(cmd.Context())
		defer cancelRun()
		runner := toolchain.DotnetRunner{Command: s.settings.Runtime}
		return runner.Run(runCtx, bin, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	RunCmd.Flags().BoolVar(&keepBuild, "keep", false, "keep the build directory")
}
