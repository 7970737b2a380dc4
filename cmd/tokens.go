package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"silc/pkg/compiler"
)

var stage string

// Stages accepted by `silc tokens --stage`, in pipeline order.
var tokenStages = []string{"lines", "lex", "normalize", "resolve", "final"}

// tokens: dump the pipeline state after one stage
var TokensCmd = &cobra.Command{
	Use:   "tokens [file]",
	Short: "Dump the token stream of a script after a pipeline stage",
	Long: `Dump the token stream of a script after a pipeline stage.

Stages:
  lines      preprocessed source lines
  lex        raw tokens
  normalize  tokens after normalization
  resolve    tokens after declaration and call resolution
  final      tokens fed to the code generator (after folding)
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd)
		if err != nil {
			return err
		}
		src, err := readSource(args[0])
		if err != nil {
			return err
		}
		return dumpStage(cmd.OutOrStdout(), s, src, stage)
	},
}

func init() {
	TokensCmd.Flags().StringVar(&stage, "stage", "final", "stage to stop after (lines, lex, normalize, resolve, final)")
}

func dumpStage(w io.Writer, s *session, src, stage string) error {
	delim := s.settings.StringCharacter

	lines, err := compiler.Preprocess(src, delim)
	if err != nil {
		return err
	}
	if stage == "lines" {
		fmt.Fprintf(w, "Lines (%d)\n", len(lines))
		for _, l := range lines {
			fmt.Fprintf(w, "  %4d  %s\n", l.Number, l.Text)
		}
		return nil
	}

	var tokens []compiler.Token
	switch stage {
	case "lex":
		tokens, err = compiler.Lex(lines, delim)
	case "normalize":
		tokens, err = compiler.Lex(lines, delim)
		if err == nil {
			tokens = compiler.Normalize(tokens)
		}
	case "resolve":
		tokens, err = compiler.Tokenize(src, delim)
		if err == nil {
			tokens, err = compiler.NewResolver(s.index).Resolve(tokens)
		}
	case "final":
		tokens, _, err = s.compiler.Analyze(src)
	default:
		return fmt.Errorf("unknown stage %q; stages: %v", stage, tokenStages)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		fmt.Fprintln(w, " ", tok)
	}
	return nil
}
