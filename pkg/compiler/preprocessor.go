package compiler

import (
	"strings"
	"unicode"
)

// CodeLine is one non-blank source line after comment stripping. Number is
// the 1-based line in the original source, kept for diagnostics.
type CodeLine struct {
	Text   string
	Number int
}

// Preprocess strips `//` and `/* */` comments, collapses runs of blanks to a
// single space and drops lines left empty. Comment markers inside string
// literals delimited by delim are kept. The end of input is implicit: the
// lexer reports EOF once its cursor moves past the last line.
func Preprocess(src string, delim rune) ([]CodeLine, error) {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	rawLines := strings.Split(src, "\n")

	var lines []CodeLine
	inBlock := false
	blockLine, blockCol := 0, 0

	for i, raw := range rawLines {
		var sb strings.Builder
		runes := []rune(raw)
		inString := false
		pendingSpace := false

		for j := 0; j < len(runes); j++ {
			ch := runes[j]

			if inBlock {
				if ch == '*' && j+1 < len(runes) && runes[j+1] == '/' {
					inBlock = false
					pendingSpace = true
					j++
				}
				continue
			}

			if inString {
				sb.WriteRune(ch)
				if ch == '\\' && j+1 < len(runes) {
					sb.WriteRune(runes[j+1])
					j++
					continue
				}
				if ch == delim {
					inString = false
				}
				continue
			}

			if ch == '/' && j+1 < len(runes) {
				if runes[j+1] == '/' {
					break
				}
				if runes[j+1] == '*' {
					inBlock = true
					blockLine, blockCol = i+1, j+1
					j++
					continue
				}
			}

			if ch != '\n' && unicode.IsSpace(ch) {
				pendingSpace = true
				continue
			}

			if pendingSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			pendingSpace = false

			if ch == delim {
				inString = true
			}
			sb.WriteRune(ch)
		}

		if text := sb.String(); text != "" {
			lines = append(lines, CodeLine{Text: text, Number: i + 1})
		}
	}

	if inBlock {
		return nil, &Error{
			Stage:  StageLex,
			Kind:   ErrUnterminatedComment,
			Lexeme: "/*",
			Line:   blockLine,
			Col:    blockCol,
		}
	}
	return lines, nil
}
