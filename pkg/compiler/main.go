// Package compiler translates the silc scripting language into CIL assembly
// text for an external ilasm.
//
// Pipeline: source → Preprocess → Lex → Normalize → Resolve → Fold → Generate → CIL text
package compiler
