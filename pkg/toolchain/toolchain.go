// Package toolchain drives the external CIL assembler and runtime.
package toolchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// FailureMarker is what ilasm prints when assembly fails.
const FailureMarker = "***** FAILURE *****"

// Binary is an assembled program.
type Binary struct {
	Path string
	Dir  string // build directory, owned by the caller
}

// Diagnostics is the captured assembler output.
type Diagnostics struct {
	Output string
	Errors string
	Failed bool
}

// Failure reports whether text carries the failure marker.
func Failure(text string) bool {
	return strings.Contains(text, FailureMarker)
}

// Assembler turns CIL text into a binary. A failed assembly is reported
// through Diagnostics.Failed with a nil error; the error is for problems
// running the tool at all.
type Assembler interface {
	Assemble(ctx context.Context, name, text string) (*Binary, Diagnostics, error)
}

// Runner executes an assembled binary.
type Runner interface {
	Run(ctx context.Context, bin *Binary, stdin io.Reader, stdout, stderr io.Writer) error
}

// ILAsm runs an ilasm executable.
type ILAsm struct {
	Command  string
	Args     []string // extra arguments before the source file
	WorkRoot string   // parent of the per-build directories; os.TempDir if empty
}

// NewILAsm returns an ILAsm for command.
func NewILAsm(command, workRoot string) *ILAsm {
	return &ILAsm{Command: command, WorkRoot: workRoot}
}

// Assemble writes text to <build>/<name>.il and assembles it into
// <build>/<name>.exe, where <build> is a fresh directory under WorkRoot.
func (a *ILAsm) Assemble(ctx context.Context, name, text string) (*Binary, Diagnostics, error) {
	root := a.WorkRoot
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "build-"+ulid.Make().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Diagnostics{}, fmt.Errorf("failed to create build dir: %w", err)
	}

	src := filepath.Join(dir, name+".il")
	if err := os.WriteFile(src, []byte(text), 0o644); err != nil {
		return nil, Diagnostics{}, fmt.Errorf("failed to write source: %w", err)
	}
	out := filepath.Join(dir, name+".exe")

	args := append([]string{}, a.Args...)
	args = append(args, "-exe", "-output="+out, src)
	cmd := exec.CommandContext(ctx, a.Command, args...)
	cmd.Dir = dir

	stdout, stderr, runErr := capture(cmd)
	diag := Diagnostics{Output: stdout, Errors: stderr}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr) && ctx.Err() == nil:
		diag.Failed = true
	default:
		return nil, diag, fmt.Errorf("failed to run %s: %w", a.Command, runErr)
	}
	if Failure(stdout) || Failure(stderr) {
		diag.Failed = true
	}
	if diag.Failed {
		return nil, diag, nil
	}

	if err := writeRuntimeConfig(dir, name); err != nil {
		return nil, diag, err
	}
	return &Binary{Path: out, Dir: dir}, diag, nil
}

// capture runs cmd and drains both output pipes concurrently.
func capture(cmd *exec.Cmd) (string, string, error) {
	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", err
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", err
	}
	if err := cmd.Start(); err != nil {
		return "", "", err
	}

	var stdout, stderr bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&stdout, outPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&stderr, errPipe)
		return err
	})
	readErr := g.Wait()

	// Wait must follow the reads; it closes the pipes.
	waitErr := cmd.Wait()
	if waitErr != nil {
		return stdout.String(), stderr.String(), waitErr
	}
	return stdout.String(), stderr.String(), readErr
}

type runtimeConfig struct {
	RuntimeOptions struct {
		TFM       string `json:"tfm"`
		Framework struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"framework"`
	} `json:"runtimeOptions"`
}

// writeRuntimeConfig lets `dotnet <name>.exe` find the shared framework.
func writeRuntimeConfig(dir, name string) error {
	var rc runtimeConfig
	rc.RuntimeOptions.TFM = "net8.0"
	rc.RuntimeOptions.Framework.Name = "Microsoft.NETCore.App"
	rc.RuntimeOptions.Framework.Version = "8.0.0"

	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name+".runtimeconfig.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write runtime config: %w", err)
	}
	return nil
}

// DotnetRunner runs binaries through a host command such as `dotnet`. An
// empty Command executes the binary directly.
type DotnetRunner struct {
	Command string
}

func (r DotnetRunner) Run(ctx context.Context, bin *Binary, stdin io.Reader, stdout, stderr io.Writer) error {
	var cmd *exec.Cmd
	if r.Command == "" {
		cmd = exec.CommandContext(ctx, bin.Path)
	} else {
		cmd = exec.CommandContext(ctx, r.Command, bin.Path)
	}
	cmd.Dir = bin.Dir
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("program failed: %w", err)
	}
	return nil
}

// Available reports whether command can be found on PATH.
func Available(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}
