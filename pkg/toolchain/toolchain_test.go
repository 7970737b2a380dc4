package toolchain

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeTool writes an executable shell script and returns its path.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

const touchOutput = `for a in "$@"; do case "$a" in -output=*) : > "${a#-output=}";; esac; done
`

func TestAssemble(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		wantFailed bool
		wantOut    string
		wantErrOut string
	}{
		{
			name:    "Success",
			script:  touchOutput + "echo 'Assembling OK'\necho 'Operation completed successfully'\n",
			wantOut: "Operation completed successfully",
		},
		{
			name:       "Marker With Zero Exit",
			script:     "echo 'Error: syntax'\necho '***** FAILURE *****'\n",
			wantFailed: true,
			wantOut:    FailureMarker,
		},
		{
			name:       "Marker On Stderr",
			script:     "echo '***** FAILURE *****' >&2\n",
			wantFailed: true,
			wantErrOut: FailureMarker,
		},
		{
			name:       "Non-Zero Exit",
			script:     "echo 'bad opcode' >&2\nexit 3\n",
			wantFailed: true,
			wantErrOut: "bad opcode",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := NewILAsm(fakeTool(t, tc.script), t.TempDir())
			bin, diag, err := a.Assemble(context.Background(), "hello", ".assembly Program { }\n")
			if err != nil {
				t.Fatalf("Assemble failed: %v", err)
			}
			if diag.Failed != tc.wantFailed {
				t.Errorf("Failed = %v, want %v (diag %+v)", diag.Failed, tc.wantFailed, diag)
			}
			if !strings.Contains(diag.Output, tc.wantOut) {
				t.Errorf("Output = %q, want %q", diag.Output, tc.wantOut)
			}
			if !strings.Contains(diag.Errors, tc.wantErrOut) {
				t.Errorf("Errors = %q, want %q", diag.Errors, tc.wantErrOut)
			}
			if tc.wantFailed {
				if bin != nil {
					t.Errorf("failed assembly returned a binary: %+v", bin)
				}
				return
			}

			if filepath.Base(bin.Path) != "hello.exe" || filepath.Dir(bin.Path) != bin.Dir {
				t.Errorf("Binary = %+v", bin)
			}
			if !strings.HasPrefix(filepath.Base(bin.Dir), "build-") {
				t.Errorf("build dir %q not named build-<id>", bin.Dir)
			}
			src, err := os.ReadFile(filepath.Join(bin.Dir, "hello.il"))
			if err != nil || string(src) != ".assembly Program { }\n" {
				t.Errorf("source = %q, %v", src, err)
			}
			data, err := os.ReadFile(filepath.Join(bin.Dir, "hello.runtimeconfig.json"))
			if err != nil {
				t.Fatalf("runtime config missing: %v", err)
			}
			var rc runtimeConfig
			if err := json.Unmarshal(data, &rc); err != nil || rc.RuntimeOptions.Framework.Name != "Microsoft.NETCore.App" {
				t.Errorf("runtime config = %s, %v", data, err)
			}
		})
	}
}

func TestAssembleBuildDirsAreUnique(t *testing.T) {
	a := NewILAsm(fakeTool(t, touchOutput), t.TempDir())
	first, _, err := a.Assemble(context.Background(), "p", "")
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := a.Assemble(context.Background(), "p", "")
	if err != nil {
		t.Fatal(err)
	}
	if first.Dir == second.Dir {
		t.Errorf("two builds share %s", first.Dir)
	}
}

func TestAssembleMissingTool(t *testing.T) {
	a := NewILAsm(filepath.Join(t.TempDir(), "no-such-ilasm"), t.TempDir())
	_, diag, err := a.Assemble(context.Background(), "p", "")
	if err == nil {
		t.Fatalf("Assemble succeeded with a missing tool: %+v", diag)
	}
}

func TestAssembleCancelled(t *testing.T) {
	a := NewILAsm(fakeTool(t, "sleep 5\n"), t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := a.Assemble(ctx, "p", ""); err == nil {
		t.Errorf("Assemble ignored a cancelled context")
	}
}

func TestDotnetRunner(t *testing.T) {
	prog := fakeTool(t, "read name\necho \"hello $name\"\necho oops >&2\n")
	bin := &Binary{Path: prog, Dir: filepath.Dir(prog)}

	var stdout, stderr bytes.Buffer
	err := DotnetRunner{}.Run(context.Background(), bin, strings.NewReader("world\n"), &stdout, &stderr)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stdout.String() != "hello world\n" || stderr.String() != "oops\n" {
		t.Errorf("stdout %q, stderr %q", stdout.String(), stderr.String())
	}

	host := fakeTool(t, "echo \"host ran $1\"\n")
	stdout.Reset()
	if err := (DotnetRunner{Command: host}).Run(context.Background(), bin, nil, &stdout, &stderr); err != nil {
		t.Fatalf("Run via host failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "host ran "+prog) {
		t.Errorf("host output %q", stdout.String())
	}

	failing := fakeTool(t, "exit 2\n")
	if err := (DotnetRunner{}).Run(context.Background(), &Binary{Path: failing, Dir: filepath.Dir(failing)}, nil, &stdout, &stderr); err == nil {
		t.Errorf("non-zero exit not reported")
	}
}

func TestFailure(t *testing.T) {
	if !Failure("x\n***** FAILURE *****\n") || Failure("Operation completed successfully") {
		t.Errorf("Failure marker detection is wrong")
	}
}
