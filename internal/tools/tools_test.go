package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/karimjebali/forager/internal/sandbox"
)

// echoRunner is a sandbox.Runner that records the invocation and returns
// a canned result.
type echoRunner struct {
	lastCmd  string
	lastArgs []string
	result   sandbox.Result
	err      error
}

func (r *echoRunner) RunCmd(ctx context.Context, workspace, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
	r.lastCmd = name
	r.lastArgs = args
	return r.result, r.err
}

func TestValidateArgs(t *testing.T) {
	tool := Tool{
		ID:         "demo",
		SchemaJSON: `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
	}

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"path": "a.txt"}, false},
		{"missing required", map[string]any{}, true},
		{"wrong type", map[string]any{"path": 42}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tool.ValidateArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateArgs(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if err != nil {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("error is %T, want *ValidationError", err)
				}
				if ve.ToolID != "demo" {
					t.Errorf("ToolID = %q, want demo", ve.ToolID)
				}
			}
		})
	}
}

func TestValidateArgsNoSchema(t *testing.T) {
	tool := Tool{ID: "anything"}
	if err := tool.ValidateArgs(map[string]any{"whatever": true}); err != nil {
		t.Fatalf("schemaless tool rejected args: %v", err)
	}
}

func TestRegistryIDsSorted(t *testing.T) {
	reg := make(Registry)
	reg.Register(Tool{ID: "zeta"})
	reg.Register(Tool{ID: "alpha"})
	reg.Register(Tool{ID: "mid"})

	ids := reg.IDs()
	want := []string{"alpha", "mid", "zeta"}
	if len(ids) != len(want) {
		t.Fatalf("IDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("IDs() = %v, want %v", ids, want)
		}
	}
}

func TestBuiltinRegistry(t *testing.T) {
	reg := Builtin(&echoRunner{})
	for _, id := range []string{"shell_exec", "read_file", "write_file", "list_files"} {
		if _, ok := reg.Get(id); !ok {
			t.Errorf("builtin registry missing %s", id)
		}
	}
	if desc := reg.Describe(); !strings.Contains(desc, "shell_exec") {
		t.Errorf("Describe() missing shell_exec: %q", desc)
	}
}

func TestShellExecAllowlist(t *testing.T) {
	runner := &echoRunner{}
	reg := Builtin(runner)
	tool, _ := reg.Get("shell_exec")

	out, err := tool.Fn(context.Background(), t.TempDir(), map[string]any{"cmd": "shutdown"})
	if err != nil {
		t.Fatalf("allowlist rejection should not be an execution error: %v", err)
	}

	var res shellResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if res.Status != "failed" || res.ExitCode != 1 {
		t.Errorf("status = %s code = %d, want failed/1", res.Status, res.ExitCode)
	}
	if runner.lastCmd != "" {
		t.Error("runner invoked for disallowed command")
	}
}

func TestShellExecRunsAllowedCommand(t *testing.T) {
	runner := &echoRunner{result: sandbox.Result{Stdout: "hi\n", Code: 0}}
	reg := Builtin(runner)
	tool, _ := reg.Get("shell_exec")

	out, err := tool.Fn(context.Background(), t.TempDir(), map[string]any{
		"cmd":  "echo",
		"args": []any{"hi"},
	})
	if err != nil {
		t.Fatalf("Fn: %v", err)
	}
	if runner.lastCmd != "echo" || len(runner.lastArgs) != 1 || runner.lastArgs[0] != "hi" {
		t.Errorf("runner got %s %v", runner.lastCmd, runner.lastArgs)
	}

	var res shellResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if res.Status != "ok" || res.Stdout != "hi\n" {
		t.Errorf("result = %+v", res)
	}
}

func TestShellExecNonZeroExitIsError(t *testing.T) {
	runner := &echoRunner{result: sandbox.Result{Stderr: "boom", Code: 2}}
	reg := Builtin(runner)
	tool, _ := reg.Get("shell_exec")

	out, err := tool.Fn(context.Background(), t.TempDir(), map[string]any{"cmd": "make"})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	var res shellResult
	if jsonErr := json.Unmarshal([]byte(out), &res); jsonErr != nil {
		t.Fatalf("output not JSON: %v", jsonErr)
	}
	if res.Status != "failed" || res.ExitCode != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestReadWriteListRoundTrip(t *testing.T) {
	reg := Builtin(&echoRunner{})
	workspace := t.TempDir()
	ctx := context.Background()

	write, _ := reg.Get("write_file")
	if _, err := write.Fn(ctx, workspace, map[string]any{
		"path":    filepath.Join("src", "main.go"),
		"content": "package main\n",
	}); err != nil {
		t.Fatalf("write_file: %v", err)
	}

	read, _ := reg.Get("read_file")
	got, err := read.Fn(ctx, workspace, map[string]any{"path": "src/main.go"})
	if err != nil {
		t.Fatalf("read_file: %v", err)
	}
	if got != "package main\n" {
		t.Errorf("read back %q", got)
	}

	list, _ := reg.Get("list_files")
	listing, err := list.Fn(ctx, workspace, map[string]any{})
	if err != nil {
		t.Fatalf("list_files: %v", err)
	}
	if !strings.Contains(listing, filepath.Join("src", "main.go")) {
		t.Errorf("listing %q missing src/main.go", listing)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	reg := Builtin(&echoRunner{})
	workspace := t.TempDir()

	read, _ := reg.Get("read_file")
	if _, err := read.Fn(context.Background(), workspace, map[string]any{"path": "../outside.txt"}); err == nil {
		t.Fatal("expected path escape to be rejected")
	}

	write, _ := reg.Get("write_file")
	if _, err := write.Fn(context.Background(), workspace, map[string]any{
		"path":    "../../etc/evil",
		"content": "x",
	}); err == nil {
		t.Fatal("expected path escape to be rejected")
	}
	if _, err := os.Stat(filepath.Join(workspace, "..", "..", "etc", "evil")); !os.IsNotExist(err) {
		t.Error("escaped file was written")
	}
}
