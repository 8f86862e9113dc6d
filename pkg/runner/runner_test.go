package runner

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fortiblox/sscvm/internal/types"
	"github.com/fortiblox/sscvm/pkg/journal"
	"github.com/fortiblox/sscvm/pkg/loader"
	"github.com/fortiblox/sscvm/pkg/syscall"
	"github.com/fortiblox/sscvm/pkg/vm"
)

// greet builds a program that writes msg to stdout via the write syscall.
func greet(msg string) []byte {
	ne := binary.NativeEndian
	var p []byte
	p = append(p, vm.OpInitVariable)
	p = ne.AppendUint16(p, 0)
	p = ne.AppendUint16(p, uint16(len(msg)))
	p = append(p, msg...)

	p = append(p, vm.OpSyscall, 3)
	p = ne.AppendUint16(p, syscall.SysWrite)
	p = append(p, vm.TagImmediate)
	p = ne.AppendUint64(p, 1)
	p = append(p, vm.TagVariable)
	p = ne.AppendUint16(p, 0)
	p = append(p, vm.TagImmediate)
	p = ne.AppendUint64(p, uint64(len(msg)))
	return p
}

func writeProgram(t *testing.T, code []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), loader.DefaultFilename)
	if err := os.WriteFile(path, code, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func sandboxConfig(stdout io.Writer) Config {
	return Config{
		Sandbox:       true,
		SandboxConfig: Stdio(strings.NewReader(""), stdout, io.Discard),
		Logger:        log.New(io.Discard, "", 0),
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ProgramPath != loader.DefaultFilename {
		t.Errorf("ProgramPath = %q, want %q", cfg.ProgramPath, loader.DefaultFilename)
	}
	if cfg.Sandbox {
		t.Error("Sandbox should default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := types.ComputeDigest([]byte{1}).String()
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"negative verbosity", Config{Verbosity: -1}, true},
		{"digest without store", Config{Digest: valid}, true},
		{"digest with store", Config{Digest: valid, StorePath: "/tmp/s"}, false},
		{"bad digest", Config{Digest: "xyz", StorePath: "/tmp/s"}, true},
		{"save without store", Config{SaveToStore: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("Validate() error = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestRunSandbox(t *testing.T) {
	var stdout bytes.Buffer
	cfg := sandboxConfig(&stdout)
	cfg.ProgramPath = writeProgram(t, greet("hi\n"))

	r, err := New(&cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer r.Close()

	report, err := r.Run()
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if stdout.String() != "hi\n" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "hi\n")
	}
	if report.R0 != 3 {
		t.Errorf("R0 = %d, want 3", report.R0)
	}
	if report.Result.Instructions != 2 || report.Result.Syscalls != 1 {
		t.Errorf("Result = %+v", report.Result)
	}
	if report.Record != nil {
		t.Error("Record set without a journal")
	}
}

func TestRunMissingProgram(t *testing.T) {
	cfg := sandboxConfig(io.Discard)
	cfg.ProgramPath = filepath.Join(t.TempDir(), "missing.ssc")
	r, err := New(&cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Run(); !errors.Is(err, loader.ErrHostIO) {
		t.Errorf("Run() = %v, want ErrHostIO", err)
	}
}

// TestRunJournal tests that successful and failed runs are both journaled.
func TestRunJournal(t *testing.T) {
	dir := t.TempDir()
	cfg := sandboxConfig(io.Discard)
	cfg.JournalPath = filepath.Join(dir, "journal.db")

	r, err := New(&cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer r.Close()

	ok, _ := loader.FromBytes("ok", greet("x"))
	report, err := r.Execute(ok)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if report.Record == nil || report.Record.Outcome != journal.OutcomeOK || report.Record.Digest != ok.Digest {
		t.Errorf("Record = %+v", report.Record)
	}

	// assign-register with a variable lvalue
	bad, _ := loader.FromBytes("bad", []byte{vm.OpAssignRegister, vm.TagVariable, 0, 0})
	report, err = r.Execute(bad)
	if !errors.Is(err, vm.ErrInvalidLvalue) {
		t.Fatalf("Execute() = %v, want ErrInvalidLvalue", err)
	}
	rec := report.Record
	if rec == nil || rec.Outcome != journal.OutcomeError {
		t.Fatalf("Record = %+v", rec)
	}
	if rec.ErrorKind != vm.KindInvalidLvalue.String() || rec.ErrorOffset != 1 {
		t.Errorf("ErrorKind = %q, ErrorOffset = %d", rec.ErrorKind, rec.ErrorOffset)
	}
	if rec.Seq != 2 {
		t.Errorf("Seq = %d, want 2", rec.Seq)
	}

	if n, err := r.Journal().Verify(); err != nil || n != 2 {
		t.Errorf("Verify() = %d, %v", n, err)
	}
}

// TestRunFromStore tests saving a program and running it back by digest.
func TestRunFromStore(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store")
	code := greet("stored\n")

	cfg := sandboxConfig(io.Discard)
	cfg.ProgramPath = writeProgram(t, code)
	cfg.StorePath = storePath
	cfg.SaveToStore = true

	r, err := New(&cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := r.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if r.Store().Count() != 1 {
		t.Errorf("store Count() = %d, want 1", r.Store().Count())
	}
	r.Close()

	var stdout bytes.Buffer
	cfg = sandboxConfig(&stdout)
	cfg.StorePath = storePath
	cfg.Digest = types.ComputeDigest(code).String()

	r, err = New(&cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer r.Close()

	report, err := r.Run()
	if err != nil {
		t.Fatalf("Run() by digest failed: %v", err)
	}
	if stdout.String() != "stored\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
	if !strings.HasPrefix(report.Program.Source, "store:") {
		t.Errorf("Source = %q", report.Program.Source)
	}
}

func TestRunVerboseLogsRead(t *testing.T) {
	var logs bytes.Buffer
	cfg := sandboxConfig(io.Discard)
	cfg.ProgramPath = writeProgram(t, greet("v"))
	cfg.Verbosity = 1
	cfg.Logger = log.New(&logs, "", 0)

	r, err := New(&cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer r.Close()
	if _, err := r.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	out := logs.String()
	want := "Read 31 bytes from " + cfg.ProgramPath
	if !strings.Contains(out, want) {
		t.Errorf("logs missing %q:\n%s", want, out)
	}
	if !strings.Contains(out, "[VM]") {
		t.Errorf("logs missing instruction trace:\n%s", out)
	}
}

func TestClosedRunner(t *testing.T) {
	cfg := sandboxConfig(io.Discard)
	r, err := New(&cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	r.Close()
	if _, err := r.Run(); !errors.Is(err, ErrClosed) {
		t.Errorf("Run() = %v, want ErrClosed", err)
	}
}

// TestSandboxConfigKeepsCallerFields checks only unset sandbox fields are
// bound to the process.
func TestSandboxConfigKeepsCallerFields(t *testing.T) {
	def := syscall.DefaultSandboxConfig()

	t.Run("identity only", func(t *testing.T) {
		got := withSandboxDefaults(syscall.SandboxConfig{Pid: 4242, Uid: 1001})
		if got.Pid != 4242 || got.Uid != 1001 {
			t.Errorf("identity = %d/%d, want 4242/1001", got.Pid, got.Uid)
		}
		if got.Stdout != def.Stdout || got.Stdin != def.Stdin || got.Stderr != def.Stderr {
			t.Error("streams not bound to the process")
		}
	})

	t.Run("streams only", func(t *testing.T) {
		var out bytes.Buffer
		got := withSandboxDefaults(syscall.SandboxConfig{Stdout: &out})
		if got.Stdout != &out || got.Stdin != nil || got.Stderr != nil {
			t.Error("caller streams replaced")
		}
		if got.Pid != def.Pid || got.Uid != def.Uid {
			t.Errorf("identity = %d/%d, want %d/%d", got.Pid, got.Uid, def.Pid, def.Uid)
		}
	})

	t.Run("through New", func(t *testing.T) {
		cfg := Config{
			Sandbox:       true,
			SandboxConfig: syscall.SandboxConfig{Pid: 4242},
			Logger:        log.New(io.Discard, "", 0),
		}
		r, err := New(&cfg)
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		defer r.Close()

		// r0 = getpid()
		code := append([]byte{vm.OpSyscall, 0}, binary.NativeEndian.AppendUint16(nil, syscall.SysGetpid)...)
		prog, _ := loader.FromBytes("getpid", code)
		report, err := r.Execute(prog)
		if err != nil {
			t.Fatalf("Execute() failed: %v", err)
		}
		if report.R0 != 4242 {
			t.Errorf("getpid() = %d, want 4242", report.R0)
		}
	})
}
