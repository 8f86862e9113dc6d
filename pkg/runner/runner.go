// Package runner executes ssc programs end to end.
//
// The Runner ties together:
// - the loader, which acquires program bytes from a file
// - the program store, which can supply or retain programs by digest
// - the interpreter with a native or sandboxed syscall bridge
// - the run journal, which records every run's outcome
package runner

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fortiblox/sscvm/internal/types"
	"github.com/fortiblox/sscvm/pkg/journal"
	"github.com/fortiblox/sscvm/pkg/loader"
	"github.com/fortiblox/sscvm/pkg/programstore"
	"github.com/fortiblox/sscvm/pkg/syscall"
	"github.com/fortiblox/sscvm/pkg/vm"
)

// Runner errors.
var (
	ErrConfigInvalid = errors.New("invalid runner configuration")
	ErrInitFailed    = errors.New("runner initialization failed")
	ErrClosed        = errors.New("runner is closed")
)

// Config holds runner configuration.
type Config struct {
	// ProgramPath is the program file. Empty means loader.DefaultFilename.
	// Ignored when Digest is set.
	ProgramPath string

	// Digest selects a program from the store instead of a file.
	Digest string

	// StorePath is the program store directory. Empty disables the store.
	StorePath string

	// SaveToStore copies a file-loaded program into the store.
	SaveToStore bool

	// JournalPath is the run journal file. Empty disables journaling.
	JournalPath string

	// Sandbox services syscalls in-process instead of passing them to the
	// kernel.
	Sandbox bool

	// SandboxConfig binds the sandbox's streams and identity.
	SandboxConfig syscall.SandboxConfig

	// ZeroUnusedArgs clears syscall argument slots beyond the declared
	// count.
	ZeroUnusedArgs bool

	// Verbosity is the trace level: 0 silent, 1 instructions, 2 cursor.
	Verbosity int

	// Logger receives runner and trace output. Defaults to a logger on
	// stderr.
	Logger *log.Logger
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProgramPath:   loader.DefaultFilename,
		SandboxConfig: syscall.DefaultSandboxConfig(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Verbosity < 0 {
		return fmt.Errorf("%w: verbosity must not be negative", ErrConfigInvalid)
	}
	if c.Digest != "" {
		if c.StorePath == "" {
			return fmt.Errorf("%w: loading by digest requires a store", ErrConfigInvalid)
		}
		if _, err := types.DigestFromBase58(c.Digest); err != nil {
			return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
		}
	}
	if c.SaveToStore && c.StorePath == "" {
		return fmt.Errorf("%w: saving requires a store", ErrConfigInvalid)
	}
	return nil
}

// Report describes a completed run, successful or not.
type Report struct {
	Program *loader.Program
	Result  vm.Result

	// R0 is register 0 after the run, the last syscall's return value.
	R0 uint64

	// Record is the journal entry, when journaling is enabled.
	Record *journal.Record
}

// Runner executes programs with one configuration.
type Runner struct {
	config Config
	logger *log.Logger

	store   *programstore.Store
	journal *journal.Journal
	closed  bool
}

// New creates a runner and opens its store and journal.
func New(config *Config) (*Runner, error) {
	if config == nil {
		c := DefaultConfig()
		config = &c
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{config: *config, logger: config.Logger}
	if r.logger == nil {
		r.logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	r.config.SandboxConfig = withSandboxDefaults(r.config.SandboxConfig)

	if config.StorePath != "" {
		store, err := programstore.Open(programstore.DefaultConfig(config.StorePath))
		if err != nil {
			return nil, fmt.Errorf("%w: program store: %w", ErrInitFailed, err)
		}
		r.store = store
	}
	if config.JournalPath != "" {
		j, err := journal.Open(journal.DefaultConfig(config.JournalPath))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("%w: journal: %w", ErrInitFailed, err)
		}
		r.journal = j
	}
	return r, nil
}

// Run acquires the configured program and executes it. The report is
// returned even when the program fails, as long as it was acquired.
func (r *Runner) Run() (*Report, error) {
	if r.closed {
		return nil, ErrClosed
	}

	prog, err := r.acquire()
	if err != nil {
		return nil, err
	}
	if r.config.Verbosity >= 1 {
		r.logger.Printf("[Runner] Read %d bytes from %s", len(prog.Code), prog.Source)
	}

	if r.config.SaveToStore && r.config.Digest == "" {
		d, err := r.store.Put(prog.Code)
		if err != nil {
			return nil, fmt.Errorf("save program: %w", err)
		}
		if r.config.Verbosity >= 1 {
			r.logger.Printf("[Runner] Stored program %s", d)
		}
	}

	return r.Execute(prog)
}

// Execute runs an already acquired program.
func (r *Runner) Execute(prog *loader.Program) (*Report, error) {
	if r.closed {
		return nil, ErrClosed
	}

	ip := vm.NewInterpreter(prog.Code, vm.Options{
		Bridge:         r.bridge(),
		ZeroUnusedArgs: r.config.ZeroUnusedArgs,
		Tracer:         vm.NewLogTracer(r.logger, r.config.Verbosity),
	})

	started := time.Now()
	res, runErr := ip.Run()
	elapsed := time.Since(started)

	report := &Report{Program: prog, Result: res}
	report.R0, _ = ip.Bank().Register(0)

	if r.journal != nil {
		rec, err := r.journal.Append(newRecord(prog, report, started, elapsed, runErr))
		if err != nil {
			r.logger.Printf("[Runner] Failed to journal run: %v", err)
		} else {
			report.Record = rec
		}
	}

	if r.config.Verbosity >= 1 {
		r.logger.Printf("[Runner] Executed %d instructions, %d syscalls in %v",
			res.Instructions, res.Syscalls, elapsed)
		if runErr != nil {
			op, at := ip.Cursor().LastOpcode()
			r.logger.Printf("[Runner] Stopped in %s instruction at byte %d", vm.OpcodeName(op), at)
		}
	}
	return report, runErr
}

func (r *Runner) acquire() (*loader.Program, error) {
	if r.config.Digest == "" {
		return loader.Load(r.config.ProgramPath)
	}

	d, err := types.DigestFromBase58(r.config.Digest)
	if err != nil {
		return nil, err
	}
	code, err := r.store.Get(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", loader.ErrHostIO, err)
	}
	return loader.FromBytes("store:"+d.String(), code)
}

// withSandboxDefaults binds the process's streams when cfg sets none, and
// the process's identity when cfg sets neither Pid nor Uid.
func withSandboxDefaults(cfg syscall.SandboxConfig) syscall.SandboxConfig {
	def := syscall.DefaultSandboxConfig()
	if cfg.Stdin == nil && cfg.Stdout == nil && cfg.Stderr == nil {
		cfg.Stdin, cfg.Stdout, cfg.Stderr = def.Stdin, def.Stdout, def.Stderr
	}
	if cfg.Pid == 0 && cfg.Uid == 0 {
		cfg.Pid, cfg.Uid = def.Pid, def.Uid
	}
	return cfg
}

func (r *Runner) bridge() vm.Bridge {
	if r.config.Sandbox {
		return syscall.NewSandbox(r.config.SandboxConfig)
	}
	return syscall.NewNative()
}

func newRecord(prog *loader.Program, report *Report, started time.Time, elapsed time.Duration, runErr error) journal.Record {
	rec := journal.Record{
		Digest:       prog.Digest,
		Started:      started,
		Duration:     elapsed,
		Outcome:      journal.OutcomeOK,
		ErrorOffset:  -1,
		Instructions: report.Result.Instructions,
		Syscalls:     report.Result.Syscalls,
		R0:           report.R0,
	}
	if runErr != nil {
		rec.Outcome = journal.OutcomeError
		rec.ErrorKind = vm.KindOf(runErr).String()
		var vmErr *vm.Error
		if errors.As(runErr, &vmErr) {
			rec.ErrorOffset = vmErr.Offset
		}
	}
	return rec
}

// Store returns the program store, or nil when none is configured.
func (r *Runner) Store() *programstore.Store {
	return r.store
}

// Journal returns the run journal, or nil when none is configured.
func (r *Runner) Journal() *journal.Journal {
	return r.journal
}

// Close releases the store and journal.
func (r *Runner) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if r.journal != nil {
		errs = append(errs, r.journal.Close())
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	return errors.Join(errs...)
}

// Stdio returns a sandbox configuration on the given streams with the
// process identity.
func Stdio(stdin io.Reader, stdout, stderr io.Writer) syscall.SandboxConfig {
	cfg := syscall.DefaultSandboxConfig()
	cfg.Stdin = stdin
	cfg.Stdout = stdout
	cfg.Stderr = stderr
	return cfg
}
