// sscvm: interpreter for ssc bytecode programs.
//
// sscvm loads a program (by default write.ssc in the working directory),
// executes it and exits 0, or prints the interpreter diagnostic and exits 1.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fortiblox/sscvm/pkg/journal"
	"github.com/fortiblox/sscvm/pkg/programstore"
	"github.com/fortiblox/sscvm/pkg/runner"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Configuration flags
var (
	verbosity      = flag.Int("v", 0, "Trace level: 0 silent, 1 instructions, 2 every cursor advance")
	sandbox        = flag.Bool("sandbox", false, "Service syscalls in-process instead of calling the kernel")
	zeroUnusedArgs = flag.Bool("zero-unused-args", false, "Clear syscall argument slots beyond the declared count")
	storePath      = flag.String("store", "", "Program store directory")
	save           = flag.Bool("save", false, "Save the loaded program into the store")
	digest         = flag.String("digest", "", "Run the stored program with this digest instead of a file")
	journalPath    = flag.String("journal", "", "Record every run in this journal file")
	listPrograms   = flag.Bool("list", false, "List stored programs and exit")
	verifyJournal  = flag.Bool("verify-journal", false, "Verify the journal hash chain and exit")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] [program]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("sscvm %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	log.SetFlags(0)
	logger := log.New(os.Stderr, "", 0)

	switch {
	case *listPrograms:
		exitOn(list(*storePath))
		return
	case *verifyJournal:
		exitOn(verify(*journalPath))
		return
	}

	cfg := runner.DefaultConfig()
	if flag.NArg() > 0 {
		cfg.ProgramPath = flag.Arg(0)
	}
	cfg.Digest = *digest
	cfg.StorePath = *storePath
	cfg.SaveToStore = *save
	cfg.JournalPath = *journalPath
	cfg.Sandbox = *sandbox
	cfg.ZeroUnusedArgs = *zeroUnusedArgs
	cfg.Verbosity = *verbosity
	cfg.Logger = logger

	r, err := runner.New(&cfg)
	if err != nil {
		exitOn(err)
	}
	_, runErr := r.Run()
	if err := r.Close(); err != nil {
		logger.Printf("Warning: %v", err)
	}
	exitOn(runErr)
}

func list(path string) error {
	if path == "" {
		return errors.New("-list requires -store")
	}
	cfg := programstore.DefaultConfig(path)
	cfg.SyncWrites = false
	store, err := programstore.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s  %8d  %s\n", e.Digest, e.Size, e.Added.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func verify(path string) error {
	if path == "" {
		return errors.New("-verify-journal requires -journal")
	}
	cfg := journal.DefaultConfig(path)
	cfg.ReadOnly = true
	j, err := journal.Open(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	n, err := j.Verify()
	if err != nil {
		return err
	}
	fmt.Printf("journal ok: %d records\n", n)
	return nil
}

func exitOn(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
