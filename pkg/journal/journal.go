// Package journal records program runs in a BoltDB file.
//
// Every run appends a Record. Records are numbered from 1 and chained: each
// record's Hash is SHA3-256 over its fields and the previous record's Hash,
// so Verify detects edited, reordered or dropped records.
package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fortiblox/sscvm/internal/types"
	"github.com/mr-tron/base58"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrRecordNotFound is returned when no record has the sequence number.
	ErrRecordNotFound = errors.New("record not found")

	// ErrEmpty is returned by Latest on a journal with no records.
	ErrEmpty = errors.New("journal is empty")

	// ErrClosed is returned when operating on a closed journal.
	ErrClosed = errors.New("journal closed")

	// ErrChainBroken is returned by Verify when a record does not hash to
	// its stored value or does not link to its predecessor.
	ErrChainBroken = errors.New("journal hash chain broken")
)

// Bucket names for BoltDB.
var (
	// bucketRecords stores gob-encoded records keyed by big-endian seq.
	bucketRecords = []byte("records")

	// bucketMetadata stores journal metadata.
	bucketMetadata = []byte("metadata")
)

// Metadata keys.
var (
	keyLatestSeq = []byte("latest_seq")
	keyHeadHash  = []byte("head_hash")
)

// Outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Hash is a SHA3-256 chain hash.
type Hash [32]byte

// String returns the base58 encoding of the hash.
func (h Hash) String() string {
	return base58.Encode(h[:])
}

// IsZero reports whether h is all zeroes.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Record describes one run.
type Record struct {
	Seq      uint64
	Digest   types.Digest
	Started  time.Time
	Duration time.Duration

	// Outcome is OutcomeOK or OutcomeError.
	Outcome string

	// ErrorKind and ErrorOffset locate the failure. ErrorOffset is -1 when
	// the run succeeded or the failure has no program position.
	ErrorKind   string
	ErrorOffset int

	Instructions uint64
	Syscalls     uint64
	R0           uint64

	PrevHash Hash
	Hash     Hash
}

// ComputeHash returns the chain hash of r. r.Hash is not an input.
func ComputeHash(r *Record) Hash {
	h := sha3.New256()
	var buf [8]byte
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	putString := func(s string) {
		putU64(uint64(len(s)))
		h.Write([]byte(s))
	}

	h.Write(r.PrevHash[:])
	putU64(r.Seq)
	h.Write(r.Digest[:])
	putU64(uint64(r.Started.UnixNano()))
	putU64(uint64(r.Duration))
	putString(r.Outcome)
	putString(r.ErrorKind)
	putU64(uint64(int64(r.ErrorOffset)))
	putU64(r.Instructions)
	putU64(r.Syscalls)
	putU64(r.R0)

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Config holds journal configuration options.
type Config struct {
	// Path is the database file.
	Path string

	// NoSync disables fsync after each write.
	NoSync bool

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool
}

// DefaultConfig returns the default journal configuration.
func DefaultConfig(path string) Config {
	return Config{Path: path}
}

// Journal is a BoltDB-backed run journal.
type Journal struct {
	db     *bolt.DB
	config Config

	mu     sync.RWMutex
	latest uint64
	head   Hash
	closed bool
}

// Open opens or creates a journal.
func Open(config Config) (*Journal, error) {
	if !config.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	opts := &bolt.Options{
		Timeout:  5 * time.Second,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	}
	db, err := bolt.Open(config.Path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	j := &Journal{db: db, config: config}
	if !config.ReadOnly {
		if err := j.initBuckets(); err != nil {
			db.Close()
			return nil, fmt.Errorf("init buckets: %w", err)
		}
	}
	if err := j.loadHead(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load head: %w", err)
	}
	return j, nil
}

func (j *Journal) initBuckets() error {
	return j.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (j *Journal) loadHead() error {
	return j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMetadata)
		if b == nil {
			return nil
		}
		if v := b.Get(keyLatestSeq); len(v) == 8 {
			j.latest = binary.BigEndian.Uint64(v)
		}
		if v := b.Get(keyHeadHash); len(v) == len(j.head) {
			copy(j.head[:], v)
		}
		return nil
	})
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Append assigns r the next sequence number, links and hashes it, and
// stores it. The stored record is returned.
func (j *Journal) Append(r Record) (*Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil, ErrClosed
	}

	r.Seq = j.latest + 1
	r.PrevHash = j.head
	r.Hash = ComputeHash(&r)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&r); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	err := j.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketRecords).Put(seqKey(r.Seq), buf.Bytes()); err != nil {
			return err
		}
		meta := tx.Bucket(bucketMetadata)
		if err := meta.Put(keyLatestSeq, seqKey(r.Seq)); err != nil {
			return err
		}
		return meta.Put(keyHeadHash, r.Hash[:])
	})
	if err != nil {
		return nil, fmt.Errorf("store record %d: %w", r.Seq, err)
	}

	j.latest = r.Seq
	j.head = r.Hash
	return &r, nil
}

// Get returns the record with the given sequence number.
func (j *Journal) Get(seq uint64) (*Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return nil, ErrClosed
	}

	var rec Record
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return ErrRecordNotFound
		}
		data := b.Get(seqKey(seq))
		if data == nil {
			return ErrRecordNotFound
		}
		return gob.NewDecoder(bytes.NewReader(data)).Decode(&rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Latest returns the most recent record.
func (j *Journal) Latest() (*Record, error) {
	j.mu.RLock()
	seq := j.latest
	j.mu.RUnlock()

	if seq == 0 {
		return nil, ErrEmpty
	}
	return j.Get(seq)
}

// Len returns the number of records.
func (j *Journal) Len() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.latest
}

// Verify walks the journal in order and recomputes the hash chain. It
// returns the number of records checked.
func (j *Journal) Verify() (uint64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return 0, ErrClosed
	}

	var checked uint64
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return nil
		}

		var prev Hash
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec Record
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&rec); err != nil {
				return fmt.Errorf("decode record %x: %w", k, err)
			}
			want := checked + 1
			switch {
			case rec.Seq != want || binary.BigEndian.Uint64(k) != want:
				return fmt.Errorf("%w: expected record %d, found %d", ErrChainBroken, want, rec.Seq)
			case rec.PrevHash != prev:
				return fmt.Errorf("%w: record %d does not link to its predecessor", ErrChainBroken, rec.Seq)
			case ComputeHash(&rec) != rec.Hash:
				return fmt.Errorf("%w: record %d hash mismatch", ErrChainBroken, rec.Seq)
			}
			prev = rec.Hash
			checked++
		}

		if checked != j.latest || prev != j.head {
			return fmt.Errorf("%w: head is record %d, journal ends at %d", ErrChainBroken, j.latest, checked)
		}
		return nil
	})
	return checked, err
}

// Close closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}
	j.closed = true
	return j.db.Close()
}
