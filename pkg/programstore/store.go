// Package programstore provides content-addressed storage for ssc programs.
//
// Programs are keyed by their BLAKE3 digest and stored zstd-compressed in
// BadgerDB. Storing the same program twice is a no-op.
package programstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fortiblox/sscvm/internal/types"
	"github.com/fortiblox/sscvm/pkg/loader"
)

var (
	// ErrProgramNotFound is returned when no program has the digest.
	ErrProgramNotFound = errors.New("program not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("program store closed")

	// ErrDigestMismatch is returned when stored bytes no longer hash to
	// their key.
	ErrDigestMismatch = errors.New("stored program does not match its digest")
)

// Key prefixes.
var (
	// prefixProgram + digest (32 bytes) -> zstd(code)
	prefixProgram = []byte{0x01}

	// prefixAdded + digest -> unix seconds the program was first stored
	prefixAdded = []byte{0x02}

	// prefixMeta + name -> value
	prefixMeta = []byte{0x03}

	metaCount = append(append([]byte{}, prefixMeta...), []byte("count")...)
)

// Config configures the store.
type Config struct {
	// Path is the directory for the database. Ignored when InMemory.
	Path string

	// InMemory keeps everything in memory (for testing).
	InMemory bool

	// SyncWrites syncs every write to disk.
	SyncWrites bool

	// Logger receives badger's own log output. Nil disables it.
	Logger badger.Logger
}

// DefaultConfig returns the default configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// Entry describes a stored program.
type Entry struct {
	Digest types.Digest
	Size   int // compressed size on disk
	Added  time.Time
}

// Store is a BadgerDB-backed program store.
type Store struct {
	db     *badger.DB
	update func(fn func(txn *badger.Txn) error) error
	mu     sync.Mutex
	count  atomic.Uint64
	closed atomic.Bool
}

// Open opens or creates a store.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &Store{db: db, update: db.Update}
	if err := s.loadMetadata(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return s, nil
}

func (s *Store) loadMetadata() error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaCount)
		if err == badger.ErrKeyNotFound {
			s.count.Store(0)
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) >= 8 {
				s.count.Store(binary.LittleEndian.Uint64(val))
			}
			return nil
		})
	})
}

func programKey(d types.Digest) []byte {
	return append(append(make([]byte, 0, 1+types.DigestSize), prefixProgram...), d[:]...)
}

func addedKey(d types.Digest) []byte {
	return append(append(make([]byte, 0, 1+types.DigestSize), prefixAdded...), d[:]...)
}

// Put stores code and returns its digest.
func (s *Store) Put(code []byte) (types.Digest, error) {
	if s.closed.Load() {
		return types.Digest{}, ErrClosed
	}
	d := types.ComputeDigest(code)

	compressed, err := loader.Compress(code)
	if err != nil {
		return d, fmt.Errorf("compress: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := false
	err = s.update(func(txn *badger.Txn) error {
		_, err := txn.Get(programKey(d))
		if err == nil {
			return nil // already stored
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		if err := txn.Set(programKey(d), compressed); err != nil {
			return err
		}
		now := make([]byte, 8)
		binary.LittleEndian.PutUint64(now, uint64(time.Now().Unix()))
		if err := txn.Set(addedKey(d), now); err != nil {
			return err
		}
		count := make([]byte, 8)
		binary.LittleEndian.PutUint64(count, s.count.Load()+1)
		if err := txn.Set(metaCount, count); err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return d, err
	}
	// Counted only once the transaction has committed.
	if added {
		s.count.Add(1)
	}
	return d, nil
}

// Get returns the code stored under d.
func (s *Store) Get(d types.Digest) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var compressed []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(programKey(d))
		if err == badger.ErrKeyNotFound {
			return ErrProgramNotFound
		}
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	code, err := loader.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", d, err)
	}
	if types.ComputeDigest(code) != d {
		return nil, fmt.Errorf("%w: %s", ErrDigestMismatch, d)
	}
	return code, nil
}

// Has reports whether d is stored.
func (s *Store) Has(d types.Digest) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(programKey(d))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// Delete removes d. Deleting a missing program is not an error.
func (s *Store) Delete(d types.Digest) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	err := s.update(func(txn *badger.Txn) error {
		_, err := txn.Get(programKey(d))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(programKey(d)); err != nil {
			return err
		}
		if err := txn.Delete(addedKey(d)); err != nil {
			return err
		}
		count := make([]byte, 8)
		binary.LittleEndian.PutUint64(count, s.count.Load()-1)
		if err := txn.Set(metaCount, count); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return err
	}
	if removed {
		s.count.Add(^uint64(0)) // Decrement
	}
	return nil
}

// Count returns the number of stored programs.
func (s *Store) Count() uint64 {
	return s.count.Load()
}

// List returns every stored program in digest order.
func (s *Store) List() ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixProgram
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != 1+types.DigestSize {
				continue
			}
			var e Entry
			copy(e.Digest[:], key[1:])
			e.Size = int(item.ValueSize())

			added, err := txn.Get(addedKey(e.Digest))
			if err == nil {
				err = added.Value(func(val []byte) error {
					if len(val) >= 8 {
						e.Added = time.Unix(int64(binary.LittleEndian.Uint64(val)), 0)
					}
					return nil
				})
			}
			if err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// Close closes the store.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	return s.db.Close()
}
