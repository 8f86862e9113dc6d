// Package loader reads ssc programs from the host.
//
// A program file is the raw bytecode, optionally wrapped in a single zstd
// frame. The loader enforces a size cap on both the file and the
// decompressed program and computes the program's digest.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fortiblox/sscvm/internal/types"
	"github.com/klauspost/compress/zstd"
)

// DefaultFilename is loaded when no program is named.
const DefaultFilename = "write.ssc"

// MaxProgramSize caps the size of a program, compressed or not.
const MaxProgramSize = 10 * 1024 * 1024 // 10 MB

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Loader errors.
var (
	// ErrHostIO is returned when the program bytes cannot be obtained.
	ErrHostIO = errors.New("cannot read program")

	// ErrTooLarge is returned for programs above MaxProgramSize.
	ErrTooLarge = errors.New("program too large")

	// ErrCorrupt is returned when a compressed program cannot be decoded.
	ErrCorrupt = errors.New("corrupt compressed program")
)

// Program is a loaded program.
type Program struct {
	// Source names where the program came from (a path, or a digest).
	Source string

	// Code is the bytecode, decompressed.
	Code []byte

	// Digest is the BLAKE3 digest of Code.
	Digest types.Digest

	// Compressed reports whether the source was zstd-framed.
	Compressed bool
}

// Load reads a program file. An empty path loads DefaultFilename.
func Load(path string) (*Program, error) {
	if path == "" {
		path = DefaultFilename
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostIO, err)
	}
	defer f.Close()

	// Read one byte past the cap to detect oversize files without
	// trusting Stat on special files.
	data, err := io.ReadAll(io.LimitReader(f, MaxProgramSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrHostIO, path, err)
	}
	return FromBytes(path, data)
}

// FromBytes builds a program from raw or zstd-framed bytes.
func FromBytes(source string, data []byte) (*Program, error) {
	if len(data) > MaxProgramSize {
		return nil, fmt.Errorf("%w: %s (max %d bytes)", ErrTooLarge, source, MaxProgramSize)
	}

	p := &Program{Source: source, Code: data}
	if IsCompressed(data) {
		code, err := Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		p.Code = code
		p.Compressed = true
	}
	p.Digest = types.ComputeDigest(p.Code)
	return p, nil
}

// IsCompressed reports whether data starts with a zstd frame.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

// Compress wraps code in a zstd frame.
func Compress(code []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(code, make([]byte, 0, len(code))), nil
}

// Decompress decodes a zstd-framed program, refusing output above
// MaxProgramSize.
func Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxProgramSize))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	code, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if len(code) > MaxProgramSize {
		return nil, fmt.Errorf("%w: decompressed to %d bytes", ErrTooLarge, len(code))
	}
	return code, nil
}
