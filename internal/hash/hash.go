// Package hash computes content fingerprints for imported files.
//
// Every algorithm streams the source through an io.Reader in bounded
// memory, so hashing a multi-gigabyte file costs the same working set as
// hashing a one-byte file. Algorithm selection is driven by config
// (hash.algorithm); callers never need to branch on algorithm kind
// themselves.
package hash

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
	"github.com/zeebo/xxh3"
	blake3lib "lukechampine.com/blake3"

	"github.com/tagbox/core/internal/tberr"
)

// Algorithm names recognized by hash.algorithm in config.
const (
	MD5     = "md5"
	SHA256  = "sha256"
	SHA512  = "sha512"
	Blake2b = "blake2b"
	Blake3  = "blake3"
	XXH3_64  = "xxh3_64"
	XXH3_128 = "xxh3_128"
)

// Valid reports whether name is a recognized algorithm.
func Valid(name string) bool {
	switch name {
	case MD5, SHA256, SHA512, Blake2b, Blake3, XXH3_64, XXH3_128:
		return true
	default:
		return false
	}
}

// File computes the fingerprint of the file at path using the named
// algorithm, streaming its contents so memory use stays bounded
// regardless of file size. Open and read failures are returned as
// *tberr.IOFailureError.
func File(path, algorithm string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &tberr.IOFailureError{Path: path, Err: err}
	}
	defer f.Close()

	sum, err := Reader(f, algorithm)
	if err != nil {
		if _, ok := err.(*tberr.IOFailureError); ok {
			return "", err
		}
		return "", &tberr.IOFailureError{Path: path, Err: err}
	}
	return sum, nil
}

// Reader computes the fingerprint of everything read from r using the
// named algorithm.
func Reader(r io.Reader, algorithm string) (string, error) {
	switch algorithm {
	case MD5:
		return streamHash(md5.New(), r)
	case SHA256:
		return streamHash(sha256.New(), r)
	case SHA512:
		return streamHash(sha512.New(), r)
	case Blake2b:
		h, err := blake2b.New512(nil)
		if err != nil {
			return "", fmt.Errorf("init blake2b: %w", err)
		}
		return streamHash(h, r)
	case Blake3:
		return streamHash(blake3lib.New(32, nil), r)
	case XXH3_64:
		h := xxh3.New()
		if _, err := io.Copy(h, r); err != nil {
			return "", err
		}
		return fmt.Sprintf("%016x", h.Sum64()), nil
	case XXH3_128:
		h := xxh3.New()
		if _, err := io.Copy(h, r); err != nil {
			return "", err
		}
		sum := h.Sum128()
		return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo), nil
	default:
		return "", fmt.Errorf("%w: unsupported hash algorithm %q", tberr.ErrConfigError, algorithm)
	}
}

func streamHash(h hash.Hash, r io.Reader) (string, error) {
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
