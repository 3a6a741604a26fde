// Package hash computes content digests for regenerated lock files.
package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/mod/sumdb/dirhash"
)

// SRI returns the sha256 digest of data in SRI format (sha256-<base64>).
func SRI(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256-" + base64.StdEncoding.EncodeToString(sum[:])
}

// Summary computes a single h1: digest over a set of files keyed by path.
// The digest does not depend on map iteration order.
func Summary(files map[string][]byte) (string, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		if strings.Contains(name, "\n") {
			return "", fmt.Errorf("file name contains newline: %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return dirhash.Hash1(names, func(name string) (io.ReadCloser, error) {
		data, ok := files[name]
		if !ok {
			return nil, fmt.Errorf("unknown file %q", name)
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// ErrDigestMismatch is returned when content does not match its recorded digest.
var ErrDigestMismatch = errors.New("digest mismatch")

// VerifySRI checks that data hashes to sri. Only sha256 digests are produced
// by relock, so only sha256 is accepted.
func VerifySRI(data []byte, sri string) error {
	algo, encoded, ok := strings.Cut(sri, "-")
	if !ok {
		return fmt.Errorf("invalid SRI format: %q", sri)
	}
	if algo != "sha256" {
		return fmt.Errorf("unsupported algorithm: %s", algo)
	}

	want, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decoding hash: %w", err)
	}
	if len(want) != sha256.Size {
		return fmt.Errorf("sha256 hash must be %d bytes, got %d", sha256.Size, len(want))
	}

	if got := sha256.Sum256(data); !bytes.Equal(got[:], want) {
		return fmt.Errorf("%w: want %s, got %s", ErrDigestMismatch, sri, SRI(data))
	}
	return nil
}

// VerifySummary checks that files produce the h1: digest want.
func VerifySummary(files map[string][]byte, want string) error {
	got, err := Summary(files)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: want %s, got %s", ErrDigestMismatch, want, got)
	}
	return nil
}
