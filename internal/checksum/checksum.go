// Package checksum computes the content digest used as the cache freshness gate.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const bufferSize = 8192

// File returns the hex-encoded MD5 digest of the file at path. The file is
// read through a fixed buffer and is always closed before returning.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for digest: %w", err)
	}
	defer f.Close()

	return Reader(f)
}

// Reader folds r into a running digest until EOF.
func Reader(r io.Reader) (string, error) {
	h := md5.New()
	buf := make([]byte, bufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return "", fmt.Errorf("failed to read file for digest: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Equal compares two hex digests ignoring case.
func Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}
