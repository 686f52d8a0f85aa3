// Package digest computes the content fingerprints used as document
// identity and tamper evidence. SHA-256, lowercase hex.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Length is the number of hex characters in a digest.
const Length = sha256.Size * 2

func Sum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// SumReader hashes r until EOF. A read failure is returned as an I/O error
// together with the number of bytes consumed so far.
func SumReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("read content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Valid reports whether s has the canonical digest form.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Writer hashes everything written to it. It is meant to sit behind an
// io.TeeReader while content is streamed to storage.
type Writer struct {
	h hash.Hash
	n int64
}

func NewWriter() *Writer {
	return &Writer{h: sha256.New()}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.h.Write(p)
	w.n += int64(n)
	return n, err
}

func (w *Writer) Sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// Len is the number of bytes hashed so far.
func (w *Writer) Len() int64 {
	return w.n
}
