// Package storage persists uploaded documents (receipts, statements) so a
// confirmation can link back to the original file.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore writes blobs under a base directory, content-addressed so the
// same document uploaded twice lands on the same path.
type FileStore struct {
	BaseDir string
}

// extensions by media type; unknown types get .bin.
var extByMIME = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"text/plain":      ".txt",
}

// Store writes the blob and returns its path relative to BaseDir.
func (f *FileStore) Store(data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty blob")
	}
	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:])
	ext, ok := extByMIME[strings.ToLower(strings.TrimSpace(mimeType))]
	if !ok {
		ext = ".bin"
	}
	// Two-level fanout keeps directories small.
	rel := filepath.Join(name[:2], name+ext)
	abs := filepath.Join(f.BaseDir, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err == nil {
		return rel, nil
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", err
	}
	return rel, nil
}

// Open returns the absolute path for a stored blob after validating it stays
// inside BaseDir.
func (f *FileStore) Open(rel string) (string, error) {
	abs := filepath.Join(f.BaseDir, rel)
	base, err := filepath.Abs(f.BaseDir)
	if err != nil {
		return "", err
	}
	full, err := filepath.Abs(abs)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(full, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes store: %s", rel)
	}
	if _, err := os.Stat(full); err != nil {
		return "", err
	}
	return full, nil
}
