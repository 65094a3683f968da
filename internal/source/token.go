package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileTokenSupplier reads OAuth tokens from JSON files named
// <dir>/<ownerID>.json with an "access_token" field. Good enough for a
// single-user deployment; swap the interface out for anything fancier.
type FileTokenSupplier struct {
	Dir string
}

type storedToken struct {
	AccessToken string `json:"access_token"`
}

func (f *FileTokenSupplier) Token(_ context.Context, ownerID string) (string, error) {
	path := filepath.Join(f.Dir, ownerID+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	var tok storedToken
	if err := json.Unmarshal(b, &tok); err != nil {
		return "", fmt.Errorf("parse token %s: %w", path, err)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return "", fmt.Errorf("token %s has no access_token", path)
	}
	return tok.AccessToken, nil
}
