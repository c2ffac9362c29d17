package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the vault document as a single JSON file
// (spec.md §6 "Vault file format"). Save writes to a temp file in the
// same directory and renames it over the target path, so a crash
// mid-write never leaves a partially-written vault.json.
type FileStore struct {
	Path string
}

func (f *FileStore) Exists() bool {
	_, err := os.Stat(f.Path)
	return err == nil
}

func (f *FileStore) Load() (*document, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("vault: reading %s: %w", f.Path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, ErrCorrupt
	}
	if doc.Records == nil {
		doc.Records = make(map[string]record)
	}
	return &doc, nil
}

func (f *FileStore) Save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".vault-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, f.Path)
}
