// Package index describes the on-disk handle of an externally built index.
package index

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/crossret/internal/domain"
)

// Kind distinguishes lexical and dense indexes.
type Kind string

// Index kinds.
const (
	KindLexical Kind = "lexical"
	KindDense   Kind = "dense"
)

const (
	manifestFile = "manifest.yaml"
	docidFile    = "docid"
)

// Manifest locates the engine-side index.
type Manifest struct {
	Kind      Kind   `yaml:"kind"`
	Backend   string `yaml:"backend"`
	Name      string `yaml:"name"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`
	Algorithm string `yaml:"algorithm,omitempty"`
	Metric    string `yaml:"metric,omitempty"`
	Dim       int    `yaml:"dim,omitempty"`
	Count     int    `yaml:"count"`
	Source    string `yaml:"source"`
}

// Handle is a directory holding the manifest and the ingest-order docid list.
type Handle struct {
	Dir      string
	Manifest Manifest
}

// Write stores the manifest and docids under dir, replacing earlier contents.
func Write(dir string, m Manifest, docids []string) (Handle, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Handle{}, fmt.Errorf("create index dir: %w", err)
	}

	m.Count = len(docids)
	data, err := yaml.Marshal(m)
	if err != nil {
		return Handle{}, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return Handle{}, fmt.Errorf("write manifest: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, docidFile))
	if err != nil {
		return Handle{}, fmt.Errorf("create docid: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, id := range docids {
		if _, err := w.WriteString(id + "\n"); err != nil {
			_ = f.Close()
			return Handle{}, fmt.Errorf("write docid: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return Handle{}, fmt.Errorf("flush docid: %w", err)
	}
	if err := f.Close(); err != nil {
		return Handle{}, fmt.Errorf("close docid: %w", err)
	}

	return Handle{Dir: dir, Manifest: m}, nil
}

// Open reads a handle directory.
func Open(dir string) (Handle, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Handle{}, fmt.Errorf("%s: %w", dir, domain.ErrIndexNotFound)
		}
		return Handle{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Handle{}, fmt.Errorf("parse manifest: %w", err)
	}
	return Handle{Dir: dir, Manifest: m}, nil
}

// DocIDs reads the docid list in ingest order.
func (h Handle) DocIDs() ([]string, error) {
	f, err := os.Open(filepath.Join(h.Dir, docidFile))
	if err != nil {
		return nil, fmt.Errorf("open docid: %w", err)
	}
	defer func() { _ = f.Close() }()

	ids := make([]string, 0, h.Manifest.Count)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ids = append(ids, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read docid: %w", err)
	}
	return ids, nil
}
