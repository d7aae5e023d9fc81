// Package source caches the text of analyzed files and renders source ranges
// back to text.
package source

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/liamg/memoryfs"
)

// Files is a lazily filled cache of file contents. The first read of a path
// copies the file from disk into an in-memory filesystem, so every later read
// during the lifetime of the cache sees the same snapshot even if the file is
// edited on disk.
type Files struct {
	memfs *memoryfs.FS

	mu    sync.Mutex
	lines map[string][]string
}

func NewFiles() *Files {
	return &Files{
		memfs: memoryfs.New(),
		lines: map[string][]string{},
	}
}

// memPath converts an absolute OS path to a name accepted by io/fs.
func memPath(name string) string {
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(name)), "/")
}

func (f *Files) put(name string, content []byte) error {
	mname := memPath(name)
	if err := f.memfs.MkdirAll(filepath.ToSlash(filepath.Dir(mname)), 0o700); err != nil {
		return err
	}
	return f.memfs.WriteFile(mname, content, 0o600)
}

// Open returns the cached file, loading it from disk on first use.
func (f *Files) Open(name string) (fs.File, error) {
	file, err := f.memfs.Open(memPath(name))
	if err == nil {
		return file, nil
	}

	content, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	if err := f.put(name, content); err != nil {
		return nil, err
	}
	return f.memfs.Open(memPath(name))
}

func (f *Files) ReadFile(name string) ([]byte, error) {
	file, err := f.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	return io.ReadAll(file)
}

// Lines returns the lines of name, each keeping its line terminator.
func (f *Files) Lines(name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if lines, ok := f.lines[name]; ok {
		return lines, nil
	}

	content, err := f.ReadFile(name)
	if err != nil {
		return nil, err
	}

	lines := strings.SplitAfter(string(content), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	f.lines[name] = lines
	return lines, nil
}
