package sany

import (
	"os"
	"path/filepath"
	"sync"
)

const moduleExt = ".tla"

// Resolver maps logical module names, as found in Location.Source, to
// absolute file paths. Lookups only stat candidate files; contents are never
// read. Results are memoized for the lifetime of the resolver.
type Resolver struct {
	// Dir is the directory of the analyzed root file. It is searched first.
	Dir string
	// SearchPaths are library directories searched after Dir, in order.
	SearchPaths []string

	mu    sync.Mutex
	cache map[string]string
}

func NewResolver(rootFile string, searchPaths ...string) *Resolver {
	dir := filepath.Dir(rootFile)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Resolver{
		Dir:         dir,
		SearchPaths: searchPaths,
		cache:       map[string]string{},
	}
}

// Resolve returns the absolute path for the module name. When no candidate
// exists on disk, the name is resolved against Dir.
func (r *Resolver) Resolve(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache == nil {
		r.cache = map[string]string{}
	}
	if path, ok := r.cache[name]; ok {
		return path
	}

	path := r.resolve(name)
	r.cache[name] = path
	return path
}

func (r *Resolver) resolve(name string) string {
	file := name
	if filepath.Ext(file) == "" {
		file += moduleExt
	}

	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}

	dirs := append([]string{r.Dir}, r.SearchPaths...)
	for _, dir := range dirs {
		if len(dir) == 0 {
			continue
		}
		candidate := filepath.Join(dir, file)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			if abs, err := filepath.Abs(candidate); err == nil {
				return abs
			}
			return candidate
		}
	}

	fallback := filepath.Join(r.Dir, file)
	if abs, err := filepath.Abs(fallback); err == nil {
		return abs
	}
	return fallback
}
