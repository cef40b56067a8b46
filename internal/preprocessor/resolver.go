package preprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PathResolver locates the files named by #include. The current root is
// the directory relative paths are resolved against; the preprocessor moves
// it to the included file's directory while that file is processed.
type PathResolver interface {
	// Resolve maps an include path to a location, or reports that the path
	// is not acceptable.
	Resolve(p string) (string, bool)
	Open(p string) (io.ReadCloser, error)
	Exists(p string) bool
	IsFile(p string) bool
	SetCurrentRoot(root string) error
	CurrentRoot() string
}

// DirResolver resolves includes on the local file system. Relative paths
// must be plain file names; they are looked up in the current root.
type DirResolver struct {
	root string
}

func NewDirResolver(root string) (*DirResolver, error) {
	r := &DirResolver{}
	if err := r.SetCurrentRoot(root); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *DirResolver) Resolve(p string) (string, bool) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), true
	}
	if strings.ContainsAny(p, `/\`) {
		return "", false
	}
	return filepath.Join(r.root, p), true
}

func (r *DirResolver) Open(p string) (io.ReadCloser, error) {
	loc, ok := r.Resolve(p)
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, fs.ErrNotExist)
	}
	return os.Open(loc)
}

func (r *DirResolver) Exists(p string) bool {
	loc, ok := r.Resolve(p)
	if !ok {
		return false
	}
	_, err := os.Stat(loc)
	return err == nil
}

func (r *DirResolver) IsFile(p string) bool {
	loc, ok := r.Resolve(p)
	if !ok {
		return false
	}
	st, err := os.Stat(loc)
	return err == nil && st.Mode().IsRegular()
}

func (r *DirResolver) SetCurrentRoot(root string) error {
	if !filepath.IsAbs(root) {
		return fmt.Errorf("root path %q has to be absolute", root)
	}
	r.root = filepath.Clean(root)
	return nil
}

func (r *DirResolver) CurrentRoot() string {
	return r.root
}

// MapResolver serves includes from memory. Paths use forward or backward
// slashes; absolute paths start at the map's top level.
type MapResolver struct {
	mu    sync.RWMutex
	files map[string][]byte
	root  string
}

func NewMapResolver(files map[string]string) *MapResolver {
	r := &MapResolver{files: map[string][]byte{}, root: "/"}
	for name, content := range files {
		r.Add(name, content)
	}
	return r
}

func (r *MapResolver) Add(name, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[r.locate(name)] = []byte(content)
}

func (r *MapResolver) locate(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if !strings.HasPrefix(p, "/") {
		p = path.Join(r.root, p)
	}
	return path.Clean(p)
}

func (r *MapResolver) Resolve(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locate(p), true
}

func (r *MapResolver) Open(p string) (io.ReadCloser, error) {
	loc, _ := r.Resolve(p)
	r.mu.RLock()
	b, ok := r.files[loc]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (r *MapResolver) Exists(p string) bool {
	loc, ok := r.Resolve(p)
	if !ok {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.files[loc]; ok {
		return true
	}
	prefix := strings.TrimSuffix(loc, "/") + "/"
	for name := range r.files {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func (r *MapResolver) IsFile(p string) bool {
	loc, ok := r.Resolve(p)
	if !ok {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok = r.files[loc]
	return ok
}

func (r *MapResolver) SetCurrentRoot(root string) error {
	root = strings.ReplaceAll(root, `\`, "/")
	if !strings.HasPrefix(root, "/") {
		return fmt.Errorf("root path %q has to be absolute", root)
	}
	r.mu.Lock()
	r.root = path.Clean(root)
	r.mu.Unlock()
	return nil
}

func (r *MapResolver) CurrentRoot() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root
}

// CachingResolver keeps the contents of recently opened files in an LRU
// cache, keyed by resolved location. Headers included by many files are
// read only once.
type CachingResolver struct {
	PathResolver
	cache *lru.Cache[string, []byte]
}

func NewCachingResolver(inner PathResolver, size int) (*CachingResolver, error) {
	if inner == nil {
		return nil, errors.New("caching resolver needs an inner resolver")
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create include cache: %w", err)
	}
	return &CachingResolver{PathResolver: inner, cache: cache}, nil
}

func (r *CachingResolver) Open(p string) (io.ReadCloser, error) {
	loc, ok := r.Resolve(p)
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, fs.ErrNotExist)
	}
	if b, ok := r.cache.Get(loc); ok {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	rc, err := r.PathResolver.Open(p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	r.cache.Add(loc, b)
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Cached reports whether the contents behind p are currently cached.
func (r *CachingResolver) Cached(p string) bool {
	loc, ok := r.Resolve(p)
	return ok && r.cache.Contains(loc)
}
