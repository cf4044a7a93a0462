package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
)

// Loader reads script files and caches the parsed result by absolute path,
// so a file named more than once is parsed once. It is safe for concurrent use.
type Loader struct {
	cache *xsync.Map[string, *Script]
}

// NewLoader returns a Loader with an empty cache.
func NewLoader() *Loader {
	return &Loader{
		cache: xsync.NewMap[string, *Script](),
	}
}

// Load returns the script stored at path.
func (l *Loader) Load(path string) (*Script, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	if s, ok := l.cache.Load(abs); ok {
		return s, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	s, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Another goroutine may have parsed the same file meanwhile; keep the first.
	actual, _ := l.cache.LoadOrStore(abs, s)
	return actual, nil
}

// Len returns the number of cached scripts.
func (l *Loader) Len() int {
	return l.cache.Size()
}
