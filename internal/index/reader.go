package index

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"openapi-mcp-server/internal/apierr"
)

// Reader serves queries from the active generation. Swapping generations
// opens a new handle; requests holding the old handle finish against it.
type Reader struct {
	mu          sync.RWMutex
	idx         bleve.Index
	generation  string
	generations *Generations
}

// OpenReader opens the active generation. It fails with an IndexError when
// no generation has been activated yet.
func OpenReader(generations *Generations) (*Reader, error) {
	r := &Reader{generations: generations}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-resolves the current symlink and swaps the handle when the
// active generation changed.
func (r *Reader) Reload() error {
	stamp, err := r.generations.Current()
	if err != nil {
		return err
	}
	if stamp == "" {
		return apierr.NewIndex("no active index generation", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if stamp == r.generation && r.idx != nil {
		return nil
	}

	idx, err := bleve.Open(r.generations.PathFor(stamp))
	if err != nil {
		return apierr.NewIndex("failed to open index generation", err)
	}
	if r.idx != nil {
		_ = r.idx.Close()
	}
	r.idx = idx
	r.generation = stamp
	return nil
}

// Generation returns the stamp of the generation this reader serves. The
// query cache folds it into its keys so stale entries die on swap.
func (r *Reader) Generation() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Search executes one bleve request under the caller's deadline.
func (r *Reader) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	r.mu.RLock()
	idx := r.idx
	r.mu.RUnlock()
	if idx == nil {
		return nil, apierr.NewIndex("index is not open", nil)
	}
	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierr.NewTimeout("index query", 0).WithDetail("cause", err.Error())
		}
		return nil, apierr.NewIndex("index query failed", err)
	}
	return result, nil
}

// DocCount returns the number of indexed documents.
func (r *Reader) DocCount() (uint64, error) {
	r.mu.RLock()
	idx := r.idx
	r.mu.RUnlock()
	if idx == nil {
		return 0, apierr.NewIndex("index is not open", nil)
	}
	count, err := idx.DocCount()
	if err != nil {
		return 0, apierr.NewIndex("failed to count documents", err)
	}
	return count, nil
}

// FieldTerms returns up to limit terms of the field's dictionary. The
// suggestion engine matches typo candidates against this vocabulary.
func (r *Reader) FieldTerms(field string, limit int) ([]string, error) {
	r.mu.RLock()
	idx := r.idx
	r.mu.RUnlock()
	if idx == nil {
		return nil, apierr.NewIndex("index is not open", nil)
	}

	dict, err := idx.FieldDict(field)
	if err != nil {
		return nil, apierr.NewIndex("failed to open field dictionary", err)
	}
	defer func() { _ = dict.Close() }()

	var terms []string
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, apierr.NewIndex("failed to read field dictionary", err)
		}
		if entry == nil {
			break
		}
		terms = append(terms, entry.Term)
		if limit > 0 && len(terms) >= limit {
			break
		}
	}
	return terms, nil
}

// Close releases the index handle.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.idx == nil {
		return nil
	}
	err := r.idx.Close()
	r.idx = nil
	return err
}

// dirSize totals the file sizes under a directory tree.
func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
