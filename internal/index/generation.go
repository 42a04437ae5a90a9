package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"openapi-mcp-server/internal/apierr"
)

// CurrentLink is the symlink inside the index root that names the active
// generation directory. Swapping the link is the rebuild commit.
const CurrentLink = "current"

const generationPrefix = "gen_"

// Generations manages the generation-stamped directories under the index
// root.
type Generations struct {
	root string
}

// NewGenerations creates a manager for the given index root, creating the
// directory when absent.
func NewGenerations(root string) (*Generations, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, apierr.NewIndex("failed to create index directory", err)
	}
	return &Generations{root: root}, nil
}

// Root returns the index root directory.
func (g *Generations) Root() string { return g.root }

// NewStamp returns a fresh monotonically increasing generation stamp.
func (g *Generations) NewStamp() string {
	return fmt.Sprintf("%s%d", generationPrefix, time.Now().UnixNano())
}

// PathFor returns the directory path for a generation stamp.
func (g *Generations) PathFor(stamp string) string {
	return filepath.Join(g.root, stamp)
}

// Activate points the current symlink at the given generation with an
// atomic rename swap. Readers opening after the swap see the new
// generation; in-flight readers keep their handles on the old one.
func (g *Generations) Activate(stamp string) error {
	link := filepath.Join(g.root, CurrentLink)
	tmp := link + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(stamp, tmp); err != nil {
		return apierr.NewIndex("failed to stage generation symlink", err)
	}
	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)
		return apierr.NewIndex("failed to swap generation symlink", err)
	}
	return nil
}

// Current returns the active generation stamp, or "" when none is active.
func (g *Generations) Current() (string, error) {
	target, err := os.Readlink(filepath.Join(g.root, CurrentLink))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", apierr.NewIndex("failed to read generation symlink", err)
	}
	return filepath.Base(target), nil
}

// Remove deletes one generation directory.
func (g *Generations) Remove(stamp string) error {
	if stamp == "" || !strings.HasPrefix(stamp, generationPrefix) {
		return nil
	}
	if err := os.RemoveAll(g.PathFor(stamp)); err != nil {
		return apierr.NewIndex("failed to remove generation directory", err)
	}
	return nil
}

// CleanupStale removes every generation directory except the active one.
func (g *Generations) CleanupStale() error {
	current, err := g.Current()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(g.root)
	if err != nil {
		return apierr.NewIndex("failed to list index directory", err)
	}

	var stale []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, generationPrefix) || name == current {
			continue
		}
		stale = append(stale, name)
	}
	sort.Strings(stale)
	for _, name := range stale {
		if err := g.Remove(name); err != nil {
			return err
		}
	}
	return nil
}
