package search

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

// queryCache is a TTL-bounded LRU over assembled responses. Keys fold in
// the index generation stamp, so entries from a superseded generation can
// never be served. At capacity the least-recently-accessed 20% is evicted.
type queryCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type cacheEntry struct {
	key      string
	response *Response
	expires  time.Time
}

func newQueryCache(capacity int, ttl time.Duration) *queryCache {
	if capacity <= 0 {
		capacity = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &queryCache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// cacheKey hashes the normalized query, filters, pagination, and index
// generation into a stable key.
func cacheKey(generation, normalizedQuery string, filters Filters, page, perPage int) string {
	payload := struct {
		Generation string  `json:"g"`
		Query      string  `json:"q"`
		Filters    Filters `json:"f"`
		Page       int     `json:"p"`
		PerPage    int     `json:"pp"`
	}{generation, normalizedQuery, filters, page, perPage}

	data, err := json.Marshal(payload)
	if err != nil {
		return generation + "|" + normalizedQuery
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (c *queryCache) get(key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expires) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.response, true
}

func (c *queryCache) put(key string, response *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.response = response
		entry.expires = c.now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	if len(c.entries) >= c.capacity {
		c.evictLocked()
	}
	entry := &cacheEntry{key: key, response: response, expires: c.now().Add(c.ttl)}
	c.entries[key] = c.order.PushFront(entry)
}

// evictLocked drops the least-recently-accessed 20% of entries.
func (c *queryCache) evictLocked() {
	drop := len(c.entries) / 5
	if drop < 1 {
		drop = 1
	}
	for i := 0; i < drop; i++ {
		back := c.order.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*cacheEntry)
		c.order.Remove(back)
		delete(c.entries, entry.key)
	}
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// normalizedKeyText renders the parsed query into a canonical string for
// cache keying: stemmed free terms sorted, qualifiers and exclusions in
// stable order.
func normalizedKeyText(parsed *ParsedQuery, terms []Term) string {
	var parts []string
	for _, term := range terms {
		parts = append(parts, term.Stemmed)
	}
	sort.Strings(parts)

	var quals []string
	for _, ft := range parsed.FieldTerms {
		quals = append(quals, ft.Field+":"+ft.Value)
	}
	sort.Strings(quals)
	parts = append(parts, quals...)

	excluded := append([]string(nil), parsed.Excluded...)
	sort.Strings(excluded)
	for _, e := range excluded {
		parts = append(parts, "-"+e)
	}
	if parsed.ORGroups {
		parts = append(parts, "|or")
	}
	if parsed.MatchAll {
		parts = append(parts, "|all")
	}
	return strings.Join(parts, " ")
}
