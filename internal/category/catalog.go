package category

import (
	"sort"
	"strings"

	"openapi-mcp-server/internal/spec"
)

// Category is one catalog entry.
type Category struct {
	Key           string         `json:"key"`
	DisplayName   string         `json:"display_name"`
	Group         string         `json:"group,omitempty"`
	EndpointCount int            `json:"endpoint_count"`
	Methods       map[string]int `json:"methods,omitempty"`
}

// Catalog is the ordered set of categories for one specification document,
// sorted by endpoint count descending, then by key.
type Catalog struct {
	Categories []*Category `json:"categories"`
}

// Get returns the category with the given key, or nil.
func (c *Catalog) Get(key string) *Category {
	for _, cat := range c.Categories {
		if cat.Key == key {
			return cat
		}
	}
	return nil
}

type catalogBuilder struct {
	byKey map[string]*Category
}

func newCatalogBuilder() *catalogBuilder {
	return &catalogBuilder{byKey: make(map[string]*Category)}
}

func (b *catalogBuilder) add(endpoint *spec.Endpoint) {
	cat, ok := b.byKey[endpoint.Category]
	if !ok {
		cat = &Category{
			Key:         endpoint.Category,
			DisplayName: endpoint.CategoryDisplay,
			Group:       endpoint.CategoryGroup,
			Methods:     make(map[string]int),
		}
		b.byKey[endpoint.Category] = cat
	}
	cat.EndpointCount++
	cat.Methods[strings.ToUpper(endpoint.Method)]++
}

func (b *catalogBuilder) build() *Catalog {
	categories := make([]*Category, 0, len(b.byKey))
	for _, cat := range b.byKey {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].EndpointCount != categories[j].EndpointCount {
			return categories[i].EndpointCount > categories[j].EndpointCount
		}
		return categories[i].Key < categories[j].Key
	})
	return &Catalog{Categories: categories}
}
