package trade

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Item is one tradeable catalog entry.
type Item struct {
	// Ordinal is the 1-based display position inside the catalog.
	Ordinal int
	// ID is the catalog identifier persisted by stores.
	ID string
}

// Catalog is an immutable ordered list of tradeable item identifiers.
//
// Ordinals are stable only for one catalog instance.
type Catalog struct {
	ids     []string
	ordinal map[string]int
}

// NewCatalog validates identifiers and builds an immutable catalog.
func NewCatalog(ids []string) (*Catalog, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyCatalog
	}

	catalog := &Catalog{
		ids:     make([]string, 0, len(ids)),
		ordinal: make(map[string]int, len(ids)),
	}
	for index, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, fmt.Errorf("new catalog: item %d is blank", index+1)
		}
		if existing, exists := catalog.ordinal[id]; exists {
			return nil, fmt.Errorf("new catalog: item %q duplicated at %d and %d", id, existing, index+1)
		}
		catalog.ids = append(catalog.ids, id)
		catalog.ordinal[id] = len(catalog.ids)
	}

	return catalog, nil
}

// Count returns the number of catalog items.
func (c *Catalog) Count() int {
	if c == nil {
		return 0
	}

	return len(c.ids)
}

// Resolve maps a 1-based ordinal to its item.
func (c *Catalog) Resolve(ordinal int) (Item, error) {
	if ordinal < 1 || ordinal > c.Count() {
		return Item{}, fmt.Errorf("%w: %d not in [1,%d]", ErrInvalidOrdinal, ordinal, c.Count())
	}

	return Item{Ordinal: ordinal, ID: c.ids[ordinal-1]}, nil
}

// Lookup maps an identifier back to its catalog item.
func (c *Catalog) Lookup(id string) (Item, bool) {
	if c == nil {
		return Item{}, false
	}
	ordinal, ok := c.ordinal[id]
	if !ok {
		return Item{}, false
	}

	return Item{Ordinal: ordinal, ID: id}, true
}

// Items returns a copy of all catalog items in ordinal order.
func (c *Catalog) Items() []Item {
	items := make([]Item, 0, c.Count())
	for index := 0; index < c.Count(); index++ {
		items = append(items, Item{Ordinal: index + 1, ID: c.ids[index]})
	}

	return items
}

// ParseOrdinals extracts in-range ordinals from free text such as "1, 3 5".
//
// Tokens are split on runs of whitespace and commas. Non-numeric and
// out-of-range tokens are dropped, and repeated ordinals keep their first
// position.
func (c *Catalog) ParseOrdinals(input string) []int {
	tokens := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	seen := make(map[int]struct{}, len(tokens))
	ordinals := make([]int, 0, len(tokens))
	for _, token := range tokens {
		ordinal, err := strconv.Atoi(token)
		if err != nil {
			continue
		}
		if ordinal < 1 || ordinal > c.Count() {
			continue
		}
		if _, duplicate := seen[ordinal]; duplicate {
			continue
		}
		seen[ordinal] = struct{}{}
		ordinals = append(ordinals, ordinal)
	}

	return ordinals
}

// ParseItems parses free-text ordinals and resolves them to catalog items.
//
// An empty result means no valid item was supplied.
func (c *Catalog) ParseItems(input string) []Item {
	ordinals := c.ParseOrdinals(input)
	items := make([]Item, 0, len(ordinals))
	for _, ordinal := range ordinals {
		items = append(items, Item{Ordinal: ordinal, ID: c.ids[ordinal-1]})
	}

	return items
}

// Describe resolves a stored identifier for display, tolerating identifiers
// that are no longer part of the catalog.
func (c *Catalog) Describe(id string) Item {
	if item, ok := c.Lookup(id); ok {
		return item
	}

	return Item{ID: id}
}
