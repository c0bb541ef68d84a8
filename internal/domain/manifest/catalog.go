package manifest

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
)

// Catalog is an immutable, validated set of entries. A Catalog is never
// modified after construction; reloads build a new one.
type Catalog struct {
	entries  []*Entry
	byID     map[string]*Entry
	keys     map[string]*Entry
	issues   []Issue
	source   string
	loadedAt time.Time
}

// Empty returns a catalog with no games.
func Empty(source string) *Catalog {
	return &Catalog{
		byID:     map[string]*Entry{},
		keys:     map[string]*Entry{},
		source:   source,
		loadedAt: time.Now(),
	}
}

// Build validates raw entries and indexes the valid ones. Entries that fail
// schema validation or collide with an earlier entry's id, name or synonym
// are excluded and reported as issues.
func Build(source string, raw []Entry) *Catalog {
	slots := make([]slot, len(raw))
	for i := range raw {
		slots[i].entry = raw[i]
	}
	return build(newValidator(), source, slots)
}

func build(v *validator.Validate, source string, slots []slot) *Catalog {
	c := Empty(source)
	c.add(v, source, slots)
	return c
}

// add indexes the valid slots of one file, keeping earlier claims on ids
// and keys.
func (c *Catalog) add(v *validator.Validate, source string, slots []slot) {
	for i := range slots {
		if slots[i].err != nil {
			c.issues = append(c.issues, Issue{Source: source, Index: i, Err: slots[i].err})
			continue
		}
		e := slots[i].entry.Clone()
		if err := validateEntry(v, &e); err != nil {
			c.issues = append(c.issues, Issue{Source: source, Index: i, ID: e.ID, Err: err})
			continue
		}
		if _, dup := c.byID[e.ID]; dup {
			c.issues = append(c.issues, Issue{Source: source, Index: i, ID: e.ID,
				Err: fmt.Errorf("%w: id %q", ErrDuplicate, e.ID)})
			continue
		}
		if err := c.checkKeys(&e); err != nil {
			c.issues = append(c.issues, Issue{Source: source, Index: i, ID: e.ID, Err: err})
			continue
		}

		entry := &e
		c.entries = append(c.entries, entry)
		c.byID[entry.ID] = entry
		for _, k := range entry.Keys() {
			c.keys[Fold(k)] = entry
		}
	}
}

// checkKeys rejects an entry whose folded keys are already claimed by
// another entry. An entry may repeat its own keys (e.g. name == id).
func (c *Catalog) checkKeys(e *Entry) error {
	for _, k := range e.Keys() {
		folded := Fold(k)
		if folded == "" {
			return fmt.Errorf("%w: blank key", ErrInvalidEntry)
		}
		if other, ok := c.keys[folded]; ok {
			return fmt.Errorf("%w: %q already used by %q", ErrDuplicate, k, other.ID)
		}
	}
	return nil
}

// merge combines catalogs from several files in order; later duplicates
// become issues.
func merge(v *validator.Validate, source string, parts []*parsedFile) *Catalog {
	c := Empty(source)
	for _, p := range parts {
		if p.err != nil {
			c.issues = append(c.issues, Issue{Source: p.path, Index: -1, Err: p.err})
			continue
		}
		c.add(v, p.path, p.slots)
	}
	return c
}

// Get returns a copy of the entry with the given id.
func (c *Catalog) Get(id string) (Entry, bool) {
	e, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return e.Clone(), true
}

// Games returns copies of all entries in catalog order.
func (c *Catalog) Games() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Clone())
	}
	return out
}

// IDs returns the sorted game ids.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of valid entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Issues returns the entries excluded while building the catalog.
func (c *Catalog) Issues() []Issue { return append([]Issue(nil), c.issues...) }

// Source returns the path the catalog was loaded from.
func (c *Catalog) Source() string { return c.source }

// LoadedAt returns when the catalog was built.
func (c *Catalog) LoadedAt() time.Time { return c.loadedAt }
