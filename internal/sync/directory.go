package sync

import "github.com/dodgybits/shuffle/internal/types"

// Locator resolves entities reconciled earlier in the same sync cycle.
type Locator[E any] interface {
	FindByID(id types.ID) (E, bool)
	FindByName(name string) (E, bool)
}

// Directory indexes the entities of one reconciliation pass by identifier
// and by name. Both keys are last-write-wins.
// It is not safe for concurrent use; a pass owns it until it is returned.
type Directory[E any] struct {
	byID   map[types.ID]E
	byName map[string]E
}

// NewDirectory creates an empty Directory.
func NewDirectory[E any]() *Directory[E] {
	return &Directory[E]{
		byID:   make(map[types.ID]E),
		byName: make(map[string]E),
	}
}

// Add registers e under id and name, replacing earlier registrations.
// Empty names are not indexed.
func (d *Directory[E]) Add(id types.ID, name string, e E) {
	d.byID[id] = e
	if name != "" {
		d.byName[name] = e
	}
}

// FindByID returns the entity registered under id.
func (d *Directory[E]) FindByID(id types.ID) (E, bool) {
	e, ok := d.byID[id]
	return e, ok
}

// FindByName returns the entity most recently registered under name.
func (d *Directory[E]) FindByName(name string) (E, bool) {
	e, ok := d.byName[name]
	return e, ok
}

// Len returns the number of identifier keys.
func (d *Directory[E]) Len() int {
	return len(d.byID)
}

// chain consults each locator in turn.
type chain[E any] []Locator[E]

// Chain returns a Locator that tries each locator in order.
// Nil locators are skipped.
func Chain[E any](locators ...Locator[E]) Locator[E] {
	c := make(chain[E], 0, len(locators))
	for _, l := range locators {
		if l != nil {
			c = append(c, l)
		}
	}
	return c
}

func (c chain[E]) FindByID(id types.ID) (E, bool) {
	for _, l := range c {
		if e, ok := l.FindByID(id); ok {
			return e, true
		}
	}
	var zero E
	return zero, false
}

func (c chain[E]) FindByName(name string) (E, bool) {
	for _, l := range c {
		if e, ok := l.FindByName(name); ok {
			return e, true
		}
	}
	var zero E
	return zero, false
}
