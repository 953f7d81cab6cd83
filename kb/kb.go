package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/coverage-analyzer/model"
)

var (
	ErrSatelliteExists   = errors.New("satellite already exists")
	ErrSatelliteNotFound = errors.New("satellite not found")
	ErrTargetExists      = errors.New("target already exists")
	ErrTargetNotFound    = errors.New("target not found")
)

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	EventSatelliteAdded EventType = iota
	EventSatelliteRemoved
	EventTargetAdded
	EventTargetRemoved
)

func (t EventType) String() string {
	switch t {
	case EventSatelliteAdded:
		return "satellite_added"
	case EventSatelliteRemoved:
		return "satellite_removed"
	case EventTargetAdded:
		return "target_added"
	case EventTargetRemoved:
		return "target_removed"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when the catalog changes.
type Event struct {
	Type EventType
	ID   string
}

// Catalog is an in-memory, thread-safe store of satellites and targets that
// analysis requests can reference by id.
type Catalog struct {
	mu sync.RWMutex

	satellites map[string]model.Satellite
	targets    map[string]model.Target

	subs   map[int]func(Event)
	nextID int
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		satellites: make(map[string]model.Satellite),
		targets:    make(map[string]model.Target),
		subs:       make(map[int]func(Event)),
	}
}

// AddSatellite validates and stores s.
func (c *Catalog) AddSatellite(s model.Satellite) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if _, exists := c.satellites[s.ID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSatelliteExists, s.ID)
	}
	c.satellites[s.ID] = s
	c.mu.Unlock()

	c.notify(Event{Type: EventSatelliteAdded, ID: s.ID})
	return nil
}

// AddSatellites stores a batch such as a Walker-expanded fleet. Either every
// satellite is added or none is: an invalid member, an id already in the
// catalog or an id repeated within the batch rejects the whole batch.
func (c *Catalog) AddSatellites(sats []model.Satellite) error {
	batch := make(map[string]bool, len(sats))
	for _, s := range sats {
		if err := s.Validate(); err != nil {
			return err
		}
		if batch[s.ID] {
			return fmt.Errorf("%w: %q repeated in batch", ErrSatelliteExists, s.ID)
		}
		batch[s.ID] = true
	}

	c.mu.Lock()
	for _, s := range sats {
		if _, exists := c.satellites[s.ID]; exists {
			c.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrSatelliteExists, s.ID)
		}
	}
	for _, s := range sats {
		c.satellites[s.ID] = s
	}
	c.mu.Unlock()

	for _, s := range sats {
		c.notify(Event{Type: EventSatelliteAdded, ID: s.ID})
	}
	return nil
}

// AddTarget validates and stores t.
func (c *Catalog) AddTarget(t model.Target) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if _, exists := c.targets[t.ID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTargetExists, t.ID)
	}
	c.targets[t.ID] = t
	c.mu.Unlock()

	c.notify(Event{Type: EventTargetAdded, ID: t.ID})
	return nil
}

// GetSatellite returns the satellite with the given id.
func (c *Catalog) GetSatellite(id string) (model.Satellite, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.satellites[id]
	if !ok {
		return model.Satellite{}, fmt.Errorf("%w: %q", ErrSatelliteNotFound, id)
	}
	return s, nil
}

// GetTarget returns the target with the given id.
func (c *Catalog) GetTarget(id string) (model.Target, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.targets[id]
	if !ok {
		return model.Target{}, fmt.Errorf("%w: %q", ErrTargetNotFound, id)
	}
	return t, nil
}

// RemoveSatellite deletes the satellite with the given id.
func (c *Catalog) RemoveSatellite(id string) error {
	c.mu.Lock()
	if _, ok := c.satellites[id]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSatelliteNotFound, id)
	}
	delete(c.satellites, id)
	c.mu.Unlock()

	c.notify(Event{Type: EventSatelliteRemoved, ID: id})
	return nil
}

// RemoveTarget deletes the target with the given id.
func (c *Catalog) RemoveTarget(id string) error {
	c.mu.Lock()
	if _, ok := c.targets[id]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTargetNotFound, id)
	}
	delete(c.targets, id)
	c.mu.Unlock()

	c.notify(Event{Type: EventTargetRemoved, ID: id})
	return nil
}

// ListSatellites returns a snapshot of all satellites ordered by id.
func (c *Catalog) ListSatellites() []model.Satellite {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]model.Satellite, 0, len(c.satellites))
	for _, s := range c.satellites {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ListTargets returns a snapshot of all targets ordered by id.
func (c *Catalog) ListTargets() []model.Target {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]model.Target, 0, len(c.targets))
	for _, t := range c.targets {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ResolveSatellites looks up every id, failing on the first unknown one.
func (c *Catalog) ResolveSatellites(ids []string) ([]model.Satellite, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Satellite, 0, len(ids))
	for _, id := range ids {
		s, ok := c.satellites[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrSatelliteNotFound, id)
		}
		out = append(out, s)
	}
	return out, nil
}

// ResolveTargets looks up every id, failing on the first unknown one.
func (c *Catalog) ResolveTargets(ids []string) ([]model.Target, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Target, 0, len(ids))
	for _, id := range ids {
		t, ok := c.targets[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrTargetNotFound, id)
		}
		out = append(out, t)
	}
	return out, nil
}

// Subscribe registers a callback for catalog events. It returns an
// unsubscribe function.
func (c *Catalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// notify calls subscribers outside the lock.
func (c *Catalog) notify(e Event) {
	c.mu.RLock()
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}
