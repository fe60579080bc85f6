package blkid

import (
	"fmt"
	"slices"
)

// CacheFlags is the status bitset of a Cache.
type CacheFlags uint8

const (
	// CacheChanged is set by every mutation that has not been persisted yet.
	CacheChanged CacheFlags = 1 << iota

	// CacheProbed is set once a full probe of the system has run. Lookups
	// do not trigger another probe after that.
	CacheProbed
)

// Limits caps the size of a cache. Zero means unlimited.
type Limits struct {
	// MaxTagsPerDevice caps the number of tags a single attached device may carry.
	MaxTagsPerDevice int

	// MaxTagTypes caps the number of distinct tag names (index heads).
	MaxTagTypes int
}

// Option configures a Cache.
type Option func(*Cache)

// WithLimits sets the cache size limits.
func WithLimits(l Limits) Option {
	return func(c *Cache) { c.limits = l }
}

// Cache holds a set of devices and a reverse index from tag name to every
// tag of that name across those devices.
//
// Index heads are created the first time a tag name is set on an attached
// device and live as long as the cache.
//
// A Cache is not safe for concurrent use; hosts that share one between
// goroutines must hold a single lock around every call that touches it or
// any of its devices.
type Cache struct {
	heads   map[string]*indexHead
	order   []*indexHead // heads in creation order
	devices []*Device
	byName  map[string]*Device
	flags   CacheFlags
	limits  Limits
}

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		heads:  make(map[string]*indexHead),
		byName: make(map[string]*Device),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Flags returns the cache status flags.
func (c *Cache) Flags() CacheFlags { return c.flags }

// Changed reports whether the cache was modified since ClearChanged.
func (c *Cache) Changed() bool { return c.flags&CacheChanged != 0 }

// Probed reports whether a full probe has completed.
func (c *Cache) Probed() bool { return c.flags&CacheProbed != 0 }

// MarkProbed records that a full probe has completed.
func (c *Cache) MarkProbed() { c.flags |= CacheProbed }

// ClearChanged resets CacheChanged, typically after the cache was saved.
func (c *Cache) ClearChanged() { c.flags &^= CacheChanged }

// Limits returns the configured size limits.
func (c *Cache) Limits() Limits { return c.limits }

// Len returns the number of attached devices.
func (c *Cache) Len() int { return len(c.devices) }

// Devices returns the attached devices in attach order.
func (c *Cache) Devices() []*Device { return slices.Clone(c.devices) }

// Device returns the attached device with the given name, or nil.
func (c *Cache) Device(name string) *Device { return c.byName[name] }

// GetDevice returns the device with the given name. When it is not attached
// and create is true, a new empty device is created and attached.
//
// Returns ErrNotFound when the device is absent and create is false.
func (c *Cache) GetDevice(name string, create bool) (*Device, error) {
	if c == nil || name == "" {
		return nil, ErrInvalidParam
	}
	if d, ok := c.byName[name]; ok {
		return d, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	d := NewDevice(name)
	if err := c.AddDevice(d); err != nil {
		return nil, err
	}
	return d, nil
}

// AddDevice attaches d to the cache and indexes the tags it already has.
//
// If the limits do not allow all of its tags to be indexed, d is left
// detached and any index head created for it is dropped again.
func (c *Cache) AddDevice(d *Device) error {
	if c == nil || d == nil || d.name == "" {
		return ErrInvalidParam
	}
	if d.cache != nil || c.byName[d.name] != nil {
		return fmt.Errorf("%w: %s", ErrDeviceExists, d.name)
	}
	if c.limits.MaxTagsPerDevice > 0 && len(d.tags) > c.limits.MaxTagsPerDevice {
		return fmt.Errorf("%w: device %s has %d tags, limit %d",
			ErrResourceExhausted, d.name, len(d.tags), c.limits.MaxTagsPerDevice)
	}

	var created []*indexHead
	for i, t := range d.tags {
		_, existed := c.heads[t.name]
		head, err := c.headFor(t.name)
		if err != nil {
			for _, done := range d.tags[:i] {
				done.head.remove(done)
			}
			for _, h := range created {
				c.dropHead(h)
			}
			return err
		}
		if !existed {
			created = append(created, head)
		}
		head.add(t)
	}

	d.cache = c
	c.devices = append(c.devices, d)
	c.byName[d.name] = d
	c.flags |= CacheChanged
	return nil
}

// RemoveDevice detaches d from the cache. Its tags are removed from the
// index but stay on the device.
func (c *Cache) RemoveDevice(d *Device) error {
	if c == nil || d == nil || d.cache != c {
		return ErrInvalidParam
	}

	for _, t := range d.tags {
		if t.head != nil {
			t.head.remove(t)
		}
	}
	if i := slices.Index(c.devices, d); i >= 0 {
		c.devices = slices.Delete(c.devices, i, i+1)
	}
	delete(c.byName, d.name)
	d.cache = nil
	c.flags |= CacheChanged
	return nil
}

// Types returns the tag names known to the index, in the order they were
// first seen.
func (c *Cache) Types() []string {
	names := make([]string, len(c.order))
	for i, h := range c.order {
		names[i] = h.name
	}
	return names
}

// TagsOfType returns every indexed tag named name, in index order. Each
// tag's Device and Value identify one match.
func (c *Cache) TagsOfType(name string) []*Tag {
	h := c.findHead(name)
	if h == nil {
		return nil
	}
	return slices.Clone(h.tags)
}

// findHead returns the index head for name, or nil.
func (c *Cache) findHead(name string) *indexHead {
	if c == nil {
		return nil
	}
	return c.heads[name]
}

// headFor returns the index head for name, creating it if needed.
func (c *Cache) headFor(name string) (*indexHead, error) {
	if h := c.heads[name]; h != nil {
		return h, nil
	}
	if c.limits.MaxTagTypes > 0 && len(c.heads) >= c.limits.MaxTagTypes {
		return nil, fmt.Errorf("%w: tag type %s exceeds limit of %d types",
			ErrResourceExhausted, name, c.limits.MaxTagTypes)
	}

	h := &indexHead{name: name}
	c.heads[name] = h
	c.order = append(c.order, h)
	return h, nil
}

// dropHead removes an empty head created by a failed operation.
func (c *Cache) dropHead(h *indexHead) {
	delete(c.heads, h.name)
	if i := slices.Index(c.order, h); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

// CheckConsistency verifies the reverse index against the device tag
// lists: every tag of an attached device must be listed in exactly the head
// for its name, and every head entry must belong to an attached device.
func (c *Cache) CheckConsistency() error {
	indexed := make(map[*Tag]bool)
	for name, h := range c.heads {
		for _, t := range h.tags {
			switch {
			case indexed[t]:
				return fmt.Errorf("tag %s listed twice in index", t)
			case t.name != name:
				return fmt.Errorf("tag %s listed under head %s", t, name)
			case t.head != h:
				return fmt.Errorf("tag %s has stale head reference", t)
			case t.dev == nil || t.dev.cache != c:
				return fmt.Errorf("tag %s indexed but its device is not attached", t)
			case !slices.Contains(t.dev.tags, t):
				return fmt.Errorf("tag %s indexed but not owned by %s", t, t.dev.name)
			}
			indexed[t] = true
		}
	}

	for _, d := range c.devices {
		for _, t := range d.tags {
			if !indexed[t] {
				return fmt.Errorf("tag %s on %s missing from index", t, d.name)
			}
			delete(indexed, t)
		}
	}
	if len(indexed) != 0 {
		return fmt.Errorf("%d indexed tags not owned by any attached device", len(indexed))
	}
	return nil
}
