package blkid

import (
	"fmt"
	"time"
)

// DeviceFlags is the status bitset of a Device.
type DeviceFlags uint8

const (
	// DeviceMultipleTypes is set once a tag name was given a second, distinct
	// value without replace, so the device now carries duplicate names.
	DeviceMultipleTypes DeviceFlags = 1 << iota

	// DeviceVerified is set by a verifier after it confirmed the device
	// still exists under its name.
	DeviceVerified
)

// Device is a probed block device and the tags discovered on it.
//
// Tags are kept in insertion order. The TYPE, LABEL and UUID tags are also
// referenced directly so their values are available without a scan; the
// references point at the Tag itself, so replacing a value in place keeps
// them current.
//
// A Device is not safe for concurrent use. When it is attached to a Cache,
// the owner of the cache must serialise access to both.
type Device struct {
	name     string
	tags     []*Tag
	typ      *Tag
	label    *Tag
	uuid     *Tag
	priority int
	flags    DeviceFlags
	probedAt time.Time
	cache    *Cache
}

// NewDevice creates a detached device for the given device node name.
func NewDevice(name string) *Device {
	return &Device{name: name}
}

// Name returns the device node name (e.g. "/dev/sda1").
func (d *Device) Name() string { return d.name }

// Priority returns the lookup priority. Higher wins.
func (d *Device) Priority() int { return d.priority }

// SetPriority sets the lookup priority.
func (d *Device) SetPriority(pri int) { d.priority = pri }

// Flags returns the device status flags.
func (d *Device) Flags() DeviceFlags { return d.flags }

// HasFlag reports whether all bits of f are set.
func (d *Device) HasFlag(f DeviceFlags) bool { return d.flags&f == f }

// MarkVerified sets DeviceVerified.
func (d *Device) MarkVerified() { d.flags |= DeviceVerified }

// ProbedAt returns when the device was last probed.
func (d *Device) ProbedAt() time.Time { return d.probedAt }

// SetProbedAt records when the device was last probed.
func (d *Device) SetProbedAt(t time.Time) { d.probedAt = t }

// Cache returns the cache the device is attached to, or nil.
func (d *Device) Cache() *Cache { return d.cache }

// Len returns the number of tags on the device.
func (d *Device) Len() int { return len(d.tags) }

// Type returns the value of the device's TYPE tag, or "" if unset.
func (d *Device) Type() string { return aliasValue(d.typ) }

// Label returns the value of the device's LABEL tag, or "" if unset.
func (d *Device) Label() string { return aliasValue(d.label) }

// UUID returns the value of the device's UUID tag, or "" if unset.
func (d *Device) UUID() string { return aliasValue(d.uuid) }

func aliasValue(t *Tag) string {
	if t == nil {
		return ""
	}
	return t.value
}

// FindTag returns the first tag named name, in insertion order, or nil if
// the device has no such tag. The match is exact and case-sensitive.
func (d *Device) FindTag(name string) *Tag {
	if d == nil || name == "" {
		return nil
	}
	for _, t := range d.tags {
		if t.name == name {
			return t
		}
	}
	return nil
}

// TagValue returns the value of the first tag named name. The boolean is
// false when the tag does not exist, which is distinct from a tag whose
// value is empty.
func (d *Device) TagValue(name string) (string, bool) {
	t := d.FindTag(name)
	if t == nil {
		return "", false
	}
	return t.value, true
}

// SetTag sets a tag on the device.
//
// With replace=false the value is added alongside any existing tags of the
// same name, unless the first such tag already holds this value. Adding a
// second distinct value sets DeviceMultipleTypes. With replace=true the first
// tag of that name has its value overwritten in place.
//
// Parameters:
//   - name: Tag name, must not be empty
//   - value: Tag value (empty is a valid value)
//   - replace: Overwrite instead of adding a duplicate name
//
// Returns:
//   - error: ErrInvalidParam for a nil device or empty name,
//     ErrResourceExhausted when a cache limit would be exceeded
func (d *Device) SetTag(name, value string, replace bool) error {
	if d == nil || name == "" {
		return ErrInvalidParam
	}

	t := d.FindTag(name)
	if t != nil {
		if t.value == value {
			return nil
		}
		if replace {
			t.value = value
			d.linkAlias(name, t)
			d.markChanged()
			return nil
		}
	}

	added, err := d.addTag(name, value)
	if err != nil {
		return err
	}
	if t != nil {
		d.flags |= DeviceMultipleTypes
	}

	d.linkAlias(name, added)
	d.markChanged()
	return nil
}

// DeleteTag removes every tag named name from the device and from the
// cache index. Deleting a name the device does not carry is not an error.
func (d *Device) DeleteTag(name string) error {
	if d == nil || name == "" {
		return ErrInvalidParam
	}

	for t := d.FindTag(name); t != nil; t = d.FindTag(name) {
		t.unlink()
	}

	d.linkAlias(name, nil)
	d.markChanged()
	return nil
}

// RestoreTag appends a tag exactly as it was saved, for rebuilding a
// device from persistent storage. Unlike SetTag it never collapses an
// identical value and never overwrites: stored rows come back one for one,
// in order. A second tag of the same name sets DeviceMultipleTypes. When
// alias is true the tag becomes the one Type, Label or UUID reports.
//
// Returns ErrInvalidParam for a nil device or empty name and
// ErrResourceExhausted when a cache limit would be exceeded.
func (d *Device) RestoreTag(name, value string, alias bool) error {
	if d == nil || name == "" {
		return ErrInvalidParam
	}

	existing := d.FindTag(name)
	t, err := d.addTag(name, value)
	if err != nil {
		return err
	}
	if existing != nil {
		d.flags |= DeviceMultipleTypes
	}
	if alias {
		d.setAlias(name, t)
	}
	d.markChanged()
	return nil
}

// addTag appends a new tag and indexes it when the device is attached.
// On failure nothing stays linked.
func (d *Device) addTag(name, value string) (*Tag, error) {
	if c := d.cache; c != nil && c.limits.MaxTagsPerDevice > 0 &&
		len(d.tags) >= c.limits.MaxTagsPerDevice {
		return nil, fmt.Errorf("%w: device %s already has %d tags",
			ErrResourceExhausted, d.name, len(d.tags))
	}

	t := &Tag{name: name, value: value, dev: d}
	d.tags = append(d.tags, t)

	if d.cache != nil {
		head, err := d.cache.headFor(name)
		if err != nil {
			t.unlink()
			return nil, err
		}
		head.add(t)
	}
	return t, nil
}

// linkAlias updates the direct TYPE/LABEL/UUID references after name
// changed. A nil t means all tags of that name were removed.
//
// TYPE keeps pointing at the first type seen, so a second filesystem
// signature does not hide the first one.
func (d *Device) linkAlias(name string, t *Tag) {
	if name == TagType && t != nil && d.typ != nil {
		return
	}
	d.setAlias(name, t)
}

// setAlias points the TYPE/LABEL/UUID reference for name at t.
func (d *Device) setAlias(name string, t *Tag) {
	switch name {
	case TagType:
		d.typ = t
	case TagLabel:
		d.label = t
	case TagUUID:
		d.uuid = t
	}
}

func (d *Device) isAlias(t *Tag) bool {
	return t == d.typ || t == d.label || t == d.uuid
}

func (d *Device) markChanged() {
	if d.cache != nil {
		d.cache.flags |= CacheChanged
	}
}
