package blkid

import "slices"

// Well-known tag names that a Device keeps direct references to.
const (
	TagType  = "TYPE"
	TagLabel = "LABEL"
	TagUUID  = "UUID"
)

// Tag is a single NAME=value attribute of a device.
//
// A tag is owned by exactly one Device. When that device is attached to a
// Cache, the tag is also listed in the cache's index head for its name.
// Both memberships are dropped together by unlink.
type Tag struct {
	name  string
	value string
	dev   *Device
	head  *indexHead // nil while the owning device is detached
}

// Name returns the tag name (e.g. "UUID").
func (t *Tag) Name() string { return t.name }

// Value returns the tag value.
func (t *Tag) Value() string { return t.value }

// Device returns the device owning the tag, or nil once the tag was removed.
func (t *Tag) Device() *Device { return t.dev }

// String renders the tag as NAME="value".
func (t *Tag) String() string { return FormatTagString(t.name, t.value) }

// indexHead is the reverse-index bucket for one tag name. Its tag list
// holds non-owning references to every tag of that name on every attached
// device, in insertion order.
type indexHead struct {
	name string
	tags []*Tag
}

// add appends t to the head and records the back-reference.
func (h *indexHead) add(t *Tag) {
	h.tags = append(h.tags, t)
	t.head = h
}

// remove drops t from the head. It is a no-op if t is not listed.
func (h *indexHead) remove(t *Tag) {
	if i := slices.Index(h.tags, t); i >= 0 {
		h.tags = slices.Delete(h.tags, i, i+1)
	}
	if t.head == h {
		t.head = nil
	}
}

// unlink removes the tag from its device and from its index head.
func (t *Tag) unlink() {
	if t.head != nil {
		t.head.remove(t)
	}
	if d := t.dev; d != nil {
		if i := slices.Index(d.tags, t); i >= 0 {
			d.tags = slices.Delete(d.tags, i, i+1)
		}
		t.dev = nil
	}
}
