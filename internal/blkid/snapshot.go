package blkid

import "time"

// TagSnapshot is a detached copy of one tag. Alias marks the tag that the
// device's Type, Label or UUID currently reports.
type TagSnapshot struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Alias bool   `json:"alias,omitempty"`
}

// DeviceSnapshot is a detached copy of a device and its tags, safe to
// hand to other goroutines or encode.
type DeviceSnapshot struct {
	Name     string        `json:"name"`
	Priority int           `json:"priority"`
	Verified bool          `json:"verified"`
	ProbedAt time.Time     `json:"probed_at,omitzero"`
	Tags     []TagSnapshot `json:"tags"`
}

// Snapshot copies the device's current state.
func (d *Device) Snapshot() DeviceSnapshot {
	s := DeviceSnapshot{
		Name:     d.name,
		Priority: d.priority,
		Verified: d.HasFlag(DeviceVerified),
		ProbedAt: d.probedAt,
		Tags:     make([]TagSnapshot, len(d.tags)),
	}
	for i, t := range d.tags {
		s.Tags[i] = TagSnapshot{Name: t.name, Value: t.value, Alias: d.isAlias(t)}
	}
	return s
}

// Snapshot copies every attached device, in attach order.
func (c *Cache) Snapshot() []DeviceSnapshot {
	out := make([]DeviceSnapshot, len(c.devices))
	for i, d := range c.devices {
		out[i] = d.Snapshot()
	}
	return out
}
