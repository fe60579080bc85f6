package blkid

import (
	"context"
	"fmt"
)

// Prober populates a cache with the devices present on the system.
//
// A full probe is expected to call Cache.MarkProbed when it completes, so
// that later lookups stop probing.
type Prober interface {
	ProbeAll(ctx context.Context, c *Cache) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, c *Cache) error

// ProbeAll calls f(ctx, c).
func (f ProberFunc) ProbeAll(ctx context.Context, c *Cache) error { return f(ctx, c) }

// Verifier confirms that a cached device is still valid before it is
// handed out. It may refresh the device's tags, replace it with another
// device, or return nil to reject it.
type Verifier interface {
	VerifyDevname(ctx context.Context, c *Cache, d *Device) *Device
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, c *Cache, d *Device) *Device

// VerifyDevname calls f(ctx, c, d).
func (f VerifierFunc) VerifyDevname(ctx context.Context, c *Cache, d *Device) *Device {
	return f(ctx, c, d)
}

// Logger defines the logging interface used by the Resolver.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats counts resolver activity.
type Stats struct {
	Lookups  uint64 `json:"lookups"`  // calls to FindDevWithTag with valid arguments
	Hits     uint64 `json:"hits"`     // lookups that returned a device
	Misses   uint64 `json:"misses"`   // lookups that returned ErrNotFound
	Probes   uint64 `json:"probes"`   // full probes triggered by lookups
	Rejected uint64 `json:"rejected"` // best candidates discarded by the verifier
}

// Resolver answers "which device has NAME=value" queries against a cache,
// probing the system at most once per query when the cache cannot answer.
//
// The resolver is not safe for concurrent use; it shares the locking
// discipline of the caches it is used with.
type Resolver struct {
	prober   Prober
	verifier Verifier
	logger   Logger
	stats    Stats
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(l Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a resolver. Either collaborator may be nil: without a
// prober lookups never probe, without a verifier candidates are accepted
// as they are.
func NewResolver(p Prober, v Verifier, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		prober:   p,
		verifier: v,
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns a copy of the resolver counters.
func (r *Resolver) Stats() Stats { return r.stats }

// FindDevWithTag returns the device carrying the tag typ=value.
//
// When several devices carry the tag, the one with the highest priority
// wins; between equal priorities the one indexed first wins. Only that
// best candidate is verified: if the verifier rejects it, the lookup does
// not fall back to the next best.
//
// If no device is found and the cache has not been fully probed, the
// prober is called once and the search is repeated once.
//
// Parameters:
//   - ctx: Context passed to the prober and verifier
//   - c: Cache to search
//   - typ: Tag name, e.g. "UUID"
//   - value: Exact tag value
//
// Returns:
//   - *Device: The verified device
//   - error: ErrInvalidParam for a nil cache or empty typ, ErrNotFound when
//     nothing matches, or the prober's error
func (r *Resolver) FindDevWithTag(ctx context.Context, c *Cache, typ, value string) (*Device, error) {
	if c == nil || typ == "" {
		return nil, ErrInvalidParam
	}
	r.stats.Lookups++

	probed := false
	for {
		if dev := r.candidate(ctx, c, typ, value); dev != nil {
			r.stats.Hits++
			return dev, nil
		}
		if probed || c.Probed() || r.prober == nil {
			break
		}

		probed = true
		r.stats.Probes++
		r.logger.Debug("tag not in cache, probing devices", "type", typ, "value", value)
		if err := r.prober.ProbeAll(ctx, c); err != nil {
			return nil, fmt.Errorf("probing devices: %w", err)
		}
	}

	r.stats.Misses++
	return nil, fmt.Errorf("%w: %s", ErrNotFound, FormatTagString(typ, value))
}

// FindDevWithTagString parses a NAME=value token and looks it up.
func (r *Resolver) FindDevWithTagString(ctx context.Context, c *Cache, token string) (*Device, error) {
	name, value, err := ParseTagString(token)
	if err != nil {
		return nil, err
	}
	return r.FindDevWithTag(ctx, c, name, value)
}

// candidate runs one search attempt and returns the verified best match.
func (r *Resolver) candidate(ctx context.Context, c *Cache, typ, value string) *Device {
	head := c.findHead(typ)
	if head == nil {
		return nil
	}

	var found *Tag
	for _, t := range head.tags {
		if t.value != value {
			continue
		}
		if found == nil || t.dev.priority > found.dev.priority {
			found = t
		}
	}
	if found == nil {
		return nil
	}

	dev := found.dev
	if r.verifier != nil {
		dev = r.verifier.VerifyDevname(ctx, c, dev)
	}
	// Verification may re-read the device, so the match has to be checked again.
	if dev == nil || !hasTag(dev, typ, value) {
		r.stats.Rejected++
		r.logger.Debug("candidate rejected by verification",
			"device", found.dev.name, "type", typ, "value", value)
		return nil
	}
	return dev
}

func hasTag(d *Device, name, value string) bool {
	for _, t := range d.tags {
		if t.name == name && t.value == value {
			return true
		}
	}
	return false
}
