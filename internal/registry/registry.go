package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/blktag/internal/blkid"
)

// Logger defines the logging interface used by the Registry.
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

// Store persists the cache between runs. Implemented by *store.Store.
type Store interface {
	Save(ctx context.Context, c *blkid.Cache) error
	Load(ctx context.Context, opts ...blkid.Option) (*blkid.Cache, error)
}

// LookupRecorder is told about every lookup. Implemented by *events.Recorder.
type LookupRecorder interface {
	LookupCompleted(tagType string, err error, probed bool)
}

// Deps holds the collaborators of a Registry. Only Prober is required for
// lookups to ever find anything on a fresh cache; the rest are optional.
type Deps struct {
	Prober   blkid.Prober
	Verifier blkid.Verifier
	Store    Store
	Recorder LookupRecorder
	Limits   blkid.Limits
	Logger   Logger
}

// Match is one device carrying a tag of a given name.
type Match struct {
	Device string `json:"device"`
	Value  string `json:"value"`
}

// Stats describes the registry's cache and resolver activity.
type Stats struct {
	Devices  int         `json:"devices"`
	Types    int         `json:"types"`
	Probed   bool        `json:"probed"`
	Changed  bool        `json:"changed"`
	Resolver blkid.Stats `json:"resolver"`
}

// Registry owns a blkid cache and serialises every access to it.
//
// The cache, its devices and the resolver are not safe for concurrent
// use, so every public method holds a single mutex for its whole
// duration, including any probe it triggers. Results are returned as
// snapshots that callers may keep.
type Registry struct {
	mu       sync.Mutex
	cache    *blkid.Cache
	limits   blkid.Limits
	prober   blkid.Prober
	resolver *blkid.Resolver
	store    Store
	recorder LookupRecorder
	logger   Logger
}

// New creates a registry with an empty cache.
func New(deps Deps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		cache:    blkid.NewCache(blkid.WithLimits(deps.Limits)),
		limits:   deps.Limits,
		prober:   deps.Prober,
		resolver: blkid.NewResolver(deps.Prober, deps.Verifier, blkid.WithLogger(logger)),
		store:    deps.Store,
		recorder: deps.Recorder,
		logger:   logger,
	}
}

// Load replaces the cache with the stored one. Without a store it does
// nothing. The loaded cache is not considered probed.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	c, err := r.store.Load(ctx, blkid.WithLimits(r.limits))
	if err != nil {
		return fmt.Errorf("loading cache: %w", err)
	}

	r.mu.Lock()
	r.cache = c
	r.mu.Unlock()

	r.logger.Info("device cache loaded", "devices", c.Len())
	return nil
}

// Save writes the cache to the store if it has unsaved changes.
func (r *Registry) Save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked(ctx)
}

func (r *Registry) saveLocked(ctx context.Context) error {
	if r.store == nil || !r.cache.Changed() {
		return nil
	}
	if err := r.store.Save(ctx, r.cache); err != nil {
		return fmt.Errorf("saving cache: %w", err)
	}
	r.logger.Debug("device cache saved", "devices", r.cache.Len())
	return nil
}

// Probe runs a full probe now, whether or not the cache was probed
// before, and saves the result.
func (r *Registry) Probe(ctx context.Context) error {
	if r.prober == nil {
		return errors.New("no prober configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.prober.ProbeAll(ctx, r.cache); err != nil {
		return err
	}
	return r.saveLocked(ctx)
}

// Lookup finds the device carrying name=value, probing once if the cache
// cannot answer.
func (r *Registry) Lookup(ctx context.Context, name, value string) (blkid.DeviceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.resolver.Stats().Probes
	d, err := r.resolver.FindDevWithTag(ctx, r.cache, name, value)
	probed := r.resolver.Stats().Probes > before

	if r.recorder != nil && !errors.Is(err, blkid.ErrInvalidParam) {
		r.recorder.LookupCompleted(name, err, probed)
	}
	if saveErr := r.saveLocked(ctx); saveErr != nil {
		r.logger.Warn("saving cache after lookup failed", "error", saveErr)
	}
	if err != nil {
		return blkid.DeviceSnapshot{}, err
	}
	return d.Snapshot(), nil
}

// LookupString parses a NAME=value token and looks it up.
func (r *Registry) LookupString(ctx context.Context, token string) (blkid.DeviceSnapshot, error) {
	name, value, err := blkid.ParseTagString(token)
	if err != nil {
		return blkid.DeviceSnapshot{}, err
	}
	return r.Lookup(ctx, name, value)
}

// Devices returns every cached device in attach order.
func (r *Registry) Devices() []blkid.DeviceSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Snapshot()
}

// Device returns one cached device. Returns blkid.ErrNotFound when it is
// not cached.
func (r *Registry) Device(name string) (blkid.DeviceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.cache.GetDevice(name, false)
	if err != nil {
		return blkid.DeviceSnapshot{}, err
	}
	return d.Snapshot(), nil
}

// Types returns the tag names in the cache index.
func (r *Registry) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Types()
}

// TagsOfType lists every device carrying a tag called name, in index order.
func (r *Registry) TagsOfType(name string) []Match {
	r.mu.Lock()
	defer r.mu.Unlock()

	tags := r.cache.TagsOfType(name)
	matches := make([]Match, len(tags))
	for i, t := range tags {
		matches[i] = Match{Device: t.Device().Name(), Value: t.Value()}
	}
	return matches
}

// Stats returns cache and resolver counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Devices:  r.cache.Len(),
		Types:    len(r.cache.Types()),
		Probed:   r.cache.Probed(),
		Changed:  r.cache.Changed(),
		Resolver: r.resolver.Stats(),
	}
}
