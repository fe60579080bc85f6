package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/blktag/internal/blkid"
)

// Logger defines the logging interface used by the prober.
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

// Result summarises one full probe run.
type Result struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	// Devices is a snapshot of every device seen by the run.
	Devices []blkid.DeviceSnapshot

	// Tags counts the tags set across those devices.
	Tags int

	// Removed lists cached devices that lsblk no longer reports.
	Removed []string

	Err error
}

// Observer is notified after every full probe, successful or not.
type Observer interface {
	ProbeCompleted(r Result)
}

// Prober fills a blkid cache from lsblk output.
//
// Prober implements blkid.Prober. It keeps no state about the cache
// between calls and follows the cache's locking discipline.
type Prober struct {
	lsblk    string
	run      Runner
	now      func() time.Time
	logger   Logger
	observer Observer
}

// Option configures a Prober.
type Option func(*Prober)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(p *Prober) { p.run = r }
}

// WithClock replaces the time source used for probe timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Prober) { p.now = now }
}

// WithLogger sets the prober's logger.
func WithLogger(l Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver registers an observer for completed probes.
func WithObserver(o Observer) Option {
	return func(p *Prober) { p.observer = o }
}

// New creates a prober that runs the lsblk binary at lsblkPath.
func New(lsblkPath string, opts ...Option) *Prober {
	if lsblkPath == "" {
		lsblkPath = "lsblk"
	}
	p := &Prober{
		lsblk:  lsblkPath,
		run:    ExecRunner,
		now:    time.Now,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProbeAll lists every block device and merges its tags into c. Devices
// that are cached but no longer listed are removed. On success the cache
// is marked as fully probed.
func (p *Prober) ProbeAll(ctx context.Context, c *blkid.Cache) error {
	res := Result{RunID: uuid.NewString(), StartedAt: p.now()}
	res.Err = p.probeAll(ctx, c, &res)
	res.Duration = p.now().Sub(res.StartedAt)

	if res.Err != nil {
		p.logger.Error("device probe failed", "run_id", res.RunID, "error", res.Err)
	} else {
		p.logger.Info("device probe completed",
			"run_id", res.RunID,
			"devices", len(res.Devices),
			"tags", res.Tags,
			"removed", len(res.Removed),
			"duration", res.Duration,
		)
	}
	if p.observer != nil {
		p.observer.ProbeCompleted(res)
	}
	return res.Err
}

func (p *Prober) probeAll(ctx context.Context, c *blkid.Cache, res *Result) error {
	if c == nil {
		return blkid.ErrInvalidParam
	}
	out, err := p.run(ctx, p.lsblk, lsblkArgs()...)
	if err != nil {
		return err
	}
	entries, err := parseLsblk(out)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(entries))
	var errs []error
	for _, e := range entries {
		seen[e.name] = true
		d, err := p.apply(c, e, res.StartedAt)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res.Devices = append(res.Devices, d.Snapshot())
		res.Tags += d.Len()
	}

	for _, d := range c.Devices() {
		if seen[d.Name()] {
			continue
		}
		if err := c.RemoveDevice(d); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Removed = append(res.Removed, d.Name())
		p.logger.Debug("device no longer present", "device", d.Name())
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.MarkProbed()
	return nil
}

// ProbeDevice re-reads a single device and refreshes its tags in c.
func (p *Prober) ProbeDevice(ctx context.Context, c *blkid.Cache, devname string) (*blkid.Device, error) {
	if c == nil || devname == "" {
		return nil, blkid.ErrInvalidParam
	}
	out, err := p.run(ctx, p.lsblk, lsblkArgs(devname)...)
	if err != nil {
		return nil, err
	}
	entries, err := parseLsblk(out)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.name == devname {
			return p.apply(c, e, p.now())
		}
	}
	return nil, fmt.Errorf("%w: lsblk did not report %s", blkid.ErrNotFound, devname)
}

// apply merges one lsblk entry into the cache. Columns that came back
// empty delete any tag left from an earlier probe.
func (p *Prober) apply(c *blkid.Cache, e entry, at time.Time) (*blkid.Device, error) {
	d, err := c.GetDevice(e.name, true)
	if err != nil {
		return nil, err
	}
	d.SetPriority(priorityFor(e.kind))

	for _, tag := range lsblkColumns {
		name, ok := tagColumns[tag]
		if !ok {
			continue
		}
		value, present := e.tags[name]
		if !present {
			if _, had := d.TagValue(name); had {
				if err := d.DeleteTag(name); err != nil {
					return nil, fmt.Errorf("device %s: %w", e.name, err)
				}
			}
			continue
		}
		if err := d.SetTag(name, value, true); err != nil {
			return nil, fmt.Errorf("device %s: %w", e.name, err)
		}
	}

	d.SetProbedAt(at)
	return d, nil
}
