package probe

import (
	"context"
	"os"
	"time"

	"github.com/nerrad567/blktag/internal/blkid"
)

// StatFunc reports whether a device node exists. Any error counts as gone.
type StatFunc func(name string) error

func osStat(name string) error {
	_, err := os.Stat(name)
	return err
}

// Verifier checks cached devices before a lookup hands them out.
//
// A device whose node has disappeared is removed from the cache. A device
// probed longer ago than maxAge is re-read with lsblk first. Verifier
// implements blkid.Verifier.
type Verifier struct {
	prober *Prober
	stat   StatFunc
	maxAge time.Duration
}

// NewVerifier creates a verifier that refreshes stale devices through p.
// A maxAge of zero never refreshes; a nil stat uses os.Stat.
func NewVerifier(p *Prober, maxAge time.Duration, stat StatFunc) *Verifier {
	if stat == nil {
		stat = osStat
	}
	return &Verifier{prober: p, stat: stat, maxAge: maxAge}
}

// VerifyDevname returns d if it still exists, refreshing it when stale,
// or nil after dropping it from c.
func (v *Verifier) VerifyDevname(ctx context.Context, c *blkid.Cache, d *blkid.Device) *blkid.Device {
	log := v.prober.logger

	if err := v.stat(d.Name()); err != nil {
		log.Info("cached device is gone", "device", d.Name(), "error", err)
		v.drop(c, d)
		return nil
	}

	if v.stale(d) {
		fresh, err := v.prober.ProbeDevice(ctx, c, d.Name())
		if err != nil {
			log.Warn("refreshing cached device failed", "device", d.Name(), "error", err)
			v.drop(c, d)
			return nil
		}
		d = fresh
	}

	d.MarkVerified()
	return d
}

func (v *Verifier) stale(d *blkid.Device) bool {
	if v.maxAge <= 0 {
		return false
	}
	at := d.ProbedAt()
	return at.IsZero() || v.prober.now().Sub(at) > v.maxAge
}

func (v *Verifier) drop(c *blkid.Cache, d *blkid.Device) {
	if d.Cache() == c {
		_ = c.RemoveDevice(d)
	}
}
