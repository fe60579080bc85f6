package probe

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/blktag/internal/blkid"
)

// fakeLsblk serves canned lsblk output. Listing all devices returns all;
// naming devices returns only the matching lines.
type fakeLsblk struct {
	lines map[string]string // devname -> line
	order []string
	err   error
	calls [][]string
}

func newFakeLsblk() *fakeLsblk {
	return &fakeLsblk{lines: make(map[string]string)}
}

func (f *fakeLsblk) set(devname, line string) {
	if _, ok := f.lines[devname]; !ok {
		f.order = append(f.order, devname)
	}
	f.lines[devname] = line
}

func (f *fakeLsblk) remove(devname string) {
	delete(f.lines, devname)
	f.order = slices.DeleteFunc(f.order, func(n string) bool { return n == devname })
}

func (f *fakeLsblk) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, f.err
	}

	want := f.order
	if i := slices.Index(args, "--nodeps"); i >= 0 {
		want = args[i+1:]
	}
	var b strings.Builder
	for _, devname := range want {
		line, ok := f.lines[devname]
		if !ok {
			return nil, errors.New("lsblk: " + devname + ": not a block device")
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

type recordingObserver struct{ results []Result }

func (o *recordingObserver) ProbeCompleted(r Result) { o.results = append(o.results, r) }

var probeTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return probeTime }

func TestProbeAll(t *testing.T) {
	lsblk := newFakeLsblk()
	lsblk.set("/dev/sda1", `NAME="/dev/sda1" TYPE="part" FSTYPE="ext4" LABEL="data" UUID="1111" PARTUUID="aa-01" PARTLABEL="" PTUUID="aa"`)
	lsblk.set("/dev/md0", `NAME="/dev/md0" TYPE="raid1" FSTYPE="xfs" LABEL="" UUID="2222" PARTUUID="" PARTLABEL="" PTUUID=""`)

	obs := &recordingObserver{}
	p := New("/usr/bin/lsblk", WithRunner(lsblk.run), WithClock(fixedClock), WithObserver(obs))
	c := blkid.NewCache()

	if err := p.ProbeAll(t.Context(), c); err != nil {
		t.Fatalf("ProbeAll() error = %v", err)
	}
	if !c.Probed() {
		t.Error("Probed() = false after ProbeAll")
	}
	if got := lsblk.calls[0][0]; got != "/usr/bin/lsblk" {
		t.Errorf("ran %q, want configured lsblk path", got)
	}

	sda1 := c.Device("/dev/sda1")
	if sda1 == nil {
		t.Fatal("/dev/sda1 not cached")
	}
	if sda1.Type() != "ext4" || sda1.Label() != "data" || sda1.UUID() != "1111" {
		t.Errorf("sda1 aliases = %q %q %q", sda1.Type(), sda1.Label(), sda1.UUID())
	}
	if v, _ := sda1.TagValue("PTUUID"); v != "aa" {
		t.Errorf("PTUUID = %q, want aa", v)
	}
	if _, ok := sda1.TagValue("PARTLABEL"); ok {
		t.Error("empty PARTLABEL stored as a tag")
	}
	if !sda1.ProbedAt().Equal(probeTime) {
		t.Errorf("ProbedAt() = %v, want %v", sda1.ProbedAt(), probeTime)
	}
	if md := c.Device("/dev/md0"); md == nil || md.Priority() != PriorityRAID {
		t.Errorf("/dev/md0 = %v, want priority %d", md, PriorityRAID)
	}
	if err := c.CheckConsistency(); err != nil {
		t.Fatalf("CheckConsistency() error = %v", err)
	}

	if len(obs.results) != 1 {
		t.Fatalf("observer called %d times, want 1", len(obs.results))
	}
	r := obs.results[0]
	if r.RunID == "" || r.Err != nil || len(r.Devices) != 2 || r.Tags != 7 {
		t.Errorf("result = %+v", r)
	}
}

func TestProbeAll_RefreshesAndRemoves(t *testing.T) {
	lsblk := newFakeLsblk()
	lsblk.set("/dev/sda1", `NAME="/dev/sda1" TYPE="part" FSTYPE="ext4" LABEL="old" UUID="1111"`)
	lsblk.set("/dev/sdb1", `NAME="/dev/sdb1" TYPE="part" FSTYPE="vfat" UUID="2222"`)

	obs := &recordingObserver{}
	p := New("", WithRunner(lsblk.run), WithClock(fixedClock), WithObserver(obs))
	c := blkid.NewCache()
	if err := p.ProbeAll(t.Context(), c); err != nil {
		t.Fatalf("first ProbeAll() error = %v", err)
	}

	// Label dropped, filesystem reformatted, second disk unplugged.
	lsblk.set("/dev/sda1", `NAME="/dev/sda1" TYPE="part" FSTYPE="xfs" LABEL="" UUID="3333"`)
	lsblk.remove("/dev/sdb1")
	if err := p.ProbeAll(t.Context(), c); err != nil {
		t.Fatalf("second ProbeAll() error = %v", err)
	}

	sda1 := c.Device("/dev/sda1")
	if sda1.Type() != "xfs" || sda1.UUID() != "3333" {
		t.Errorf("sda1 = %q %q, want xfs 3333", sda1.Type(), sda1.UUID())
	}
	if _, ok := sda1.TagValue("LABEL"); ok {
		t.Error("stale LABEL kept after it disappeared")
	}
	if sda1.Len() != 2 {
		t.Errorf("Len() = %d, want 2", sda1.Len())
	}
	if c.Device("/dev/sdb1") != nil {
		t.Error("/dev/sdb1 still cached after it disappeared")
	}
	if got := obs.results[1].Removed; !slices.Equal(got, []string{"/dev/sdb1"}) {
		t.Errorf("Removed = %v, want [/dev/sdb1]", got)
	}
	if err := c.CheckConsistency(); err != nil {
		t.Fatalf("CheckConsistency() error = %v", err)
	}
}

func TestProbeAll_CommandError(t *testing.T) {
	lsblk := newFakeLsblk()
	lsblk.err = ErrCommandFailed
	obs := &recordingObserver{}
	p := New("", WithRunner(lsblk.run), WithObserver(obs))
	c := blkid.NewCache()

	if err := p.ProbeAll(t.Context(), c); !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("ProbeAll() error = %v, want ErrCommandFailed", err)
	}
	if c.Probed() {
		t.Error("Probed() = true after failed probe")
	}
	if len(obs.results) != 1 || !errors.Is(obs.results[0].Err, ErrCommandFailed) {
		t.Errorf("observer results = %+v", obs.results)
	}
}

func TestProbeAll_LimitsReported(t *testing.T) {
	lsblk := newFakeLsblk()
	lsblk.set("/dev/sda1", `NAME="/dev/sda1" TYPE="part" FSTYPE="ext4" LABEL="data" UUID="1111"`)
	p := New("", WithRunner(lsblk.run))
	c := blkid.NewCache(blkid.WithLimits(blkid.Limits{MaxTagsPerDevice: 2}))

	if err := p.ProbeAll(t.Context(), c); !errors.Is(err, blkid.ErrResourceExhausted) {
		t.Fatalf("ProbeAll() error = %v, want ErrResourceExhausted", err)
	}
	if c.Probed() {
		t.Error("Probed() = true after partial probe")
	}
	if err := c.CheckConsistency(); err != nil {
		t.Fatalf("CheckConsistency() error = %v", err)
	}
}

func TestProbeDevice(t *testing.T) {
	lsblk := newFakeLsblk()
	lsblk.set("/dev/sda1", `NAME="/dev/sda1" TYPE="part" FSTYPE="ext4" UUID="1111"`)
	lsblk.set("/dev/sdb1", `NAME="/dev/sdb1" TYPE="part" FSTYPE="vfat" UUID="2222"`)
	p := New("", WithRunner(lsblk.run), WithClock(fixedClock))
	c := blkid.NewCache()

	d, err := p.ProbeDevice(t.Context(), c, "/dev/sdb1")
	if err != nil {
		t.Fatalf("ProbeDevice() error = %v", err)
	}
	if d.Name() != "/dev/sdb1" || d.UUID() != "2222" {
		t.Errorf("ProbeDevice() = %s UUID %q", d.Name(), d.UUID())
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want only the probed device", c.Len())
	}
	if c.Probed() {
		t.Error("single-device probe marked the cache probed")
	}
	if args := lsblk.calls[0]; !slices.Contains(args, "--nodeps") || args[len(args)-1] != "/dev/sdb1" {
		t.Errorf("lsblk args = %v", args)
	}

	if _, err := p.ProbeDevice(t.Context(), c, ""); !errors.Is(err, blkid.ErrInvalidParam) {
		t.Errorf("ProbeDevice(\"\") error = %v, want ErrInvalidParam", err)
	}
}

func TestProber_ResolverIntegration(t *testing.T) {
	lsblk := newFakeLsblk()
	lsblk.set("/dev/sda2", `NAME="/dev/sda2" TYPE="part" FSTYPE="crypto_LUKS" UUID="luks-1"`)
	lsblk.set("/dev/mapper/root", `NAME="/dev/mapper/root" TYPE="crypt" FSTYPE="ext4" LABEL="root" UUID="root-1"`)
	lsblk.set("/dev/sdb1", `NAME="/dev/sdb1" TYPE="part" FSTYPE="ext4" LABEL="root" UUID="copy-1"`)
	p := New("", WithRunner(lsblk.run), WithClock(fixedClock))
	r := blkid.NewResolver(p, nil)
	c := blkid.NewCache()

	d, err := r.FindDevWithTagString(t.Context(), c, `LABEL="root"`)
	if err != nil {
		t.Fatalf("FindDevWithTagString() error = %v", err)
	}
	if d.Name() != "/dev/mapper/root" {
		t.Errorf("resolved %s, want the crypt mapping", d.Name())
	}
	if r.Stats().Probes != 1 {
		t.Errorf("Probes = %d, want 1", r.Stats().Probes)
	}
}
