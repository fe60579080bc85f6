package blkid

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
)

func TestGetDevice(t *testing.T) {
	c := NewCache()

	if _, err := c.GetDevice("/dev/sda1", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDevice(create=false) error = %v, want ErrNotFound", err)
	}

	d, err := c.GetDevice("/dev/sda1", true)
	if err != nil {
		t.Fatalf("GetDevice(create=true) error = %v", err)
	}
	again, err := c.GetDevice("/dev/sda1", false)
	if err != nil || again != d {
		t.Errorf("GetDevice() = %p, %v, want %p", again, err, d)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if !c.Changed() {
		t.Error("Changed() = false after creating a device")
	}

	if _, err := c.GetDevice("", true); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("GetDevice(\"\") error = %v, want ErrInvalidParam", err)
	}
}

func TestAddDevice_Errors(t *testing.T) {
	c := NewCache()
	d := NewDevice("/dev/sda1")
	if err := c.AddDevice(d); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}

	if err := c.AddDevice(d); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("AddDevice() twice error = %v, want ErrDeviceExists", err)
	}
	if err := c.AddDevice(NewDevice("/dev/sda1")); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("AddDevice() duplicate name error = %v, want ErrDeviceExists", err)
	}
	if err := NewCache().AddDevice(d); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("AddDevice() to second cache error = %v, want ErrDeviceExists", err)
	}
	if err := c.AddDevice(nil); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("AddDevice(nil) error = %v, want ErrInvalidParam", err)
	}
}

func TestRemoveDevice(t *testing.T) {
	c, d := newAttached(t, "/dev/sda1")
	mustSet(t, d, "TYPE", "ext4", true)
	mustSet(t, d, "UUID", "1111", true)

	if err := c.RemoveDevice(d); err != nil {
		t.Fatalf("RemoveDevice() error = %v", err)
	}

	if c.Device("/dev/sda1") != nil {
		t.Error("Device() still returns removed device")
	}
	if got := c.TagsOfType("UUID"); len(got) != 0 {
		t.Errorf("TagsOfType(UUID) = %v after remove, want empty", got)
	}
	if d.Len() != 2 {
		t.Errorf("Len() = %d, removed device should keep its tags", d.Len())
	}
	if err := c.RemoveDevice(d); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("RemoveDevice() twice error = %v, want ErrInvalidParam", err)
	}

	// Changes on a detached device must not reach the old index.
	mustSet(t, d, "LABEL", "detached", true)
	if got := c.TagsOfType("LABEL"); len(got) != 0 {
		t.Errorf("TagsOfType(LABEL) = %v, want empty", got)
	}
	assertConsistent(t, c)
}

func TestTypes_CreationOrder(t *testing.T) {
	c, d := newAttached(t, "/dev/sda1")
	mustSet(t, d, "UUID", "1", true)
	mustSet(t, d, "TYPE", "ext4", true)
	mustSet(t, d, "LABEL", "x", true)
	mustSet(t, d, "UUID", "2", true)

	want := []string{"UUID", "TYPE", "LABEL"}
	if got := c.Types(); !slices.Equal(got, want) {
		t.Errorf("Types() = %v, want %v", got, want)
	}

	// Heads outlive their last tag.
	if err := d.DeleteTag("LABEL"); err != nil {
		t.Fatalf("DeleteTag() error = %v", err)
	}
	if got := c.Types(); !slices.Equal(got, want) {
		t.Errorf("Types() after delete = %v, want %v", got, want)
	}
}

func TestLimits_MaxTagsPerDevice(t *testing.T) {
	c := NewCache(WithLimits(Limits{MaxTagsPerDevice: 2}))
	d, _ := c.GetDevice("/dev/sda1", true)
	mustSet(t, d, "TYPE", "ext4", true)
	mustSet(t, d, "UUID", "1111", true)
	c.ClearChanged()

	err := d.SetTag("LABEL", "root", true)
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("SetTag() error = %v, want ErrResourceExhausted", err)
	}
	if d.Len() != 2 || d.FindTag("LABEL") != nil || d.Label() != "" {
		t.Errorf("failed SetTag left state behind: Len() = %d", d.Len())
	}
	if c.Changed() {
		t.Error("Changed() = true after failed SetTag")
	}

	// Replacing an existing tag needs no room.
	mustSet(t, d, "UUID", "2222", true)
	assertConsistent(t, c)
}

func TestLimits_MaxTagTypesRollsBack(t *testing.T) {
	c := NewCache(WithLimits(Limits{MaxTagTypes: 2}))
	d, _ := c.GetDevice("/dev/sda1", true)
	mustSet(t, d, "TYPE", "ext4", true)
	mustSet(t, d, "UUID", "1111", false)
	mustSet(t, d, "TYPE", "jbd", false)
	flags := d.Flags()

	err := d.SetTag("LABEL", "root", false)
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("SetTag() error = %v, want ErrResourceExhausted", err)
	}
	if d.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (new tag rolled back)", d.Len())
	}
	if d.Flags() != flags {
		t.Errorf("Flags() = %b, want unchanged %b", d.Flags(), flags)
	}
	if got := c.Types(); len(got) != 2 {
		t.Errorf("Types() = %v, want 2 heads", got)
	}
	assertConsistent(t, c)
}

func TestAddDevice_RollsBackHeads(t *testing.T) {
	c := NewCache(WithLimits(Limits{MaxTagTypes: 2}))
	a, _ := c.GetDevice("/dev/sda1", true)
	mustSet(t, a, "TYPE", "ext4", true)

	d := NewDevice("/dev/sdb1")
	mustSet(t, d, "UUID", "1111", true)
	mustSet(t, d, "TYPE", "xfs", true)
	mustSet(t, d, "LABEL", "data", true)

	if err := c.AddDevice(d); !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("AddDevice() error = %v, want ErrResourceExhausted", err)
	}
	if d.Cache() != nil {
		t.Error("device attached after failed AddDevice")
	}
	if got := c.Types(); !slices.Equal(got, []string{"TYPE"}) {
		t.Errorf("Types() = %v, want [TYPE]", got)
	}
	if got := c.TagsOfType("TYPE"); len(got) != 1 || got[0].Device() != a {
		t.Errorf("TagsOfType(TYPE) = %v, want only %s", got, a.Name())
	}
	assertConsistent(t, c)
}

// TestIndexConsistency_RandomOps drives a cache through a deterministic
// random sequence of mutations and checks the index after every step.
func TestIndexConsistency_RandomOps(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	c := NewCache()
	names := []string{"TYPE", "LABEL", "UUID", "PARTUUID"}
	values := []string{"a", "b", "c", ""}

	for step := range 2000 {
		devname := fmt.Sprintf("/dev/sd%c1", 'a'+rng.IntN(4))
		d, err := c.GetDevice(devname, true)
		if err != nil {
			t.Fatalf("step %d: GetDevice() error = %v", step, err)
		}

		name := names[rng.IntN(len(names))]
		switch op := rng.IntN(10); {
		case op < 4:
			err = d.SetTag(name, values[rng.IntN(len(values))], false)
		case op < 8:
			err = d.SetTag(name, values[rng.IntN(len(values))], true)
		case op < 9:
			err = d.DeleteTag(name)
		default:
			err = c.RemoveDevice(d)
		}
		if err != nil {
			t.Fatalf("step %d: mutation error = %v", step, err)
		}
		if err := c.CheckConsistency(); err != nil {
			t.Fatalf("step %d: CheckConsistency() error = %v", step, err)
		}
	}
}
