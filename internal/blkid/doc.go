// Package blkid provides the in-memory tag store for block devices.
//
// Every Device carries an ordered list of NAME=value tags (TYPE, LABEL,
// UUID, PARTUUID, ...) discovered by probing. A Cache groups devices and
// keeps a reverse index from tag name to every tag of that name, which a
// Resolver uses to answer "which device has UUID=X" with priority-based
// tie-breaking.
//
// # Architecture
//
//	┌──────────────────────────────── Cache ─────────────────────────────────┐
//	│                                                                        │
//	│   index heads (by tag name)           devices (attach order)           │
//	│   ┌──────────┐                        ┌──────────────┐                 │
//	│   │ TYPE     │──▶ tag ──▶ tag         │ /dev/sda1    │──▶ TYPE, UUID   │
//	│   │ UUID     │──▶ tag ──▶ tag         │ /dev/sdb1    │──▶ TYPE, UUID   │
//	│   │ LABEL    │──▶ tag                 └──────────────┘     LABEL       │
//	│   └──────────┘                                                         │
//	└────────────────────────────────────────────────────────────────────────┘
//	         ▲
//	         │ FindDevWithTag ──▶ Prober (once, if not fully probed)
//	     Resolver           ──▶ Verifier (best candidate only)
//
// A tag is owned by its device; the index only references it. Removing a
// tag drops it from both lists in one step.
//
// # Usage
//
//	cache := blkid.NewCache()
//	dev, _ := cache.GetDevice("/dev/sda1", true)
//	dev.SetTag("TYPE", "ext4", true)
//	dev.SetTag("UUID", "0b7f6a36-...", true)
//
//	resolver := blkid.NewResolver(prober, verifier)
//	dev, err := resolver.FindDevWithTagString(ctx, cache, "UUID=0b7f6a36-...")
//	if errors.Is(err, blkid.ErrNotFound) {
//	    // nothing carries that UUID, even after probing
//	}
//
// # Thread Safety
//
// Nothing in this package locks. A Cache, its devices and any Resolver
// used with it must be accessed by one goroutine at a time; the registry
// serialises access with a single mutex.
package blkid
