// Package probe discovers block devices and their tags with lsblk.
//
// A Prober runs `lsblk --pairs --paths` and merges every reported device
// into a blkid.Cache: filesystem type, label, UUIDs and partition
// identifiers become tags, and the device kind sets its lookup priority
// (device-mapper over LVM over RAID over plain disks).
//
// A Verifier is the matching blkid.Verifier. It drops cached devices whose
// node no longer exists and re-reads devices whose last probe is older
// than the configured maximum age.
//
// Commands run through a Runner so tests can substitute canned output.
package probe
