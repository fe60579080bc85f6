package blkid

import "iter"

// TagIterator walks the tags of one device in insertion order.
//
// The iterator is a cursor over the device's live tag list: it does not
// copy the tags, so adding or removing tags while iterating may skip or
// repeat entries. A zero TagIterator, or one released with End, rejects
// every call with ErrInvalidIterator.
type TagIterator struct {
	dev *Device
	pos int
}

// Tags starts an iteration over the device's tags. The iterator should be
// released with End when it is no longer needed.
func (d *Device) Tags() *TagIterator {
	if d == nil {
		return &TagIterator{}
	}
	return &TagIterator{dev: d}
}

// Next returns the name and value of the next tag.
//
// Returns ErrIterDone after the last tag, and ErrInvalidIterator when the
// iterator was never started or has been released.
func (it *TagIterator) Next() (name, value string, err error) {
	if it == nil || it.dev == nil {
		return "", "", ErrInvalidIterator
	}
	if it.pos >= len(it.dev.tags) {
		return "", "", ErrIterDone
	}

	t := it.dev.tags[it.pos]
	it.pos++
	return t.name, t.value, nil
}

// End releases the iterator. Further calls to Next fail.
func (it *TagIterator) End() {
	if it == nil {
		return
	}
	it.dev = nil
	it.pos = 0
}

// All returns an iterator over the device's tags as name/value pairs.
//
//	for name, value := range dev.All() {
//	    fmt.Println(name, value)
//	}
func (d *Device) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		it := d.Tags()
		defer it.End()
		for {
			name, value, err := it.Next()
			if err != nil || !yield(name, value) {
				return
			}
		}
	}
}
