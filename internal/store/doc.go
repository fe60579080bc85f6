// Package store saves and restores a blkid cache in SQLite.
//
// The schema lives in the migrations package: one row per device in
// block_devices and one row per tag in block_device_tags, both keeping
// their position so a restored cache has the same order as the saved one.
//
//	st := store.New(db.DB)
//	cache, err := st.Load(ctx, blkid.WithLimits(limits))
//	...
//	err = st.Save(ctx, cache) // only writes when cache.Changed()
package store
