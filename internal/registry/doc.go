// Package registry is the concurrency-safe owner of blktagd's device cache.
//
// The blkid package does no locking. Registry wraps one blkid.Cache and
// its Resolver behind a single mutex and hands out snapshots, so the HTTP
// API, MQTT command handler and startup code can share the cache.
//
//	reg := registry.New(registry.Deps{Prober: prober, Verifier: verifier, Store: st})
//	_ = reg.Load(ctx)
//	dev, err := reg.LookupString(ctx, `LABEL="root"`)
package registry
