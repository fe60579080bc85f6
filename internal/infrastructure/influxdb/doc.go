// Package influxdb records blktagd metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks.
//
// # Measurements
//
//	blktag_probe   one point per full probe (devices, tags, duration_ms)
//	blktag_lookup  one point per tag lookup, tagged by tag_type and result
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//
//	client.WriteLookupMetric("UUID", influxdb.LookupHit, false)
//
// Write errors are delivered asynchronously through SetOnError.
package influxdb
