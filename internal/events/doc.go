// Package events connects device probing and lookups to the outside world.
//
// A Recorder is registered as the prober's observer. After every full
// probe it appends the run to the SQLite history, writes a measurement to
// InfluxDB and publishes to MQTT:
//
//	blktag/probe/result        probe summary (run ID, counts, duration, error)
//	blktag/device/<name>       retained tags of each device, cleared on removal
//
// HandleProbeCommands lets other systems request a re-probe by publishing
// to blktag/command/probe.
package events
