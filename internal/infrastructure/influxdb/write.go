package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by blktagd.
const (
	MeasurementProbe  = "blktag_probe"
	MeasurementLookup = "blktag_lookup"
)

// Lookup results recorded by WriteLookupMetric.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// ProbeSample summarises one full probe of the system.
type ProbeSample struct {
	RunID    string
	Devices  int
	Tags     int
	Duration time.Duration
	Failed   bool
}

// WriteProbeMetric records the outcome of a full probe.
//
// Example:
//
//	client.WriteProbeMetric(influxdb.ProbeSample{Devices: 12, Tags: 41, Duration: 80 * time.Millisecond})
func (c *Client) WriteProbeMetric(s ProbeSample) {
	status := "ok"
	if s.Failed {
		status = "failed"
	}
	c.WritePoint(MeasurementProbe,
		map[string]string{"status": status},
		map[string]any{
			"run_id":      s.RunID,
			"devices":     s.Devices,
			"tags":        s.Tags,
			"duration_ms": float64(s.Duration) / float64(time.Millisecond),
		})
}

// WriteLookupMetric records one tag lookup. tagType is the tag name that
// was searched (e.g. "UUID"); the value itself is never recorded.
func (c *Client) WriteLookupMetric(tagType, result string, probed bool) {
	c.WritePoint(MeasurementLookup,
		map[string]string{"tag_type": tagType, "result": result},
		map[string]any{"count": 1, "probed": probed})
}

// WritePoint writes a custom point stamped with the current time.
// The write is non-blocking; nothing is written after Close.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
