package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/blktag/internal/infrastructure/config"
)

// fakeWriteAPI records points instead of sending them.
type fakeWriteAPI struct {
	api.WriteAPI

	mu      sync.Mutex
	points  []*write.Point
	flushes int
	errs    chan error
}

func newFakeWriteAPI() *fakeWriteAPI {
	return &fakeWriteAPI{errs: make(chan error, 1)}
}

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriteAPI) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func (f *fakeWriteAPI) Errors() <-chan error { return f.errs }

func (f *fakeWriteAPI) written() []*write.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*write.Point(nil), f.points...)
}

func tagsOf(p *write.Point) map[string]string {
	tags := make(map[string]string)
	for _, t := range p.TagList() {
		tags[t.Key] = t.Value
	}
	return tags
}

func fieldsOf(p *write.Point) map[string]any {
	fields := make(map[string]any)
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	return fields
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Org:     "blktag",
		Bucket:  "metrics",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteProbeMetric(t *testing.T) {
	fake := newFakeWriteAPI()
	c := newClient(nil, fake)

	c.WriteProbeMetric(ProbeSample{RunID: "run-1", Devices: 3, Tags: 9, Duration: 250 * time.Millisecond})
	c.WriteProbeMetric(ProbeSample{Failed: true})

	points := fake.written()
	if len(points) != 2 {
		t.Fatalf("wrote %d points, want 2", len(points))
	}

	p := points[0]
	if p.Name() != MeasurementProbe {
		t.Errorf("Name() = %q, want %q", p.Name(), MeasurementProbe)
	}
	if tagsOf(p)["status"] != "ok" {
		t.Errorf("tags = %v, want status=ok", tagsOf(p))
	}
	fields := fieldsOf(p)
	if fields["devices"] != int64(3) || fields["tags"] != int64(9) {
		t.Errorf("fields = %v", fields)
	}
	if fields["duration_ms"] != 250.0 {
		t.Errorf("duration_ms = %v, want 250", fields["duration_ms"])
	}
	if tagsOf(points[1])["status"] != "failed" {
		t.Errorf("failed probe tags = %v", tagsOf(points[1]))
	}
}

func TestWriteLookupMetric(t *testing.T) {
	fake := newFakeWriteAPI()
	c := newClient(nil, fake)

	c.WriteLookupMetric("UUID", LookupMiss, true)

	points := fake.written()
	if len(points) != 1 {
		t.Fatalf("wrote %d points, want 1", len(points))
	}
	tags := tagsOf(points[0])
	if tags["tag_type"] != "UUID" || tags["result"] != LookupMiss {
		t.Errorf("tags = %v", tags)
	}
	if fieldsOf(points[0])["probed"] != true {
		t.Errorf("fields = %v, want probed=true", fieldsOf(points[0]))
	}
}

func TestClose_StopsWrites(t *testing.T) {
	fake := newFakeWriteAPI()
	c := newClient(nil, fake)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if fake.flushes != 1 {
		t.Errorf("flushes = %d, want 1 on close", fake.flushes)
	}

	c.WritePoint("after_close", nil, map[string]any{"v": 1})
	c.Flush()
	if len(fake.written()) != 0 {
		t.Error("point written after Close()")
	}
	if fake.flushes != 1 {
		t.Errorf("Flush() after Close() reached the write API")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrNotConnected", err)
	}

	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestSetOnError(t *testing.T) {
	fake := newFakeWriteAPI()
	c := newClient(nil, fake)

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	fake.errs <- errors.New("bucket not found")

	select {
	case err := <-got:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error callback not invoked")
	}
	close(fake.errs)
}
