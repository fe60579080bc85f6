package events

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/blktag/internal/blkid"
	"github.com/nerrad567/blktag/internal/infrastructure/influxdb"
	"github.com/nerrad567/blktag/internal/infrastructure/mqtt"
	"github.com/nerrad567/blktag/internal/probe"
	"github.com/nerrad567/blktag/internal/store"
)

// historyTimeout bounds the write of one probe run to the history.
const historyTimeout = 5 * time.Second

// Publisher sends messages to the broker. Implemented by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishJSON(topic string, v any, retained bool) error
}

// Subscriber registers message handlers. Implemented by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Metrics records probe and lookup measurements. Implemented by
// *influxdb.Client.
type Metrics interface {
	WriteProbeMetric(s influxdb.ProbeSample)
	WriteLookupMetric(tagType, result string, probed bool)
}

// History keeps a log of probe runs. Implemented by *store.Store.
type History interface {
	RecordRun(ctx context.Context, run store.ProbeRun) error
}

// Logger defines the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ProbeSummary is the payload published after every full probe.
type ProbeSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
	Devices    int       `json:"devices"`
	Tags       int       `json:"tags"`
	Removed    []string  `json:"removed,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Recorder fans probe and lookup outcomes out to MQTT and InfluxDB.
// Either sink may be nil when its integration is disabled.
//
// Recorder implements probe.Observer.
type Recorder struct {
	pub     Publisher
	metrics Metrics
	history History
	logger  Logger
	topics  mqtt.Topics
}

// NewRecorder creates a recorder. Pass untyped nil for a disabled sink.
func NewRecorder(pub Publisher, metrics Metrics, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{pub: pub, metrics: metrics, logger: logger}
}

// SetHistory enables recording of every probe run.
func (r *Recorder) SetHistory(h History) {
	r.history = h
}

// ProbeCompleted records the run in the history and publishes a probe
// summary, one retained message per device seen, and an empty retained
// message for every removed device.
func (r *Recorder) ProbeCompleted(res probe.Result) {
	r.recordRun(res)
	if r.metrics != nil {
		r.metrics.WriteProbeMetric(influxdb.ProbeSample{
			RunID:    res.RunID,
			Devices:  len(res.Devices),
			Tags:     res.Tags,
			Duration: res.Duration,
			Failed:   res.Err != nil,
		})
	}
	if r.pub == nil {
		return
	}

	summary := ProbeSummary{
		RunID:      res.RunID,
		StartedAt:  res.StartedAt,
		DurationMS: float64(res.Duration) / float64(time.Millisecond),
		Devices:    len(res.Devices),
		Tags:       res.Tags,
		Removed:    res.Removed,
	}
	if res.Err != nil {
		summary.Error = res.Err.Error()
	}
	if err := r.pub.PublishJSON(r.topics.ProbeResult(), summary, false); err != nil {
		r.logger.Warn("publishing probe result failed", "run_id", res.RunID, "error", err)
		return
	}

	for _, d := range res.Devices {
		r.PublishDevice(d)
	}
	for _, name := range res.Removed {
		// An empty retained payload deletes the retained message.
		if err := r.pub.Publish(r.topics.Device(name), nil, 1, true); err != nil {
			r.logger.Warn("clearing device topic failed", "device", name, "error", err)
		}
	}
}

func (r *Recorder) recordRun(res probe.Result) {
	if r.history == nil {
		return
	}
	run := store.ProbeRun{
		ID:         res.RunID,
		Status:     store.RunOK,
		Devices:    len(res.Devices),
		Tags:       res.Tags,
		Removed:    len(res.Removed),
		DurationMS: float64(res.Duration) / float64(time.Millisecond),
		StartedAt:  res.StartedAt,
	}
	if res.Err != nil {
		run.Status = store.RunFailed
		run.Error = res.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := r.history.RecordRun(ctx, run); err != nil {
		r.logger.Warn("recording probe run failed", "run_id", res.RunID, "error", err)
	}
}

// PublishDevice publishes the retained state of one device.
func (r *Recorder) PublishDevice(d blkid.DeviceSnapshot) {
	if r.pub == nil {
		return
	}
	if err := r.pub.PublishJSON(r.topics.Device(d.Name), d, true); err != nil {
		r.logger.Warn("publishing device failed", "device", d.Name, "error", err)
	}
}

// LookupCompleted records the outcome of one tag lookup.
func (r *Recorder) LookupCompleted(tagType string, err error, probed bool) {
	if r.metrics == nil {
		return
	}
	result := influxdb.LookupHit
	switch {
	case errors.Is(err, blkid.ErrNotFound):
		result = influxdb.LookupMiss
	case err != nil:
		result = influxdb.LookupError
	}
	r.metrics.WriteLookupMetric(tagType, result, probed)
}

// HandleProbeCommands subscribes to the probe command topic and starts
// reprobe in its own goroutine for every message received. The broker
// handler returns at once: a probe publishes results through the same
// client, which must not happen on the client's delivery goroutine.
// Failures are logged.
func HandleProbeCommands(ctx context.Context, sub Subscriber, reprobe func(ctx context.Context) error, logger Logger) error {
	if logger == nil {
		logger = noopLogger{}
	}
	return sub.Subscribe(mqtt.Topics{}.ProbeCommand(), 1, func(topic string, _ []byte) error {
		logger.Info("probe requested over MQTT", "topic", topic)
		go func() {
			if err := reprobe(ctx); err != nil {
				logger.Error("requested probe failed", "error", err)
			}
		}()
		return nil
	})
}
