package telemetry

import (
	"encoding/json"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Logger is the minimal logging surface the recorder needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures the telemetry connection.
type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// BatchSize and FlushInterval tune the client's write batching.
	// Zero keeps the client default.
	BatchSize     int
	FlushInterval time.Duration
}

// Recorder writes property values and device events to InfluxDB.
//
// Writes are non-blocking and batched by the client; a failed write never
// stalls the protocol path. Recorder satisfies the entity model's Recorder
// interface.
type Recorder struct {
	client influxdb2.Client
	write  api.WriteAPI
	logger Logger
	done   chan struct{}
}

// New connects a recorder. The returned recorder is usable immediately;
// the underlying client batches and retries in the background.
func New(opts Options, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	influxOpts := influxdb2.DefaultOptions()
	if opts.BatchSize > 0 {
		influxOpts = influxOpts.SetBatchSize(uint(opts.BatchSize))
	}
	if opts.FlushInterval > 0 {
		influxOpts = influxOpts.SetFlushInterval(uint(opts.FlushInterval.Milliseconds()))
	}
	client := influxdb2.NewClientWithOptions(opts.URL, opts.Token, influxOpts)
	write := client.WriteAPI(opts.Org, opts.Bucket)

	r := &Recorder{
		client: client,
		write:  write,
		logger: logger,
		done:   make(chan struct{}),
	}

	// Async write errors surface on a channel; drain it into the log.
	go func() {
		for {
			select {
			case err, ok := <-write.Errors():
				if !ok {
					return
				}
				r.logger.Warn("telemetry write failed", "error", err)
			case <-r.done:
				return
			}
		}
	}()

	return r
}

// RecordProperty writes one property observation.
func (r *Recorder) RecordProperty(adapterID, deviceID, name string, value any) {
	fields := map[string]any{}
	switch v := value.(type) {
	case bool:
		fields["value_bool"] = v
	case float64:
		fields["value"] = v
	case int:
		fields["value"] = float64(v)
	case int64:
		fields["value"] = float64(v)
	case string:
		fields["value_str"] = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			r.logger.Debug("unrecordable property value", "property", name)
			return
		}
		fields["value_str"] = string(raw)
	}

	point := influxdb2.NewPoint("property",
		map[string]string{
			"adapter":  adapterID,
			"device":   deviceID,
			"property": name,
		},
		fields,
		time.Now(),
	)
	r.write.WritePoint(point)
}

// RecordEvent writes one device event.
func (r *Recorder) RecordEvent(adapterID, deviceID, name string, data any) {
	fields := map[string]any{"count": int64(1)}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			fields["data"] = string(raw)
		}
	}

	point := influxdb2.NewPoint("event",
		map[string]string{
			"adapter": adapterID,
			"device":  deviceID,
			"event":   name,
		},
		fields,
		time.Now(),
	)
	r.write.WritePoint(point)
}

// Close flushes buffered points and shuts the client down.
func (r *Recorder) Close() {
	close(r.done)
	r.write.Flush()
	r.client.Close()
}
