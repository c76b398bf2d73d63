// Package audiotest provides in-memory OutputDriver and sink implementations
// for exercising audio.SoundPlayer without sound hardware.
package audiotest

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/ttsyukkuri/soundplayer/internal/audio"
)

// Driver is a scripted audio.OutputDriver
type Driver struct {
	PlayerType audio.PlayerType
	DeviceList []audio.PlayDevice
	DevicesErr error

	// Validate rejects identifiers before an output is created
	Validate func(deviceID string) error

	// Script configures each output created by Open
	Script OutputScript

	mu      sync.Mutex
	outputs []*Output
	closed  bool
}

// OutputScript controls how a fake output behaves
type OutputScript struct {
	InitErr error
	PlayErr error
	// AutoFinish drains the source and fires the stopped handler after Play
	AutoFinish bool
	// StopErr is passed to the stopped handler by AutoFinish
	StopErr error
}

// NewDriver returns a driver listing devices with identifiers "0".."n-1"
// that accepts only integer identifiers, like WaveOut.
func NewDriver(playerType audio.PlayerType, names ...string) *Driver {
	devices := make([]audio.PlayDevice, len(names))
	for i, name := range names {
		devices[i] = audio.PlayDevice{ID: strconv.Itoa(i), Name: name}
	}
	return &Driver{
		PlayerType: playerType,
		DeviceList: devices,
		Validate: func(deviceID string) error {
			if _, err := strconv.Atoi(deviceID); err != nil {
				return fmt.Errorf("%w: %v", audio.ErrInvalidDeviceID, err)
			}
			return nil
		},
		Script: OutputScript{AutoFinish: true},
	}
}

func (d *Driver) Type() audio.PlayerType { return d.PlayerType }

func (d *Driver) Devices() ([]audio.PlayDevice, error) {
	if d.DevicesErr != nil {
		return nil, d.DevicesErr
	}
	devices := make([]audio.PlayDevice, len(d.DeviceList))
	copy(devices, d.DeviceList)
	return devices, nil
}

func (d *Driver) Open(deviceID string, latency time.Duration) (audio.Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, audio.ErrBackendClosed
	}
	if d.Validate != nil {
		if err := d.Validate(deviceID); err != nil {
			return nil, err
		}
	}

	output := &Output{
		DeviceID: deviceID,
		Latency:  latency,
		script:   d.Script,
		stopped:  make(chan struct{}),
	}
	d.outputs = append(d.outputs, output)
	return output, nil
}

// Outputs returns every output opened so far
func (d *Driver) Outputs() []*Output {
	d.mu.Lock()
	defer d.mu.Unlock()
	outputs := make([]*Output, len(d.outputs))
	copy(outputs, d.outputs)
	return outputs
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Output is an audio.Output that pulls samples on a goroutine
type Output struct {
	DeviceID string
	Latency  time.Duration

	script OutputScript

	mu          sync.Mutex
	source      audio.SampleSource
	handler     func(err error)
	played      bool
	closed      bool
	samplesRead int
	fired       bool
	stopped     chan struct{}
}

func (o *Output) Init(source audio.SampleSource) error {
	if o.script.InitErr != nil {
		return o.script.InitErr
	}
	o.mu.Lock()
	o.source = source
	o.mu.Unlock()
	return nil
}

func (o *Output) SetStoppedHandler(handler func(err error)) {
	o.mu.Lock()
	o.handler = handler
	o.mu.Unlock()
}

func (o *Output) Play() error {
	if o.script.PlayErr != nil {
		return o.script.PlayErr
	}
	o.mu.Lock()
	o.played = true
	o.mu.Unlock()

	if o.script.AutoFinish {
		go o.drain()
	}
	return nil
}

func (o *Output) drain() {
	o.mu.Lock()
	source := o.source
	o.mu.Unlock()

	stopErr := o.script.StopErr
	buf := make([]float32, 512)
	total := 0
	for source != nil {
		n, err := source.Read(buf)
		total += n
		if err != nil {
			if !errors.Is(err, io.EOF) && stopErr == nil {
				stopErr = err
			}
			break
		}
	}

	o.mu.Lock()
	o.samplesRead = total
	o.mu.Unlock()
	o.Finish(stopErr)
}

// Finish fires the stopped handler once, as a backend would at end of stream
func (o *Output) Finish(err error) {
	o.mu.Lock()
	if o.fired {
		o.mu.Unlock()
		return
	}
	o.fired = true
	handler := o.handler
	o.mu.Unlock()

	if handler != nil {
		handler(err)
	}
	close(o.stopped)
}

// Stopped is closed after the stopped handler returned
func (o *Output) Stopped() <-chan struct{} { return o.stopped }

func (o *Output) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

// Source returns the sample source bound by Init
func (o *Output) Source() audio.SampleSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.source
}

// Played reports whether Play succeeded
func (o *Output) Played() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.played
}

// Closed reports whether Close was called
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// SamplesRead is the number of samples AutoFinish pulled from the source
func (o *Output) SamplesRead() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.samplesRead
}

// Factory returns an audio driver factory serving the given drivers
func Factory(drivers ...*Driver) *audio.DefaultDriverFactory {
	constructors := make(map[audio.PlayerType]audio.DriverConstructor, len(drivers))
	for _, driver := range drivers {
		d := driver
		constructors[d.PlayerType] = func() (audio.OutputDriver, error) { return d, nil }
	}
	return audio.NewDriverFactoryWithConstructors(constructors)
}

// ExceptionRecord is one call to WriteExceptionLog
type ExceptionRecord struct {
	Err     error
	Message string
}

// ExceptionLog collects exception records
type ExceptionLog struct {
	mu      sync.Mutex
	records []ExceptionRecord
}

func (l *ExceptionLog) WriteExceptionLog(err error, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, ExceptionRecord{Err: err, Message: message})
}

// Records returns a copy of what was logged
func (l *ExceptionLog) Records() []ExceptionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	records := make([]ExceptionRecord, len(l.records))
	copy(records, l.records)
	return records
}

// Event is one observer notification
type Event struct {
	Kind string // started, stopped or failed
	Info audio.SessionInfo
	Err  error
}

// Observer records session notifications and lets tests wait for them
type Observer struct {
	mu     sync.Mutex
	events []Event
	notify chan Event
}

func NewObserver() *Observer {
	return &Observer{notify: make(chan Event, 64)}
}

func (o *Observer) record(e Event) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
	select {
	case o.notify <- e:
	default:
	}
}

func (o *Observer) SessionStarted(info audio.SessionInfo) {
	o.record(Event{Kind: "started", Info: info})
}

func (o *Observer) SessionStopped(info audio.SessionInfo, err error) {
	o.record(Event{Kind: "stopped", Info: info, Err: err})
}

func (o *Observer) SessionFailed(info audio.SessionInfo, err error) {
	o.record(Event{Kind: "failed", Info: info, Err: err})
}

// Events returns a copy of every notification so far
func (o *Observer) Events() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	events := make([]Event, len(o.events))
	copy(events, o.events)
	return events
}

// WaitFor blocks until an event of kind arrives or timeout passes
func (o *Observer) WaitFor(kind string, timeout time.Duration) (Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case e := <-o.notify:
			if e.Kind == kind {
				return e, true
			}
		case <-deadline:
			return Event{}, false
		}
	}
}
