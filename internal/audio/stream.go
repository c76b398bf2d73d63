package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"
)

// ErrDeviceStopped is reported when the backend stops a device before the source drained
var ErrDeviceStopped = errors.New("playback device stopped before end of stream")

// samplePump feeds a SampleSource into backend buffers from the audio thread.
// Once the source reports EOF or an error, the rest of every buffer is
// silence and Drained is closed.
type samplePump struct {
	source SampleSource

	mu      sync.Mutex
	scratch []float32
	err     error

	drainOnce sync.Once
	drained   chan struct{}
}

func newSamplePump(source SampleSource) *samplePump {
	return &samplePump{
		source:  source,
		drained: make(chan struct{}),
	}
}

// Drained is closed once the source has nothing more to deliver
func (p *samplePump) Drained() <-chan struct{} {
	return p.drained
}

// Err returns the read error that ended the stream, nil for a clean EOF
func (p *samplePump) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *samplePump) isDrained() bool {
	select {
	case <-p.drained:
		return true
	default:
		return false
	}
}

// Fill writes len(out) samples, padding with silence after the source ends
func (p *samplePump) Fill(out []float32) {
	filled := 0
	for filled < len(out) && !p.isDrained() {
		n, err := p.source.Read(out[filled:])
		filled += n
		if err != nil {
			p.finish(err)
			break
		}
		if n == 0 {
			// A source that cannot fill even one frame is treated as drained
			p.finish(io.EOF)
			break
		}
	}
	for i := filled; i < len(out); i++ {
		out[i] = 0
	}
}

// FillBytes is Fill for backends that take little-endian float32 bytes
func (p *samplePump) FillBytes(out []byte) {
	count := len(out) / 4

	p.mu.Lock()
	if cap(p.scratch) < count {
		p.scratch = make([]float32, count)
	}
	buf := p.scratch[:count]
	p.mu.Unlock()

	p.Fill(buf)
	for i, sample := range buf {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(sample))
	}
}

func (p *samplePump) finish(err error) {
	p.drainOnce.Do(func() {
		if !errors.Is(err, io.EOF) {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			slog.Debug("sample source failed", "error", err)
		}
		close(p.drained)
	})
}

// stopNotifier delivers the stopped event at most once
type stopNotifier struct {
	mu      sync.Mutex
	handler func(err error)

	once sync.Once
	done chan struct{}
}

func newStopNotifier() *stopNotifier {
	return &stopNotifier{done: make(chan struct{})}
}

func (n *stopNotifier) set(handler func(err error)) {
	n.mu.Lock()
	n.handler = handler
	n.mu.Unlock()
}

// Done is closed after the notifier fired or was disarmed
func (n *stopNotifier) Done() <-chan struct{} {
	return n.done
}

// fire runs the handler on the calling goroutine unless already fired or disarmed
func (n *stopNotifier) fire(err error) {
	first := false
	n.once.Do(func() {
		first = true
		close(n.done)
	})
	if !first {
		return
	}

	n.mu.Lock()
	handler := n.handler
	n.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// disarm consumes the notifier without running the handler
func (n *stopNotifier) disarm() {
	n.once.Do(func() {
		close(n.done)
	})
}

// watchDrain waits for pump to drain, lets the last buffered periods play,
// stops the device and fires the notifier. It returns early if the notifier
// fires through another path.
func watchDrain(pump *samplePump, notifier *stopNotifier, latency time.Duration, stop func()) {
	select {
	case <-pump.Drained():
	case <-notifier.Done():
		return
	}

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-notifier.Done():
		return
	}

	stop()
	notifier.fire(pump.Err())
}
