//go:build windows && cgo

package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// asioDriver reaches ASIO drivers through the PortAudio ASIO host API
type asioDriver struct {
	initOnce sync.Once
	initErr  error

	mu          sync.Mutex
	initialized bool
	closed      bool
}

func newASIODriver() (OutputDriver, error) {
	return &asioDriver{}, nil
}

func (d *asioDriver) Type() PlayerType {
	return PlayerASIO
}

func (d *asioDriver) ensureInitialized() error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrBackendClosed
	}

	d.initOnce.Do(func() {
		if err := portaudio.Initialize(); err != nil {
			d.initErr = fmt.Errorf("%w: portaudio: %v", ErrBackendNotAvailable, err)
			return
		}
		d.mu.Lock()
		d.initialized = true
		d.mu.Unlock()
		slog.Debug("portaudio initialized", "version", portaudio.VersionText())
	})
	return d.initErr
}

// outputDevices returns ASIO devices able to play audio
func (d *asioDriver) outputDevices() ([]*portaudio.DeviceInfo, error) {
	if err := d.ensureInitialized(); err != nil {
		return nil, err
	}

	host, err := portaudio.HostApi(portaudio.ASIO)
	if err != nil {
		return nil, fmt.Errorf("%w: asio host api: %v", ErrBackendNotAvailable, err)
	}

	devices := make([]*portaudio.DeviceInfo, 0, len(host.Devices))
	for _, device := range host.Devices {
		if device.MaxOutputChannels > 0 {
			devices = append(devices, device)
		}
	}
	return devices, nil
}

func (d *asioDriver) Devices() ([]PlayDevice, error) {
	infos, err := d.outputDevices()
	if err != nil {
		return nil, err
	}

	devices := make([]PlayDevice, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, PlayDevice{ID: info.Name, Name: info.Name})
	}

	slog.Debug("playback devices enumerated", "player", PlayerASIO, "count", len(devices))
	return devices, nil
}

func (d *asioDriver) Open(deviceID string, latency time.Duration) (Output, error) {
	if err := validateASIODriverName(deviceID); err != nil {
		return nil, err
	}

	infos, err := d.outputDevices()
	if err != nil {
		return nil, err
	}

	for _, info := range infos {
		if info.Name == deviceID {
			if latency <= 0 {
				latency = DefaultLatency
			}
			slog.Debug("output opened", "player", PlayerASIO, "device_id", deviceID, "latency", latency)
			return &asioOutput{
				device:   info,
				latency:  latency,
				notifier: newStopNotifier(),
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: asio driver %q", ErrDeviceNotFound, deviceID)
}

func (d *asioDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.initialized {
		d.initialized = false
		return portaudio.Terminate()
	}
	return nil
}

// asioOutput is one PortAudio stream on an ASIO device
type asioOutput struct {
	device  *portaudio.DeviceInfo
	latency time.Duration

	mu       sync.Mutex
	stream   *portaudio.Stream
	pump     *samplePump
	notifier *stopNotifier
	closed   bool
}

func (o *asioOutput) Init(source SampleSource) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrBackendClosed
	}
	if o.stream != nil {
		return fmt.Errorf("asio output already initialized")
	}

	channels := int(source.Channels())
	if channels > o.device.MaxOutputChannels {
		return fmt.Errorf("asio driver %q has %d output channels, source needs %d",
			o.device.Name, o.device.MaxOutputChannels, channels)
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   o.device,
			Channels: channels,
			Latency:  o.latency,
		},
		SampleRate:      float64(source.SampleRate()),
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}

	pump := newSamplePump(source)
	stream, err := portaudio.OpenStream(params, func(out []float32) {
		pump.Fill(out)
	})
	if err != nil {
		return fmt.Errorf("asio driver %q: %w", o.device.Name, err)
	}

	o.stream = stream
	o.pump = pump

	slog.Debug("output initialized",
		"player", PlayerASIO,
		"device_id", o.device.Name,
		"sample_rate", params.SampleRate,
		"channels", channels)
	return nil
}

func (o *asioOutput) SetStoppedHandler(handler func(err error)) {
	o.notifier.set(handler)
}

func (o *asioOutput) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrBackendClosed
	}
	if o.stream == nil {
		return fmt.Errorf("asio output played before Init")
	}

	if err := o.stream.Start(); err != nil {
		return fmt.Errorf("asio driver %q: %w", o.device.Name, err)
	}

	go watchDrain(o.pump, o.notifier, o.latency, o.stopStream)

	slog.Debug("playback started", "player", PlayerASIO, "device_id", o.device.Name)
	return nil
}

func (o *asioOutput) stopStream() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.stream == nil {
		return
	}
	if err := o.stream.Stop(); err != nil {
		slog.Debug("stream stop failed", "player", PlayerASIO, "error", err)
	}
}

func (o *asioOutput) Close() error {
	o.notifier.disarm()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	if o.stream == nil {
		return nil
	}
	err := o.stream.Close()
	o.stream = nil
	slog.Debug("output closed", "player", PlayerASIO, "device_id", o.device.Name)
	return err
}
