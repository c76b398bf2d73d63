//go:build cgo

package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// malgoBackends maps player types onto the miniaudio backend serving them
var malgoBackends = map[PlayerType]malgo.Backend{
	PlayerWaveOut:     malgo.BackendWinmm,
	PlayerDirectSound: malgo.BackendDsound,
	PlayerWASAPI:      malgo.BackendWasapi,
}

// malgoDriver serves WaveOut, DirectSound and WASAPI through miniaudio.
// WASAPI keeps one context for the life of the driver; the others create
// a context per enumeration and per output.
type malgoDriver struct {
	playerType    PlayerType
	backend       malgo.Backend
	codec         deviceIDCodec
	sharedContext bool

	mu     sync.Mutex
	shared *Context
	closed bool
}

func newMalgoDriver(playerType PlayerType) (OutputDriver, error) {
	backend, ok := malgoBackends[playerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a miniaudio backend", ErrUnsupportedPlayer, playerType)
	}
	codec, err := codecFor(playerType)
	if err != nil {
		return nil, err
	}

	return &malgoDriver{
		playerType:    playerType,
		backend:       backend,
		codec:         codec,
		sharedContext: playerType == PlayerWASAPI,
	}, nil
}

func (d *malgoDriver) Type() PlayerType {
	return d.playerType
}

// acquireContext returns a usable context and the function releasing it
func (d *malgoDriver) acquireContext() (*Context, func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, nil, ErrBackendClosed
	}

	if d.sharedContext {
		if d.shared == nil {
			ctx, err := NewContext(d.backend)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %s: %v", ErrBackendNotAvailable, d.playerType, err)
			}
			d.shared = ctx
		}
		return d.shared, func() {}, nil
	}

	ctx, err := NewContext(d.backend)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrBackendNotAvailable, d.playerType, err)
	}
	release := func() {
		if err := ctx.Close(); err != nil {
			slog.Warn("failed to release audio context", "player", d.playerType, "error", err)
		}
	}
	return ctx, release, nil
}

func (d *malgoDriver) Devices() ([]PlayDevice, error) {
	ctx, release, err := d.acquireContext()
	if err != nil {
		return nil, err
	}
	defer release()

	return d.listDevices(ctx)
}

func (d *malgoDriver) listDevices(ctx *Context) ([]PlayDevice, error) {
	infos, err := ctx.PlaybackDevices()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEnumerationFailed, d.playerType, err)
	}

	devices := make([]PlayDevice, 0, len(infos))
	for i := range infos {
		id, err := d.codec.Encode(infos[i].ID[:])
		if err != nil {
			slog.Debug("skipping device with unreadable identifier",
				"player", d.playerType,
				"name", infos[i].Name(),
				"error", err)
			continue
		}
		devices = append(devices, PlayDevice{ID: id, Name: infos[i].Name()})
	}

	slog.Debug("playback devices enumerated", "player", d.playerType, "count", len(devices))
	return devices, nil
}

func (d *malgoDriver) Open(deviceID string, latency time.Duration) (Output, error) {
	raw, err := d.codec.Decode(deviceID)
	if err != nil {
		return nil, err
	}

	ctx, release, err := d.acquireContext()
	if err != nil {
		return nil, err
	}

	// Endpoint ids are resolved up front so a stale id fails here, not in Init
	if d.sharedContext {
		if err := d.resolve(ctx, deviceID); err != nil {
			release()
			return nil, err
		}
	}

	if latency <= 0 {
		latency = DefaultLatency
	}

	output := &malgoOutput{
		playerType: d.playerType,
		deviceID:   deviceID,
		latency:    latency,
		ctx:        ctx,
		release:    release,
		notifier:   newStopNotifier(),
	}
	if raw != nil {
		copy(output.id[:], raw)
		output.hasID = true
	}

	slog.Debug("output opened", "player", d.playerType, "device_id", deviceID, "latency", latency)
	return output, nil
}

func (d *malgoDriver) resolve(ctx *Context, deviceID string) error {
	devices, err := d.listDevices(ctx)
	if err != nil {
		return err
	}
	for _, device := range devices {
		if device.ID == deviceID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s device %q", ErrDeviceNotFound, d.playerType, deviceID)
}

func (d *malgoDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.shared != nil {
		err := d.shared.Close()
		d.shared = nil
		return err
	}
	return nil
}

// malgoOutput is one miniaudio playback device bound to a device id
type malgoOutput struct {
	playerType PlayerType
	deviceID   string
	latency    time.Duration
	ctx        *Context
	release    func()

	id    malgo.DeviceID
	hasID bool

	mu       sync.Mutex
	device   *malgo.Device
	pump     *samplePump
	notifier *stopNotifier
	started  bool
	closed   bool
}

func (o *malgoOutput) Init(source SampleSource) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrBackendClosed
	}
	if o.device != nil {
		return fmt.Errorf("%s output already initialized", o.playerType)
	}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatF32
	config.Playback.Channels = source.Channels()
	config.Playback.ShareMode = malgo.Shared
	config.SampleRate = source.SampleRate()
	config.PeriodSizeInMilliseconds = uint32(o.latency.Milliseconds() / 2)
	config.Periods = 2
	if o.hasID {
		config.Playback.DeviceID = o.id.Pointer()
	}

	pump := newSamplePump(source)
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			pump.FillBytes(out)
		},
		Stop: func() {
			// Teardown must not run on the native thread
			go o.backendStopped()
		},
	}

	device, err := malgo.InitDevice(o.ctx.Raw().Context, config, callbacks)
	if err != nil {
		return fmt.Errorf("%s device %q: %w", o.playerType, o.deviceID, err)
	}

	o.device = device
	o.pump = pump

	slog.Debug("output initialized",
		"player", o.playerType,
		"device_id", o.deviceID,
		"sample_rate", config.SampleRate,
		"channels", config.Playback.Channels)
	return nil
}

func (o *malgoOutput) SetStoppedHandler(handler func(err error)) {
	o.notifier.set(handler)
}

func (o *malgoOutput) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrBackendClosed
	}
	if o.device == nil {
		return fmt.Errorf("%s output played before Init", o.playerType)
	}

	if err := o.device.Start(); err != nil {
		return fmt.Errorf("%s device %q: %w", o.playerType, o.deviceID, err)
	}
	o.started = true

	go watchDrain(o.pump, o.notifier, o.latency, o.stopDevice)

	slog.Debug("playback started", "player", o.playerType, "device_id", o.deviceID)
	return nil
}

func (o *malgoOutput) stopDevice() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.device == nil || !o.device.IsStarted() {
		return
	}
	if err := o.device.Stop(); err != nil {
		slog.Debug("device stop failed", "player", o.playerType, "error", err)
	}
}

// backendStopped handles the miniaudio stop notification
func (o *malgoOutput) backendStopped() {
	o.mu.Lock()
	started := o.started
	pump := o.pump
	o.mu.Unlock()

	if !started || pump == nil {
		return
	}

	var err error
	select {
	case <-pump.Drained():
		err = pump.Err()
	default:
		err = ErrDeviceStopped
	}
	o.notifier.fire(err)
}

func (o *malgoOutput) Close() error {
	o.notifier.disarm()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	device := o.device
	o.device = nil
	o.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	o.release()

	slog.Debug("output closed", "player", o.playerType, "device_id", o.deviceID)
	return nil
}
