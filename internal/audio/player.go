package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// MaxVolume is the highest accepted volume percent
const MaxVolume = 400

// PlayerSelector returns the player type currently configured
type PlayerSelector func() PlayerType

// StaticPlayer always selects playerType
func StaticPlayer(playerType PlayerType) PlayerSelector {
	return func() PlayerType { return playerType }
}

// SoundPlayer enumerates devices and plays files on the configured backend
type SoundPlayer struct {
	fs         afero.Fs
	registry   *DecoderRegistry
	factory    DriverFactory
	player     PlayerSelector
	exceptions ExceptionLogger
	observer   SessionObserver
	latency    time.Duration

	mu     sync.Mutex
	active map[*session]struct{}
}

// Option customizes a SoundPlayer
type Option func(*SoundPlayer)

func WithFilesystem(fs afero.Fs) Option {
	return func(p *SoundPlayer) { p.fs = fs }
}

func WithRegistry(registry *DecoderRegistry) Option {
	return func(p *SoundPlayer) { p.registry = registry }
}

func WithDriverFactory(factory DriverFactory) Option {
	return func(p *SoundPlayer) { p.factory = factory }
}

func WithExceptionLogger(logger ExceptionLogger) Option {
	return func(p *SoundPlayer) { p.exceptions = logger }
}

func WithObserver(observer SessionObserver) Option {
	return func(p *SoundPlayer) { p.observer = observer }
}

// WithLatency overrides DefaultLatency; non-positive values are ignored
func WithLatency(latency time.Duration) Option {
	return func(p *SoundPlayer) {
		if latency > 0 {
			p.latency = latency
		}
	}
}

// NewSoundPlayer creates a player that asks selector for the backend on every call
func NewSoundPlayer(selector PlayerSelector, opts ...Option) *SoundPlayer {
	p := &SoundPlayer{
		fs:         afero.NewOsFs(),
		registry:   NewDefaultRegistry(),
		player:     selector,
		exceptions: NewSlogExceptionLogger(nil),
		observer:   nopObserver{},
		latency:    DefaultLatency,
		active:     make(map[*session]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.factory == nil {
		p.factory = NewDriverFactory()
	}
	return p
}

// CurrentPlayer returns the player type the next call will use
func (p *SoundPlayer) CurrentPlayer() PlayerType {
	return p.player()
}

// EnumerateDevices lists playback devices of the current backend.
// An unrecognized backend yields no devices and no error.
func (p *SoundPlayer) EnumerateDevices() ([]PlayDevice, error) {
	playerType := p.player()
	if !playerType.IsValid() {
		slog.Debug("device enumeration skipped for unrecognized player", "player", playerType)
		return nil, nil
	}

	driver, err := p.factory.Driver(playerType)
	if err != nil {
		return nil, err
	}
	return driver.Devices()
}

// Play starts playing filePath on deviceID and returns without waiting.
// Failures are reported to the exception logger and never returned.
func (p *SoundPlayer) Play(deviceID, filePath string, deleteAfter bool, volume int) {
	defer func() {
		if r := recover(); r != nil {
			p.exceptions.WriteExceptionLog(fmt.Errorf("panic: %v", r), MessagePlaybackFailed)
		}
	}()

	info := SessionInfo{
		ID:          uuid.NewString(),
		Player:      p.player(),
		DeviceID:    deviceID,
		FilePath:    filePath,
		Volume:      ClampVolume(volume),
		DeleteAfter: deleteAfter,
		StartedAt:   time.Now(),
	}

	if !info.Player.IsValid() {
		slog.Debug("playback skipped for unrecognized player", "player", info.Player, "file", filePath)
		return
	}

	if err := p.start(info); err != nil {
		p.exceptions.WriteExceptionLog(err, MessagePlaybackFailed)
		p.observer.SessionFailed(info, err)
	}
}

func (p *SoundPlayer) start(info SessionInfo) (err error) {
	s := &session{info: info, fs: p.fs, observer: p.observer, untrack: p.untrack}
	stage := StageOpen

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			s.abandon()
			err = &PlaybackError{
				Stage:    stage,
				Player:   info.Player,
				DeviceID: info.DeviceID,
				FilePath: info.FilePath,
				Err:      err,
			}
		}
	}()

	driver, err := p.factory.Driver(info.Player)
	if err != nil {
		return err
	}
	s.output, err = driver.Open(info.DeviceID, p.latency)
	if err != nil {
		return err
	}

	stage = StageDecode
	s.reader, err = OpenFileReader(p.fs, p.registry, info.FilePath)
	if err != nil {
		return err
	}
	s.reader.SetVolume(volumeToGain(info.Volume))

	stage = StageInit
	if err = s.output.Init(s.reader); err != nil {
		return err
	}
	s.output.SetStoppedHandler(s.stopped)
	p.track(s)

	stage = StageStart
	p.observer.SessionStarted(info)
	if err = s.output.Play(); err != nil {
		return err
	}

	slog.Debug("playback dispatched",
		"session", info.ID,
		"player", info.Player,
		"device_id", info.DeviceID,
		"file", info.FilePath,
		"volume", info.Volume,
		"delete_after", info.DeleteAfter)
	return nil
}

func (p *SoundPlayer) track(s *session) {
	p.mu.Lock()
	p.active[s] = struct{}{}
	p.mu.Unlock()
}

func (p *SoundPlayer) untrack(s *session) {
	p.mu.Lock()
	delete(p.active, s)
	p.mu.Unlock()
}

// StopAll ends every session still playing, as if each backend had stopped
// with reason. Observers see SessionStopped before StopAll returns.
// It returns the number of sessions stopped.
func (p *SoundPlayer) StopAll(reason error) int {
	p.mu.Lock()
	sessions := make([]*session, 0, len(p.active))
	for s := range p.active {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	for _, s := range sessions {
		s.stopped(reason)
	}
	if len(sessions) > 0 {
		slog.Debug("active sessions stopped", "count", len(sessions), "reason", reason)
	}
	return len(sessions)
}

// DisposePlayers is kept for callers that release players on shutdown; sessions clean up after themselves
func (p *SoundPlayer) DisposePlayers() {}

// Close releases driver state shared across sessions
func (p *SoundPlayer) Close() error {
	return p.factory.Close()
}

// ClampVolume limits a volume percent to [0, MaxVolume]
func ClampVolume(volume int) int {
	switch {
	case volume < 0:
		return 0
	case volume > MaxVolume:
		return MaxVolume
	default:
		return volume
	}
}

func volumeToGain(volume int) float32 {
	return float32(ClampVolume(volume)) / 100
}
