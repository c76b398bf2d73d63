package cli

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"

	"github.com/ttsyukkuri/soundplayer/internal/audio"
	"github.com/ttsyukkuri/soundplayer/internal/audio/audiotest"
	"github.com/ttsyukkuri/soundplayer/internal/config"
	"github.com/ttsyukkuri/soundplayer/internal/fs"
)

type testXDG struct{}

func (testXDG) GetConfigPaths(filename string) []string {
	return []string{"/xdg/config/soundplayer/" + filename}
}
func (testXDG) GetCachePath(purpose string) string { return "/xdg/cache/soundplayer/" + purpose }
func (testXDG) GetDataPath(purpose string) string  { return "/xdg/data/soundplayer/" + purpose }

type fakeTerminal bool

func (f fakeTerminal) IsTerminal(int) bool { return bool(f) }

// harness wires a CLI to an in-memory filesystem, a private environment and fake drivers
type harness struct {
	t          *testing.T
	fs         afero.Fs
	env        map[string]string
	drivers    []*audiotest.Driver
	exceptions *audiotest.ExceptionLog
	terminal   bool
}

func newHarness(t *testing.T, drivers ...*audiotest.Driver) *harness {
	t.Helper()
	if len(drivers) == 0 {
		drivers = []*audiotest.Driver{audiotest.NewDriver(audio.PlayerWaveOut, "Speakers", "Headphones")}
	}
	return &harness{
		t:          t,
		fs:         afero.NewMemMapFs(),
		env:        map[string]string{},
		drivers:    drivers,
		exceptions: &audiotest.ExceptionLog{},
	}
}

func (h *harness) newCLI() *CLI {
	cm := config.NewConfigManagerWithDependencies(h.fs, testXDG{},
		func(key string) string { return h.env[key] },
		func(key, value string) error {
			h.env[key] = value
			return nil
		})

	return NewCLI(
		WithFilesystemFactory(fs.FixedFactory{Fs: h.fs}),
		WithConfigManager(cm),
		WithDriverFactory(h.factory()),
		WithExceptionLogger(h.exceptions),
		WithTerminalDetector(fakeTerminal(h.terminal)),
	)
}

// keepOpen survives the factory Close at the end of every Run, so one
// harness can run several commands against the same fake driver
type keepOpen struct{ *audiotest.Driver }

func (keepOpen) Close() error { return nil }

func (h *harness) factory() *audio.DefaultDriverFactory {
	constructors := make(map[audio.PlayerType]audio.DriverConstructor, len(h.drivers))
	for _, driver := range h.drivers {
		d := driver
		constructors[d.PlayerType] = func() (audio.OutputDriver, error) { return keepOpen{d}, nil }
	}
	return audio.NewDriverFactoryWithConstructors(constructors)
}

// run executes one command line on a fresh CLI
func (h *harness) run(args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	code := h.newCLI().Run(append([]string{"soundplayer"}, args...), nil, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (h *harness) writeFile(path string, data []byte) {
	h.t.Helper()
	if err := afero.WriteFile(h.fs, path, data, 0644); err != nil {
		h.t.Fatalf("failed to write %s: %v", path, err)
	}
}

// testWAV builds a 16-bit mono PCM WAV file
func testWAV(samples int) []byte {
	var buf bytes.Buffer
	dataLen := uint32(samples * 2)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(8000))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	for i := 0; i < samples; i++ {
		binary.Write(&buf, binary.LittleEndian, int16(i*64))
	}
	return buf.Bytes()
}
