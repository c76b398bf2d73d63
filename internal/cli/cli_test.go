package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttsyukkuri/soundplayer/internal/audio"
	"github.com/ttsyukkuri/soundplayer/internal/audio/audiotest"
	"github.com/ttsyukkuri/soundplayer/internal/journal"
)

func TestCLI(t *testing.T) {
	cli := NewCLI()
	require.NotNil(t, cli.rootCmd)
	assert.Equal(t, "soundplayer", cli.rootCmd.Use)

	names := map[string]bool{}
	for _, cmd := range cli.rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"devices", "play", "backends", "history", "config", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	for _, flag := range []string{"config", "log-level"} {
		assert.NotNil(t, cli.rootCmd.PersistentFlags().Lookup(flag), "missing persistent flag %s", flag)
	}
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)
	code, stdout, _ := h.run("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "soundplayer version "+Version)
}

func TestVersionSkipsConfiguration(t *testing.T) {
	h := newHarness(t)
	code, _, _ := h.run("version", "--log-level", "loud")
	assert.Equal(t, 0, code)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("record")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestInvalidLogLevel(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("devices", "--log-level", "loud")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid configuration")
}

func TestDevicesCommand(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		terminal   bool
		wantCode   int
		wantStdout []string
		wantStderr string
	}{
		{
			name:       "tab separated when piped",
			args:       []string{"devices"},
			wantStdout: []string{"0\tSpeakers\n1\tHeadphones\n"},
		},
		{
			name:       "table on terminal",
			args:       []string{"devices"},
			terminal:   true,
			wantStdout: []string{"ID", "NAME", "Speakers", "Headphones"},
		},
		{
			name:       "player flag",
			args:       []string{"devices", "--player", "DirectSound"},
			wantStdout: []string{"0\tPrimary Sound Driver\n"},
		},
		{
			name:       "unrecognized player",
			args:       []string{"devices", "--player", "pulse"},
			wantCode:   1,
			wantStderr: audio.ErrUnsupportedPlayer.Error(),
		},
		{
			name:       "supported player without a driver",
			args:       []string{"devices", "--player", "asio"},
			wantCode:   1,
			wantStderr: audio.ErrUnsupportedPlayer.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t,
				audiotest.NewDriver(audio.PlayerWaveOut, "Speakers", "Headphones"),
				audiotest.NewDriver(audio.PlayerDirectSound, "Primary Sound Driver"))
			h.terminal = tt.terminal

			code, stdout, stderr := h.run(tt.args...)
			assert.Equal(t, tt.wantCode, code, "stderr: %s", stderr)
			for _, want := range tt.wantStdout {
				assert.Contains(t, stdout, want)
			}
			if tt.wantStderr != "" {
				assert.Contains(t, stderr, tt.wantStderr)
			}
		})
	}
}

func TestDevicesJSON(t *testing.T) {
	h := newHarness(t)
	code, stdout, _ := h.run("devices", "--json")
	require.Equal(t, 0, code)

	var devices []audio.PlayDevice
	require.NoError(t, json.Unmarshal([]byte(stdout), &devices))
	assert.Equal(t, []audio.PlayDevice{{ID: "0", Name: "Speakers"}, {ID: "1", Name: "Headphones"}}, devices)
}

func TestDevicesJSONEmpty(t *testing.T) {
	h := newHarness(t, audiotest.NewDriver(audio.PlayerWaveOut))
	code, stdout, _ := h.run("devices", "--json")
	require.Equal(t, 0, code)
	assert.JSONEq(t, "[]", stdout)
}

func TestDevicesEnumerationError(t *testing.T) {
	driver := audiotest.NewDriver(audio.PlayerWaveOut)
	driver.DevicesErr = audio.ErrEnumerationFailed
	h := newHarness(t, driver)

	code, _, stderr := h.run("devices")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, audio.ErrEnumerationFailed.Error())
}

func TestPlayerFromEnvironmentAndDotEnv(t *testing.T) {
	t.Run("environment", func(t *testing.T) {
		h := newHarness(t,
			audiotest.NewDriver(audio.PlayerWaveOut, "Speakers"),
			audiotest.NewDriver(audio.PlayerWASAPI, "Endpoint"))
		h.env["SOUNDPLAYER_PLAYER"] = "wasapi"

		code, stdout, _ := h.run("devices")
		require.Equal(t, 0, code)
		assert.Equal(t, "0\tEndpoint\n", stdout)
	})

	t.Run("dotenv", func(t *testing.T) {
		h := newHarness(t,
			audiotest.NewDriver(audio.PlayerWaveOut, "Speakers"),
			audiotest.NewDriver(audio.PlayerWASAPI, "Endpoint"))
		h.writeFile(".env", []byte("SOUNDPLAYER_PLAYER=wasapi\n"))

		code, stdout, _ := h.run("devices")
		require.Equal(t, 0, code)
		assert.Equal(t, "0\tEndpoint\n", stdout)
	})

	t.Run("environment beats dotenv", func(t *testing.T) {
		h := newHarness(t,
			audiotest.NewDriver(audio.PlayerWaveOut, "Speakers"),
			audiotest.NewDriver(audio.PlayerWASAPI, "Endpoint"))
		h.env["SOUNDPLAYER_PLAYER"] = "waveout"
		h.writeFile(".env", []byte("SOUNDPLAYER_PLAYER=wasapi\n"))

		code, stdout, _ := h.run("devices")
		require.Equal(t, 0, code)
		assert.Equal(t, "0\tSpeakers\n", stdout)
	})
}

func TestConfigFlag(t *testing.T) {
	h := newHarness(t,
		audiotest.NewDriver(audio.PlayerWaveOut, "Speakers"),
		audiotest.NewDriver(audio.PlayerDirectSound, "Primary Sound Driver"))
	h.writeFile("/etc/soundplayer.yaml", []byte("player: directsound\n"))

	code, stdout, stderr := h.run("--config", "/etc/soundplayer.yaml", "devices")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "0\tPrimary Sound Driver\n", stdout)

	code, _, stderr = h.run("--config", "/etc/missing.yaml", "devices")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "error loading config")
}

func TestBackendsCommand(t *testing.T) {
	h := newHarness(t)
	code, stdout, _ := h.run("backends")
	require.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, len(audio.SupportedPlayers()))
	assert.Equal(t, "waveout\tavailable\t*", lines[0])
	for _, line := range lines[1:] {
		assert.Contains(t, line, "unavailable")
	}
}

func TestPlayCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantDeleted bool
		wantGain    float32
		wantDevice  string
	}{
		{
			name:       "defaults",
			args:       []string{"play", "/audio/voice.wav"},
			wantGain:   1,
			wantDevice: "",
		},
		{
			name:        "delete after playback",
			args:        []string{"play", "/audio/voice.wav", "--device", "1", "--delete"},
			wantDeleted: true,
			wantGain:    1,
			wantDevice:  "1",
		},
		{
			name:       "volume",
			args:       []string{"play", "/audio/voice.wav", "--device", "0", "--volume", "50"},
			wantGain:   0.5,
			wantDevice: "0",
		},
		{
			name:       "volume clamped",
			args:       []string{"play", "/audio/voice.wav", "--device", "0", "--volume", "1000"},
			wantGain:   4,
			wantDevice: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := audiotest.NewDriver(audio.PlayerWaveOut, "Speakers", "Headphones")
			driver.Validate = nil
			h := newHarness(t, driver)
			h.writeFile("/audio/voice.wav", testWAV(800))

			code, _, stderr := h.run(tt.args...)
			require.Equal(t, 0, code, "stderr: %s", stderr)

			outputs := driver.Outputs()
			require.Len(t, outputs, 1)
			assert.Equal(t, tt.wantDevice, outputs[0].DeviceID)
			assert.True(t, outputs[0].Played())
			assert.True(t, outputs[0].Closed())
			assert.Equal(t, 800, outputs[0].SamplesRead()/2)

			reader, ok := outputs[0].Source().(*audio.FileReader)
			require.True(t, ok)
			assert.InDelta(t, tt.wantGain, reader.Volume(), 1e-6)

			exists, _ := afero.Exists(h.fs, "/audio/voice.wav")
			assert.Equal(t, !tt.wantDeleted, exists)
			assert.Empty(t, h.exceptions.Records())
		})
	}
}

func TestPlayCommandFailures(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantStage string
	}{
		{"invalid device", []string{"play", "/audio/voice.wav", "--device", "not-a-number"}, audio.StageOpen},
		{"missing file", []string{"play", "/audio/missing.wav", "--device", "0"}, audio.StageDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.writeFile("/audio/voice.wav", testWAV(100))

			code, _, stderr := h.run(tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, "playback failed")

			records := h.exceptions.Records()
			require.Len(t, records, 1)
			assert.Equal(t, audio.MessagePlaybackFailed, records[0].Message)

			var playbackErr *audio.PlaybackError
			require.True(t, errors.As(records[0].Err, &playbackErr))
			assert.Equal(t, tt.wantStage, playbackErr.Stage)
		})
	}
}

func TestPlayCommandInterrupted(t *testing.T) {
	driver := audiotest.NewDriver(audio.PlayerWaveOut, "Speakers")
	driver.Script.StopErr = audio.ErrDeviceStopped
	h := newHarness(t, driver)
	h.writeFile("/audio/voice.wav", testWAV(100))

	code, _, stderr := h.run("play", "/audio/voice.wav", "--device", "0")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "playback interrupted")
}

// releaseCheck records, when the factory closes it, whether every output
// opened on the driver had already been released
type releaseCheck struct {
	*audiotest.Driver
	outputsReleased chan bool
}

func (r releaseCheck) Close() error {
	released := true
	for _, output := range r.Outputs() {
		released = released && output.Closed()
	}
	r.outputsReleased <- released
	return r.Driver.Close()
}

func TestPlayCommandCancelledStopsBeforeCleanup(t *testing.T) {
	driver := audiotest.NewDriver(audio.PlayerWaveOut, "Speakers")
	driver.Script.AutoFinish = false
	h := newHarness(t, driver)
	h.writeFile("/audio/voice.wav", testWAV(100))

	check := releaseCheck{Driver: driver, outputsReleased: make(chan bool, 1)}
	factory := audio.NewDriverFactoryWithConstructors(map[audio.PlayerType]audio.DriverConstructor{
		audio.PlayerWaveOut: func() (audio.OutputDriver, error) { return check, nil },
	})
	cli := h.newCLI()
	WithDriverFactory(factory)(cli)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stderr bytes.Buffer
	done := make(chan int, 1)
	go func() {
		done <- cli.RunContext(ctx, []string{"soundplayer", "play", "/audio/voice.wav", "--device", "0", "--delete"}, nil, io.Discard, &stderr)
	}()

	require.Eventually(t, func() bool {
		outputs := driver.Outputs()
		return len(outputs) == 1 && outputs[0].Played()
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-done:
		t.Fatal("play returned while the session was still playing")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, driver.Closed(), "driver closed under a live session")

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 1, code)
	case <-time.After(5 * time.Second):
		t.Fatal("play did not return after cancellation")
	}

	assert.Contains(t, stderr.String(), "context canceled")
	assert.True(t, <-check.outputsReleased, "outputs must be released before the driver closes")
	assert.True(t, driver.Closed())
	exists, _ := afero.Exists(h.fs, "/audio/voice.wav")
	assert.False(t, exists, "stopped sessions still delete their file")
}

func TestPlayCommandRequiresFile(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("play")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "accepts 1 arg")
}

func TestHistoryDisabled(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("history")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "journal is disabled")
}

func TestHistoryRecordsPlayback(t *testing.T) {
	h := newHarness(t)
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	h.writeFile("/xdg/config/soundplayer/config.json",
		[]byte(`{"player":"waveout","volume":80,"journal":{"enabled":true,"database_path":`+jsonString(dbPath)+`}}`))
	h.writeFile("/audio/ok.wav", testWAV(100))

	code, _, stderr := h.run("play", "/audio/ok.wav", "--device", "0")
	require.Equal(t, 0, code, stderr)
	code, _, _ = h.run("play", "/audio/ok.wav", "--device", "bogus")
	require.Equal(t, 1, code)

	code, stdout, stderr := h.run("history", "--json")
	require.Equal(t, 0, code, stderr)

	var records []journal.SessionRecord
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 2)

	statuses := map[string]journal.SessionRecord{}
	for _, rec := range records {
		statuses[rec.Status] = rec
	}
	require.Contains(t, statuses, journal.StatusCompleted)
	require.Contains(t, statuses, journal.StatusFailed)
	assert.Equal(t, 80, statuses[journal.StatusCompleted].Volume)
	assert.Equal(t, "bogus", statuses[journal.StatusFailed].DeviceID)
	assert.Contains(t, statuses[journal.StatusFailed].Error, audio.ErrInvalidDeviceID.Error())

	code, stdout, _ = h.run("history", "--status", "failed")
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "failed\twaveout\tbogus")

	code, stdout, _ = h.run("history", "--since", "1 hour ago", "--json")
	require.Equal(t, 0, code)
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	assert.Len(t, records, 2)

	code, _, stderr = h.run("history", "--status", "paused")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown status")
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestConfigCommands(t *testing.T) {
	h := newHarness(t)

	code, stdout, stderr := h.run("config", "path")
	require.Equal(t, 0, code)
	assert.Equal(t, "/xdg/config/soundplayer/config.yaml\n", stdout)
	assert.Contains(t, stderr, "No config file found")

	h.env["SOUNDPLAYER_VOLUME"] = "150"
	code, stdout, stderr = h.run("config", "init")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "/xdg/config/soundplayer/config.yaml\n", stdout)
	delete(h.env, "SOUNDPLAYER_VOLUME")

	data, err := afero.ReadFile(h.fs, "/xdg/config/soundplayer/config.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "volume: 150")

	code, _, stderr = h.run("config", "init")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "already exists")

	code, stdout, _ = h.run("config", "path")
	require.Equal(t, 0, code)
	assert.Equal(t, "/xdg/config/soundplayer/config.yaml\n", stdout)

	code, stdout, _ = h.run("config", "show")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "player: waveout")
	assert.Contains(t, stdout, "volume: 150")

	code, _, stderr = h.run("config", "init", "--format", "toml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown format")
}
