package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"
)

// wasapiIDUnits is the capacity of a WASAPI endpoint id, terminator included
const wasapiIDUnits = 64

// waveMapperID selects the system default WaveOut device
const waveMapperID = "-1"

// deviceIDCodec converts between a backend's raw device id bytes and the
// string form handed to callers. Decode returns nil for the default device.
type deviceIDCodec interface {
	Encode(raw []byte) (string, error)
	Decode(id string) ([]byte, error)
}

// codecFor returns the identifier codec used by the malgo backed players
func codecFor(playerType PlayerType) (deviceIDCodec, error) {
	switch playerType {
	case PlayerWaveOut:
		return winmmCodec{}, nil
	case PlayerDirectSound:
		return dsoundCodec{}, nil
	case PlayerWASAPI:
		return wasapiCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: no identifier codec for %q", ErrUnsupportedPlayer, playerType)
	}
}

// invalidDeviceID builds the error returned for identifiers that do not parse
func invalidDeviceID(playerType PlayerType, id string, cause error) error {
	slog.Debug("device identifier rejected", "player", playerType, "device_id", id, "reason", cause)
	return fmt.Errorf("%w: %s device %q: %v", ErrInvalidDeviceID, playerType, id, cause)
}

// winmmCodec maps waveOut device indices to decimal strings
type winmmCodec struct{}

func (winmmCodec) Encode(raw []byte) (string, error) {
	if len(raw) < 4 {
		return "", fmt.Errorf("winmm device id too short: %d bytes", len(raw))
	}
	return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(raw)), 10), nil
}

func (winmmCodec) Decode(id string) ([]byte, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == waveMapperID {
		return nil, nil
	}

	index, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, invalidDeviceID(PlayerWaveOut, id, err)
	}
	if index < 0 || uint64(index) > uint64(^uint32(0)) {
		return nil, invalidDeviceID(PlayerWaveOut, id, fmt.Errorf("index %d out of range", index))
	}

	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, uint32(index))
	return raw, nil
}

// dsoundCodec maps DirectSound GUIDs (Windows memory layout) to canonical strings
type dsoundCodec struct{}

func (dsoundCodec) Encode(raw []byte) (string, error) {
	if len(raw) < 16 {
		return "", fmt.Errorf("dsound device id too short: %d bytes", len(raw))
	}
	return guidFromWindowsBytes(raw[:16]).String(), nil
}

func (dsoundCodec) Decode(id string) ([]byte, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, invalidDeviceID(PlayerDirectSound, id, err)
	}

	// The primary sound driver is enumerated with a null GUID.
	if parsed == uuid.Nil {
		return nil, nil
	}
	return guidToWindowsBytes(parsed), nil
}

// guidFromWindowsBytes reorders a GUID struct (little-endian Data1..Data3) into RFC 4122 order
func guidFromWindowsBytes(raw []byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = raw[3], raw[2], raw[1], raw[0]
	u[4], u[5] = raw[5], raw[4]
	u[6], u[7] = raw[7], raw[6]
	copy(u[8:], raw[8:16])
	return u
}

// guidToWindowsBytes is the inverse of guidFromWindowsBytes
func guidToWindowsBytes(u uuid.UUID) []byte {
	raw := make([]byte, 16)
	raw[0], raw[1], raw[2], raw[3] = u[3], u[2], u[1], u[0]
	raw[4], raw[5] = u[5], u[4]
	raw[6], raw[7] = u[7], u[6]
	copy(raw[8:], u[8:])
	return raw
}

// wasapiCodec maps NUL-terminated UTF-16 endpoint ids to Go strings
type wasapiCodec struct{}

func (wasapiCodec) Encode(raw []byte) (string, error) {
	units := make([]uint16, 0, wasapiIDUnits)
	for i := 0; i+1 < len(raw) && len(units) < wasapiIDUnits; i += 2 {
		unit := binary.LittleEndian.Uint16(raw[i:])
		if unit == 0 {
			break
		}
		units = append(units, unit)
	}
	if len(units) == 0 {
		return "", fmt.Errorf("empty wasapi endpoint id")
	}
	return string(utf16.Decode(units)), nil
}

func (wasapiCodec) Decode(id string) ([]byte, error) {
	if id == "" {
		return nil, invalidDeviceID(PlayerWASAPI, id, fmt.Errorf("empty endpoint id"))
	}

	units := utf16.Encode([]rune(id))
	if len(units) >= wasapiIDUnits {
		return nil, invalidDeviceID(PlayerWASAPI, id,
			fmt.Errorf("endpoint id is %d UTF-16 units, limit is %d", len(units), wasapiIDUnits-1))
	}

	raw := make([]byte, wasapiIDUnits*2)
	for i, unit := range units {
		binary.LittleEndian.PutUint16(raw[i*2:], unit)
	}
	return raw, nil
}

// validateASIODriverName checks the only constraint ASIO places on identifiers
func validateASIODriverName(id string) error {
	if strings.TrimSpace(id) == "" {
		return invalidDeviceID(PlayerASIO, id, fmt.Errorf("empty driver name"))
	}
	return nil
}
