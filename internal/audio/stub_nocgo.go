//go:build !cgo

package audio

import (
	"errors"
	"fmt"
)

var errCGORequired = errors.New(`soundplayer requires CGO support for audio output.

This error occurs when the binary was built without CGO enabled.

To fix this issue:
1. Ensure CGO_ENABLED=1 (this is the default for native builds)
2. Install a C compiler (MinGW or Visual Studio Build Tools on Windows)
3. Rebuild: go install github.com/ttsyukkuri/soundplayer/cmd/soundplayer`)

func newMalgoDriver(playerType PlayerType) (OutputDriver, error) {
	return nil, fmt.Errorf("%w: %s: %v", ErrBackendNotAvailable, playerType, errCGORequired)
}
