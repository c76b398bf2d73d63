//go:build !windows || !cgo

package audio

import "fmt"

func newASIODriver() (OutputDriver, error) {
	return nil, fmt.Errorf("%w: ASIO needs a Windows build with cgo", ErrBackendNotAvailable)
}
