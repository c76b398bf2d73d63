package audio

import "fmt"

// PlayDevice is a selectable playback device.
// ID is backend specific and must be passed back to Play verbatim.
type PlayDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (d PlayDevice) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.ID)
}
