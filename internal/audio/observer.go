package audio

import "time"

// SessionInfo describes one playback attempt to observers
type SessionInfo struct {
	ID          string
	Player      PlayerType
	DeviceID    string
	FilePath    string
	Volume      int
	DeleteAfter bool
	StartedAt   time.Time
}

// SessionObserver is told about session transitions.
// SessionStopped and SessionFailed are mutually exclusive for one session.
type SessionObserver interface {
	SessionStarted(info SessionInfo)
	SessionStopped(info SessionInfo, err error)
	SessionFailed(info SessionInfo, err error)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(SessionInfo)        {}
func (nopObserver) SessionStopped(SessionInfo, error) {}
func (nopObserver) SessionFailed(SessionInfo, error)  {}

// MultiObserver fans notifications out to several observers in order
type MultiObserver []SessionObserver

func (m MultiObserver) SessionStarted(info SessionInfo) {
	for _, o := range m {
		o.SessionStarted(info)
	}
}

func (m MultiObserver) SessionStopped(info SessionInfo, err error) {
	for _, o := range m {
		o.SessionStopped(info, err)
	}
}

func (m MultiObserver) SessionFailed(info SessionInfo, err error) {
	for _, o := range m {
		o.SessionFailed(info, err)
	}
}
