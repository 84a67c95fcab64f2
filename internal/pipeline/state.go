package pipeline

import (
	"errors"
	"fmt"
)

// State is a stage of the acquisition workflow.
type State int

const (
	SelectEnvironment State = iota
	SelectVersions
	AcquireLinks
	Downloading
	Installing
	Finished
)

var stateNames = [...]string{
	SelectEnvironment: "SelectEnvironment",
	SelectVersions:    "SelectVersions",
	AcquireLinks:      "AcquireLinks",
	Downloading:       "Downloading",
	Installing:        "Installing",
	Finished:          "Finished",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether s is Finished.
func (s State) Terminal() bool { return s == Finished }

// Event drives a transition.
type Event int

const (
	EnvironmentChosen Event = iota
	VersionsChosen
	LinksAcquired
	DownloadsDone
	InstallsDone
	Cancel
)

var eventNames = [...]string{
	EnvironmentChosen: "EnvironmentChosen",
	VersionsChosen:    "VersionsChosen",
	LinksAcquired:     "LinksAcquired",
	DownloadsDone:     "DownloadsDone",
	InstallsDone:      "InstallsDone",
	Cancel:            "Cancel",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return eventNames[e]
}

var (
	// ErrInvalidTransition is returned for an event the state does not accept.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrStageIncomplete is returned when a stage's completion predicate
	// does not hold yet.
	ErrStageIncomplete = errors.New("stage incomplete")
	// ErrCancelled marks selections aborted by cancellation.
	ErrCancelled = errors.New("acquisition cancelled")
)

// Progress carries the counters transition guards look at.
type Progress struct {
	Unselected       int // definitions still waiting for a version choice
	LinksPending     int // link descriptors without a handle or a failure
	DownloadsPending int // handles not yet downloaded or failed
}

// Transition returns the state that follows from on ev. It has no side
// effects.
func Transition(from State, ev Event, p Progress) (State, error) {
	if from.Terminal() {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
	}
	if ev == Cancel {
		return Finished, nil
	}

	switch {
	case from == SelectEnvironment && ev == EnvironmentChosen:
		return SelectVersions, nil
	case from == SelectVersions && ev == VersionsChosen:
		if p.Unselected > 0 {
			return from, fmt.Errorf("%w: %d definitions without a version", ErrStageIncomplete, p.Unselected)
		}
		return AcquireLinks, nil
	case from == AcquireLinks && ev == LinksAcquired:
		if p.LinksPending > 0 {
			return from, fmt.Errorf("%w: %d links pending", ErrStageIncomplete, p.LinksPending)
		}
		return Downloading, nil
	case from == Downloading && ev == DownloadsDone:
		if p.DownloadsPending > 0 {
			return from, fmt.Errorf("%w: %d downloads pending", ErrStageIncomplete, p.DownloadsPending)
		}
		return Installing, nil
	case from == Installing && ev == InstallsDone:
		return Finished, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}
