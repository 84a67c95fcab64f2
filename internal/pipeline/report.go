package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/download"
	"github.com/quickmod/quickmod/internal/installer"
	"github.com/quickmod/quickmod/internal/manifest"
	"github.com/quickmod/quickmod/internal/resolver"
)

// Outcome is the terminal result for one requested definition.
type Outcome int

const (
	Pending Outcome = iota
	Installed
	FailedUnresolvable
	FailedAcquisition
	FailedDownload
	FailedInstall
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "Pending"
	case Installed:
		return "Installed"
	case FailedUnresolvable:
		return "Failed-Unresolvable"
	case FailedAcquisition:
		return "Failed-Acquisition"
	case FailedDownload:
		return "Failed-Download"
	case FailedInstall:
		return "Failed-Install"
	case Aborted:
		return "Aborted"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Failed reports whether o is one of the Failed-* outcomes.
func (o Outcome) Failed() bool {
	return o >= FailedUnresolvable && o <= FailedInstall
}

// Result is the report line for one requested definition.
type Result struct {
	UID     string
	Name    string
	Version string // chosen version, empty if none was chosen
	Outcome Outcome
	Err     error
	Paths   []string // files written on install
}

// Kind names the error class behind a failed result.
func (r Result) Kind() string { return Kind(r.Err) }

// Report lists one Result per requested definition, in request order.
type Report struct {
	Environment config.Environment
	Results     []Result
}

// Result returns the line for uid.
func (r *Report) Result(uid string) (Result, bool) {
	for _, res := range r.Results {
		if res.UID == uid {
			return res, true
		}
	}
	return Result{}, false
}

// Count returns how many results ended with o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Kind classifies err by the error taxonomy.
func Kind(err error) string {
	var (
		ve *manifest.ValidationError
		ne *download.NetworkError
		ue *resolver.UnresolvableVersionError
		ae *installer.UnsupportedArchiveError
		fe *installer.FileSystemError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "Cancelled"
	case errors.As(err, &ve):
		return "ValidationError"
	case errors.As(err, &ne):
		return "NetworkError"
	case errors.As(err, &ue):
		return "UnresolvableVersionError"
	case errors.As(err, &ae):
		return "UnsupportedArchiveError"
	case errors.As(err, &fe):
		return "FileSystemError"
	}
	return "Error"
}
