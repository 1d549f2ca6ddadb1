// Package channel defines the status contract between the launcher core and
// whatever host is presenting progress to the user (GUI shell, console).
package channel

import (
	"encoding/json"
	"fmt"
)

// EventChannel carries progress and error statuses to the host. Send may
// fail; callers treat failures as non-fatal and log them.
type EventChannel interface {
	Send(status Status) error
}

// BuildType distinguishes a first install from an update of an existing one.
type BuildType string

const (
	BuildTypeNew    BuildType = "new"
	BuildTypeUpdate BuildType = "update"
)

// Status is a tagged union of either a pipeline step or a user-facing error.
// Exactly one of Step and Error is set.
type Status struct {
	Step  *Step
	Error *Error
}

// Error is the terminal status of a failed pipeline run.
type Error struct {
	Message  string `json:"message"`
	CanRetry bool   `json:"canRetry"`
}

// StepKind enumerates the pipeline stages visible to the host.
type StepKind string

const (
	StepLauncherUpdate  StepKind = "launcherUpdate"
	StepFetching        StepKind = "fetching"
	StepDownloading     StepKind = "downloading"
	StepInstalling      StepKind = "installing"
	StepLaunching       StepKind = "launching"
	StepDeeplinkOpening StepKind = "deeplinkOpening"
)

// Step describes the stage the pipeline is currently in. Progress and
// BuildType are only meaningful for the kinds that declare them.
type Step struct {
	Kind      StepKind   `json:"event"`
	Progress  *int       `json:"progress,omitempty"`
	BuildType *BuildType `json:"buildType,omitempty"`
	Update    *string    `json:"update,omitempty"`
}

func StateStatus(step Step) Status {
	return Status{Step: &step}
}

func ErrorStatus(message string, canRetry bool) Status {
	return Status{Error: &Error{Message: message, CanRetry: canRetry}}
}

func Fetching() Status {
	return StateStatus(Step{Kind: StepFetching})
}

func Downloading(progress int, buildType BuildType) Status {
	return StateStatus(Step{Kind: StepDownloading, Progress: &progress, BuildType: &buildType})
}

func Installing(buildType BuildType) Status {
	return StateStatus(Step{Kind: StepInstalling, BuildType: &buildType})
}

func Launching() Status {
	return StateStatus(Step{Kind: StepLaunching})
}

func DeeplinkOpening() Status {
	return StateStatus(Step{Kind: StepDeeplinkOpening})
}

// statusJSON is the wire shape consumed by the GUI:
// {"event":"state","data":{"event":"downloading","progress":42,...}} or
// {"event":"error","data":{"message":"...","canRetry":true}}.
type statusJSON struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s Status) MarshalJSON() ([]byte, error) {
	switch {
	case s.Step != nil:
		data, err := json.Marshal(s.Step)
		if err != nil {
			return nil, err
		}
		return json.Marshal(statusJSON{Event: "state", Data: data})
	case s.Error != nil:
		data, err := json.Marshal(s.Error)
		if err != nil {
			return nil, err
		}
		return json.Marshal(statusJSON{Event: "error", Data: data})
	default:
		return nil, fmt.Errorf("status has neither step nor error")
	}
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw statusJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Event {
	case "state":
		var step Step
		if err := json.Unmarshal(raw.Data, &step); err != nil {
			return err
		}
		*s = Status{Step: &step}
		return nil
	case "error":
		var e Error
		if err := json.Unmarshal(raw.Data, &e); err != nil {
			return err
		}
		*s = Status{Error: &e}
		return nil
	default:
		return fmt.Errorf("unknown status event %q", raw.Event)
	}
}
