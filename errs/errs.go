// Package errs holds the launcher error taxonomy. Every failure a pipeline
// stage can surface is a StepError with a machine-readable code, a fixed
// user-facing message, and the wrapped source error.
package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Code identifies a StepError kind. The numeric groups are: E0xxx generic,
// E1xxx filesystem, E2xxx network, E3xxx deep link.
type Code string

const (
	CodeGeneric Code = "E0000_GENERIC_ERROR"

	CodeFileNotFound     Code = "E1001_FILE_NOT_FOUND"
	CodeCorruptedArchive Code = "E1002_CORRUPTED_ARCHIVE"
	CodeAccessDenied     Code = "E1003_DECOMPRESS_ACCESS_DENIED"
	CodeDiskFull         Code = "E1004_DISK_FULL"
	CodeOutOfMemory      Code = "E1005_DECOMPRESS_OUT_OF_MEMORY"
	CodeFileDeleteFailed Code = "E1006_FILE_DELETE_FAILED"
	CodeFileCreateFailed Code = "E1007_FILE_CREATE_FAILED"

	CodeDownloadFailed       Code = "E2001_DOWNLOAD_FAILED"
	CodeMissingContentLength Code = "E2002_MISSING_CONTENT_LENGTH"
	CodeNetworkWrite         Code = "E2003_NETWORK_WRITE_ERROR"
	CodeDownloadHTTPCode     Code = "E2004_DOWNLOAD_FAILED_HTTP_CODE"
	CodeFileIncomplete       Code = "E2005_FILE_INCOMPLETE"
	CodeNetworkTimeout       Code = "E2006_NETWORK_TIMEOUT"

	CodeDeeplinkTimeout Code = "E3001_OPEN_DEEPLINK_TIMEOUT"
	CodeDeeplinkPlace   Code = "E3002_PLACE_DEEPLINK"
)

var userMessages = map[Code]string{
	CodeGeneric:              "Internal communication error during download. Please restart the launcher and try again.",
	CodeFileNotFound:         "The downloaded file could not be found. Please try downloading again or check your antivirus and disk permissions.",
	CodeCorruptedArchive:     "The downloaded file appears to be corrupted. Please try downloading it again.",
	CodeAccessDenied:         "We couldn't extract the files. Please run the launcher as administrator or check your folder permissions.",
	CodeDiskFull:             "There isn't enough space on your disk to install Decentraland. Please free up some space and try again.",
	CodeOutOfMemory:          "Your system ran out of memory while installing the game. Try closing other programs or restarting your computer.",
	CodeFileDeleteFailed:     "We couldn't remove a previous download. Please check your permissions or try restarting the launcher.",
	CodeFileCreateFailed:     "There was an error while saving the downloaded file. Please make sure you have enough disk space and permission to write to the folder.",
	CodeDownloadFailed:       "There was an error while downloading Decentraland. Please check your internet connection and try again.",
	CodeMissingContentLength: "Failed to get the file size from the server. Please try again later or verify the download URL is reachable.",
	CodeNetworkWrite:         "There was an error while saving the downloaded file. Please make sure you have enough disk space and permission to write to the folder.",
	CodeDownloadHTTPCode:     "There was an error while downloading Decentraland. Please check your internet connection and try again.",
	CodeFileIncomplete:       "The downloaded file is incomplete. Please check your internet connection and try again.",
	CodeNetworkTimeout:       "The download timed out. Please check your internet connection and try again.",
	CodeDeeplinkTimeout:      "There was an error while opening the deeplink. Please restart client and try again.",
	CodeDeeplinkPlace:        "There was an error while opening the deeplink. Please restart client and try again.",
}

// StepError is the failure type returned by pipeline stages. Detail carries
// code-specific context (URL, expected path, byte counts) for the logs.
type StepError struct {
	Code        Code
	Detail      map[string]any
	Err         error
	userMessage string
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s", e.Code)
	if len(e.Detail) > 0 {
		msg = fmt.Sprintf("%s %v", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// UserMessage returns the text shown to the user for this error.
func (e *StepError) UserMessage() string {
	if e.userMessage != "" {
		return e.userMessage
	}
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	return userMessages[CodeGeneric]
}

// ApplyUserMessageIfNeeded sets a fallback user message on generic errors
// that don't already carry one. Coded errors keep their fixed message.
func (e *StepError) ApplyUserMessageIfNeeded(message string) *StepError {
	if e.Code == CodeGeneric && e.userMessage == "" {
		e.userMessage = message
	}
	return e
}

// New creates a StepError with the given code and optional detail pairs
// (alternating key, value).
func New(code Code, err error, detail ...any) *StepError {
	e := &StepError{Code: code, Err: err}
	if len(detail) > 0 {
		e.Detail = make(map[string]any, len(detail)/2)
		for i := 0; i+1 < len(detail); i += 2 {
			key, ok := detail[i].(string)
			if !ok {
				key = fmt.Sprint(detail[i])
			}
			e.Detail[key] = detail[i+1]
		}
	}
	return e
}

// Generic wraps an uncategorized error.
func Generic(err error) *StepError {
	return &StepError{Code: CodeGeneric, Err: err}
}

// As extracts a StepError from an error chain, wrapping uncategorized errors
// as generic so the pipeline boundary always has a code and user message.
func As(err error) *StepError {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr
	}
	return Generic(err)
}

// FromIO classifies a filesystem error by its underlying cause.
func FromIO(err error) *StepError {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return New(CodeFileNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return New(CodeAccessDenied, err)
	case errors.Is(err, syscall.ENOSPC):
		return New(CodeDiskFull, err)
	case errors.Is(err, syscall.ENOMEM):
		return New(CodeOutOfMemory, err)
	default:
		return Generic(err)
	}
}

// FlowError is the single pass/fail result of a pipeline run, rendered by
// the channel as an error status. Retrying is the host's decision.
type FlowError struct {
	UserMessage string
	CanRetry    bool
}

func (e *FlowError) Error() string {
	return e.UserMessage
}
