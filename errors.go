// Package spawntree implements the core of a scalable launcher for
// distributed parallel jobs: a k-ary tree of spawn processes that
// unfurls itself over a pluggable transport, launches application
// processes, and runs an in-tree bootstrap protocol (address exchange,
// ring neighborhood, minimal PMI) before releasing them to run.
//
// A Tree holds parent/child Channels and runs blocking tree-wide
// collectives over them; a Session owns the Tree, the endpoint, and
// every process-group index for one spawn process.
package spawntree

import "golang.org/x/xerrors"

// ConfigError reports a bad environment value or a missing required
// parameter.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config: " + e.Msg }

// NewConfigError wraps msg as a ConfigError.
func NewConfigError(format string, args ...interface{}) error {
	return &ConfigError{Msg: xerrors.Errorf(format, args...).Error()}
}

// LaunchError reports that a fork or exec failed.
type LaunchError struct {
	Msg string
	Err error
}

func (e *LaunchError) Error() string { return "launch: " + e.Msg + ": " + e.Err.Error() }
func (e *LaunchError) Unwrap() error { return e.Err }

// NewLaunchError wraps err as a LaunchError with context msg.
func NewLaunchError(msg string, err error) error {
	return &LaunchError{Msg: msg, Err: err}
}

// ProtocolError reports an unexpected message on a tree channel.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Msg }

// NewProtocolError wraps msg as a ProtocolError.
func NewProtocolError(format string, args ...interface{}) error {
	return &ProtocolError{Msg: xerrors.Errorf(format, args...).Error()}
}

// IOError reports a filesystem failure.
type IOError struct {
	Msg string
	Err error
}

func (e *IOError) Error() string { return "io: " + e.Msg + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// NewIOError wraps err as an IOError with context msg.
func NewIOError(msg string, err error) error {
	return &IOError{Msg: msg, Err: err}
}
