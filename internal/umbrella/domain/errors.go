package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so the CLI can report it and pick an exit code.
type Kind int

const (
	KindUnknown          Kind = iota
	KindStoreUnavailable      // transport or timeout talking to the KV store
	KindCorruptEntry          // stored value cannot be decoded
	KindInvalidMutation       // malformed --set / --rm argument
	KindWriteFailure          // filesystem error while committing manifests
	KindDependencyUpdate      // helm dependency update failed after commit
	KindInvalidConfig         // flag or environment value rejected
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

var kindNames = [...]string{
	KindUnknown:          "Unknown",
	KindStoreUnavailable: "StoreUnavailable",
	KindCorruptEntry:     "CorruptEntry",
	KindInvalidMutation:  "InvalidMutation",
	KindWriteFailure:     "WriteFailure",
	KindDependencyUpdate: "DependencyUpdate",
	KindInvalidConfig:    "InvalidConfig",
}

// Error is a classified failure carrying the key or path it concerns.
type Error struct {
	Kind Kind
	Op   string // what was being attempted, e.g. "get", "rename"
	Key  string // store key, when relevant
	Path string // filesystem path, when relevant
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key %q", e.Key)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " path %q", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewStoreUnavailableError reports a failed store call for key (or prefix).
func NewStoreUnavailableError(op, key string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Op: op, Key: key, Err: err}
}

// NewCorruptEntryError reports a stored value that is not a usable version.
func NewCorruptEntryError(key string, err error) *Error {
	return &Error{Kind: KindCorruptEntry, Op: "decode", Key: key, Err: err}
}

// NewInvalidMutationError reports a malformed mutation argument.
func NewInvalidMutationError(arg string, err error) *Error {
	return &Error{Kind: KindInvalidMutation, Op: fmt.Sprintf("parse %q", arg), Err: err}
}

// NewWriteFailureError reports a filesystem failure for path.
func NewWriteFailureError(op, path string, err error) *Error {
	return &Error{Kind: KindWriteFailure, Op: op, Path: path, Err: err}
}

// NewDependencyUpdateError reports a failed `helm dependency update`.
func NewDependencyUpdateError(path string, err error) *Error {
	return &Error{Kind: KindDependencyUpdate, Op: "dependency update", Path: path, Err: err}
}

// NewInvalidConfigError reports a rejected configuration value.
func NewInvalidConfigError(setting string, err error) *Error {
	return &Error{Kind: KindInvalidConfig, Op: setting, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
