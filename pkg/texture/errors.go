package texture

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against a *LoadError.
var (
	ErrFetch  = errors.New("fetch failure")
	ErrDecode = errors.New("decode failure")
)

// FailureKind classifies a failed texture load.
type FailureKind int

const (
	// FetchFailure is a network, filesystem or HTTP status error.
	FetchFailure FailureKind = iota
	// DecodeFailure means the bytes were not a decodable image.
	DecodeFailure
)

func (k FailureKind) String() string {
	if k == DecodeFailure {
		return "decode"
	}
	return "fetch"
}

// LoadError reports a texture load that resolved to the placeholder.
// Load errors never escape the cache: they are logged, counted, and the
// caller receives the placeholder for that call only.
type LoadError struct {
	Kind  FailureKind
	URL   string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.URL, e.Cause)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *LoadError) Unwrap() []error {
	sentinel := ErrFetch
	if e.Kind == DecodeFailure {
		sentinel = ErrDecode
	}
	return []error{sentinel, e.Cause}
}
