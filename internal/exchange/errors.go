package exchange

import (
	"errors"
	"fmt"

	"github.com/mmfshirokan/PriceCompare/internal/model"
)

// FailureKind classifies why a single exchange call failed. The retry policy
// in the service layer is keyed by it.
type FailureKind string

const (
	KindNetwork     FailureKind = "network"
	KindTimeout     FailureKind = "timeout"
	KindRateLimited FailureKind = "rate_limited"
	KindBadStatus   FailureKind = "bad_status"
	KindMalformed   FailureKind = "malformed"
	KindEmpty       FailureKind = "empty"
)

type FetchError struct {
	Kind     FailureKind
	Endpoint string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("okx %s: %s", e.Endpoint, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets callers match rate-limit failures with errors.Is(err, model.ErrRateLimited).
func (e *FetchError) Is(target error) bool {
	return target == model.ErrRateLimited && e.Kind == KindRateLimited
}

// KindOf returns the FailureKind carried by err, or KindNetwork when err did
// not come from this package.
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}

	return KindNetwork
}
