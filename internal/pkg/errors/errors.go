package errors

import (
	"errors"
	"fmt"
)

// Cause kinds describe why something failed.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalid      = errors.New("invalid")
	ErrTooMany      = errors.New("too many requests")
	ErrTimeout      = errors.New("timeout")
	ErrUnavailable  = errors.New("unavailable")
	ErrInternal     = errors.New("internal")
)

// Pipeline kinds describe where something failed.
var (
	ErrIngestion         = errors.New("ingestion error")
	ErrEmbedding         = errors.New("embedding error")
	ErrIndex             = errors.New("index error")
	ErrRetrieval         = errors.New("retrieval error")
	ErrGeneration        = errors.New("generation error")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Wrap tags err with kind while keeping err matchable through errors.Is.
func Wrap(kind error, err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		if msg == "" {
			return err
		}
		return fmt.Errorf("%s: %w", msg, err)
	}
	if msg == "" {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, msg, err)
}

// New returns an error of kind carrying msg.
func New(kind error, msg string) error {
	return fmt.Errorf("%w: %s", kind, msg)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

// IsTransient reports whether retrying the same call may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTooMany)
}
