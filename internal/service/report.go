package service

import (
	"errors"
	"fmt"

	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

// ChunkFailure records a chunk that was left out of the index.
// Transient failures (timeouts, unavailable or throttled backends) may succeed on a later ingest.
type ChunkFailure struct {
	ChunkID   string `json:"chunk_id"`
	Error     string `json:"error"`
	Transient bool   `json:"transient"`
	err       error
}

func (f ChunkFailure) Err() error {
	return f.err
}

type DocumentReport struct {
	DocumentID string         `json:"document_id"`
	Source     string         `json:"source"`
	Chunks     int            `json:"chunks"`
	Indexed    int            `json:"indexed"`
	Removed    int            `json:"removed"`
	Error      string         `json:"error,omitempty"`
	Failures   []ChunkFailure `json:"failures,omitempty"`
	err        error
}

func (r *DocumentReport) fail(err error) {
	r.err = err
	r.Error = err.Error()
}

func (r *DocumentReport) failChunk(chunkID string, err error) {
	r.Failures = append(r.Failures, ChunkFailure{ChunkID: chunkID, Error: err.Error(), Transient: appErr.IsTransient(err), err: err})
}

// Err joins the document level error with every chunk failure.
func (r *DocumentReport) Err() error {
	errs := make([]error, 0, len(r.Failures)+1)
	if r.err != nil {
		errs = append(errs, fmt.Errorf("document %s: %w", r.DocumentID, r.err))
	}
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("chunk %s: %w", f.ChunkID, f.err))
	}
	return errors.Join(errs...)
}

type IngestReport struct {
	Documents []*DocumentReport `json:"documents"`
	Chunks    int               `json:"chunks"`
	Indexed   int               `json:"indexed"`
	Failed    int               `json:"failed"`
}

// Err returns nil when every document and chunk made it into the index.
func (r *IngestReport) Err() error {
	if r == nil {
		return nil
	}
	errs := make([]error, 0, len(r.Documents))
	for _, doc := range r.Documents {
		if err := doc.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *IngestReport) tally() {
	r.Chunks, r.Indexed, r.Failed = 0, 0, 0
	for _, doc := range r.Documents {
		r.Chunks += doc.Chunks
		r.Indexed += doc.Indexed
		r.Failed += len(doc.Failures)
		if doc.err != nil && doc.Chunks == 0 {
			r.Failed++
		}
	}
}
