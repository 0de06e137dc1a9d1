package response

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docfinder/internal/pkg/errcode"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad input", appErr.Wrap(appErr.ErrEmbedding, appErr.ErrInvalid, ""), errcode.ErrInvalid},
		{"backend down", appErr.Wrap(appErr.ErrGeneration, appErr.ErrUnavailable, ""), errcode.ErrAIUnavailable},
		{"auth", appErr.Wrap(appErr.ErrGeneration, appErr.ErrUnauthorized, ""), errcode.ErrUnauthorized},
		{"rate limited", appErr.Wrap(appErr.ErrGeneration, appErr.ErrTooMany, ""), errcode.ErrTooMany},
		{"index down", appErr.Wrap(appErr.ErrRetrieval, appErr.Wrap(appErr.ErrIndex, errors.New("conn refused"), ""), ""), errcode.ErrIndexUnavailable},
		{"mismatch", appErr.Wrap(appErr.ErrRetrieval, appErr.ErrDimensionMismatch, ""), errcode.ErrDimensionMismatch},
		{"plain generation", appErr.Wrap(appErr.ErrGeneration, errors.New("boom"), ""), errcode.ErrGenerationFailed},
		{"unknown", errors.New("boom"), errcode.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}
