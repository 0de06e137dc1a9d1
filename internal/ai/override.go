package ai

import (
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

// Override replaces generation settings for a single call. Zero fields keep the configured value.
type Override struct {
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   int
}

func (o Override) Validate() error {
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		return appErr.New(appErr.ErrInvalid, "temperature must be within [0, 2]")
	}
	if o.TopP != nil && (*o.TopP <= 0 || *o.TopP > 1) {
		return appErr.New(appErr.ErrInvalid, "top_p must be within (0, 1]")
	}
	if o.MaxTokens < 0 {
		return appErr.New(appErr.ErrInvalid, "max_tokens must not be negative")
	}
	return nil
}

func (o Override) apply(model string, params GenerateParams) (string, GenerateParams) {
	if o.Model != "" {
		model = o.Model
	}
	if o.Temperature != nil {
		params.Temperature = *o.Temperature
	}
	if o.TopP != nil {
		params.TopP = *o.TopP
	}
	if o.MaxTokens > 0 {
		params.MaxTokens = o.MaxTokens
	}
	return model, params
}
