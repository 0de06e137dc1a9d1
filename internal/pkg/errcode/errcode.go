package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrNotFound
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrUploadFailed
	ErrIngestionFailed
	ErrEmbeddingFailed
	ErrIndexUnavailable
	ErrRetrievalFailed
	ErrGenerationFailed
	ErrDimensionMismatch
	ErrAIUnavailable
	ErrTimeout
)
