package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrNotFound
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrFileTooLarge
	ErrUploadFailed
	ErrConfiguration
	ErrEmbedderUnavailable
	ErrGeneratorUnavailable
	ErrIndexUnavailable
)
