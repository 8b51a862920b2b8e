package template

import "errors"

var (
	ErrFailedToParseCatalog = errors.New("failed to parse template catalog")
	ErrInvalidCatalog       = errors.New("invalid template catalog")
	ErrIncompleteCatalog    = errors.New("incomplete template catalog")
	ErrTemplateNotFound     = errors.New("template not found")
	ErrRenderFailed         = errors.New("failed to render template")
	ErrMissingSubject       = errors.New("mail template requires a subject")
	ErrMissingBody          = errors.New("template requires a body")
	ErrBodyTooLong          = errors.New("rendered body exceeds channel limit")
)
