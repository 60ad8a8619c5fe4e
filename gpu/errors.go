package gpu

import "github.com/pkg/errors"

var (
	ErrUnknownKernel      = errors.New("unknown kernel")
	ErrBindingMissing     = errors.New("binding missing")
	ErrFormatMismatch     = errors.New("grid format does not match kernel slot")
	ErrSizeMismatch       = errors.New("grid size does not match dispatch")
	ErrAliasedBinding     = errors.New("output grid is also bound to another slot")
	ErrReleased           = errors.New("backend or grid already released")
	ErrBackendUnavailable = errors.New("compute backend unavailable")
)
