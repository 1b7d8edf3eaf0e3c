package memory

import "errors"

var (
	ErrSectionIDNotFoundInCtx = errors.New("no unit section id found in ctx")
	ErrSectionNotFound        = errors.New("unit section not found")
)
