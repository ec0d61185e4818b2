package apperrors

import "errors"

var (
	ErrInvalidQuery    = errors.New("invalid query")
	ErrEntityNotFound  = errors.New("entity not found")
	ErrNoEntities      = errors.New("no entities found for data source")
	ErrGraphNotBuilt   = errors.New("relationship graph has not been built")
	ErrUnexpectedReply = errors.New("unexpected response from upstream service")
)
