package domain

import "errors"

// Domain errors
var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrNameTaken      = errors.New("player name already exists")
	ErrNameConflict   = errors.New("player name conflict")
	ErrNameRequired   = errors.New("player_name required")
	ErrInvalidPatch   = errors.New("request body must be an object of operations")
	ErrInternalError  = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound)
}

// IsConflictError checks if an error is a name-uniqueness violation
func IsConflictError(err error) bool {
	return errors.Is(err, ErrNameTaken) || errors.Is(err, ErrNameConflict)
}
