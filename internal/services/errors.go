package services

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("operation not permitted for this role")
	ErrValidation         = errors.New("validation failed")

	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrSelfDelete      = errors.New("cannot delete own profile")
	ErrCompanyNotFound = errors.New("company not found")
	ErrAppNotFound     = errors.New("application not found")
	ErrAppUnitNotFound = errors.New("app unit not found")
	ErrKeyNotFound     = errors.New("application key not found")
	ErrUnknownAction   = errors.New("unknown monitoring action")
	ErrUpstream        = errors.New("instance request failed")
)
