package service

import "errors"

var (
	ErrValidation            = errors.New("validation failed")
	ErrDuplicateUser         = errors.New("user already exists")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountBanned         = errors.New("account banned")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired refresh token")
	ErrInvalidToken          = errors.New("invalid verification token")
	ErrAlreadyVerified       = errors.New("email already verified")
	ErrNotFound              = errors.New("not found")
)
