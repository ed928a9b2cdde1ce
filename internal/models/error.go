package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrValidation     = errors.New("invalid input")
	ErrPersistence    = errors.New("persistent store unavailable")
	ErrExpired        = errors.New("expired")
	ErrAlreadyUsed    = errors.New("already used")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternalServer = errors.New("internal server error")

	// Login flow errors
	ErrIdentityLocked  = errors.New("identity is temporarily locked")
	ErrCaptchaRequired = errors.New("captcha verification required")
	ErrCaptchaFailed   = errors.New("captcha verification failed")
)
