package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrInvalidDelay    = fmt.Errorf("delay must be greater or equal to zero")
	ErrInvalidWindow   = fmt.Errorf("time window must be strictly positive")
	ErrInvalidLifetime = fmt.Errorf("lifetime must be greater or equal to zero")
	ErrInvalidMessage  = fmt.Errorf("invalid message")

	ErrUnknownFeedAccount = fmt.Errorf("unknown feed account")

	ErrInvalidCredentials  = fmt.Errorf("invalid credentials")
	ErrInvalidRegistration = fmt.Errorf("invalid registration")
	ErrInvalidPassword     = fmt.Errorf("password does not meet complexity rules")
	ErrUserAlreadyExists   = fmt.Errorf("user already exists")
	ErrUserNotFound        = fmt.Errorf("user not found")
)
