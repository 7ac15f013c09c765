package domain

import "errors"

var (
	ErrInvalidCredential = errors.New("invalid stream credential")
	ErrAlreadyLive       = errors.New("stream key already publishing")
	ErrStreamNotFound    = errors.New("stream not found")
	ErrSessionEnded      = errors.New("session already ended")
	ErrEncoderSpawn      = errors.New("encoder failed to start")
	ErrEncoderCrashed    = errors.New("encoder exited abnormally")
	ErrMessageTooLong    = errors.New("chat message exceeds length cap")
	ErrMissingField      = errors.New("required field missing")
)
