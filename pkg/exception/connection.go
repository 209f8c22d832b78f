package exception

import "github.com/yanun0323/errors"

var (
	ErrNotConnected    = errors.New("session not connected")
	ErrNotAuthed       = errors.New("session not authenticated")
	ErrAuthRejected    = errors.New("authentication rejected by venue")
	ErrConnectionClose = errors.New("connection closed")
)
