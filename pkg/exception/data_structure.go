package exception

import "github.com/yanun0323/errors"

var (
	ErrRingFull        = errors.New("shared memory ring full")
	ErrRecordTooLarge  = errors.New("record exceeds ring capacity")
	ErrCorruptRing     = errors.New("shared memory ring corrupted")
	ErrQueueFull       = errors.New("update queue full")
	ErrInvalidArgument = errors.New("invalid argument")
)
