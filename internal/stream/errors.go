package stream

import "errors"

var (
	errStreamBusy   = errors.New("stream already open")
	errStreamClosed = errors.New("stream not open")
)
