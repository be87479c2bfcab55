package collector

import "errors"

var (
	// ErrDecode marks a message whose body could not be turned into text.
	// The message is dropped and consumption continues.
	ErrDecode = errors.New("payload is not decodable text")
	// ErrUnexpected marks a failure outside the known categories, such as a
	// panic escaping the message handler. It ends the run.
	ErrUnexpected = errors.New("unexpected failure")
)
