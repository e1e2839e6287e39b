package stream

import "errors"

var (
	// ErrStreamNotFound is returned when a stream ID has no active pipeline.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrSegmentFetch is returned when a media or init segment cannot be downloaded.
	ErrSegmentFetch = errors.New("segment fetch failed")

	// ErrDecrypt is returned when decryption cannot even be attempted,
	// for example when the configured key is not valid hex.
	ErrDecrypt = errors.New("decrypt failed")

	// ErrMux is returned when remuxing a segment pair to MPEG-TS fails.
	ErrMux = errors.New("mux failed")

	// ErrWriterClosed is returned when writing to an HLS writer that has
	// already stopped or whose process has exited.
	ErrWriterClosed = errors.New("hls writer closed")
)
