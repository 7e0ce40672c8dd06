// Package stream chains processing steps over a stream of rows
package stream

import (
	"github.com/jrife/cfstore/store"
)

// Stream describes a stream of rows
type Stream interface {
	// Next advances the stream. It must
	// be called once at the start to advance
	// to the first row in the stream. It returns
	// true if there is a row available
	// or false otherwise. It may return false in
	// case of an error. Error() will return
	// an error if this is the case and must be checked
	// after Next() returns false.
	Next() bool
	// Row returns the row at the current position
	Row() store.Row
	// Error returns the error that occurred, if any
	Error() error
}

// Processor is a function that returns a stream
// derived from a source stream.
type Processor func(Stream) Stream

// Pipeline connects a series of processors to a source
// stream and returns the derived stream. nil processors
// are skipped.
func Pipeline(stream Stream, processors ...Processor) Stream {
	for _, processor := range processors {
		if processor == nil {
			continue
		}

		stream = processor(stream)
	}

	return stream
}

// ForEach calls fn for every row of the stream until the stream
// ends or fn fails. It returns the number of rows for which fn
// succeeded.
func ForEach(stream Stream, fn func(store.Row) error) (int64, error) {
	var n int64

	for stream.Next() {
		if err := fn(stream.Row()); err != nil {
			return n, err
		}

		n++
	}

	return n, stream.Error()
}

// Count drains the stream and returns the number of rows in it
func Count(stream Stream) (int64, error) {
	return ForEach(stream, func(store.Row) error { return nil })
}
