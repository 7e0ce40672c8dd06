package stream

import (
	"github.com/jrife/cfstore/store"
)

// Filter filters out rows from the source stream for
// which the filter function returns false. A nil filter
// keeps every row.
func Filter(filter func(row store.Row) bool) Processor {
	if filter == nil {
		return nil
	}

	return func(stream Stream) Stream {
		return &filteredStream{stream, filter}
	}
}

type filteredStream struct {
	Stream
	filter func(row store.Row) bool
}

func (stream *filteredStream) Next() bool {
	hasMore := false

	for hasMore = stream.Stream.Next(); hasMore && !stream.filter(stream.Row()); hasMore = stream.Stream.Next() {
	}

	return hasMore
}
