package stream

// Limit stops the stream after limit rows. A limit <= 0
// leaves the stream unlimited.
func Limit(limit int) Processor {
	if limit <= 0 {
		return nil
	}

	return func(stream Stream) Stream {
		return &limitedStream{stream, limit}
	}
}

type limitedStream struct {
	Stream
	remaining int
}

func (stream *limitedStream) Next() bool {
	if stream.remaining <= 0 {
		return false
	}

	stream.remaining--

	return stream.Stream.Next()
}
