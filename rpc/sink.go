package rpc

import (
	"io"
	"sync"
)

// sink is an inbound byte stream fed by stream frames. Writes never block,
// so the connection's read loop keeps flowing while the consumer is slow.
type sink struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	closed bool
	err    error
	size   int64
}

func newSink() *sink {
	s := &sink{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *sink) write(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(chunk) > 0 {
		s.chunks = append(s.chunks, chunk)
		s.size += int64(len(chunk))
	}
	s.cond.Broadcast()
}

// finish ends the stream. A nil err reads as io.EOF once drained.
func (s *sink) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	s.cond.Broadcast()
}

func (s *sink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.chunks) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.chunks) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	n := copy(p, s.chunks[0])
	if n == len(s.chunks[0]) {
		s.chunks = s.chunks[1:]
	} else {
		s.chunks[0] = s.chunks[0][n:]
	}
	return n, nil
}

// Close discards anything not read yet.
func (s *sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	if !s.closed {
		s.closed = true
		s.err = io.ErrClosedPipe
		s.cond.Broadcast()
	}
	return nil
}
