package track

import (
	"context"
	"os"

	"github.com/bytedance/sonic"
)

// File appends one JSON payload per line to a local file. The append is
// not atomic; the tracking log is an observability artifact, not state.
type File struct {
	f *os.File
}

func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &SinkUnavailableError{Sink: "file", Err: err}
	}
	return &File{f: f}, nil
}

func (s *File) Log(_ context.Context, p Payload) error {
	b, err := sonic.Marshal(p)
	if err != nil {
		return &SinkUnavailableError{Sink: "file", Err: err}
	}
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		return &SinkUnavailableError{Sink: "file", Err: err}
	}
	return nil
}

func (s *File) Close() error {
	return s.f.Close()
}
