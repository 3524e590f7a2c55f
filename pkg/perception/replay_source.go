package perception

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// ReplaySource plays back frames recorded as JSON lines, one Frame per line.
type ReplaySource struct {
	file     io.Closer
	scanner  *bufio.Scanner
	interval time.Duration
	line     int
	started  bool
}

// OpenReplay opens a recording. interval paces playback; zero plays as fast as read.
func OpenReplay(path string, interval time.Duration) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening replay file '%s': %w", path, err)
	}
	return NewReplaySource(f, interval), nil
}

// NewReplaySource reads frames from r. r is closed by Close when it is an io.Closer.
func NewReplaySource(r io.Reader, interval time.Duration) *ReplaySource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	src := &ReplaySource{scanner: scanner, interval: interval}
	if c, ok := r.(io.Closer); ok {
		src.file = c
	}
	return src
}

// Next returns the next recorded frame, io.EOF at the end of the recording,
// or an ErrNoFrame error for a line that does not parse.
func (s *ReplaySource) Next(ctx context.Context) (Frame, error) {
	if s.started && s.interval > 0 {
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Frame{}, ctx.Err()
		case <-timer.C:
		}
	}
	s.started = true

	for s.scanner.Scan() {
		s.line++
		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return Frame{}, fmt.Errorf("%w: replay line %d: %v", ErrNoFrame, s.line, err)
		}
		if err := frame.Intrinsics.Validate(); err != nil {
			return Frame{}, fmt.Errorf("%w: replay line %d: %v", ErrNoFrame, s.line, err)
		}
		return frame, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("error reading replay: %w", err)
	}
	return Frame{}, io.EOF
}

func (s *ReplaySource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
