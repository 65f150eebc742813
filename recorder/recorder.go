// motion-recorder - record video footage of motion seen by a network camera
//  Copyright (C) 2024, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package recorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/motion-recorder/frame"
)

// StreamSpec holds the parameters every sink of a run is opened with.
type StreamSpec struct {
	Width  int
	Height int
	FPS    int
	Codec  string
}

// Sink is somewhere the frames of one episode are written.
type Sink interface {
	Append(*frame.Frame) error
	Close() error
	Name() string
}

// SinkFactory creates a sink for a new episode.
type SinkFactory interface {
	Create(name string, spec StreamSpec) (Sink, error)
}

// Summary describes a finished episode.
type Summary struct {
	ID        string
	Name      string
	Start     time.Time
	End       time.Time
	Frames    int
	PreRoll   int
	PeakScore int
}

// Annotated is implemented by sinks that store episode details along
// with the footage. Annotate is called just before Close.
type Annotated interface {
	Annotate(Summary)
}

// Discarder is implemented by sinks that can throw away what was
// written instead of finalising it.
type Discarder interface {
	Discard() error
}

// SinkUnavailableError means the output for an episode couldn't be
// created. The episode is abandoned but monitoring carries on.
type SinkUnavailableError struct {
	Name string
	Err  error
}

func (e *SinkUnavailableError) Error() string {
	return fmt.Sprintf("sink %q unavailable: %v", e.Name, e.Err)
}

func (e *SinkUnavailableError) Unwrap() error { return e.Err }

func Unavailable(name string, err error) error {
	var sinkErr *SinkUnavailableError
	if errors.As(err, &sinkErr) {
		return err
	}
	return &SinkUnavailableError{Name: name, Err: err}
}

var errNotOpen = errors.New("recorder is not open")

// Recorder owns the sink of a single episode. Frames are passed straight
// through in the order they are appended. The zero value is a recorder
// that was never opened, which is safe to Close.
type Recorder struct {
	sink   Sink
	frames int
	closed bool
}

// Open creates the sink for an episode. Any failure is reported as a
// *SinkUnavailableError.
func Open(factory SinkFactory, name string, spec StreamSpec) (*Recorder, error) {
	sink, err := factory.Create(name, spec)
	if err != nil {
		return nil, Unavailable(name, err)
	}
	if sink == nil {
		return nil, Unavailable(name, errors.New("no sink returned"))
	}
	return &Recorder{sink: sink}, nil
}

func (r *Recorder) Append(f *frame.Frame) error {
	if r == nil || r.sink == nil || r.closed {
		return errNotOpen
	}
	if err := r.sink.Append(f); err != nil {
		return err
	}
	r.frames++
	return nil
}

// Annotate passes the episode summary on to the sink if it wants it.
func (r *Recorder) Annotate(s Summary) {
	if r == nil || r.sink == nil || r.closed {
		return
	}
	if a, ok := r.sink.(Annotated); ok {
		a.Annotate(s)
	}
}

// Close finalises the sink. Only the first call has any effect.
func (r *Recorder) Close() error {
	if r == nil || r.sink == nil || r.closed {
		return nil
	}
	r.closed = true
	return r.sink.Close()
}

// Abort releases the sink without keeping the episode. Sinks that can't
// discard are closed instead. It is a no-op after Close or Abort.
func (r *Recorder) Abort() error {
	if r == nil || r.sink == nil || r.closed {
		return nil
	}
	r.closed = true
	if d, ok := r.sink.(Discarder); ok {
		return d.Discard()
	}
	return r.sink.Close()
}

func (r *Recorder) Frames() int {
	if r == nil {
		return 0
	}
	return r.frames
}

func (r *Recorder) Name() string {
	if r == nil || r.sink == nil {
		return ""
	}
	return r.sink.Name()
}

// NoWriteFactory creates sinks which only count frames.
type NoWriteFactory struct{}

func (NoWriteFactory) Create(name string, spec StreamSpec) (Sink, error) {
	return &NoWriteSink{name: name}, nil
}

type NoWriteSink struct {
	name   string
	Frames int
}

func (s *NoWriteSink) Append(*frame.Frame) error { s.Frames++; return nil }
func (s *NoWriteSink) Close() error              { return nil }
func (s *NoWriteSink) Name() string              { return s.name }
