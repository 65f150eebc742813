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

package throttle

import (
	"errors"
	"log"
	"time"

	"github.com/juju/ratelimit"

	"github.com/TheCacophonyProject/motion-recorder/frame"
	"github.com/TheCacophonyProject/motion-recorder/recorder"
)

// ErrThrottled is returned once the frame budget has run out.
var ErrThrottled = errors.New("recording throttled")

type ThrottledEventListener interface {
	WhenThrottled()
}

type nullListener struct{}

func (lis *nullListener) WhenThrottled() {}

func NewThrottledSinkFactory(
	base recorder.SinkFactory,
	config *ThrottlerConfig,
	minSeconds int,
	fps int,
	listener ThrottledEventListener,
) *ThrottledSinkFactory {
	return NewThrottledSinkFactoryWithClock(base, config, minSeconds, fps, listener, new(realClock))
}

func NewThrottledSinkFactoryWithClock(
	base recorder.SinkFactory,
	config *ThrottlerConfig,
	minSeconds int,
	fps int,
	listener ThrottledEventListener,
	clock ratelimit.Clock,
) *ThrottledSinkFactory {
	// The token bucket tracks the number of *frames* available for recording.
	bucketFrames := int64(config.BucketSize.Seconds()) * int64(fps)
	minFrames := int64(minSeconds * fps)
	refillRate := float64(minFrames) / config.MinRefill.Seconds()

	if minFrames > bucketFrames {
		log.Println("minimum recording length is greater than throttle bucket - recording will not be possible!")
	}

	if listener == nil {
		listener = new(nullListener)
	}

	return &ThrottledSinkFactory{
		base:               base,
		listener:           listener,
		bucket:             ratelimit.NewBucketWithRateAndClock(refillRate, bucketFrames, clock),
		minRecordingLength: minFrames,
	}
}

// ThrottledSinkFactory limits how much footage gets recorded when
// motion is detected too often. This is desirable as the extra
// recordings are likely to be highly similar to the earlier ones and
// contain no new information. It can happen when it is very windy or
// the camera is pointed at a busy road.
//
// A new sink is only created when the bucket holds enough frames for a
// minimal episode, and every frame written takes one from the bucket.
type ThrottledSinkFactory struct {
	base               recorder.SinkFactory
	listener           ThrottledEventListener
	bucket             *ratelimit.Bucket
	minRecordingLength int64
}

func (t *ThrottledSinkFactory) Create(name string, spec recorder.StreamSpec) (recorder.Sink, error) {
	if t.bucket.Available() < t.minRecordingLength {
		t.listener.WhenThrottled()
		return nil, recorder.Unavailable(name, ErrThrottled)
	}
	sink, err := t.base.Create(name, spec)
	if err != nil {
		return nil, err
	}
	return &throttledSink{Sink: sink, throttler: t}, nil
}

// Available returns the number of frames that may currently be written.
func (t *ThrottledSinkFactory) Available() int64 {
	return t.bucket.Available()
}

type throttledSink struct {
	recorder.Sink
	throttler *ThrottledSinkFactory
}

func (s *throttledSink) Append(f *frame.Frame) error {
	if s.throttler.bucket.TakeAvailable(1) > 0 {
		return s.Sink.Append(f)
	}
	log.Print("recording throttled")
	s.throttler.listener.WhenThrottled()
	return ErrThrottled
}

func (s *throttledSink) Annotate(summary recorder.Summary) {
	if a, ok := s.Sink.(recorder.Annotated); ok {
		a.Annotate(summary)
	}
}

func (s *throttledSink) Discard() error {
	if d, ok := s.Sink.(recorder.Discarder); ok {
		return d.Discard()
	}
	return s.Sink.Close()
}

// realClock implements ratelimit.Clock in terms of standard time functions.
type realClock struct{}

// Now implements Clock.Now by calling time.Now.
func (realClock) Now() time.Time {
	return time.Now()
}

// Now implements Clock.Sleep by calling time.Sleep.
func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
