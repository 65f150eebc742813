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

// Package opencv connects cameras and video files through gocv.
package opencv

import (
	"errors"
	"image"
	"io"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/TheCacophonyProject/motion-recorder/frame"
)

// Source reads frames from an RTSP stream or a video file.
type Source struct {
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	img      gocv.Mat
	resized  gocv.Mat
	width    int
	height   int
	live     bool
	seq      uint64
	interval time.Duration
	start    time.Time
	closed   bool
}

// Open connects to the camera. The resolution reported by the stream is
// used for the whole run. If it can't be read the descriptor's width
// and height are used instead.
func Open(desc frame.ConnectionDescriptor) (*Source, error) {
	capture, err := gocv.OpenVideoCapture(desc.Address())
	if err != nil {
		return nil, &frame.ConnectionError{Address: desc.Redacted(), Err: err}
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, &frame.ConnectionError{Address: desc.Redacted(), Err: errors.New("stream could not be opened")}
	}

	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))
	if width <= 0 || height <= 0 {
		log.Printf("camera didn't report its resolution, using %dx%d", desc.Width, desc.Height)
		width, height = desc.Width, desc.Height
	}

	s := &Source{
		capture: capture,
		img:     gocv.NewMat(),
		resized: gocv.NewMat(),
		width:   width,
		height:  height,
		live:    desc.Live(),
		start:   time.Now(),
	}
	if !s.live {
		// Files are read as fast as possible so frame times come from
		// the file's frame rate instead of the clock.
		if fps := capture.Get(gocv.VideoCaptureFPS); fps > 0 {
			s.interval = time.Duration(float64(time.Second) / fps)
		}
	}
	return s, nil
}

func (s *Source) Width() int  { return s.width }
func (s *Source) Height() int { return s.height }

// FPS returns the frame rate reported by the stream, or 0.
func (s *Source) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	return s.capture.Get(gocv.VideoCaptureFPS)
}

func (s *Source) Read() (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, io.EOF
	}
	if !s.capture.Read(&s.img) || s.img.Empty() {
		if s.live {
			return nil, &frame.ReadError{Seq: s.seq, Err: errors.New("stream returned no frame")}
		}
		return nil, io.EOF
	}

	img := s.img
	if img.Cols() != s.width || img.Rows() != s.height {
		gocv.Resize(img, &s.resized, image.Pt(s.width, s.height), 0, 0, gocv.InterpolationLinear)
		img = s.resized
	}

	s.seq++
	t := time.Now()
	if s.interval > 0 {
		t = s.start.Add(time.Duration(s.seq-1) * s.interval)
	}
	// ToBytes copies, so the frame doesn't share memory with the Mat.
	return frame.New(s.seq, t, s.width, s.height, img.Channels(), img.ToBytes())
}

// Close waits for any read in progress before releasing the stream.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.img.Close()
	s.resized.Close()
	return s.capture.Close()
}
