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

// Package frame holds the raster type passed between the camera, the
// motion scorer and the episode recorder.
package frame

import (
	"fmt"
	"time"
)

// Frame is a single decoded picture. Pix is row-major with Channels
// interleaved bytes per pixel (BGR order for colour frames). A Frame is
// never modified after the source hands it out, so it can be shared by
// the pre-event buffer and an open recording.
type Frame struct {
	Seq      uint64
	Time     time.Time
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

func New(seq uint64, t time.Time, width, height, channels int, pix []byte) (*Frame, error) {
	f := &Frame{
		Seq:      seq,
		Time:     t,
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      pix,
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks that the pixel data matches the frame dimensions.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	switch f.Channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	if want := f.Width * f.Height * f.Channels; len(f.Pix) != want {
		return fmt.Errorf("frame has %d bytes, expected %d", len(f.Pix), want)
	}
	return nil
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame %d (%dx%dx%d) at %s", f.Seq, f.Width, f.Height, f.Channels, f.Time.Format(time.RFC3339Nano))
}
