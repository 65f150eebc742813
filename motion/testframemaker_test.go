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

package motion

import (
	"time"

	"github.com/TheCacophonyProject/motion-recorder/frame"
)

const (
	testFrameCols = 64
	testFrameRows = 48
)

// TestFrameMaker plays frames into a controller. Frames are numbered
// from 1 and spaced at the given frame rate.
type TestFrameMaker struct {
	controller    *EpisodeController
	scorer        *DiffScorer
	interval      time.Duration
	start         time.Time
	seq           uint64
	BackgroundVal uint8
	BlockVal      uint8
	blockPosition int
}

func MakeTestFrameMaker(controller *EpisodeController, fps int) *TestFrameMaker {
	return &TestFrameMaker{
		controller:    controller,
		scorer:        NewDiffScorer(DefaultMotionConfig()),
		interval:      time.Second / time.Duration(fps),
		start:         time.Date(2024, 3, 1, 22, 15, 0, 0, time.UTC),
		BackgroundVal: 40,
		BlockVal:      220,
	}
}

// AddFrames plays frames with a fixed score. The very first frame is
// never scored.
func (tfm *TestFrameMaker) AddFrames(frames, score int) *TestFrameMaker {
	for i := 0; i < frames; i++ {
		f := tfm.makeFrame()
		tfm.controller.Process(f, score, f.Seq > 1)
	}
	return tfm
}

func (tfm *TestFrameMaker) AddBackgroundFrames(frames int) *TestFrameMaker {
	for i := 0; i < frames; i++ {
		tfm.playScored(tfm.makeFrame())
	}
	return tfm
}

func (tfm *TestFrameMaker) AddMovingBlockFrames(frames int) *TestFrameMaker {
	for i := 0; i < frames; i++ {
		tfm.blockPosition = (tfm.blockPosition + 6) % (testFrameRows - 12)
		f := tfm.makeFrame()
		drawBlock(f, tfm.blockPosition, tfm.blockPosition, 12, tfm.BlockVal)
		tfm.playScored(f)
	}
	return tfm
}

func (tfm *TestFrameMaker) FrameTime(seq uint64) time.Time {
	return tfm.start.Add(time.Duration(seq-1) * tfm.interval)
}

func (tfm *TestFrameMaker) playScored(f *frame.Frame) {
	score, ok := tfm.scorer.Next(f)
	tfm.controller.Process(f, score, ok)
}

func (tfm *TestFrameMaker) makeFrame() *frame.Frame {
	tfm.seq++
	f := newGrayFrame(testFrameCols, testFrameRows, tfm.BackgroundVal)
	f.Seq = tfm.seq
	f.Time = tfm.FrameTime(tfm.seq)
	return f
}

func newGrayFrame(w, h int, val uint8) *frame.Frame {
	pix := make([]byte, w*h)
	for i := range pix {
		pix[i] = val
	}
	return &frame.Frame{Width: w, Height: h, Channels: 1, Pix: pix}
}

func drawBlock(f *frame.Frame, x0, y0, size int, val uint8) {
	for y := y0; y < y0+size && y < f.Height; y++ {
		for x := x0; x < x0+size && x < f.Width; x++ {
			for c := 0; c < f.Channels; c++ {
				f.Pix[(y*f.Width+x)*f.Channels+c] = val
			}
		}
	}
}
