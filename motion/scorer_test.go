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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/motion-recorder/frame"
)

func TestGaussianKernel(t *testing.T) {
	for _, size := range []int{1, 3, 5, 21} {
		k := gaussianKernel(size)
		require.Len(t, k, size)

		var sum uint32
		for _, w := range k {
			sum += w
		}
		assert.Equal(t, uint32(1<<gaussBits), sum, "size %d", size)

		for i := 0; i < size/2; i++ {
			assert.LessOrEqual(t, k[i], k[i+1], "size %d", size)
		}
	}
}

func TestReflect101(t *testing.T) {
	assert.Equal(t, 2, reflect101(-2, 5))
	assert.Equal(t, 1, reflect101(-1, 5))
	assert.Equal(t, 0, reflect101(0, 5))
	assert.Equal(t, 4, reflect101(4, 5))
	assert.Equal(t, 3, reflect101(5, 5))
	assert.Equal(t, 2, reflect101(6, 5))
	assert.Equal(t, 0, reflect101(7, 1))
	// Wider than the image itself.
	assert.Equal(t, 1, reflect101(-3, 2))
}

func TestFirstFrameHasNoScore(t *testing.T) {
	s := NewDiffScorer(DefaultMotionConfig())
	_, ok := s.Next(newGrayFrame(32, 32, 10))
	assert.False(t, ok)
}

func TestIdenticalFramesScoreZero(t *testing.T) {
	s := NewDiffScorer(DefaultMotionConfig())
	s.Next(newGrayFrame(32, 32, 10))
	score, ok := s.Next(newGrayFrame(32, 32, 10))
	assert.True(t, ok)
	assert.Equal(t, 0, score)
}

func TestUniformFrameStaysUniform(t *testing.T) {
	s := NewDiffScorer(DefaultMotionConfig())
	gray := s.smooth(newGrayFrame(30, 20, 123), nil)
	for _, v := range gray.Pix {
		require.Equal(t, uint8(123), v)
	}
}

func TestSmallChangesAreIgnored(t *testing.T) {
	s := NewDiffScorer(DefaultMotionConfig())
	s.Next(newGrayFrame(32, 32, 100))

	noisy := newGrayFrame(32, 32, 100)
	for i := range noisy.Pix {
		if i%2 == 0 {
			noisy.Pix[i] = 110
		} else {
			noisy.Pix[i] = 90
		}
	}
	score, ok := s.Next(noisy)
	assert.True(t, ok)
	assert.Equal(t, 0, score)
}

func TestMovingBlockScores(t *testing.T) {
	s := NewDiffScorer(DefaultMotionConfig())
	s.Next(newGrayFrame(64, 64, 0))

	f := newGrayFrame(64, 64, 0)
	drawBlock(f, 20, 20, 16, 255)
	score, ok := s.Next(f)
	assert.True(t, ok)
	assert.Greater(t, score, 0)
	assert.Less(t, score, 64*64)

	// Nothing changed since the block appeared.
	f2 := newGrayFrame(64, 64, 0)
	drawBlock(f2, 20, 20, 16, 255)
	score, _ = s.Next(f2)
	assert.Equal(t, 0, score)
}

func TestScoreIsStateless(t *testing.T) {
	s := NewDiffScorer(DefaultMotionConfig())

	_, prev, ok := s.Score(nil, newGrayFrame(64, 64, 0))
	assert.False(t, ok)

	f := newGrayFrame(64, 64, 0)
	drawBlock(f, 10, 10, 16, 255)
	first, _, ok := s.Score(prev, f)
	assert.True(t, ok)
	second, _, _ := s.Score(prev, f)
	assert.Equal(t, first, second)

	// Matches the stateful version.
	s2 := NewDiffScorer(DefaultMotionConfig())
	s2.Next(newGrayFrame(64, 64, 0))
	third, _ := s2.Next(f)
	assert.Equal(t, first, third)
}

func TestColourMatchesGray(t *testing.T) {
	gray := newGrayFrame(40, 30, 60)
	drawBlock(gray, 5, 5, 10, 200)

	bgr := &frame.Frame{Width: 40, Height: 30, Channels: 3, Pix: make([]byte, 40*30*3)}
	for i, v := range gray.Pix {
		bgr.Pix[i*3], bgr.Pix[i*3+1], bgr.Pix[i*3+2] = v, v, v
	}

	s1 := NewDiffScorer(DefaultMotionConfig())
	s1.Next(newGrayFrame(40, 30, 60))
	grayScore, _ := s1.Next(gray)

	s2 := NewDiffScorer(DefaultMotionConfig())
	s2.Next(newGrayFrame(40, 30, 60))
	colourScore, _ := s2.Next(bgr)

	assert.Equal(t, grayScore, colourScore)
	assert.Greater(t, grayScore, 0)
}

func TestSizeChangeReseeds(t *testing.T) {
	s := NewDiffScorer(DefaultMotionConfig())
	s.Next(newGrayFrame(32, 32, 0))
	_, ok := s.Next(newGrayFrame(16, 16, 0))
	assert.False(t, ok)
	_, ok = s.Next(newGrayFrame(16, 16, 0))
	assert.True(t, ok)
}

func TestReset(t *testing.T) {
	s := NewDiffScorer(DefaultMotionConfig())
	s.Next(newGrayFrame(32, 32, 0))
	s.Reset()
	_, ok := s.Next(newGrayFrame(32, 32, 0))
	assert.False(t, ok)
}
