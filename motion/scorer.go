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
	"math"

	"github.com/TheCacophonyProject/motion-recorder/frame"
)

// Scorer turns each frame into a motion score against the frame before
// it. ok is false when there is nothing to compare against yet.
type Scorer interface {
	Next(f *frame.Frame) (score int, ok bool)
}

// Gray is a smoothed single channel frame kept between scores.
type Gray struct {
	Width  int
	Height int
	Pix    []uint8
}

func (g *Gray) sameSize(o *Gray) bool {
	return g != nil && o != nil && g.Width == o.Width && g.Height == o.Height
}

// Fixed point precision of each blur pass.
const gaussBits = 8

// DiffScorer counts the pixels that changed between two blurred
// grayscale frames.
type DiffScorer struct {
	kernel     []uint32
	diffThresh int

	prev  *Gray
	spare *Gray
	plane []uint8
	rows  []uint16
}

func NewDiffScorer(conf MotionConfig) *DiffScorer {
	return &DiffScorer{
		kernel:     gaussianKernel(conf.BlurKernel),
		diffThresh: conf.DiffThresh,
	}
}

// Next scores f against the previous frame passed to Next.
func (s *DiffScorer) Next(f *frame.Frame) (int, bool) {
	gray := s.smooth(f, s.spare)
	s.spare = nil

	score, ok := 0, s.prev.sameSize(gray)
	if ok {
		score = s.countChanged(s.prev, gray)
	}
	s.spare, s.prev = s.prev, gray
	return score, ok
}

// Score compares cur with a previously smoothed frame and returns the
// smoothed version of cur for the next call.
func (s *DiffScorer) Score(prev *Gray, cur *frame.Frame) (int, *Gray, bool) {
	gray := s.smooth(cur, nil)
	if !prev.sameSize(gray) {
		return 0, gray, false
	}
	return s.countChanged(prev, gray), gray, true
}

// Reset forgets the previous frame.
func (s *DiffScorer) Reset() {
	s.prev = nil
}

func (s *DiffScorer) countChanged(a, b *Gray) int {
	count := 0
	for i, v := range b.Pix {
		d := int(v) - int(a.Pix[i])
		if d < 0 {
			d = -d
		}
		if d > s.diffThresh {
			count++
		}
	}
	return count
}

func (s *DiffScorer) smooth(f *frame.Frame, dst *Gray) *Gray {
	w, h := f.Width, f.Height
	n := w * h
	if dst == nil || dst.Width != w || dst.Height != h {
		dst = &Gray{Width: w, Height: h, Pix: make([]uint8, n)}
	}
	if cap(s.plane) < n {
		s.plane = make([]uint8, n)
		s.rows = make([]uint16, n)
	}
	plane, rows := s.plane[:n], s.rows[:n]
	toGray(f, plane)

	r := len(s.kernel) / 2
	xs := borderIndex(w, r)
	ys := borderIndex(h, r)

	for y := 0; y < h; y++ {
		src := plane[y*w : (y+1)*w]
		out := rows[y*w : (y+1)*w]
		for x := range out {
			var sum uint32
			for k, weight := range s.kernel {
				sum += weight * uint32(src[xs[x+k]])
			}
			out[x] = uint16(sum)
		}
	}

	const round = 1 << (2*gaussBits - 1)
	for y := 0; y < h; y++ {
		out := dst.Pix[y*w : (y+1)*w]
		for x := range out {
			var sum uint32
			for k, weight := range s.kernel {
				sum += weight * uint32(rows[ys[y+k]*w+x])
			}
			out[x] = uint8((sum + round) >> (2 * gaussBits))
		}
	}
	return dst
}

// toGray uses the same fixed point weights as OpenCV's BGR2GRAY.
func toGray(f *frame.Frame, out []uint8) {
	switch f.Channels {
	case 1:
		copy(out, f.Pix)
	default:
		c := f.Channels
		for i := range out {
			p := f.Pix[i*c : i*c+3]
			out[i] = uint8((uint32(p[0])*1868 + uint32(p[1])*9617 + uint32(p[2])*4899 + 1<<13) >> 14)
		}
	}
}

// gaussianKernel returns fixed point weights summing to 1<<gaussBits.
// Sigma is derived from the size the same way OpenCV does for sigma 0.
func gaussianKernel(size int) []uint32 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	weights := make([]float64, size)
	var sum float64
	for i := range weights {
		x := float64(i - size/2)
		weights[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += weights[i]
	}

	kernel := make([]uint32, size)
	total := 0
	for i, w := range weights {
		kernel[i] = uint32(math.Round(w / sum * (1 << gaussBits)))
		total += int(kernel[i])
	}
	kernel[size/2] = uint32(int(kernel[size/2]) + (1 << gaussBits) - total)
	return kernel
}

// borderIndex maps positions -r..n+r-1 (offset by r) onto 0..n-1,
// mirroring about the edge pixels without repeating them.
func borderIndex(n, r int) []int {
	idx := make([]int, n+2*r)
	for i := range idx {
		idx[i] = reflect101(i-r, n)
	}
	return idx
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		} else {
			i = 2*(n-1) - i
		}
	}
	return i
}
