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

package opencv

import (
	"image"
	"log"

	"gocv.io/x/gocv"

	"github.com/TheCacophonyProject/motion-recorder/frame"
	"github.com/TheCacophonyProject/motion-recorder/motion"
)

// Scorer is a motion.Scorer running the blur and difference steps in
// OpenCV.
type Scorer struct {
	kernel     int
	diffThresh float32

	gray    gocv.Mat
	blurred gocv.Mat
	prev    gocv.Mat
	diff    gocv.Mat
	mask    gocv.Mat
	hasPrev bool
}

var _ motion.Scorer = (*Scorer)(nil)

func NewScorer(conf motion.MotionConfig) *Scorer {
	return &Scorer{
		kernel:     conf.BlurKernel,
		diffThresh: float32(conf.DiffThresh),
		gray:       gocv.NewMat(),
		blurred:    gocv.NewMat(),
		prev:       gocv.NewMat(),
		diff:       gocv.NewMat(),
		mask:       gocv.NewMat(),
	}
}

func (s *Scorer) Next(f *frame.Frame) (int, bool) {
	src, err := toMat(f)
	if err != nil {
		log.Printf("can't score %v: %v", f, err)
		s.hasPrev = false
		return 0, false
	}
	defer src.Close()

	switch f.Channels {
	case 1:
		src.CopyTo(&s.gray)
	case 4:
		gocv.CvtColor(src, &s.gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(src, &s.gray, gocv.ColorBGRToGray)
	}
	gocv.GaussianBlur(s.gray, &s.blurred, image.Pt(s.kernel, s.kernel), 0, 0, gocv.BorderDefault)

	ok := s.hasPrev && s.prev.Cols() == s.blurred.Cols() && s.prev.Rows() == s.blurred.Rows()
	score := 0
	if ok {
		gocv.AbsDiff(s.prev, s.blurred, &s.diff)
		gocv.Threshold(s.diff, &s.mask, s.diffThresh, 255, gocv.ThresholdBinary)
		score = gocv.CountNonZero(s.mask)
	}
	s.blurred.CopyTo(&s.prev)
	s.hasPrev = true
	return score, ok
}

func (s *Scorer) Close() error {
	for _, m := range []*gocv.Mat{&s.gray, &s.blurred, &s.prev, &s.diff, &s.mask} {
		m.Close()
	}
	return nil
}
