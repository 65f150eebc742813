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
	"fmt"
	"math"
)

// scoreStats tracks the motion scores seen during an episode for
// verbose logging.
type scoreStats struct {
	n     int
	min   int
	max   int
	avg   float64
	above int
}

func newScoreStats() *scoreStats {
	s := new(scoreStats)
	s.reset()
	return s
}

func (s *scoreStats) reset() {
	s.n = 0
	s.max = math.MinInt32
	s.min = math.MaxInt32
	s.avg = 0
	s.above = 0
}

func (s *scoreStats) update(score, threshold int) {
	s.n++
	if score > s.max {
		s.max = score
	}
	if score < s.min {
		s.min = score
	}
	if score > threshold {
		s.above++
	}
	// Cumulative moving average
	s.avg = s.avg + ((float64(score) - s.avg) / float64(s.n))
}

func (s *scoreStats) String() string {
	if s.n == 0 {
		return "no scores"
	}
	return fmt.Sprintf("%d scores, %d over threshold, %d -> %d (avg: %.2f)", s.n, s.above, s.min, s.max, s.avg)
}
