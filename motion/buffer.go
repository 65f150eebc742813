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
	"sync"

	"github.com/TheCacophonyProject/motion-recorder/frame"
)

// PreEventBuffer keeps the most recent frames so an episode can start
// with footage from before the motion was detected. Once full, each
// push overwrites the oldest frame.
type PreEventBuffer struct {
	size   int
	next   int
	count  int
	frames []*frame.Frame
	mu     sync.Mutex
}

func NewPreEventBuffer(size int) (*PreEventBuffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pre-event buffer size must be positive, got %d", size)
	}
	return &PreEventBuffer{
		size:   size,
		frames: make([]*frame.Frame, size),
	}, nil
}

func (b *PreEventBuffer) nextIndexAfter(index int) int {
	return (index + 1) % b.size
}

func (b *PreEventBuffer) Push(f *frame.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frames[b.next] = f
	b.next = b.nextIndexAfter(b.next)
	if b.count < b.size {
		b.count++
	}
}

// Frames returns the buffered frames from oldest to newest. The buffer
// itself is left unchanged.
func (b *PreEventBuffer) Frames() []*frame.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*frame.Frame, b.count)
	oldest := (b.next - b.count + b.size) % b.size
	for i := range out {
		out[i] = b.frames[(oldest+i)%b.size]
	}
	return out
}

func (b *PreEventBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.frames {
		b.frames[i] = nil
	}
	b.next = 0
	b.count = 0
}

func (b *PreEventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *PreEventBuffer) Cap() int {
	return b.size
}
