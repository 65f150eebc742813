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

package main

import (
	"errors"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheCacophonyProject/motion-recorder/frame"
)

const (
	snapshotName          = "still.png"
	allowedSnapshotPeriod = 500 * time.Millisecond
)

// snapshotter saves the most recent frame as a still image.
type snapshotter struct {
	dir    string
	latest func() *frame.Frame
	now    func() time.Time

	mu           sync.Mutex
	previousSeq  uint64
	previousTime time.Time
}

func newSnapshotter(dir string, latest func() *frame.Frame) *snapshotter {
	return &snapshotter{
		dir:    dir,
		latest: latest,
		now:    time.Now,
	}
}

func (s *snapshotter) path() string {
	return filepath.Join(s.dir, snapshotName)
}

func (s *snapshotter) Take() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.now().Sub(s.previousTime) < allowedSnapshotPeriod {
		return nil
	}

	f := s.latest()
	if f == nil {
		return errors.New("no frames yet")
	}
	// Check if frame had already been saved
	if f.Seq == s.previousSeq && !s.previousTime.IsZero() {
		return nil
	}

	img, err := frameImage(f)
	if err != nil {
		return err
	}

	tempPath := s.path() + ".temp"
	out, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		os.Remove(tempPath)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Rename(tempPath, s.path()); err != nil {
		return err
	}

	// the time will be changed only if the attempt is successful
	s.previousSeq = f.Seq
	s.previousTime = s.now()
	return nil
}

func (s *snapshotter) Delete() {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		log.Printf("error deleting snapshot image: %v", err)
	}
}

// frameImage converts a gray, BGR or BGRA frame into an image.
func frameImage(f *frame.Frame) (image.Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.Channels == 1 {
		g := image.NewGray(rect)
		copy(g.Pix, f.Pix)
		return g, nil
	}

	img := image.NewRGBA(rect)
	for i, j := 0, 0; i < len(f.Pix); i, j = i+f.Channels, j+4 {
		img.Pix[j] = f.Pix[i+2]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}
