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
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheCacophonyProject/motion-recorder/frame"
	"github.com/TheCacophonyProject/motion-recorder/motion"
	"github.com/TheCacophonyProject/motion-recorder/recorder"
)

var videoExtensions = map[string]bool{
	".mp4": true,
	".mkv": true,
	".avi": true,
	".mov": true,
}

// playbackListener records which frames would have been recorded.
type playbackListener struct {
	verbose        bool
	frameCount     int
	motionCount    int
	recordedFrames string
	episodes       []motion.Episode
}

func (p *playbackListener) MotionDetected() {
	p.motionCount++
}

func (p *playbackListener) RecordingStarted(ep motion.Episode) {
	if p.verbose {
		log.Printf("%d: Recording Started", p.frameCount)
	}
	p.recordedFrames += fmt.Sprintf("(%d:", ep.FirstSeq)
}

func (p *playbackListener) RecordingEnded(ep motion.Episode) {
	if p.verbose {
		log.Printf("%d: Recording Ended (%d frames, peak score %d)", p.frameCount, ep.Frames, ep.PeakScore)
	}
	p.recordedFrames += fmt.Sprintf("%d)", ep.LastSeq)
	p.episodes = append(p.episodes, ep)
}

func (p *playbackListener) completed() {
	if p.recordedFrames == "" {
		p.recordedFrames = "None"
	}
}

func (p *playbackListener) String() string {
	return fmt.Sprintf("Recorded: %-24s Motion frames: %d/%d", p.recordedFrames, p.motionCount, p.frameCount)
}

type sourceOpener func(filename string) (frame.Source, error)
type scorerMaker func() motion.Scorer

// playbackTester runs recorded footage through motion detection without
// writing anything, to see what would have been recorded.
type playbackTester struct {
	config    *Config
	open      sourceOpener
	newScorer scorerMaker
}

func newPlaybackTester(conf *Config, open sourceOpener, newScorer scorerMaker) *playbackTester {
	return &playbackTester{
		config:    conf,
		open:      open,
		newScorer: newScorer,
	}
}

// TestAll runs every video under dir and returns the results keyed by
// path relative to dir.
func (pt *playbackTester) TestAll(dir string) (map[string]*playbackListener, error) {
	results := make(map[string]*playbackListener)
	log.Printf("looking for video files in %s", dir)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		log.Printf("testing %s", path)
		result, err := pt.Detect(path)
		if err != nil {
			log.Printf("could not test %s: %v", path, err)
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		results[rel] = result
		return nil
	})
	return results, err
}

func (pt *playbackTester) Detect(filename string) (*playbackListener, error) {
	src, err := pt.open(filename)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return pt.run(src)
}

func (pt *playbackTester) run(src frame.Source) (*playbackListener, error) {
	listener := &playbackListener{verbose: pt.config.Motion.Verbose}
	spec := pt.config.Recorder.Spec(src.Width(), src.Height())
	controller, err := motion.NewEpisodeController(
		&pt.config.Motion,
		&pt.config.Recorder,
		spec,
		recorder.NoWriteFactory{},
		nil,
		listener,
	)
	if err != nil {
		return nil, err
	}
	scorer := pt.newScorer()
	if c, ok := scorer.(io.Closer); ok {
		defer c.Close()
	}

	for {
		f, err := src.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("error reading file: %v", err)
			break
		}
		listener.frameCount++
		score, scored := scorer.Next(f)
		controller.Process(f, score, scored)
	}
	controller.Close()
	listener.completed()
	return listener, nil
}
