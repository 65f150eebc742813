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
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/motion-recorder/frame"
	"github.com/TheCacophonyProject/motion-recorder/motion"
)

const (
	playbackCols = 64
	playbackRows = 48
	playbackFPS  = 10
)

// blockSource plays a still background with a moving block in frames
// blockFrom to blockTo inclusive.
type blockSource struct {
	frames    int
	blockFrom int
	blockTo   int
	seq       int
	start     time.Time
	readErr   error
	closed    bool
}

func (s *blockSource) Read() (*frame.Frame, error) {
	if s.seq >= s.frames {
		if s.readErr != nil {
			return nil, s.readErr
		}
		return nil, io.EOF
	}
	s.seq++
	pix := make([]byte, playbackCols*playbackRows)
	if s.seq >= s.blockFrom && s.seq <= s.blockTo {
		x := 4 * (s.seq - s.blockFrom)
		for row := 20; row < 28; row++ {
			for col := x; col < x+8; col++ {
				pix[row*playbackCols+col] = 255
			}
		}
	}
	t := s.start.Add(time.Duration(s.seq) * time.Second / playbackFPS)
	return frame.New(uint64(s.seq), t, playbackCols, playbackRows, 1, pix)
}

func (s *blockSource) Width() int  { return playbackCols }
func (s *blockSource) Height() int { return playbackRows }
func (s *blockSource) Close() error {
	s.closed = true
	return nil
}

func playbackConfig(t *testing.T) *Config {
	conf, err := ParseConfig([]byte(`
recorder:
    frame-rate: 10
    pre-event-secs: 2
    post-event-secs: 1
motion:
    threshold: 20
    blur-kernel: 3
`), nil)
	require.NoError(t, err)
	return conf
}

func newTestPlaybackTester(conf *Config, src *blockSource) *playbackTester {
	return newPlaybackTester(
		conf,
		func(string) (frame.Source, error) { return src, nil },
		func() motion.Scorer { return motion.NewDiffScorer(conf.Motion) },
	)
}

func TestPlaybackFindsEpisode(t *testing.T) {
	conf := playbackConfig(t)
	src := &blockSource{frames: 70, blockFrom: 31, blockTo: 40}

	results, err := newTestPlaybackTester(conf, src).Detect("block.mp4")
	require.NoError(t, err)

	// 20 pre-event frames, then recording runs until a second after the
	// block disappears in frame 41.
	assert.Equal(t, "(11:50)", results.recordedFrames)
	assert.Equal(t, 11, results.motionCount)
	assert.Equal(t, 70, results.frameCount)
	require.Len(t, results.episodes, 1)
	assert.Equal(t, 40, results.episodes[0].Frames)
	assert.Equal(t, 20, results.episodes[0].PreRoll)
	assert.True(t, src.closed)
}

func TestPlaybackWithoutMotion(t *testing.T) {
	conf := playbackConfig(t)
	src := &blockSource{frames: 30}

	results, err := newTestPlaybackTester(conf, src).Detect("still.mp4")
	require.NoError(t, err)
	assert.Equal(t, "None", results.recordedFrames)
	assert.Equal(t, 0, results.motionCount)
	assert.Empty(t, results.episodes)
}

func TestPlaybackEndsEpisodeAtEndOfFile(t *testing.T) {
	conf := playbackConfig(t)
	src := &blockSource{frames: 36, blockFrom: 31, blockTo: 40}

	results, err := newTestPlaybackTester(conf, src).Detect("cut.mp4")
	require.NoError(t, err)
	assert.Equal(t, "(11:36)", results.recordedFrames)
}

func TestPlaybackStopsOnReadError(t *testing.T) {
	conf := playbackConfig(t)
	src := &blockSource{frames: 10, readErr: errors.New("corrupt")}

	results, err := newTestPlaybackTester(conf, src).Detect("bad.mp4")
	require.NoError(t, err)
	assert.Equal(t, 10, results.frameCount)
}

func TestPlaybackOpenError(t *testing.T) {
	conf := playbackConfig(t)
	pt := newPlaybackTester(
		conf,
		func(string) (frame.Source, error) { return nil, errors.New("no such file") },
		func() motion.Scorer { return motion.NewDiffScorer(conf.Motion) },
	)
	_, err := pt.Detect("missing.mp4")
	assert.EqualError(t, err, "no such file")
}

func TestPlaybackTestAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "night"), 0755))
	for _, name := range []string{"a.mp4", "night/b.MKV", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	conf := playbackConfig(t)
	pt := newPlaybackTester(
		conf,
		func(string) (frame.Source, error) { return &blockSource{frames: 70, blockFrom: 31, blockTo: 40}, nil },
		func() motion.Scorer { return motion.NewDiffScorer(conf.Motion) },
	)
	results, err := pt.TestAll(dir)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "(11:50)", results["a.mp4"].recordedFrames)
	assert.Contains(t, results, filepath.Join("night", "b.MKV"))
}
