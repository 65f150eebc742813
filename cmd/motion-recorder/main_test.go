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
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/motion-recorder/frame"
	"github.com/TheCacophonyProject/motion-recorder/motion"
	"github.com/TheCacophonyProject/motion-recorder/recorder"
	"github.com/TheCacophonyProject/motion-recorder/throttle"
)

// sourceReader adapts a source to the reader interface without a
// goroutine. Once the source runs out it returns err.
type sourceReader struct {
	src    frame.Source
	err    error
	cancel context.CancelFunc
}

func (r *sourceReader) Next(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := r.src.Read()
	if err == io.EOF {
		if r.cancel != nil {
			r.cancel()
			return nil, context.Canceled
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	return f, err
}

func (r *sourceReader) Dropped() uint64 { return 0 }

type episodeCollector struct {
	started, ended []motion.Episode
}

func (c *episodeCollector) MotionDetected()                    {}
func (c *episodeCollector) RecordingStarted(ep motion.Episode) { c.started = append(c.started, ep) }
func (c *episodeCollector) RecordingEnded(ep motion.Episode)   { c.ended = append(c.ended, ep) }

func newTestController(t *testing.T, conf *Config, lis motion.RecordingListener) *motion.EpisodeController {
	spec := conf.Recorder.Spec(playbackCols, playbackRows)
	controller, err := motion.NewEpisodeController(&conf.Motion, &conf.Recorder, spec, recorder.NoWriteFactory{}, nil, lis)
	require.NoError(t, err)
	return controller
}

func TestProcessFramesUntilEndOfStream(t *testing.T) {
	conf := playbackConfig(t)
	lis := new(episodeCollector)
	controller := newTestController(t, conf, lis)
	reader := &sourceReader{src: &blockSource{frames: 70, blockFrom: 31, blockTo: 40}}

	err := processFrames(context.Background(), reader, motion.NewDiffScorer(conf.Motion), controller, 10)
	require.NoError(t, err)

	require.Len(t, lis.ended, 1)
	assert.Equal(t, uint64(11), lis.ended[0].FirstSeq)
	assert.Equal(t, uint64(50), lis.ended[0].LastSeq)
	assert.Equal(t, uint64(70), controller.LatestFrame().Seq)
}

func TestProcessFramesStopsWhenCancelled(t *testing.T) {
	conf := playbackConfig(t)
	lis := new(episodeCollector)
	controller := newTestController(t, conf, lis)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &sourceReader{
		src:    &blockSource{frames: 35, blockFrom: 31, blockTo: 40},
		cancel: cancel,
	}

	err := processFrames(ctx, reader, motion.NewDiffScorer(conf.Motion), controller, 10)
	require.NoError(t, err)

	// The episode is still open until the controller is closed.
	assert.Equal(t, motion.Recording, controller.State())
	assert.Len(t, lis.started, 1)
	assert.Empty(t, lis.ended)

	controller.Close()
	require.Len(t, lis.ended, 1)
	assert.Equal(t, uint64(35), lis.ended[0].LastSeq)
}

func TestProcessFramesReturnsReadErrors(t *testing.T) {
	conf := playbackConfig(t)
	controller := newTestController(t, conf, nil)
	readErr := &frame.ReadError{Seq: 6, Err: frame.ErrStalled}
	reader := &sourceReader{src: &blockSource{frames: 5}, err: readErr}

	err := processFrames(context.Background(), reader, motion.NewDiffScorer(conf.Motion), controller, 10)
	assert.True(t, errors.Is(err, frame.ErrStalled))
	assert.Equal(t, uint64(5), controller.LatestFrame().Seq)
}

func TestNewScorerDefaultsToNative(t *testing.T) {
	scorer := newScorer(motion.DefaultMotionConfig())
	assert.IsType(t, &motion.DiffScorer{}, scorer)
}

func TestDryRunSinkFactory(t *testing.T) {
	conf := playbackConfig(t)
	sinks, err := newSinkFactory(conf, true, nil)
	require.NoError(t, err)
	assert.IsType(t, recorder.NoWriteFactory{}, sinks)

	conf.Throttler.Activate = true
	sinks, err = newSinkFactory(conf, true, nil)
	require.NoError(t, err)
	assert.IsType(t, &throttle.ThrottledSinkFactory{}, sinks)
}
