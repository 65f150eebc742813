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
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/TheCacophonyProject/motion-recorder/frame"
	"github.com/TheCacophonyProject/motion-recorder/loglimiter"
	"github.com/TheCacophonyProject/motion-recorder/recorder"
)

const (
	minLogInterval = time.Minute
	episodeSuffix  = "_motion_event"
	nameLayout     = "2006-01-02_15-04-05"
)

type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// EpisodeName is the output name for an episode triggered at t.
func EpisodeName(t time.Time) string {
	return t.Format(nameLayout) + episodeSuffix
}

// Episode is one motion event recorded to one sink.
type Episode struct {
	ID        string
	Name      string
	Start     time.Time
	Trigger   time.Time
	End       time.Time
	FirstSeq  uint64
	LastSeq   uint64
	Frames    int
	PreRoll   int
	PeakScore int
}

type RecordingListener interface {
	MotionDetected()
	RecordingStarted(Episode)
	RecordingEnded(Episode)
}

// RecordingWindow gates when an episode may start.
type RecordingWindow interface {
	Active() bool
}

type alwaysActive struct{}

func (alwaysActive) Active() bool { return true }

type nullListener struct{}

func (nullListener) MotionDetected()          {}
func (nullListener) RecordingStarted(Episode) {}
func (nullListener) RecordingEnded(Episode)   {}

// activeEpisode only exists while recording.
type activeEpisode struct {
	rec      *recorder.Recorder
	episode  Episode
	deadline time.Time
}

// EpisodeController decides frame by frame whether an episode is in
// progress. It owns the pre-event buffer and the open recorder and must
// only be driven from a single goroutine. State and LatestFrame may be
// called from anywhere.
type EpisodeController struct {
	threshold int
	postEvent time.Duration
	spec      recorder.StreamSpec
	buffer    *PreEventBuffer
	sinks     recorder.SinkFactory
	window    RecordingWindow
	listener  RecordingListener
	verbose   bool
	stats     *scoreStats
	log       *loglimiter.LogLimiter
	newID     func() string

	active    *activeEpisode
	recording atomic.Bool
	latest    atomic.Pointer[frame.Frame]
}

func NewEpisodeController(
	motionConf *MotionConfig,
	recorderConf *recorder.RecorderConfig,
	spec recorder.StreamSpec,
	sinks recorder.SinkFactory,
	recordingWindow RecordingWindow,
	listener RecordingListener,
) (*EpisodeController, error) {
	buffer, err := NewPreEventBuffer(recorderConf.PreEventFrames())
	if err != nil {
		return nil, err
	}
	if recordingWindow == nil {
		recordingWindow = alwaysActive{}
	}
	if listener == nil {
		listener = nullListener{}
	}
	return &EpisodeController{
		threshold: motionConf.Threshold,
		postEvent: recorderConf.PostEvent(),
		spec:      spec,
		buffer:    buffer,
		sinks:     sinks,
		window:    recordingWindow,
		listener:  listener,
		verbose:   motionConf.Verbose,
		stats:     newScoreStats(),
		log:       loglimiter.New(minLogInterval),
		newID:     uuid.NewString,
	}, nil
}

// Process handles the next frame. scored is false when the frame had
// nothing to be compared against. The frame's timestamp is used as the
// current time so that playback runs the same as live footage.
func (c *EpisodeController) Process(f *frame.Frame, score int, scored bool) {
	c.latest.Store(f)

	motion := scored && score > c.threshold
	if motion {
		c.listener.MotionDetected()
	}

	if c.active == nil {
		c.processIdle(f, score, motion)
	} else {
		c.processRecording(f, score, scored, motion)
	}
}

func (c *EpisodeController) processIdle(f *frame.Frame, score int, motion bool) {
	if !motion {
		c.buffer.Push(f)
		return
	}
	if !c.window.Active() {
		c.log.Print("motion detected but outside of recording window")
		c.buffer.Push(f)
		return
	}
	// The buffer is kept as is when the episode can't start so that the
	// next attempt still has its pre-event footage.
	if err := c.startEpisode(f, score); err != nil {
		c.log.Printf("recording not started: %v", err)
	}
}

func (c *EpisodeController) processRecording(f *frame.Frame, score int, scored, motion bool) {
	a := c.active
	if motion {
		a.deadline = f.Time.Add(c.postEvent)
		if score > a.episode.PeakScore {
			a.episode.PeakScore = score
		}
	} else if !f.Time.Before(a.deadline) {
		c.endEpisode()
		return
	}

	if scored {
		c.stats.update(score, c.threshold)
	}
	if err := c.write(f); err != nil {
		c.log.Printf("failed to write to %s: %v", a.episode.Name, err)
		c.endEpisode()
	}
}

func (c *EpisodeController) startEpisode(f *frame.Frame, score int) error {
	name := EpisodeName(f.Time)
	rec, err := recorder.Open(c.sinks, name, c.spec)
	if err != nil {
		return err
	}

	preRoll := c.buffer.Frames()
	c.active = &activeEpisode{
		rec: rec,
		episode: Episode{
			ID:        c.newID(),
			Name:      rec.Name(),
			Start:     f.Time,
			Trigger:   f.Time,
			FirstSeq:  f.Seq,
			PreRoll:   len(preRoll),
			PeakScore: score,
		},
		deadline: f.Time.Add(c.postEvent),
	}
	if len(preRoll) > 0 {
		c.active.episode.Start = preRoll[0].Time
		c.active.episode.FirstSeq = preRoll[0].Seq
	}

	for _, p := range append(preRoll, f) {
		if err := c.write(p); err != nil {
			if aerr := rec.Abort(); aerr != nil {
				log.Printf("failed to discard %s: %v", name, aerr)
			}
			c.active = nil
			return recorder.Unavailable(name, fmt.Errorf("writing first frames: %w", err))
		}
	}

	c.recording.Store(true)
	c.stats.reset()
	c.stats.update(score, c.threshold)
	log.Printf("recording started: %s (%d pre-event frames)", c.active.episode.Name, len(preRoll))
	c.listener.RecordingStarted(c.active.episode)
	return nil
}

func (c *EpisodeController) write(f *frame.Frame) error {
	if err := c.active.rec.Append(f); err != nil {
		return err
	}
	c.active.episode.LastSeq = f.Seq
	c.active.episode.End = f.Time
	return nil
}

func (c *EpisodeController) endEpisode() {
	a := c.active
	c.active = nil
	c.recording.Store(false)

	ep := a.episode
	ep.Frames = a.rec.Frames()
	a.rec.Annotate(recorder.Summary{
		ID:        ep.ID,
		Name:      ep.Name,
		Start:     ep.Start,
		End:       ep.End,
		Frames:    ep.Frames,
		PreRoll:   ep.PreRoll,
		PeakScore: ep.PeakScore,
	})
	if err := a.rec.Close(); err != nil {
		log.Printf("failed to close %s: %v", ep.Name, err)
	}
	c.buffer.Clear()

	log.Printf("recording stopped: %s (%d frames)", ep.Name, ep.Frames)
	if c.verbose {
		log.Printf("%s: %s", ep.Name, c.stats)
	}
	c.listener.RecordingEnded(ep)
}

// Close ends any episode in progress. It is safe to call more than once.
func (c *EpisodeController) Close() {
	if c.active != nil {
		c.endEpisode()
	}
}

func (c *EpisodeController) State() State {
	if c.recording.Load() {
		return Recording
	}
	return Idle
}

// Buffered returns the number of frames waiting in the pre-event buffer.
func (c *EpisodeController) Buffered() int {
	return c.buffer.Len()
}

// LatestFrame returns the last frame processed, or nil.
func (c *EpisodeController) LatestFrame() *frame.Frame {
	return c.latest.Load()
}
