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

package recorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/window"
)

type RecorderConfig struct {
	FrameRate     int    `yaml:"frame-rate"`
	PreEventSecs  int    `yaml:"pre-event-secs"`
	PostEventSecs int    `yaml:"post-event-secs"`
	Codec         string `yaml:"codec"`
	Extension     string `yaml:"extension"`
	WindowStart   string `yaml:"window-start"`
	WindowEnd     string `yaml:"window-end"`
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		FrameRate:     20,
		PreEventSecs:  10,
		PostEventSecs: 10,
		Codec:         "mp4v",
		Extension:     ".mp4",
	}
}

func (conf *RecorderConfig) Validate() error {
	if conf.FrameRate <= 0 {
		return errors.New("frame-rate must be positive")
	}
	if conf.PreEventSecs <= 0 {
		return errors.New("pre-event-secs must be positive")
	}
	if conf.PostEventSecs <= 0 {
		return errors.New("post-event-secs must be positive")
	}
	if len(conf.Codec) != 4 {
		return fmt.Errorf("codec %q should be a four character code", conf.Codec)
	}
	if conf.WindowStart != "" && conf.WindowEnd == "" {
		return errors.New("window-start is set but window-end isn't")
	}
	if conf.WindowStart == "" && conf.WindowEnd != "" {
		return errors.New("window-end is set but window-start isn't")
	}
	return nil
}

// PreEventFrames is the capacity of the pre-event buffer.
func (conf *RecorderConfig) PreEventFrames() int {
	return conf.FrameRate * conf.PreEventSecs
}

func (conf *RecorderConfig) PostEvent() time.Duration {
	return time.Duration(conf.PostEventSecs) * time.Second
}

// Spec returns the stream parameters for a camera of the given size.
func (conf *RecorderConfig) Spec(width, height int) StreamSpec {
	return StreamSpec{
		Width:  width,
		Height: height,
		FPS:    conf.FrameRate,
		Codec:  conf.Codec,
	}
}

// NewWindow returns the time of day window in which episodes may start.
// Without a window-start and window-end it is always active.
func (conf *RecorderConfig) NewWindow(latitude, longitude float64) (*window.Window, error) {
	start, end := conf.WindowStart, conf.WindowEnd
	if start == "" && end == "" {
		start, end = "12:00", "12:00"
	}
	return window.New(start, end, latitude, longitude)
}
