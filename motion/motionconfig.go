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
	"errors"
	"fmt"
)

const (
	EngineNative = "native"
	EngineOpenCV = "opencv"
)

type MotionConfig struct {
	Threshold  int    `yaml:"threshold"`
	BlurKernel int    `yaml:"blur-kernel"`
	DiffThresh int    `yaml:"diff-thresh"`
	Engine     string `yaml:"engine"`
	Verbose    bool   `yaml:"verbose"`
}

func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		Threshold:  50000,
		BlurKernel: 21,
		DiffThresh: 25,
		Engine:     EngineNative,
	}
}

func (conf *MotionConfig) Validate() error {
	if conf.Threshold <= 0 {
		return errors.New("motion threshold must be positive")
	}
	if conf.BlurKernel <= 0 || conf.BlurKernel%2 == 0 {
		return fmt.Errorf("blur-kernel must be a positive odd number, got %d", conf.BlurKernel)
	}
	if conf.DiffThresh < 0 || conf.DiffThresh > 255 {
		return fmt.Errorf("diff-thresh must be between 0 and 255, got %d", conf.DiffThresh)
	}
	switch conf.Engine {
	case EngineNative, EngineOpenCV:
	default:
		return fmt.Errorf("unknown motion engine %q", conf.Engine)
	}
	return nil
}
