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
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/motion-recorder/frame"
	"github.com/TheCacophonyProject/motion-recorder/location"
	"github.com/TheCacophonyProject/motion-recorder/motion"
	"github.com/TheCacophonyProject/motion-recorder/recorder"
	"github.com/TheCacophonyProject/motion-recorder/stream"
	"github.com/TheCacophonyProject/motion-recorder/throttle"
)

type Config struct {
	DeviceName   string                     `yaml:"device-name"`
	OutputDir    string                     `yaml:"output-dir"`
	MinDiskSpace uint64                     `yaml:"min-disk-space"`
	Camera       frame.ConnectionDescriptor `yaml:"camera"`
	Stream       stream.Config              `yaml:"stream"`
	Recorder     recorder.RecorderConfig    `yaml:"recorder"`
	Motion       motion.MotionConfig        `yaml:"motion"`
	Throttler    throttle.ThrottlerConfig   `yaml:"throttler"`
	Location     location.LocationConfig    `yaml:"location"`
	Events       EventsConfig               `yaml:"events"`
	LEDs         LEDsConfig                 `yaml:"leds"`
}

type EventsConfig struct {
	DBus         bool   `yaml:"dbus"`
	MQTTBroker   string `yaml:"mqtt-broker"`
	MQTTTopic    string `yaml:"mqtt-topic"`
	MQTTClientID string `yaml:"mqtt-client-id"`
}

type LEDsConfig struct {
	Recording string `yaml:"recording"`
}

// Validate checks everything except the camera, which isn't needed
// when playing back a file.
func (conf *Config) Validate() error {
	if conf.OutputDir == "" {
		return errors.New("output-dir must be set")
	}
	if err := conf.Stream.Validate(); err != nil {
		return err
	}
	if err := conf.Recorder.Validate(); err != nil {
		return err
	}
	if err := conf.Motion.Validate(); err != nil {
		return err
	}
	if err := conf.Throttler.Validate(); err != nil {
		return err
	}
	if err := conf.Location.Validate(); err != nil {
		return err
	}
	if conf.Events.MQTTBroker != "" && conf.Events.MQTTTopic == "" {
		return errors.New("mqtt-topic must be set when using mqtt")
	}
	return nil
}

var defaultConfig = Config{
	OutputDir:    "/var/spool/motion-recorder",
	MinDiskSpace: 200,
	Camera:       frame.DefaultConnectionDescriptor(),
	Stream:       stream.DefaultConfig(),
	Recorder:     recorder.DefaultRecorderConfig(),
	Motion:       motion.DefaultMotionConfig(),
	Throttler:    throttle.DefaultThrottlerConfig(),
	Events: EventsConfig{
		DBus:         true,
		MQTTTopic:    "motion-recorder/events",
		MQTTClientID: "motion-recorder",
	},
}

func ParseConfigFiles(configFilename, locationFilename string) (*Config, error) {
	buf, err := os.ReadFile(configFilename)
	if err != nil {
		return nil, err
	}

	locationBuf, err := os.ReadFile(locationFilename)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return ParseConfig(buf, locationBuf)
}

// ParseConfig reads the main configuration. A location file, if given,
// takes precedence over the location section.
func ParseConfig(buf, locationBuf []byte) (*Config, error) {
	conf := defaultConfig
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}

	if len(locationBuf) > 0 {
		var loc location.LocationConfig
		if err := loc.ParseConfig(locationBuf); err != nil {
			return nil, err
		}
		if !loc.IsLocationEmpty() {
			conf.Location = loc
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
