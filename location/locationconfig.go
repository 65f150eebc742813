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

package location

import (
	"errors"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

const (
	defaultConfig = "/etc/cacophony/location.yaml"
	maxLatitude   = 90
	maxLongitude  = 180
)

// LocationConfig is where the camera is. It is used to work out
// sunrise and sunset relative recording windows and is stored with each
// episode.
type LocationConfig struct {
	Latitude  float32   `yaml:"latitude"`
	Longitude float32   `yaml:"longitude"`
	Timestamp time.Time `yaml:"timestamp,omitempty"`
	Altitude  float32   `yaml:"altitude"`
	Accuracy  float32   `yaml:"accuracy"`
}

func DefaultLocationFile() string {
	return defaultConfig
}

func (conf *LocationConfig) IsLocationEmpty() bool {
	return conf.Latitude == 0 && conf.Longitude == 0
}

// ParseLocationFile reads a location file. A missing file leaves the
// location empty.
func ParseLocationFile(filename string) (LocationConfig, error) {
	var conf LocationConfig
	buf, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return conf, nil
	} else if err != nil {
		return conf, err
	}
	err = conf.ParseConfig(buf)
	return conf, err
}

func (conf *LocationConfig) ParseConfig(buf []byte) error {
	if err := yaml.Unmarshal(buf, conf); err != nil {
		return err
	}
	return conf.Validate()
}

func (conf *LocationConfig) Validate() error {
	if conf.Latitude < -maxLatitude || conf.Latitude > maxLatitude {
		return errors.New("latitude outside of normal range")
	}
	if conf.Longitude < -maxLongitude || conf.Longitude > maxLongitude {
		return errors.New("longitude outside of normal range")
	}
	return nil
}

func (conf *LocationConfig) Coordinates() (float64, float64) {
	return float64(conf.Latitude), float64(conf.Longitude)
}
