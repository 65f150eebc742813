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

package frame

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultWidth  = 1920
	DefaultHeight = 1080

	defaultPort = 554
	defaultPath = "/cam/realmonitor"
)

// ErrStalled is wrapped in a ReadError when no frame arrives within the
// configured read timeout. It is distinct from io.EOF, which marks a
// clean end of stream.
var ErrStalled = errors.New("frame source stalled")

// Source produces frames in arrival order. Read returns io.EOF once the
// stream has cleanly finished and a *ReadError for any other failure.
// Width and Height are fixed for the life of the source.
type Source interface {
	Read() (*Frame, error)
	Width() int
	Height() int
	Close() error
}

// ConnectionDescriptor describes how to reach a camera. When URL is set
// it is used verbatim (this also allows a local video file), otherwise
// an RTSP address is built from the remaining fields.
type ConnectionDescriptor struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Path     string `yaml:"path"`
	Channel  int    `yaml:"channel"`
	Subtype  int    `yaml:"subtype"`

	// Used when the source can't report its own resolution.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

func DefaultConnectionDescriptor() ConnectionDescriptor {
	return ConnectionDescriptor{
		Port:    defaultPort,
		Path:    defaultPath,
		Channel: 1,
		Subtype: 0,
		Width:   DefaultWidth,
		Height:  DefaultHeight,
	}
}

func (c *ConnectionDescriptor) Validate() error {
	if c.URL == "" && c.Host == "" {
		return errors.New("camera url or host must be set")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid camera port %d", c.Port)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return errors.New("camera width and height must be positive")
	}
	return nil
}

// Address returns the address to open, including credentials.
func (c *ConnectionDescriptor) Address() string {
	if c.URL != "" {
		return c.URL
	}
	return c.build().String()
}

// Redacted returns the address with any password masked, for logging.
func (c *ConnectionDescriptor) Redacted() string {
	if c.URL == "" {
		return c.build().Redacted()
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.User == nil {
		return c.URL
	}
	return u.Redacted()
}

// Live reports whether the descriptor points at a network stream rather
// than a file. A failed read from a live stream is an error, from a file
// it is the end of the stream.
func (c *ConnectionDescriptor) Live() bool {
	if c.URL == "" {
		return true
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "rtsp", "rtsps", "rtmp", "http", "https", "udp", "tcp":
		return true
	}
	return false
}

func (c *ConnectionDescriptor) build() *url.URL {
	u := &url.URL{
		Scheme: "rtsp",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   c.Path,
		RawQuery: url.Values{
			"channel": {strconv.Itoa(c.Channel)},
			"subtype": {strconv.Itoa(c.Subtype)},
		}.Encode(),
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u
}
