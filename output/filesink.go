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

// Package output writes episodes to video files in the output directory.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/TheCacophonyProject/motion-recorder/frame"
	"github.com/TheCacophonyProject/motion-recorder/location"
	"github.com/TheCacophonyProject/motion-recorder/recorder"
)

const (
	tempMarker  = ".temp"
	metadataExt = ".yaml"
)

// VideoWriter encodes frames into a single file.
type VideoWriter interface {
	Write(*frame.Frame) error
	Close() error
}

// WriterOpener opens a VideoWriter for path. The container is chosen
// from the file extension.
type WriterOpener func(path string, spec recorder.StreamSpec) (VideoWriter, error)

type Config struct {
	Dir          string
	Extension    string
	MinDiskSpace uint64
	DeviceName   string
	Location     *location.LocationConfig
}

// FileSinkFactory creates a file per episode. Files are written under a
// temporary name and only get their final name once closed, so anything
// picking up recordings from the directory never sees a partial file.
type FileSinkFactory struct {
	conf      Config
	open      WriterOpener
	diskSpace func(dir string) (uint64, error)
}

// NewFileSinkFactory creates the output directory if needed.
func NewFileSinkFactory(conf Config, open WriterOpener) (*FileSinkFactory, error) {
	if conf.Dir == "" {
		return nil, errors.New("output directory not set")
	}
	if err := os.MkdirAll(conf.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %v", err)
	}
	return &FileSinkFactory{
		conf:      conf,
		open:      open,
		diskSpace: freeDiskSpaceMB,
	}, nil
}

func (fs *FileSinkFactory) CheckCanRecord() error {
	if fs.conf.MinDiskSpace == 0 {
		return nil
	}
	free, err := fs.diskSpace(fs.conf.Dir)
	if err != nil {
		return fmt.Errorf("problem with checking disk space: %v", err)
	}
	if free < fs.conf.MinDiskSpace {
		return fmt.Errorf("not enough free disk space to start recording (%dMB free)", free)
	}
	return nil
}

func (fs *FileSinkFactory) Create(name string, spec recorder.StreamSpec) (recorder.Sink, error) {
	if err := fs.CheckCanRecord(); err != nil {
		return nil, recorder.Unavailable(name, err)
	}

	name = fs.uniqueName(name)
	tempPath := filepath.Join(fs.conf.Dir, name+tempMarker+fs.conf.Extension)
	writer, err := fs.open(tempPath, spec)
	if err != nil {
		os.Remove(tempPath)
		return nil, recorder.Unavailable(name, err)
	}

	return &fileSink{
		name:      name,
		tempPath:  tempPath,
		finalPath: recordingFinalName(tempPath),
		writer:    writer,
		meta: Metadata{
			DeviceName: fs.conf.DeviceName,
			File:       name + fs.conf.Extension,
			Width:      spec.Width,
			Height:     spec.Height,
			FPS:        spec.FPS,
			Codec:      spec.Codec,
			Location:   fs.conf.Location,
		},
	}, nil
}

// uniqueName adds a numeric suffix when an episode with the same name
// was already written, which happens when two start within a second.
func (fs *FileSinkFactory) uniqueName(name string) string {
	candidate := name
	for i := 1; fs.exists(candidate); i++ {
		candidate = name + "_" + strconv.Itoa(i)
	}
	return candidate
}

func (fs *FileSinkFactory) exists(name string) bool {
	for _, p := range []string{
		name + fs.conf.Extension,
		name + tempMarker + fs.conf.Extension,
		name + metadataExt,
	} {
		if _, err := os.Stat(filepath.Join(fs.conf.Dir, p)); err == nil {
			return true
		}
	}
	return false
}

type fileSink struct {
	name      string
	tempPath  string
	finalPath string
	writer    VideoWriter
	meta      Metadata
	closed    bool
}

func (s *fileSink) Name() string { return s.name }

func (s *fileSink) Append(f *frame.Frame) error {
	if s.closed {
		return errors.New("file already closed")
	}
	if err := s.writer.Write(f); err != nil {
		return err
	}
	if s.meta.Frames == 0 {
		s.meta.Start = f.Time
	}
	s.meta.End = f.Time
	s.meta.Frames++
	return nil
}

func (s *fileSink) Annotate(summary recorder.Summary) {
	s.meta.ID = summary.ID
	s.meta.PreRoll = summary.PreRoll
	s.meta.PeakScore = summary.PeakScore
}

func (s *fileSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %v", s.tempPath, err)
	}
	if err := os.Rename(s.tempPath, s.finalPath); err != nil {
		return err
	}
	return writeMetadata(metadataPath(s.finalPath), &s.meta)
}

// Discard abandons the recording. The temp file is removed and nothing
// is renamed or written alongside it.
func (s *fileSink) Discard() error {
	if s.closed {
		return nil
	}
	s.closed = true

	werr := s.writer.Close()
	if err := os.Remove(s.tempPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return werr
}

var reTempName = regexp.MustCompile(`^(.+)` + regexp.QuoteMeta(tempMarker) + `(\.[^.]*)?$`)

func recordingFinalName(filename string) string {
	return reTempName.ReplaceAllString(filename, `$1$2`)
}

// DeleteTempFiles removes partial recordings left behind by an unclean
// shutdown.
func DeleteTempFiles(directory string) error {
	matches, err := filepath.Glob(filepath.Join(directory, "*"+tempMarker+"*"))
	if err != nil {
		return err
	}
	for _, filename := range matches {
		if !reTempName.MatchString(filepath.Base(filename)) {
			continue
		}
		if err := os.Remove(filename); err != nil {
			return err
		}
	}
	return nil
}

func freeDiskSpaceMB(dir string) (uint64, error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(dir, &fs); err != nil {
		return 0, err
	}
	return fs.Bavail * uint64(fs.Bsize) / 1024 / 1024, nil
}

// Metadata is stored next to each recording.
type Metadata struct {
	ID         string                   `yaml:"id,omitempty"`
	DeviceName string                   `yaml:"device-name,omitempty"`
	File       string                   `yaml:"file"`
	Start      time.Time                `yaml:"start"`
	End        time.Time                `yaml:"end"`
	Frames     int                      `yaml:"frames"`
	PreRoll    int                      `yaml:"pre-event-frames"`
	PeakScore  int                      `yaml:"peak-score"`
	Width      int                      `yaml:"width"`
	Height     int                      `yaml:"height"`
	FPS        int                      `yaml:"fps"`
	Codec      string                   `yaml:"codec"`
	Location   *location.LocationConfig `yaml:"location,omitempty"`
}
