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

// Package stream moves frames from a source onto a bounded queue so a
// slow consumer doesn't hold up the camera connection.
package stream

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheCacophonyProject/motion-recorder/frame"
)

type Config struct {
	QueueSize   int           `yaml:"queue-size"`
	DropFrames  bool          `yaml:"drop-frames"`
	ReadTimeout time.Duration `yaml:"read-timeout"`
}

func DefaultConfig() Config {
	return Config{
		QueueSize:   32,
		DropFrames:  false,
		ReadTimeout: 10 * time.Second,
	}
}

func (conf *Config) Validate() error {
	if conf.QueueSize <= 0 {
		return errors.New("queue-size must be positive")
	}
	if conf.ReadTimeout < 0 {
		return errors.New("read-timeout can't be negative")
	}
	return nil
}

// How long Close waits for a blocked read before giving up on it.
const defaultCloseWait = 5 * time.Second

// ErrCloseTimeout is returned by Close when a read was still blocked
// after the close wait. The source is released once that read returns.
var ErrCloseTimeout = errors.New("timed out waiting for frame read to finish")

type item struct {
	f   *frame.Frame
	err error
}

// Reader reads frames on its own goroutine. Frames come out of Next in
// the order the source produced them. When the queue is full the reader
// either waits for space or, with DropFrames set, discards the newest
// frame and counts it.
type Reader struct {
	src         frame.Source
	queue       chan item
	drop        bool
	readTimeout time.Duration

	dropped  atomic.Uint64
	read     atomic.Uint64
	lastSeq  atomic.Uint64
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	closed   bool

	closeWait time.Duration
}

func NewReader(src frame.Source, conf Config) *Reader {
	r := &Reader{
		src:         src,
		queue:       make(chan item, conf.QueueSize),
		drop:        conf.DropFrames,
		readTimeout: conf.ReadTimeout,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		closeWait:   defaultCloseWait,
	}
	go r.run()
	return r
}

func (r *Reader) run() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		f, err := r.src.Read()
		if err != nil {
			// Errors are never dropped, they end the stream.
			select {
			case r.queue <- item{err: err}:
			case <-r.stop:
			}
			return
		}
		r.read.Add(1)
		r.lastSeq.Store(f.Seq)

		if r.drop {
			select {
			case r.queue <- item{f: f}:
			default:
				r.dropped.Add(1)
			}
			continue
		}
		select {
		case r.queue <- item{f: f}:
		case <-r.stop:
			return
		}
	}
}

// Next returns the next frame. It returns io.EOF at the end of the
// stream, a *frame.ReadError wrapping frame.ErrStalled if nothing
// arrives within the read timeout, or the context's error if it is done
// first.
func (r *Reader) Next(ctx context.Context) (*frame.Frame, error) {
	var timeout <-chan time.Time
	if r.readTimeout > 0 {
		timer := time.NewTimer(r.readTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case it, ok := <-r.queue:
		if !ok {
			return nil, io.EOF
		}
		if it.err != nil {
			return nil, it.err
		}
		return it.f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, &frame.ReadError{Seq: r.lastSeq.Load(), Err: frame.ErrStalled}
	}
}

// Dropped returns how many frames were discarded because the queue was full.
func (r *Reader) Dropped() uint64 {
	return r.dropped.Load()
}

// Read returns how many frames have been taken from the source.
func (r *Reader) Read() uint64 {
	return r.read.Load()
}

// Stop stops reading new frames. Frames already queued can still be
// taken with Next.
func (r *Reader) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Close stops reading and releases the source. Sources can't be closed
// under a read in progress, so if a read is still blocked after a short
// wait Close returns ErrCloseTimeout and the source is closed in the
// background once the read returns.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.Stop()
	select {
	case <-r.done:
		return r.src.Close()
	case <-time.After(r.closeWait):
	}
	go func() {
		<-r.done
		if err := r.src.Close(); err != nil {
			log.Printf("error closing frame source: %v", err)
		}
	}()
	return ErrCloseTimeout
}
