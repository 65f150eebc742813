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

package loglimiter

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// New returns a new LogLimiter with the configured minimum log interval.
func New(interval time.Duration) *LogLimiter {
	return &LogLimiter{
		interval: interval,
		nowFunc:  time.Now,
		entries:  make(map[string]*entry),
	}
}

// LogLimiter suppresses log messages that were already logged within
// some time interval. Printf messages are grouped by their format string
// so that messages which only differ by their arguments are limited
// together. The number of suppressed messages is reported the next time
// the message gets through.
type LogLimiter struct {
	interval time.Duration
	nowFunc  func() time.Time
	mu       sync.Mutex
	entries  map[string]*entry
}

type entry struct {
	last       time.Time
	suppressed int
}

func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	limiter.print(format, fmt.Sprintf(format, v...))
}

func (limiter *LogLimiter) Print(s string) {
	limiter.print(s, s)
}

func (limiter *LogLimiter) print(key, s string) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := limiter.nowFunc()
	e := limiter.entries[key]
	if e == nil {
		e = new(entry)
		limiter.entries[key] = e
	} else if now.Sub(e.last) < limiter.interval {
		e.suppressed++
		return
	}

	if e.suppressed > 0 {
		s = fmt.Sprintf("%s (%d similar suppressed)", s, e.suppressed)
	}
	log.Print(s)
	e.last = now
	e.suppressed = 0
}
