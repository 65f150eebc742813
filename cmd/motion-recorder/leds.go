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
	"fmt"
	"log"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"github.com/TheCacophonyProject/motion-recorder/motion"
)

// recordingLED is lit while an episode is being recorded.
type recordingLED struct {
	pin gpio.PinOut
}

func newRecordingLED(name string) (*recordingLED, error) {
	log.Println("host initialisation")
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("failed to find pin %s", name)
	}
	led := &recordingLED{pin: pin}
	led.set(gpio.Low)
	return led, nil
}

func (l *recordingLED) set(level gpio.Level) {
	if err := l.pin.Out(level); err != nil {
		log.Printf("failed to set recording led: %v", err)
	}
}

func (l *recordingLED) MotionDetected() {}

func (l *recordingLED) RecordingStarted(motion.Episode) {
	l.set(gpio.High)
}

func (l *recordingLED) RecordingEnded(motion.Episode) {
	l.set(gpio.Low)
}

func (l *recordingLED) Close() {
	l.set(gpio.Low)
}
