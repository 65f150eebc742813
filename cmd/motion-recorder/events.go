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
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/godbus/dbus"

	"github.com/TheCacophonyProject/motion-recorder/loglimiter"
	"github.com/TheCacophonyProject/motion-recorder/motion"
)

const (
	episodeStartedEvent = "motionEpisodeStarted"
	episodeEndedEvent   = "motionEpisode"
	throttleEvent       = "throttle"

	eventQueueSize = 20
	publishTimeout = 5 * time.Second
)

type event struct {
	Type      string
	Timestamp time.Time
	Details   map[string]interface{}
}

type eventSender interface {
	Send(event) error
	Close()
}

// eventReporter hands recording events to the configured senders from
// its own goroutine so a slow bus or broker never holds up frame
// processing. Events are dropped when the queue is full.
type eventReporter struct {
	deviceName string
	senders    []eventSender
	queue      chan event
	done       chan struct{}
	log        *loglimiter.LogLimiter

	mu     sync.Mutex
	closed bool
}

func newEventReporter(deviceName string, senders ...eventSender) *eventReporter {
	r := &eventReporter{
		deviceName: deviceName,
		senders:    senders,
		queue:      make(chan event, eventQueueSize),
		done:       make(chan struct{}),
		log:        loglimiter.New(time.Minute),
	}
	go r.run()
	return r
}

func (r *eventReporter) run() {
	defer close(r.done)
	for e := range r.queue {
		for _, s := range r.senders {
			if err := s.Send(e); err != nil {
				r.log.Printf("failed to send %s event: %v", e.Type, err)
			}
		}
	}
}

func (r *eventReporter) MotionDetected() {}

func (r *eventReporter) RecordingStarted(ep motion.Episode) {
	r.post(event{
		Type:      episodeStartedEvent,
		Timestamp: ep.Trigger,
		Details:   r.episodeDetails(ep, false),
	})
}

func (r *eventReporter) RecordingEnded(ep motion.Episode) {
	r.post(event{
		Type:      episodeEndedEvent,
		Timestamp: ep.Trigger,
		Details:   r.episodeDetails(ep, true),
	})
}

func (r *eventReporter) WhenThrottled() {
	r.post(event{
		Type:      throttleEvent,
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"device": r.deviceName},
	})
}

func (r *eventReporter) episodeDetails(ep motion.Episode, ended bool) map[string]interface{} {
	details := map[string]interface{}{
		"device":  r.deviceName,
		"id":      ep.ID,
		"name":    ep.Name,
		"start":   ep.Start,
		"trigger": ep.Trigger,
	}
	if ended {
		details["end"] = ep.End
		details["frames"] = ep.Frames
		details["preRoll"] = ep.PreRoll
		details["peakScore"] = ep.PeakScore
	}
	return details
}

func (r *eventReporter) post(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.log.Printf("event queue full, dropping %s event", e.Type)
	}
}

// Close sends anything still queued and then closes the senders.
func (r *eventReporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	for _, s := range r.senders {
		s.Close()
	}
}

// dbusSender queues events with the Cacophony event reporter.
type dbusSender struct {
	obj dbus.BusObject
}

func newDBusSender() (*dbusSender, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	return &dbusSender{
		obj: conn.Object("org.cacophony.Events", "/org/cacophony/Events"),
	}, nil
}

func (s *dbusSender) Send(e event) error {
	detailsJSON, err := dbusEventJSON(e)
	if err != nil {
		return err
	}
	return s.obj.Call("org.cacophony.Events.Queue", 0, detailsJSON, e.Timestamp.UnixNano()).Err
}

func (s *dbusSender) Close() {}

func dbusEventJSON(e event) ([]byte, error) {
	description := map[string]interface{}{"type": e.Type}
	if len(e.Details) > 0 {
		description["details"] = e.Details
	}
	return json.Marshal(map[string]interface{}{"description": description})
}

// mqttSender publishes events to a broker topic.
type mqttSender struct {
	client mqtt.Client
	topic  string
}

func newMQTTSender(conf EventsConfig) *mqttSender {
	opts := mqtt.NewClientOptions().
		AddBroker(conf.MQTTBroker).
		SetClientID(conf.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("mqtt connection lost: %v", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Printf("connected to mqtt broker %s", conf.MQTTBroker)
		})
	client := mqtt.NewClient(opts)
	// Retries happen in the background so a missing broker doesn't stop
	// recording.
	client.Connect()
	return &mqttSender{client: client, topic: conf.MQTTTopic}
}

func (s *mqttSender) Send(e event) error {
	payload, err := mqttPayload(e)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("timed out publishing to mqtt broker")
	}
	return token.Error()
}

func (s *mqttSender) Close() {
	s.client.Disconnect(250)
}

func mqttPayload(e event) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"type":      e.Type,
		"timestamp": e.Timestamp,
		"details":   e.Details,
	})
}

// recordingListeners fans controller notifications out to several
// listeners.
type recordingListeners []motion.RecordingListener

func (ls recordingListeners) MotionDetected() {
	for _, l := range ls {
		l.MotionDetected()
	}
}

func (ls recordingListeners) RecordingStarted(ep motion.Episode) {
	for _, l := range ls {
		l.RecordingStarted(ep)
	}
}

func (ls recordingListeners) RecordingEnded(ep motion.Episode) {
	for _, l := range ls {
		l.RecordingEnded(ep)
	}
}
