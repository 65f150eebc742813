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

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.motionrecorder"
	dbusPath = "/org/cacophony/motionrecorder"
)

type recorderStatus struct {
	State    string
	Read     uint64
	Dropped  uint64
	Buffered int
}

type service struct {
	snapshots *snapshotter
	status    func() recorderStatus
}

func startService(snapshots *snapshotter, status func() recorderStatus) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		snapshots: snapshots,
		status:    status,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")

	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// TakeSnapshot will save the latest frame as a still
func (s *service) TakeSnapshot() *dbus.Error {
	if err := s.snapshots.Take(); err != nil {
		return &dbus.Error{
			Name: dbusName + ".TakeSnapshot",
			Body: []interface{}{err.Error()},
		}
	}
	return nil
}

// Status returns whether an episode is being recorded along with frame
// counts since startup.
func (s *service) Status() (string, uint64, uint64, int32, *dbus.Error) {
	st := s.status()
	return st.State, st.Read, st.Dropped, int32(st.Buffered), nil
}
