// Copyright (c) 2023 Paweł Gaczyński
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ringpoll

import (
	"strings"

	"golang.org/x/sys/unix"
)

// EventMask describes which readiness conditions fired for a descriptor.
type EventMask uint32

const (
	EventRead EventMask = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// Readable reports whether the read-side callback should fire.
func (m EventMask) Readable() bool {
	return m&(EventRead|EventError|EventHangup) != 0
}

// Writable reports whether the write-side callback should fire.
func (m EventMask) Writable() bool {
	return m&(EventWrite|EventError|EventHangup) != 0
}

func (m EventMask) String() string {
	names := make([]string, 0, 4)
	if m&EventRead > 0 {
		names = append(names, "read")
	}
	if m&EventWrite > 0 {
		names = append(names, "write")
	}
	if m&EventError > 0 {
		names = append(names, "error")
	}
	if m&EventHangup > 0 {
		names = append(names, "hangup")
	}
	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, "|")
}

// eventsFromPoll translates raw poll revents from a completion result into
// the dispatcher taxonomy.
func eventsFromPoll(revents uint32) EventMask {
	var events EventMask
	if revents&unix.POLLIN > 0 {
		events |= EventRead
	}
	if revents&unix.POLLOUT > 0 {
		events |= EventWrite
	}
	if revents&unix.POLLERR > 0 {
		events |= EventError
	}
	if revents&unix.POLLHUP > 0 {
		events |= EventHangup
	}

	return events
}
