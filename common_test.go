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

package ringpoll_test

import (
	"testing"
	"time"

	"github.com/ringpoll/ringpoll"
	. "github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const eventTimeout = 3 * time.Second

func requireAvailable(tb testing.TB) {
	tb.Helper()

	if !ringpoll.Available() {
		tb.Skip("io_uring not available on this system")
	}
}

type recordedEvent struct {
	handle uint64
	events ringpoll.EventMask
}

// testHandler records callbacks without ever blocking the dispatch goroutine.
// The optional hooks run synchronously before recording, so tests can drain
// descriptors inside the callback.
type testHandler struct {
	readable chan recordedEvent
	writable chan recordedEvent

	onReadable func(ev recordedEvent)
	onWritable func(ev recordedEvent)
}

func (h *testHandler) OnReadable(handle uint64, events ringpoll.EventMask) {
	ev := recordedEvent{handle: handle, events: events}
	if h.onReadable != nil {
		h.onReadable(ev)
	}
	select {
	case h.readable <- ev:
	default:
	}
}

func (h *testHandler) OnWritable(handle uint64, events ringpoll.EventMask) {
	ev := recordedEvent{handle: handle, events: events}
	if h.onWritable != nil {
		h.onWritable(ev)
	}
	select {
	case h.writable <- ev:
	default:
	}
}

func newTestHandler() *testHandler {
	return &testHandler{
		readable: make(chan recordedEvent, 1024),
		writable: make(chan recordedEvent, 1024),
	}
}

func newTestDispatcher(t *testing.T, handler ringpoll.EventHandler, opts ...ringpoll.ConfigOption) *ringpoll.Dispatcher {
	t.Helper()

	dispatcher, err := ringpoll.NewDispatcher(handler, ringpoll.NewConfig(opts...))
	NoError(t, err)
	NoError(t, dispatcher.Start())
	t.Cleanup(func() {
		_ = dispatcher.Close()
	})

	return dispatcher
}

func makePipe(t *testing.T) (int, int) {
	t.Helper()

	var fds [2]int
	NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	return fds[0], fds[1]
}

func makeSocketpair(t *testing.T) (int, int) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	return fds[0], fds[1]
}

func writeByte(t *testing.T, fd int) {
	t.Helper()

	n, err := unix.Write(fd, []byte{'x'})
	NoError(t, err)
	Equal(t, 1, n)
}

func readByte(fd int) {
	var buf [1]byte
	_, _ = unix.Read(fd, buf[:])
}

func expectEvent(t *testing.T, events <-chan recordedEvent) recordedEvent {
	t.Helper()

	select {
	case ev := <-events:
		return ev
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for readiness event")
	}

	return recordedEvent{}
}

func expectNoEvent(t *testing.T, events <-chan recordedEvent, wait time.Duration) {
	t.Helper()

	select {
	case ev := <-events:
		t.Fatalf("unexpected event for handle %d: %s", ev.handle, ev.events)
	case <-time.After(wait):
	}
}

// drainUntilQuiet discards events until none arrive for the quiet window.
func drainUntilQuiet(t *testing.T, events <-chan recordedEvent, quiet time.Duration) {
	t.Helper()

	deadline := time.Now().Add(eventTimeout)
	for {
		select {
		case <-events:
			if time.Now().After(deadline) {
				t.Fatal("event stream did not quiesce")
			}
		case <-time.After(quiet):
			return
		}
	}
}
