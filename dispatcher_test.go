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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ringpoll/ringpoll"
	ringpollErrors "github.com/ringpoll/ringpoll/pkg/errors"
	. "github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDispatcherLifecycle(t *testing.T) {
	requireAvailable(t)

	dispatcher, err := ringpoll.NewDispatcher(newTestHandler(), ringpoll.NewConfig())
	NoError(t, err)

	False(t, dispatcher.Running())
	NoError(t, dispatcher.Start())
	True(t, dispatcher.Running())

	Error(t, dispatcher.Start())
	True(t, errors.Is(dispatcher.Start(), ringpollErrors.ErrDispatcherStarted))

	NoError(t, dispatcher.Close())
	False(t, dispatcher.Running())

	True(t, errors.Is(dispatcher.Start(), ringpollErrors.ErrDispatcherClosed))
	NoError(t, dispatcher.Close())
}

func TestInvalidConfigRejected(t *testing.T) {
	badConfigs := []ringpoll.Config{
		ringpoll.NewConfig(ringpoll.WithRingDepth(0)),
		ringpoll.NewConfig(ringpoll.WithBatchThreshold(0)),
		ringpoll.NewConfig(ringpoll.WithBatchSize(0)),
		ringpoll.NewConfig(
			ringpoll.WithAsyncHandler(true),
			ringpoll.WithGoroutinePool(true),
			ringpoll.WithPoolSize(0),
		),
	}

	for _, config := range badConfigs {
		_, err := ringpoll.NewDispatcher(newTestHandler(), config)
		True(t, errors.Is(err, ringpollErrors.ErrInvalidConfig), "config %+v", config)
		// a bad value must not read as a missing kernel feature
		False(t, errors.Is(err, ringpollErrors.ErrRingUnavailable))
	}
}

func TestReservedHandleRejected(t *testing.T) {
	requireAvailable(t)

	reader, _ := makePipe(t)
	handler := newTestHandler()
	dispatcher := newTestDispatcher(t, handler)

	True(t, errors.Is(dispatcher.RegisterEvent(0, reader, true), ringpollErrors.ErrReservedHandle))
	True(t, errors.Is(dispatcher.AddConsumer(0, reader), ringpollErrors.ErrReservedHandle))
	True(t, errors.Is(dispatcher.UnregisterEvent(0, reader, false), ringpollErrors.ErrReservedHandle))
}

// A single registration must keep producing events for as long as the
// descriptor stays registered: each delivery re-arms the one-shot request.
func TestContinuousMonitoring(t *testing.T) {
	requireAvailable(t)

	reader, writer := makePipe(t)
	handler := newTestHandler()
	handler.onReadable = func(recordedEvent) {
		readByte(reader)
	}
	dispatcher := newTestDispatcher(t, handler)

	const handle = 7
	NoError(t, dispatcher.RegisterEvent(handle, reader, true))

	for round := 0; round < 5; round++ {
		writeByte(t, writer)

		ev := expectEvent(t, handler.readable)
		Equal(t, uint64(handle), ev.handle)
		True(t, ev.events&ringpoll.EventRead > 0)
		// a pipe read end is never writable
		True(t, ev.events&ringpoll.EventWrite == 0)
	}

	// drained and quiet, nothing more may arrive
	expectNoEvent(t, handler.readable, 300*time.Millisecond)
}

// Only the conditions that actually hold are reported: a connected socket
// registered for read and write interest is writable long before any data
// arrives.
func TestMaskFidelity(t *testing.T) {
	requireAvailable(t)

	local, peer := makeSocketpair(t)
	handler := newTestHandler()
	dispatcher := newTestDispatcher(t, handler)

	const handle = 11
	NoError(t, dispatcher.RegisterEvent(handle, local, true))

	ev := expectEvent(t, handler.writable)
	Equal(t, uint64(handle), ev.handle)
	True(t, ev.events&ringpoll.EventWrite > 0)
	True(t, ev.events&ringpoll.EventRead == 0)

	// drop write interest, keep read; the new request supersedes the old one
	NoError(t, dispatcher.UnregisterEvent(handle, local, true))
	drainUntilQuiet(t, handler.writable, 300*time.Millisecond)

	writeByte(t, peer)

	ev = expectEvent(t, handler.readable)
	Equal(t, uint64(handle), ev.handle)
	True(t, ev.events&ringpoll.EventRead > 0)
}

// After removal no callback fires even when the condition occurs, and the
// descriptor can be re-registered under a fresh handle.
func TestUnregisterStopsDelivery(t *testing.T) {
	requireAvailable(t)

	reader, writer := makePipe(t)
	handler := newTestHandler()
	dispatcher := newTestDispatcher(t, handler)

	NoError(t, dispatcher.RegisterEvent(21, reader, true))
	NoError(t, dispatcher.UnregisterEvent(21, reader, false))

	writeByte(t, writer)
	expectNoEvent(t, handler.readable, 500*time.Millisecond)

	// same descriptor, new identity; the pending byte fires immediately
	NoError(t, dispatcher.AddConsumer(22, reader))

	ev := expectEvent(t, handler.readable)
	Equal(t, uint64(22), ev.handle)
}

// A handle recycled onto a new descriptor must survive a stale removal still
// naming the old descriptor, and completions must route to the new one only.
func TestHandleRecycling(t *testing.T) {
	requireAvailable(t)

	oldReader, _ := makePipe(t)
	newReader, newWriter := makePipe(t)

	handler := newTestHandler()
	handler.onReadable = func(recordedEvent) {
		readByte(newReader)
	}
	dispatcher := newTestDispatcher(t, handler)

	const handle = 5
	NoError(t, dispatcher.AddConsumer(handle, oldReader))
	NoError(t, dispatcher.UnregisterEvent(handle, oldReader, false))

	// recycle the handle onto a different descriptor
	NoError(t, dispatcher.AddConsumer(handle, newReader))

	// stale duplicate removal aimed at the old descriptor
	NoError(t, dispatcher.UnregisterEvent(handle, oldReader, false))

	for round := 0; round < 2; round++ {
		writeByte(t, newWriter)

		ev := expectEvent(t, handler.readable)
		Equal(t, uint64(handle), ev.handle)
	}
}

func TestRemoveConsumerIdempotent(t *testing.T) {
	requireAvailable(t)

	reader, _ := makePipe(t)
	handler := newTestHandler()
	dispatcher := newTestDispatcher(t, handler)

	NoError(t, dispatcher.RemoveConsumer(reader))

	NoError(t, dispatcher.AddConsumer(31, reader))
	NoError(t, dispatcher.RemoveConsumer(reader))
	NoError(t, dispatcher.RemoveConsumer(reader))
}

// Fifty registrations, one write each: every handle reports exactly once,
// and all of them stay armed for a second round.
func TestManyDescriptorsBatch(t *testing.T) {
	requireAvailable(t)

	const descriptors = 50

	readers := make(map[uint64]int, descriptors)
	writers := make([]int, 0, descriptors)

	handler := newTestHandler()
	var mu sync.Mutex
	handler.onReadable = func(ev recordedEvent) {
		mu.Lock()
		fd := readers[ev.handle]
		mu.Unlock()
		readByte(fd)
	}
	dispatcher := newTestDispatcher(t, handler)

	for i := 0; i < descriptors; i++ {
		reader, writer := makePipe(t)
		handle := uint64(i + 1)
		mu.Lock()
		readers[handle] = reader
		mu.Unlock()
		writers = append(writers, writer)

		NoError(t, dispatcher.RegisterEvent(handle, reader, true))
	}

	for round := 0; round < 2; round++ {
		for _, writer := range writers {
			writeByte(t, writer)
		}

		seen := make(map[uint64]int, descriptors)
		for i := 0; i < descriptors; i++ {
			ev := expectEvent(t, handler.readable)
			seen[ev.handle]++
		}

		Equal(t, descriptors, len(seen), "round %d", round)
		for handle, count := range seen {
			Equal(t, 1, count, "handle %d in round %d", handle, round)
		}

		expectNoEvent(t, handler.readable, 200*time.Millisecond)
	}
}

// Registering an already closed descriptor fails asynchronously: the error
// surfaces as a logged completion, no callback fires, and the dispatcher
// keeps serving other descriptors.
func TestClosedDescriptor(t *testing.T) {
	requireAvailable(t)

	healthyReader, healthyWriter := makePipe(t)

	handler := newTestHandler()
	dispatcher := newTestDispatcher(t, handler)

	// open and close the doomed pipe after the dispatcher is up so its
	// fd numbers are not reused by the dispatcher's internal descriptors
	var doomed [2]int
	NoError(t, unix.Pipe2(doomed[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	NoError(t, unix.Close(doomed[0]))
	NoError(t, unix.Close(doomed[1]))

	// the call itself succeeds, the kernel rejects it on completion
	NoError(t, dispatcher.AddConsumer(41, doomed[0]))
	expectNoEvent(t, handler.readable, 500*time.Millisecond)

	NoError(t, dispatcher.AddConsumer(42, healthyReader))
	writeByte(t, healthyWriter)

	ev := expectEvent(t, handler.readable)
	Equal(t, uint64(42), ev.handle)
}

// Peer hangup is delivered once and tears the registration down; the
// descriptor is not re-armed afterwards.
func TestHangupStopsRearm(t *testing.T) {
	requireAvailable(t)

	reader, writer := makePipe(t)
	handler := newTestHandler()
	dispatcher := newTestDispatcher(t, handler)

	NoError(t, dispatcher.AddConsumer(51, reader))
	NoError(t, unix.Close(writer))

	ev := expectEvent(t, handler.readable)
	Equal(t, uint64(51), ev.handle)
	True(t, ev.events&ringpoll.EventHangup > 0)

	drainUntilQuiet(t, handler.readable, 300*time.Millisecond)
	drainUntilQuiet(t, handler.writable, 300*time.Millisecond)
}

// With a tiny ring and flushing disabled by a huge threshold, registration
// bursts must either succeed or fail fast with ErrResourceExhausted. No call
// may block indefinitely.
func TestBackpressureFailFast(t *testing.T) {
	requireAvailable(t)

	handler := newTestHandler()
	dispatcher := newTestDispatcher(t, handler,
		ringpoll.WithRingDepth(4),
		ringpoll.WithBatchThreshold(1<<20),
	)

	readers := make([]int, 0, 128)
	for i := 0; i < 128; i++ {
		reader, _ := makePipe(t)
		readers = append(readers, reader)
	}

	done := make(chan error, 1)

	go func() {
		for i, reader := range readers {
			err := dispatcher.AddConsumer(uint64(100+i), reader)
			if err != nil && !errors.Is(err, ringpollErrors.ErrResourceExhausted) {
				done <- err

				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		NoError(t, err, "unexpected error class")
	case <-time.After(10 * time.Second):
		t.Fatal("registration burst deadlocked")
	}
}

// Stop must interrupt a dispatch loop blocked in the completion wait.
func TestShutdownWhileIdle(t *testing.T) {
	requireAvailable(t)

	dispatcher, err := ringpoll.NewDispatcher(newTestHandler(), ringpoll.NewConfig())
	NoError(t, err)
	NoError(t, dispatcher.Start())

	// let the loop reach the blocking wait
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})

	go func() {
		dispatcher.Stop()
		dispatcher.Join()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not exit after Stop")
	}

	NoError(t, dispatcher.Close())
}

// A callback may mutate the registration table for its own descriptor.
func TestReregisterFromCallback(t *testing.T) {
	requireAvailable(t)

	reader, writer := makePipe(t)
	handler := newTestHandler()
	dispatcher := newTestDispatcher(t, handler)

	var once sync.Once
	callbackErrs := make(chan error, 2)
	handler.onReadable = func(ev recordedEvent) {
		readByte(reader)
		once.Do(func() {
			callbackErrs <- dispatcher.UnregisterEvent(ev.handle, reader, false)
			callbackErrs <- dispatcher.AddConsumer(61, reader)
		})
	}

	NoError(t, dispatcher.AddConsumer(60, reader))
	writeByte(t, writer)

	ev := expectEvent(t, handler.readable)
	Equal(t, uint64(60), ev.handle)
	NoError(t, <-callbackErrs)
	NoError(t, <-callbackErrs)

	writeByte(t, writer)

	ev = expectEvent(t, handler.readable)
	Equal(t, uint64(61), ev.handle)
}

func TestAsyncHandlerDelivery(t *testing.T) {
	requireAvailable(t)

	for _, pooled := range []bool{false, true} {
		pooled := pooled
		t.Run(fmt.Sprintf("goroutinePool=%t", pooled), func(t *testing.T) {
			reader, writer := makePipe(t)
			handler := newTestHandler()
			handler.onReadable = func(recordedEvent) {
				readByte(reader)
			}
			dispatcher := newTestDispatcher(t, handler,
				ringpoll.WithAsyncHandler(true),
				ringpoll.WithGoroutinePool(pooled),
			)

			NoError(t, dispatcher.AddConsumer(71, reader))
			writeByte(t, writer)

			ev := expectEvent(t, handler.readable)
			Equal(t, uint64(71), ev.handle)
		})
	}
}
