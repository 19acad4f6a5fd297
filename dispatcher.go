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
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/alitto/pond"
	perrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/ringpoll/ringpoll/iouring"
	"github.com/ringpoll/ringpoll/logger"
	ringpollErrors "github.com/ringpoll/ringpoll/pkg/errors"
)

// Dispatcher multiplexes readiness notifications for many descriptors over a
// single io_uring instance. One goroutine per Dispatcher drives the
// harvest/re-arm/flush loop; registration calls may come from any goroutine.
type Dispatcher struct {
	config  Config
	logger  zerolog.Logger
	handler EventHandler

	ring *iouring.Ring

	// mu guards the tracking tables, the submission side of the ring and the
	// pending counter. The completion side is touched only by the dispatch
	// goroutine.
	mu         sync.Mutex
	fdTable    map[int]*registration
	handleToFd map[uint64]int
	pending    int

	wakeupReader int
	wakeupWriter int

	pool *pond.WorkerPool

	started  atomic.Bool
	stopping atomic.Bool
	waiting  atomic.Bool
	wg       sync.WaitGroup

	releaseOnce sync.Once
}

// NewDispatcher probes kernel support, sets up the ring and the wakeup
// channel. It fails with ErrRingUnavailable when the kernel lacks io_uring;
// the caller must then select a fallback backend.
func NewDispatcher(handler EventHandler, config Config) (*Dispatcher, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if !iouring.IsAvailable() {
		return nil, ringpollErrors.ErrRingUnavailable
	}

	// The probe above succeeded, so a setup failure here is not an
	// availability problem and must not steer the caller to a fallback.
	ring, err := iouring.CreateRing(config.RingDepth)
	if err != nil {
		return nil, perrors.Wrap(err, "ring setup failed")
	}

	var pipeFds [2]int

	err = unix.Pipe2(pipeFds[:], unix.O_CLOEXEC|unix.O_NONBLOCK)
	if err != nil {
		_ = ring.QueueExit()

		return nil, perrors.Wrap(err, "wakeup pipe error")
	}

	dispatcher := &Dispatcher{
		config:       config,
		logger:       logger.NewLogger("dispatcher", config.LoggerLevel, config.PrettyLogger),
		handler:      handler,
		ring:         ring,
		fdTable:      make(map[int]*registration),
		handleToFd:   make(map[uint64]int),
		wakeupReader: pipeFds[0],
		wakeupWriter: pipeFds[1],
	}
	if config.AsyncHandler && config.GoroutinePool {
		dispatcher.pool = pond.New(config.PoolSize, config.PoolSize)
	}

	return dispatcher, nil
}

// Start launches the dispatch goroutine.
func (d *Dispatcher) Start() error {
	if d.stopping.Load() {
		return ringpollErrors.ErrDispatcherClosed
	}
	if d.started.Swap(true) {
		return ringpollErrors.ErrDispatcherStarted
	}

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		d.run()
	}()

	return nil
}

// Running reports whether the dispatch loop has been started and not stopped.
func (d *Dispatcher) Running() bool {
	return d.started.Load() && !d.stopping.Load()
}

// Join blocks until the dispatch goroutine has exited.
func (d *Dispatcher) Join() {
	d.wg.Wait()
}

// Close stops the dispatcher, waits for the loop to exit and releases the
// ring and the wakeup channel.
func (d *Dispatcher) Close() error {
	d.Stop()
	d.Join()

	var err error

	d.releaseOnce.Do(func() {
		if d.pool != nil {
			d.pool.StopAndWait()
		}
		err = d.ring.QueueExit()
		_ = unix.Close(d.wakeupReader)
		_ = unix.Close(d.wakeupWriter)
	})

	return err
}

func (d *Dispatcher) run() {
	if d.config.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	if d.config.CPUAffinity {
		if err := setAffinity(0); err != nil {
			d.logWarn(err).Msg("Setting CPU affinity failed")
		}
	}
	if d.config.ProcessPriority {
		if err := setProcessPriority(); err != nil {
			d.logWarn(err).Msg("Setting process priority failed")
		}
	}

	if err := d.armWakeup(true); err != nil {
		d.logError(err).Msg("Arming wakeup channel failed")

		return
	}

	cqes := make([]*iouring.CompletionQueueEvent, d.config.BatchSize)

	for !d.stopping.Load() {
		n := d.ring.PeekBatchCQE(cqes)
		if n == 0 {
			if !d.waitForCompletion() {
				return
			}

			continue
		}

		for i := 0; i < n; i++ {
			d.processCompletion(cqes[i])
		}
		// one bulk acknowledgment for the whole batch
		d.ring.CQAdvance(uint32(n))

		d.mu.Lock()
		err := d.maybeFlush(true)
		d.mu.Unlock()

		if err != nil {
			d.logWarn(err).Msg("Flush after batch failed")
		}
	}
}

// waitForCompletion blocks until at least one completion is available. It
// returns false when the wait failed with a non-transient error, which
// terminates the dispatch loop.
func (d *Dispatcher) waitForCompletion() bool {
	d.waiting.Store(true)
	defer d.waiting.Store(false)

	// Entries enqueued before this point must reach the kernel before the
	// wait; entries enqueued while blocked wake the loop via the wakeup
	// channel instead.
	d.mu.Lock()
	err := d.maybeFlush(true)
	d.mu.Unlock()

	if err != nil {
		d.logWarn(err).Msg("Flush before wait failed")
	}

	_, err = d.ring.WaitCQENr(1)
	if err == nil ||
		errors.Is(err, iouring.ErrInterruptedSyscall) ||
		errors.Is(err, iouring.ErrAgain) {
		return true
	}

	d.logError(err).Msg("Completion wait failed, dispatch loop terminating")

	return false
}

func (d *Dispatcher) processCompletion(cqe *iouring.CompletionQueueEvent) {
	userData, res := cqe.UserData(), cqe.Res()

	if userData == wakeupTag {
		d.handleWakeup()

		return
	}

	if userData == discardTag {
		// acknowledgment of a poll remove request
		return
	}

	if res < 0 {
		errno := syscall.Errno(-res)
		if errno == unix.ECANCELED {
			// expected after a poll remove
			d.logger.Debug().Uint64("handle", userData).Msg("Poll request cancelled")

			return
		}
		d.logWarn(nil).
			Uint64("handle", userData).
			Str("error", unix.ErrnoName(errno)).
			Msg("Poll request returned error code")

		return
	}

	events := eventsFromPoll(uint32(res))

	d.mu.Lock()

	fd, tracked := d.handleToFd[userData]
	if tracked {
		// the kernel retired the one-shot on delivery
		d.fdTable[fd].armed = false
		if events&EventHangup > 0 {
			d.purgeLocked(fd, userData)
		}
	}

	d.mu.Unlock()

	if !tracked {
		d.logger.Debug().Uint64("handle", userData).Msg("Completion for unregistered handle")

		return
	}

	d.deliver(userData, events)

	if events&EventHangup == 0 {
		d.rearm(userData, fd)
	}
}

func (d *Dispatcher) deliver(handle uint64, events EventMask) {
	if !d.config.AsyncHandler {
		d.invoke(handle, events)

		return
	}
	if d.pool != nil {
		d.pool.Submit(func() {
			d.invoke(handle, events)
		})

		return
	}

	go d.invoke(handle, events)
}

func (d *Dispatcher) invoke(handle uint64, events EventMask) {
	if events.Readable() {
		d.handler.OnReadable(handle, events)
	}
	if events.Writable() {
		d.handler.OnWritable(handle, events)
	}
}

// rearm re-issues the one-shot registration with the descriptor's last
// recorded interest mask. Without it a descriptor would go silent after its
// first event. The entry is flushed with the batch-end flush.
func (d *Dispatcher) rearm(handle uint64, fd int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg, ok := d.fdTable[fd]
	if !ok || reg.handle != handle || reg.armed {
		// removed or re-registered by a callback in the meantime
		return
	}

	entry, err := d.acquireEntry()
	if err != nil {
		d.logWarn(err).Int("fd", fd).Uint64("handle", handle).Msg("Re-arm failed")

		return
	}
	entry.PreparePollAdd(fd, reg.mask)
	entry.UserData = handle
	reg.armed = true
	d.pending++
}

func (d *Dispatcher) logWarn(err error) *zerolog.Event {
	return d.logger.Warn().Int("ring fd", d.ring.Fd()).Err(err)
}

func (d *Dispatcher) logError(err error) *zerolog.Event {
	return d.logger.Error().Int("ring fd", d.ring.Fd()).Err(err)
}
