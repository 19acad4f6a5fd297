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
	"golang.org/x/sys/unix"

	ringpollErrors "github.com/ringpoll/ringpoll/pkg/errors"
)

// registration tracks the latest interest expressed for a descriptor. armed
// is true while a one-shot poll request is outstanding in the kernel; at most
// one request is outstanding per descriptor.
type registration struct {
	handle uint64
	mask   uint32
	armed  bool
}

// RegisterEvent arms readiness monitoring for fd under the given handle.
// Write interest is always included; read interest when wantRead is set.
// It fails with ErrResourceExhausted when no submission slot can be obtained
// even after a forced flush.
func (d *Dispatcher) RegisterEvent(handle uint64, fd int, wantRead bool) error {
	mask := uint32(unix.POLLOUT)
	if wantRead {
		mask |= unix.POLLIN
	}

	return d.addPoll(handle, fd, mask)
}

// UnregisterEvent with wantRead=true downgrades the registration to read-only
// interest; the outstanding one-shot cannot be mutated in place, so it is
// cancelled and a read-only request takes its place. With wantRead=false the
// registration is removed: tables are purged at call time while the
// kernel-side cancellation completes asynchronously, surfacing later as a
// benign cancellation completion.
func (d *Dispatcher) UnregisterEvent(handle uint64, fd int, wantRead bool) error {
	if handle == wakeupTag || handle == discardTag {
		return ringpollErrors.ErrReservedHandle
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	reg, tracked := d.fdTable[fd]
	if tracked && reg.armed {
		entry, err := d.acquireEntry()
		if err != nil {
			return err
		}
		entry.PreparePollRemove(reg.handle)
		entry.UserData = discardTag
		reg.armed = false
		d.pending++
	}

	if wantRead {
		return d.addPollLocked(handle, fd, unix.POLLIN)
	}

	if tracked {
		d.purgeLocked(fd, reg.handle)
	} else if mappedFd, ok := d.handleToFd[handle]; ok && mappedFd == fd {
		// The handle may have been recycled onto another descriptor since
		// this fd was last tracked; only drop the mapping it still owns.
		delete(d.handleToFd, handle)
	}

	return d.maybeFlush(false)
}

// AddConsumer arms read-only readiness monitoring for fd.
func (d *Dispatcher) AddConsumer(handle uint64, fd int) error {
	return d.addPoll(handle, fd, unix.POLLIN)
}

// RemoveConsumer removes the registration for fd. Untracked descriptors are
// not an error, and a failed cancellation flush is reported as success since
// the descriptor may already be closed.
func (d *Dispatcher) RemoveConsumer(fd int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg, ok := d.fdTable[fd]
	if !ok {
		return nil
	}

	entry, err := d.acquireEntry()
	if err != nil {
		return err
	}
	entry.PreparePollRemove(reg.handle)
	entry.UserData = discardTag
	d.purgeLocked(fd, reg.handle)
	d.pending++

	if err := d.maybeFlush(false); err != nil {
		d.logWarn(err).Int("fd", fd).Msg("Poll remove flush failed")
	}

	return nil
}

func (d *Dispatcher) addPoll(handle uint64, fd int, mask uint32) error {
	if handle == wakeupTag || handle == discardTag {
		return ringpollErrors.ErrReservedHandle
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.addPollLocked(handle, fd, mask)
}

func (d *Dispatcher) addPollLocked(handle uint64, fd int, mask uint32) error {
	entry, err := d.acquireEntry()
	if err != nil {
		return err
	}
	entry.PreparePollAdd(fd, mask)
	entry.UserData = handle

	// Tables reflect the caller's latest intent immediately; kernel
	// acknowledgment lags behind.
	if prev, ok := d.fdTable[fd]; ok && prev.handle != handle {
		delete(d.handleToFd, prev.handle)
	}
	if prevFd, ok := d.handleToFd[handle]; ok && prevFd != fd {
		delete(d.fdTable, prevFd)
	}
	d.fdTable[fd] = &registration{handle: handle, mask: mask, armed: true}
	d.handleToFd[handle] = fd
	d.pending++

	return d.maybeFlush(false)
}

func (d *Dispatcher) purgeLocked(fd int, handle uint64) {
	delete(d.fdTable, fd)
	delete(d.handleToFd, handle)
}
