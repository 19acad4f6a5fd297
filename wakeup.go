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
)

// wakeupTag tags the wakeup pipe's poll requests in the kernel. Handle 0 is
// therefore reserved and rejected by the registration surface.
const wakeupTag uint64 = 0

// discardTag tags poll remove requests. Their own completions carry no
// information for the dispatcher and are dropped on arrival.
const discardTag uint64 = ^uint64(0)

const wakeupDrainSize = 64

// Stop requests loop termination and unblocks a waiting dispatch goroutine by
// writing one byte to the wakeup pipe. It is the only mechanism for
// cancelling a blocked dispatch thread externally.
func (d *Dispatcher) Stop() {
	if d.stopping.Swap(true) {
		return
	}

	_, _ = unix.Write(d.wakeupWriter, []byte{'W'})
}

// armWakeup registers read interest for the wakeup pipe. prepareRW leaves
// UserData zeroed, which is exactly the sentinel tag.
func (d *Dispatcher) armWakeup(force bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, err := d.acquireEntry()
	if err != nil {
		return err
	}
	entry.PreparePollAdd(d.wakeupReader, unix.POLLIN)
	d.pending++

	return d.maybeFlush(force)
}

// handleWakeup drains the pipe and re-arms it unless the dispatcher is
// stopping, in which case the loop exits without re-arming.
func (d *Dispatcher) handleWakeup() {
	var buf [wakeupDrainSize]byte

	_, _ = unix.Read(d.wakeupReader, buf[:])

	if d.stopping.Load() {
		return
	}

	if err := d.armWakeup(false); err != nil {
		d.logError(err).Msg("Re-arming wakeup channel failed")
	}
}

// kickIfWaiting wakes a dispatch loop blocked in the completion wait so that
// sub-threshold submissions still reach the kernel promptly.
func (d *Dispatcher) kickIfWaiting() {
	if d.waiting.Load() {
		_, _ = unix.Write(d.wakeupWriter, []byte{'k'})
	}
}
