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
	perrors "github.com/pkg/errors"

	"github.com/ringpoll/ringpoll/iouring"
	ringpollErrors "github.com/ringpoll/ringpoll/pkg/errors"
)

// acquireEntry returns a free submission slot. When the queue is full it
// force-flushes pending entries and retries once; a second failure surfaces
// as ErrResourceExhausted. Callers must hold mu.
func (d *Dispatcher) acquireEntry() (*iouring.SubmissionQueueEntry, error) {
	entry, err := d.ring.GetSQE()
	if err == nil {
		return entry, nil
	}

	if flushErr := d.flush(); flushErr != nil {
		return nil, flushErr
	}

	entry, err = d.ring.GetSQE()
	if err != nil {
		return nil, perrors.Wrap(ringpollErrors.ErrResourceExhausted, err.Error())
	}

	return entry, nil
}

// maybeFlush submits queued entries once the batch threshold is reached or
// when forced, amortizing the submit syscall over many registration changes.
// Below the threshold a blocked dispatch loop is kicked through the wakeup
// channel so queued entries reach the kernel on its next iteration. Callers
// must hold mu.
func (d *Dispatcher) maybeFlush(force bool) error {
	if !force && d.pending < d.config.BatchThreshold {
		d.kickIfWaiting()

		return nil
	}
	if d.pending == 0 {
		return nil
	}

	return d.flush()
}

func (d *Dispatcher) flush() error {
	if _, err := d.ring.Submit(); err != nil {
		return perrors.Wrap(ringpollErrors.ErrResourceExhausted, err.Error())
	}
	d.pending = 0

	return nil
}
