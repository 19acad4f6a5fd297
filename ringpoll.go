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

// Package ringpoll is an I/O readiness dispatcher built on io_uring. It
// multiplexes many file descriptors over a single ring, batching both the
// submission of poll requests and the harvesting of completions, and delivers
// readiness callbacks to the caller. Registrations are one-shot at the kernel
// level; the dispatcher re-arms them transparently so callers observe
// epoll-like continuous monitoring. Data transfer stays with the caller: the
// dispatcher only reports readiness.
package ringpoll

import (
	"github.com/ringpoll/ringpoll/iouring"
)

// EventHandler receives readiness notifications. Both callbacks run on the
// dispatch goroutine (unless the async handler is enabled) and must not block.
type EventHandler interface {
	// OnReadable fires when the descriptor registered under handle is
	// readable, or reported an error or hangup.
	OnReadable(handle uint64, events EventMask)
	// OnWritable fires when the descriptor registered under handle is
	// writable, or reported an error or hangup. A single completion may fire
	// both callbacks.
	OnWritable(handle uint64, events EventMask)
}

// DefaultEventHandler is a no-op implementation of EventHandler. Compose it
// with your own type to implement only the callbacks you need.
type DefaultEventHandler struct{}

func (e DefaultEventHandler) OnReadable(handle uint64, events EventMask) {}
func (e DefaultEventHandler) OnWritable(handle uint64, events EventMask) {}

// Available reports whether the running kernel supports io_uring. When it
// returns false, NewDispatcher fails with ErrRingUnavailable and the caller
// should select a fallback polling backend.
func Available() bool {
	return iouring.IsAvailable()
}
