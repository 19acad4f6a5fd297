// Copyright (c) 2023 Paweł Gaczyński
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrRingUnavailable occurs when the kernel cannot set up an io_uring
	// instance. The caller should fall back to a traditional polling backend.
	ErrRingUnavailable = errors.New("io_uring is not available on this kernel")
	// ErrResourceExhausted occurs when no submission slot could be obtained
	// even after a forced flush, or when the flush itself failed.
	ErrResourceExhausted = errors.New("no free submission slot")
	// ErrDispatcherStarted occurs when starting an already started dispatcher.
	ErrDispatcherStarted = errors.New("dispatcher already started")
	// ErrDispatcherClosed occurs when using a dispatcher after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
	// ErrReservedHandle occurs when registering with a handle value the
	// dispatcher uses to tag internal requests (0 and MaxUint64).
	ErrReservedHandle = errors.New("handle value is reserved for internal use")
	// ErrEmptyPool occurs when a dispatcher pool is created with no members.
	ErrEmptyPool = errors.New("dispatcher pool needs at least one member")
	// ErrInvalidConfig occurs when a configuration value is out of range. It is
	// distinct from ErrRingUnavailable: the kernel is fine, the caller is not.
	ErrInvalidConfig = errors.New("invalid dispatcher configuration")
)

func ErrorResourceExhausted(fd int) error {
	return fmt.Errorf("%w, fd: %d", ErrResourceExhausted, fd)
}
