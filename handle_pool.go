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
	"sync/atomic"

	"github.com/ringpoll/ringpoll/pkg/stack"
)

// 0 is the wakeup sentinel, so allocation starts at 1.
const firstFreeHandle = 1

// HandlePool hands out unique non-zero handle values and recycles released
// ones. Safe for concurrent use.
type HandlePool struct {
	stack      *stack.Stack[uint64]
	nextHandle uint64
}

func (p *HandlePool) Get() uint64 {
	handle := p.stack.Pop()
	if handle == 0 {
		return atomic.AddUint64(&p.nextHandle, 1) - 1
	}

	return handle
}

func (p *HandlePool) Put(handle uint64) {
	if handle == 0 {
		return
	}
	p.stack.Push(handle)
}

func NewHandlePool() *HandlePool {
	return &HandlePool{
		stack:      stack.NewLockFreeStack[uint64](),
		nextHandle: firstFreeHandle,
	}
}
