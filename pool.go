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

	ringpollErrors "github.com/ringpoll/ringpoll/pkg/errors"
)

// DispatcherPool shards load across independent dispatchers, each with its
// own ring and dispatch goroutine.
type DispatcherPool struct {
	dispatchers []*Dispatcher
	next        uint32
}

func NewDispatcherPool(handler EventHandler, config Config, size int) (*DispatcherPool, error) {
	if size < 1 {
		return nil, ringpollErrors.ErrEmptyPool
	}

	pool := &DispatcherPool{
		dispatchers: make([]*Dispatcher, 0, size),
	}
	for i := 0; i < size; i++ {
		dispatcher, err := NewDispatcher(handler, config)
		if err != nil {
			_ = pool.Close()

			return nil, err
		}
		pool.dispatchers = append(pool.dispatchers, dispatcher)
	}

	return pool, nil
}

// Next returns members round robin. Register a descriptor with the member
// returned and keep using that member for the descriptor's whole lifetime.
func (p *DispatcherPool) Next() *Dispatcher {
	idx := atomic.AddUint32(&p.next, 1) - 1

	return p.dispatchers[idx%uint32(len(p.dispatchers))]
}

func (p *DispatcherPool) Size() int {
	return len(p.dispatchers)
}

func (p *DispatcherPool) Start() error {
	for _, dispatcher := range p.dispatchers {
		if err := dispatcher.Start(); err != nil {
			p.Stop()

			return err
		}
	}

	return nil
}

func (p *DispatcherPool) Stop() {
	for _, dispatcher := range p.dispatchers {
		dispatcher.Stop()
	}
}

func (p *DispatcherPool) Join() {
	for _, dispatcher := range p.dispatchers {
		dispatcher.Join()
	}
}

func (p *DispatcherPool) Close() error {
	var firstErr error
	for _, dispatcher := range p.dispatchers {
		if err := dispatcher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
