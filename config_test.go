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

	"github.com/ringpoll/ringpoll"
	"github.com/ringpoll/ringpoll/logger"
	. "github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	config := ringpoll.NewConfig()

	Equal(t, uint(256), config.RingDepth)
	Equal(t, 8, config.BatchThreshold)
	Equal(t, 32, config.BatchSize)
	Equal(t, 32, config.PoolSize)
	False(t, config.AsyncHandler)
	False(t, config.GoroutinePool)
	False(t, config.LockOSThread)
	False(t, config.CPUAffinity)
	False(t, config.ProcessPriority)
	Equal(t, logger.ErrorLevel, config.LoggerLevel)
	False(t, config.PrettyLogger)
}

func TestConfigOptions(t *testing.T) {
	config := ringpoll.NewConfig(
		ringpoll.WithRingDepth(64),
		ringpoll.WithBatchThreshold(16),
		ringpoll.WithBatchSize(128),
		ringpoll.WithAsyncHandler(true),
		ringpoll.WithGoroutinePool(true),
		ringpoll.WithPoolSize(4),
		ringpoll.WithLockOSThread(true),
		ringpoll.WithCPUAffinity(true),
		ringpoll.WithProcessPriority(true),
		ringpoll.WithLoggerLevel(logger.DebugLevel),
		ringpoll.WithPrettyLogger(true),
	)

	Equal(t, uint(64), config.RingDepth)
	Equal(t, 16, config.BatchThreshold)
	Equal(t, 128, config.BatchSize)
	True(t, config.AsyncHandler)
	True(t, config.GoroutinePool)
	Equal(t, 4, config.PoolSize)
	True(t, config.LockOSThread)
	True(t, config.CPUAffinity)
	True(t, config.ProcessPriority)
	Equal(t, logger.DebugLevel, config.LoggerLevel)
	True(t, config.PrettyLogger)
}
