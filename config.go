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
	"github.com/rs/zerolog"

	ringpollErrors "github.com/ringpoll/ringpoll/pkg/errors"
)

const (
	defaultRingDepth      = 256
	defaultBatchThreshold = 8
	defaultBatchSize      = 32
	defaultPoolSize       = 32
)

type ConfigOption func(*Config)

type Config struct {
	// RingDepth is the submission queue depth of the ring.
	RingDepth uint
	// BatchThreshold is the pending-entry count at which queued submissions
	// are flushed to the kernel. Larger values save syscalls during
	// registration bursts at the cost of added submission latency.
	BatchThreshold int
	// BatchSize bounds how many completions are harvested and acknowledged
	// per loop iteration.
	BatchSize int

	// AsyncHandler moves callback execution off the dispatch goroutine.
	// Callback ordering across completions is no longer guaranteed.
	AsyncHandler bool
	// GoroutinePool runs async callbacks on a bounded worker pool instead of
	// one goroutine per callback. Ignored unless AsyncHandler is set.
	GoroutinePool bool
	// PoolSize caps the worker pool used with GoroutinePool.
	PoolSize int

	LockOSThread    bool
	CPUAffinity     bool
	ProcessPriority bool

	LoggerLevel  zerolog.Level
	PrettyLogger bool
}

func WithRingDepth(depth uint) ConfigOption {
	return func(c *Config) {
		c.RingDepth = depth
	}
}

func WithBatchThreshold(threshold int) ConfigOption {
	return func(c *Config) {
		c.BatchThreshold = threshold
	}
}

func WithBatchSize(size int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = size
	}
}

func WithAsyncHandler(asyncHandler bool) ConfigOption {
	return func(c *Config) {
		c.AsyncHandler = asyncHandler
	}
}

func WithGoroutinePool(goroutinePool bool) ConfigOption {
	return func(c *Config) {
		c.GoroutinePool = goroutinePool
	}
}

func WithPoolSize(poolSize int) ConfigOption {
	return func(c *Config) {
		c.PoolSize = poolSize
	}
}

func WithLockOSThread(lockOSThread bool) ConfigOption {
	return func(c *Config) {
		c.LockOSThread = lockOSThread
	}
}

func WithCPUAffinity(cpuAffinity bool) ConfigOption {
	return func(c *Config) {
		c.CPUAffinity = cpuAffinity
	}
}

func WithProcessPriority(processPriority bool) ConfigOption {
	return func(c *Config) {
		c.ProcessPriority = processPriority
	}
}

func WithLoggerLevel(loggerLevel zerolog.Level) ConfigOption {
	return func(c *Config) {
		c.LoggerLevel = loggerLevel
	}
}

func WithPrettyLogger(prettyLogger bool) ConfigOption {
	return func(c *Config) {
		c.PrettyLogger = prettyLogger
	}
}

func (c Config) validate() error {
	if c.RingDepth < 1 {
		return perrors.Wrap(ringpollErrors.ErrInvalidConfig, "ring depth must be positive")
	}
	if c.BatchThreshold < 1 {
		return perrors.Wrap(ringpollErrors.ErrInvalidConfig, "batch threshold must be positive")
	}
	if c.BatchSize < 1 {
		return perrors.Wrap(ringpollErrors.ErrInvalidConfig, "batch size must be positive")
	}
	if c.AsyncHandler && c.GoroutinePool && c.PoolSize < 1 {
		return perrors.Wrap(ringpollErrors.ErrInvalidConfig, "pool size must be positive")
	}

	return nil
}

func NewConfig(opts ...ConfigOption) Config {
	config := Config{
		RingDepth:      defaultRingDepth,
		BatchThreshold: defaultBatchThreshold,
		BatchSize:      defaultBatchSize,
		PoolSize:       defaultPoolSize,
		LoggerLevel:    zerolog.ErrorLevel,
	}
	for _, opt := range opts {
		opt(&config)
	}

	return config
}
