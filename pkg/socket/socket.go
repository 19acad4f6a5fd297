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

// Package socket provides nonblocking TCP socket helpers for readiness-driven
// servers. Data transfer stays synchronous; only descriptor setup lives here.
package socket

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const defaultBacklog = 128

// ListenTCP4 opens a nonblocking listening socket bound to the given port on
// all IPv4 interfaces. Port 0 picks a free port; query it with Port.
func ListenTCP4(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)

		return -1, os.NewSyscallError("setsockopt", err)
	}

	if err = unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		_ = unix.Close(fd)

		return -1, os.NewSyscallError("bind", err)
	}

	if err = unix.Listen(fd, defaultBacklog); err != nil {
		_ = unix.Close(fd)

		return -1, os.NewSyscallError("listen", err)
	}

	return fd, nil
}

// Accept accepts one pending connection as a nonblocking descriptor.
func Accept(fd int) (int, error) {
	connFd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, os.NewSyscallError("accept4", err)
	}

	return connFd, nil
}

// Port returns the local port the descriptor is bound to.
func Port(fd int) (int, error) {
	sockAddr, err := unix.Getsockname(fd)
	if err != nil {
		return 0, os.NewSyscallError("getsockname", err)
	}

	switch addr := sockAddr.(type) {
	case *unix.SockaddrInet4:
		return addr.Port, nil
	case *unix.SockaddrInet6:
		return addr.Port, nil
	default:
		return 0, fmt.Errorf("unexpected sockaddr type: %T", sockAddr)
	}
}
