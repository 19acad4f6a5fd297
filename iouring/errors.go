package iouring

import (
	"errors"
	"fmt"
)

var (
	ErrInterruptedSyscall = errors.New("interrupted system call")
	ErrAgain              = errors.New("try again")
	ErrSQEOverflow        = errors.New("submission queue is full")
)

func ErrorSQEOverflow(unsubmitted uint32) error {
	return fmt.Errorf("%w, unsubmitted entries: %d", ErrSQEOverflow, unsubmitted)
}
