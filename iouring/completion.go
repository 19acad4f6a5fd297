package iouring

import (
	"sync/atomic"
	"unsafe"
)

const (
	CQEFBuffer uint32 = 1 << iota
	CQEFMore
	CQEFSockNonempty
	CQEFNotif
)

type CompletionQueueEvent struct {
	userData uint64
	res      int32
	flags    uint32
}

func (c *CompletionQueueEvent) UserData() uint64 {
	return c.userData
}

func (c *CompletionQueueEvent) Res() int32 {
	return c.res
}

func (c *CompletionQueueEvent) Flags() uint32 {
	return c.flags
}

func (ring *Ring) peekBatchCQEInternal(cqes []*CompletionQueueEvent) int {
	ready := atomic.LoadUint32(ring.cqRing.tail) - atomic.LoadUint32(ring.cqRing.head)
	count := min(len(cqes), int(ready))
	if ready != 0 {
		head := atomic.LoadUint32(ring.cqRing.head)
		mask := atomic.LoadUint32(ring.cqRing.ringMask)
		last := head + uint32(count)
		for i := 0; head != last; head, i = head+1, i+1 {
			cqes[i] = (*CompletionQueueEvent)(
				unsafe.Add(
					unsafe.Pointer(ring.cqRing.cqeBuff),
					uintptr(head&mask)*unsafe.Sizeof(CompletionQueueEvent{}),
				),
			)
		}
	}

	return count
}

// PeekBatchCQE fills cqes with already-completed events without blocking and
// without consuming them. Call CQAdvance once the batch has been processed.
func (ring *Ring) PeekBatchCQE(cqes []*CompletionQueueEvent) int {
	numberOfCQEs := ring.peekBatchCQEInternal(cqes)
	if numberOfCQEs == 0 && ring.cqRingNeedsFlush() {
		_, _ = ring.enter(0, 0, EnterGetEvents, nil)
		numberOfCQEs = ring.peekBatchCQEInternal(cqes)
	}

	return numberOfCQEs
}

func (ring *Ring) peekCQE() (uint32, *CompletionQueueEvent) {
	mask := *ring.cqRing.ringMask

	tail := atomic.LoadUint32(ring.cqRing.tail)
	head := atomic.LoadUint32(ring.cqRing.head)

	available := tail - head
	if available == 0 {
		return 0, nil
	}

	event := (*CompletionQueueEvent)(
		unsafe.Add(unsafe.Pointer(ring.cqRing.cqeBuff), uintptr(head&mask)*unsafe.Sizeof(CompletionQueueEvent{})),
	)

	return available, event
}

func (ring *Ring) getCQE(submit, waitNr uint32) (*CompletionQueueEvent, error) {
	for looped := false; ; looped = true {
		available, event := ring.peekCQE()

		var flags uint32

		needEnter := false
		if event == nil && waitNr == 0 && submit == 0 {
			if looped || !ring.cqRingNeedsEnter() {
				return nil, ErrAgain
			}
			needEnter = true
		}
		if waitNr > available || needEnter {
			flags = EnterGetEvents
			needEnter = true
		}
		if submit != 0 && ring.sqRingNeedsEnter(&flags) {
			needEnter = true
		}
		if event != nil && submit == 0 {
			return event, nil
		}
		if !needEnter {
			return event, nil
		}

		consumed, err := ring.enter(submit, waitNr, flags, nil)
		if err != nil {
			return nil, err
		}
		submit -= uint32(consumed)

		if event != nil {
			return event, nil
		}
	}
}

// WaitCQENr blocks until at least waitNr completions are available and returns
// the first one without consuming it.
func (ring *Ring) WaitCQENr(waitNr uint32) (*CompletionQueueEvent, error) {
	return ring.getCQE(0, waitNr)
}

func (ring *Ring) WaitCQE() (*CompletionQueueEvent, error) {
	return ring.WaitCQENr(1)
}

func (ring *Ring) CQESeen(event *CompletionQueueEvent) {
	if event != nil {
		ring.CQAdvance(1)
	}
}

func (ring *Ring) cqRingNeedsFlush() bool {
	return atomic.LoadUint32(ring.sqRing.flags)&SQCQOverflow != 0
}

func (ring *Ring) cqRingNeedsEnter() bool {
	return (ring.flags&SetupIOPoll != 0) || ring.cqRingNeedsFlush()
}

// CQAdvance acknowledges nr completions in one step.
func (ring *Ring) CQAdvance(nr uint32) {
	atomic.StoreUint32(ring.cqRing.head, *ring.cqRing.head+nr)
}
