package core

import "sync/atomic"

// NoticeRingSize must be a power of two
const NoticeRingSize = 16

// TransferNotice describes one completed transaction
type TransferNotice struct {
	Instance SPIInstanceID
	Address  uint16
	RXCount  int32  // Bytes clocked in by the controller
	Capacity uint16 // Size of the RX buffer that was offered
}

// Overflowed reports whether the controller sent more than RX could hold
func (n TransferNotice) Overflowed() bool {
	return n.RXCount > int32(n.Capacity)
}

// NoticeRing hands notices from interrupt context (single producer) to the
// foreground (single consumer) without locks or allocation.
// Notices are dropped and counted when the consumer falls behind.
type NoticeRing struct {
	buf     [NoticeRingSize]TransferNotice
	head    uint32 // Written by producer
	tail    uint32 // Written by consumer
	dropped uint32
}

// Push appends a notice; returns false if the ring was full
func (r *NoticeRing) Push(n TransferNotice) bool {
	head := atomic.LoadUint32(&r.head)
	tail := atomic.LoadUint32(&r.tail)
	if head-tail >= NoticeRingSize {
		atomic.AddUint32(&r.dropped, 1)
		return false
	}
	r.buf[head&(NoticeRingSize-1)] = n
	atomic.StoreUint32(&r.head, head+1)
	return true
}

// Pop removes the oldest notice
func (r *NoticeRing) Pop() (TransferNotice, bool) {
	tail := atomic.LoadUint32(&r.tail)
	if tail == atomic.LoadUint32(&r.head) {
		return TransferNotice{}, false
	}
	n := r.buf[tail&(NoticeRingSize-1)]
	atomic.StoreUint32(&r.tail, tail+1)
	return n, true
}

// Len returns the number of queued notices
func (r *NoticeRing) Len() int {
	return int(atomic.LoadUint32(&r.head) - atomic.LoadUint32(&r.tail))
}

// Dropped returns how many notices were lost to a full ring
func (r *NoticeRing) Dropped() uint32 {
	return atomic.LoadUint32(&r.dropped)
}
