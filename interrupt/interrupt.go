// Package interrupt implements the external interrupt channel: an upper
// half that reads fixed-size Interrupt records off a datagram socket and
// forwards them to a kernel-side lower half, and a lower half priority
// queue the scheduler drains from its "service pending interrupts" and
// "sleep" hooks.
//
// Interrupts are totally ordered by source id; the lower half is a
// max-heap, so a higher source id preempts a lower one. The heap has no
// capacity cap; the channel joining the two halves is buffered, and once
// it is full, back-pressure is the socket's receive buffer.
package interrupt

import (
	"container/heap"
	"time"

	"golang.org/x/sys/unix"

	"tockhost/hosterrors"
	"tockhost/logging"
	"tockhost/wire"
)

// Interrupt is a single external interrupt, ordered by Source.
type Interrupt struct {
	Source uint32
}

// interruptHeap is a max-heap on Source: the highest source id pops first.
type interruptHeap []Interrupt

func (h interruptHeap) Len() int            { return len(h) }
func (h interruptHeap) Less(i, j int) bool  { return h[i].Source > h[j].Source }
func (h interruptHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *interruptHeap) Push(x interface{}) { *h = append(*h, x.(Interrupt)) }
func (h *interruptHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// NewChannel binds externalSource and returns the upper half (which reads
// from the socket) paired with the lower half (which the scheduler drains).
func NewChannel(externalSource string) (*UpperHalf, *LowerHalf, error) {
	fd, err := bindDatagram(externalSource)
	if err != nil {
		return nil, nil, hosterrors.Wrap(err, hosterrors.IOError, "bind interrupt socket")
	}

	ch := make(chan Interrupt, 64)
	upper := &UpperHalf{fd: fd, sender: ch}
	lower := &LowerHalf{receiver: ch}
	return upper, lower, nil
}

func bindDatagram(path string) (int, error) {
	unix.Unlink(path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// UpperHalf owns the inbound datagram socket and the producer side of the
// channel to the lower half. It runs on its own goroutine.
type UpperHalf struct {
	fd     int
	sender chan<- Interrupt
}

// Spin reads one Interrupt record at a time and forwards it to the lower
// half, until a read fails or a datagram has the wrong length. It is meant to run on
// its own goroutine; callers observe termination through the returned
// error channel pattern of their choosing (e.g. by selecting alongside
// Spin's return).
func (u *UpperHalf) Spin() error {
	buf := make([]byte, wire.InterruptSize)
	for {
		n, err := unix.Read(u.fd, buf)
		if err != nil {
			return hosterrors.Wrap(err, hosterrors.IOError, "recv interrupt")
		}
		if n != wire.InterruptSize {
			return hosterrors.New(hosterrors.Custom, "recv interrupt", "short interrupt datagram")
		}

		var frame wire.Interrupt
		if err := frame.Decode(buf[:n]); err != nil {
			return err
		}

		select {
		case u.sender <- Interrupt{Source: frame.Source}:
		default:
			// The channel is full; block until the lower half drains
			// it.
			u.sender <- Interrupt{Source: frame.Source}
		}
	}
}

// Close releases the upper half's socket, which causes a blocked Spin to
// return with an error on its next read.
func (u *UpperHalf) Close() error {
	return unix.Close(u.fd)
}

// LowerHalf owns the consumer side of the channel and a priority queue of
// interrupts that have arrived but not yet been claimed.
type LowerHalf struct {
	receiver <-chan Interrupt
	pending  interruptHeap
}

// drain performs a non-blocking pull of every interrupt currently waiting
// on the channel into the heap.
func (l *LowerHalf) drain() {
	for {
		select {
		case in := <-l.receiver:
			heap.Push(&l.pending, in)
		default:
			return
		}
	}
}

// HasPendingInterrupts performs a non-blocking drain and reports whether
// any interrupt is now pending.
func (l *LowerHalf) HasPendingInterrupts() bool {
	l.drain()
	return len(l.pending) > 0
}

// WaitForInterrupt waits for one interrupt. If deadline is non-nil, it
// blocks up to that duration for the channel to deliver one; otherwise it
// performs only a non-blocking drain. Either way it returns the
// highest-priority pending interrupt, or nil if none is available. It
// never panics on empty.
func (l *LowerHalf) WaitForInterrupt(deadline *time.Duration) *Interrupt {
	if deadline == nil {
		l.drain()
		return l.pop()
	}

	if len(l.pending) > 0 {
		return l.pop()
	}

	timer := time.NewTimer(*deadline)
	defer timer.Stop()

	select {
	case in := <-l.receiver:
		heap.Push(&l.pending, in)
		l.drain()
		return l.pop()
	case <-timer.C:
		return nil
	}
}

func (l *LowerHalf) pop() *Interrupt {
	if len(l.pending) == 0 {
		return nil
	}
	in := heap.Pop(&l.pending).(Interrupt)
	return &in
}

// Next performs a non-blocking drain and pops one interrupt, or returns
// (Interrupt{}, false) when the queue is empty. It lets callers range over
// a LowerHalf's currently pending interrupts.
func (l *LowerHalf) Next() (Interrupt, bool) {
	l.drain()
	in := l.pop()
	if in == nil {
		return Interrupt{}, false
	}
	return *in, true
}

// Serve runs u.Spin on a new goroutine, logging and terminating the
// process on unrecoverable transport failure — a closed interrupt channel
// is fail-stop, per the emulator's error handling design.
func Serve(u *UpperHalf) {
	go func() {
		if err := u.Spin(); err != nil {
			logging.Error("interrupt upper half stopped", "error", err)
			panic(hosterrors.Wrap(err, hosterrors.ChannelError, "interrupt upper half"))
		}
	}()
}
