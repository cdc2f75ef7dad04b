package transport

import (
	"io"
	"sync"

	"github.com/dmitrijs2005/securechat/internal/common"
)

// memoryChannel is one end of an in-process channel pair.
type memoryChannel struct {
	name string
	in   <-chan []byte
	out  chan<- []byte

	// done is closed by Close on this end; peerDone by the other end.
	done     chan struct{}
	peerDone <-chan struct{}
	once     sync.Once
}

// Pipe returns two connected in-process channels. Each direction buffers up
// to buffer frames before Send blocks. Closing either end makes the other
// end's Recv return io.EOF once the buffered frames are drained.
func Pipe(buffer int) (Channel, Channel) {
	ab := make(chan []byte, buffer)
	ba := make(chan []byte, buffer)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &memoryChannel{name: "pipe-a", in: ba, out: ab, done: aDone, peerDone: bDone}
	b := &memoryChannel{name: "pipe-b", in: ab, out: ba, done: bDone, peerDone: aDone}
	return a, b
}

func (c *memoryChannel) Send(frame []byte) error {
	select {
	case <-c.done:
		return common.ErrClosed
	case <-c.peerDone:
		return common.ErrClosed
	default:
	}
	cp := append([]byte(nil), frame...)
	select {
	case c.out <- cp:
		return nil
	case <-c.done:
		return common.ErrClosed
	case <-c.peerDone:
		return common.ErrClosed
	}
}

func (c *memoryChannel) Recv() ([]byte, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.done:
		return nil, common.ErrClosed
	case <-c.peerDone:
		select {
		case f := <-c.in:
			return f, nil
		default:
			return nil, io.EOF
		}
	}
}

func (c *memoryChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *memoryChannel) RemoteAddr() string { return c.name }

// MemoryListener hands out server ends of pipes created by Connect.
type MemoryListener struct {
	buffer int
	conns  chan Channel
	done   chan struct{}
	once   sync.Once
}

// NewMemoryListener returns an in-process listener; Connect on it yields the
// client end of a fresh pipe whose server end is returned by Accept.
func NewMemoryListener(buffer int) *MemoryListener {
	return &MemoryListener{buffer: buffer, conns: make(chan Channel), done: make(chan struct{})}
}

func (l *MemoryListener) Connect() (Channel, error) {
	client, server := Pipe(l.buffer)
	select {
	case l.conns <- server:
		return client, nil
	case <-l.done:
		return nil, common.ErrClosed
	}
}

func (l *MemoryListener) Accept() (Channel, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, common.ErrClosed
	}
}

func (l *MemoryListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *MemoryListener) Addr() string { return "memory" }
