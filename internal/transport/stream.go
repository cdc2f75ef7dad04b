package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dmitrijs2005/securechat/internal/common"
)

// streamChannel frames messages over a net.Conn with a 4-byte big-endian
// length prefix.
type streamChannel struct {
	conn      net.Conn
	closeOnce sync.Once
	closeErr  error
}

// NewStreamChannel wraps an established connection.
func NewStreamChannel(conn net.Conn) Channel {
	return &streamChannel{conn: conn}
}

func (c *streamChannel) Send(frame []byte) error {
	if len(frame) > common.MaxFrameSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds limit", common.ErrProtocol, len(frame))
	}
	buf := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[4:], frame)
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("%w: write: %v", common.ErrConnection, err)
	}
	return nil
}

func (c *streamChannel) Recv() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.conn, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: read header: %v", common.ErrConnection, err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > common.MaxFrameSize {
		return nil, fmt.Errorf("%w: %w: frame of %d bytes exceeds limit", common.ErrConnection, common.ErrProtocol, n)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(c.conn, frame); err != nil {
		return nil, fmt.Errorf("%w: read frame: %v", common.ErrConnection, err)
	}
	return frame, nil
}

func (c *streamChannel) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

func (c *streamChannel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
