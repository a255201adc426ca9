package whack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	// defaultSocketPath is where the daemon listens unless configured
	// otherwise.
	defaultSocketPath = "/var/run/ikeswand.sock"

	// headerLength is the size, in bytes, of each frame's length prefix.
	headerLength = 4

	// maxSegment bounds a single frame's payload size.
	maxSegment = 512 * 1024
)

var errTransport = errors.New("whack: transport error")

// transport frames packets over a connection with a 4-byte big-endian
// length prefix, one frame per send/recv.
type transport struct {
	conn net.Conn
}

func (t *transport) send(pkt *packet) error {
	b, err := pkt.bytes()
	if err != nil {
		return err
	}
	if len(b) > maxSegment {
		return fmt.Errorf("%v: frame of %d bytes exceeds maximum segment size", errTransport, len(b))
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerLength+len(b)))
	hdr := make([]byte, headerLength)
	binary.BigEndian.PutUint32(hdr, uint32(len(b)))
	buf.Write(hdr)
	buf.Write(b)

	if _, err := t.conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%v: %v", errTransport, err)
	}
	return nil
}

func (t *transport) recv() (*packet, error) {
	hdr := make([]byte, headerLength)
	if _, err := io.ReadFull(t.conn, hdr); err != nil {
		return nil, wrapTransportErr(err)
	}

	n := binary.BigEndian.Uint32(hdr)
	if n > maxSegment {
		return nil, fmt.Errorf("%v: frame of %d bytes exceeds maximum segment size", errTransport, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(t.conn, body); err != nil {
		return nil, wrapTransportErr(err)
	}

	return parsePacket(body)
}

func wrapTransportErr(err error) error {
	if err == io.EOF {
		return err
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return ne
	}
	return fmt.Errorf("%v: %v", errTransport, err)
}
