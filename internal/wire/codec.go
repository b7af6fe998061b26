package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
	"sync"
)

// Codec reads and writes Envelopes on a connection. Implementations must
// allow one concurrent reader and one concurrent writer (matching the
// gorilla/websocket concurrency contract wetsock's codec was built
// against); Endpoint never calls ReadEnvelope from more than one goroutine,
// but WriteEnvelope may be called concurrently by Call, Notify, and the
// reply path of Serve.
type Codec interface {
	ReadEnvelope(*Envelope) error
	WriteEnvelope(*Envelope) error
	io.Closer
}

const maxEnvelopeSize = 64 << 20 // 64 MiB, generous for local IPC payloads

// gobStreamCodec frames gob-encoded Envelopes behind a 4-byte big-endian
// length prefix directly over a net.Conn. This plays the role of the
// wetsock codec, which framed JSON-encoded Messages behind a websocket
// upgrade; the transport here is a raw Unix domain socket with no HTTP
// peer, so the websocket framing (and its ping/pong control messages) do
// not apply. See DESIGN.md for the full rationale.
type gobStreamCodec struct {
	conn net.Conn

	readMu sync.Mutex
	reader *bufio.Reader

	writeMu sync.Mutex
}

// NewStreamCodec wraps conn in a length-prefixed gob Codec.
func NewStreamCodec(conn net.Conn) Codec {
	return &gobStreamCodec{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

func (c *gobStreamCodec) ReadEnvelope(e *Envelope) error {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	var size uint32
	if err := binary.Read(c.reader, binary.BigEndian, &size); err != nil {
		return err
	}
	if size > maxEnvelopeSize {
		return fmt.Errorf("wire: envelope of %d bytes exceeds %d byte limit", size, maxEnvelopeSize)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(c.reader, buf); err != nil {
		return err
	}
	dec := gob.NewDecoder(bytes.NewReader(buf))
	return dec.Decode(e)
}

func (c *gobStreamCodec) WriteEnvelope(e *Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(e); err != nil {
		return err
	}
	if buf.Len() > maxEnvelopeSize {
		return fmt.Errorf("wire: envelope of %d bytes exceeds %d byte limit", buf.Len(), maxEnvelopeSize)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(buf.Len()))
	if _, err := c.conn.Write(header[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(buf.Bytes())
	return err
}

func (c *gobStreamCodec) Close() error {
	return c.conn.Close()
}
