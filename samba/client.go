package samba

import (
	"bytes"
	"errors"

	"github.com/Alia5/brickboot/fault"
)

// Conn is the bulk link to the monitor; *session.Session implements it.
type Conn interface {
	Write(p []byte) error
	// Read performs one transfer of at most size bytes.
	Read(size int) ([]byte, error)
}

const (
	versionChunk = 64
	maxVersion   = 256
)

// Response is the decoded result of a command. Only the field matching the
// command's kind is set.
type Response struct {
	Value   uint32
	Data    []byte
	Version string
}

// Client issues commands over a Conn. Every call is synchronous and nothing
// is retried; re-running a write is the caller's decision.
type Client struct {
	conn Conn
}

func NewClient(conn Conn) *Client {
	return &Client{conn: conn}
}

// Do encodes, transmits and decodes a single command.
func (c *Client) Do(cmd Command) (Response, error) {
	line, err := Encode(cmd)
	if err != nil {
		return Response{}, err
	}
	if err := c.conn.Write(line); err != nil {
		return Response{}, annotate(err, cmd)
	}

	switch cmd.Op {
	case OpSendBuffer:
		if len(cmd.Payload) > 0 {
			if err := c.conn.Write(cmd.Payload); err != nil {
				return Response{}, annotate(err, cmd)
			}
		}
		return Response{}, nil

	case OpReadByte, OpReadHalfword, OpReadWord:
		reply, err := c.conn.Read(ReplySize(cmd))
		if err != nil {
			return Response{}, annotate(err, cmd)
		}
		v, err := DecodeScalar(cmd, reply)
		return Response{Value: v}, err

	case OpReceiveBuffer:
		data, err := c.receive(cmd)
		return Response{Data: data}, err

	case OpVersion:
		v, err := c.version(cmd)
		return Response{Version: v}, err
	}
	return Response{}, nil
}

func (c *Client) receive(cmd Command) ([]byte, error) {
	data := make([]byte, 0, cmd.Length)
	for len(data) < cmd.Length {
		chunk, err := c.conn.Read(cmd.Length - len(data))
		if err != nil {
			return nil, annotate(err, cmd)
		}
		if len(chunk) == 0 {
			return nil, fault.Protocol(cmd.Op.String(), "reply stopped after %d of %d bytes", len(data), cmd.Length).At(cmd.Addr)
		}
		data = append(data, chunk...)
	}
	return data, nil
}

func (c *Client) version(cmd Command) (string, error) {
	var reply []byte
	for !bytes.HasSuffix(reply, Terminator) {
		if len(reply) >= maxVersion {
			return "", fault.Protocol(cmd.Op.String(), "no terminator within %d bytes", maxVersion)
		}
		chunk, err := c.conn.Read(versionChunk)
		if err != nil {
			return "", annotate(err, cmd)
		}
		if len(chunk) == 0 {
			return "", fault.Protocol(cmd.Op.String(), "empty reply")
		}
		reply = append(reply, chunk...)
	}
	return DecodeVersion(reply)
}

// annotate re-labels a link failure with the command and address it hit,
// keeping its kind and cause.
func annotate(err error, cmd Command) error {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		return fault.Wrap(fault.Unknown, cmd.Op.String(), err)
	}
	out := &fault.Error{Kind: fe.Kind, Op: cmd.Op.String(), Detail: fe.Detail, Err: fe.Err}
	if cmd.Op != OpVersion {
		return out.At(cmd.Addr)
	}
	return out
}

func (c *Client) ReadByte(addr uint32) (uint8, error) {
	r, err := c.Do(ReadByteCmd(addr))
	return uint8(r.Value), err
}

// ReadHalfword returns the halfword at addr in host representation.
func (c *Client) ReadHalfword(addr uint32) (uint16, error) {
	r, err := c.Do(ReadHalfwordCmd(addr))
	return uint16(r.Value), err
}

// ReadWord returns the word at addr in host representation.
func (c *Client) ReadWord(addr uint32) (uint32, error) {
	r, err := c.Do(ReadWordCmd(addr))
	return r.Value, err
}

func (c *Client) WriteByte(addr uint32, v uint8) error {
	_, err := c.Do(WriteByteCmd(addr, v))
	return err
}

func (c *Client) WriteHalfword(addr uint32, v uint16) error {
	_, err := c.Do(WriteHalfwordCmd(addr, v))
	return err
}

func (c *Client) WriteWord(addr uint32, v uint32) error {
	_, err := c.Do(WriteWordCmd(addr, v))
	return err
}

// SendBuffer copies data into the device's memory at addr.
func (c *Client) SendBuffer(addr uint32, data []byte) error {
	_, err := c.Do(SendBufferCmd(addr, data))
	return err
}

// ReceiveBuffer reads n bytes of device memory starting at addr.
func (c *Client) ReceiveBuffer(addr uint32, n int) ([]byte, error) {
	r, err := c.Do(ReceiveBufferCmd(addr, n))
	return r.Data, err
}

// Jump makes the monitor call the routine at addr. It returns once the
// command is sent; the monitor regains control when the routine returns.
func (c *Client) Jump(addr uint32) error {
	_, err := c.Do(JumpCmd(addr))
	return err
}

func (c *Client) Version() (string, error) {
	r, err := c.Do(VersionCmd())
	return r.Version, err
}
