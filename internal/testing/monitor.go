package testing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// DefaultVersion is what the simulated monitor answers to "V#".
const DefaultVersion = "v1.4 Nov 10 2004 14:33:55"

// Monitor simulates the SAM-BA command interpreter over a sparse memory. It
// implements Responder and can back a MockHandle.
type Monitor struct {
	Memory  map[uint32]byte
	Version string
	Jumps   []uint32
	// OnJump runs when a "G" command arrives, standing in for the code the
	// monitor would call.
	OnJump func(m *Monitor, addr uint32)
	// Commands is every command line received, without the trailing '#'.
	Commands []string

	in       []byte
	out      []byte
	sendAddr uint32
	sendLeft int
}

func NewMonitor() *Monitor {
	return &Monitor{Memory: map[uint32]byte{}, Version: DefaultVersion}
}

func (m *Monitor) HandleWrite(data []byte) error {
	m.in = append(m.in, data...)
	for len(m.in) > 0 {
		if m.sendLeft > 0 {
			n := min(m.sendLeft, len(m.in))
			for i := 0; i < n; i++ {
				m.Memory[m.sendAddr+uint32(i)] = m.in[i]
			}
			m.sendAddr += uint32(n)
			m.sendLeft -= n
			m.in = m.in[n:]
			continue
		}
		end := bytes.IndexByte(m.in, '#')
		if end < 0 {
			return nil
		}
		line := string(m.in[:end])
		m.in = m.in[end+1:]
		m.Commands = append(m.Commands, line)
		if err := m.exec(line); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) HandleRead(size int) ([]byte, error) {
	if len(m.out) == 0 {
		return nil, errors.New("monitor has nothing to send")
	}
	n := min(size, len(m.out))
	data := m.out[:n]
	m.out = m.out[n:]
	return data, nil
}

func (m *Monitor) exec(line string) error {
	if line == "" {
		return errors.New("empty command")
	}
	op, args := line[0], line[1:]
	switch op {
	case 'N':
		m.out = append(m.out, '\n', '\r')
		return nil
	case 'V':
		m.out = append(m.out, m.Version...)
		m.out = append(m.out, '\n', '\r')
		return nil
	}

	if len(args) < 8 {
		return fmt.Errorf("command %q: short address", line)
	}
	addr64, err := strconv.ParseUint(args[:8], 16, 32)
	if err != nil {
		return fmt.Errorf("command %q: %w", line, err)
	}
	addr := uint32(addr64)
	rest := args[8:]
	var arg uint64
	if len(rest) > 1 && rest[0] == ',' {
		if arg, err = strconv.ParseUint(rest[1:], 16, 32); err != nil {
			return fmt.Errorf("command %q: %w", line, err)
		}
	}

	switch op {
	case 'o':
		m.out = append(m.out, m.Memory[addr])
	case 'h':
		m.out = binary.LittleEndian.AppendUint16(m.out, uint16(m.Word(addr)))
	case 'w':
		m.out = binary.LittleEndian.AppendUint32(m.out, m.Word(addr))
	case 'O':
		m.Memory[addr] = byte(arg)
	case 'H':
		m.Memory[addr] = byte(arg)
		m.Memory[addr+1] = byte(arg >> 8)
	case 'W':
		m.SetWord(addr, uint32(arg))
	case 'S':
		m.sendAddr, m.sendLeft = addr, int(arg)
	case 'R':
		m.out = append(m.out, m.Read(addr, int(arg))...)
	case 'G':
		m.Jumps = append(m.Jumps, addr)
		if m.OnJump != nil {
			m.OnJump(m, addr)
		}
	default:
		return fmt.Errorf("unknown command %q", line)
	}
	return nil
}

// Word returns the little-endian word stored at addr.
func (m *Monitor) Word(addr uint32) uint32 {
	return binary.LittleEndian.Uint32(m.Read(addr, 4))
}

func (m *Monitor) SetWord(addr, v uint32) {
	m.Write(addr, binary.LittleEndian.AppendUint32(nil, v))
}

func (m *Monitor) Read(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = m.Memory[addr+uint32(i)]
	}
	return out
}

func (m *Monitor) Write(addr uint32, data []byte) {
	for i, b := range data {
		m.Memory[addr+uint32(i)] = b
	}
}
