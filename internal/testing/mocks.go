package testing

import (
	"errors"
	"testing"

	"github.com/Alia5/brickboot/usb"
)

// ErrInjected is returned by mocks when a failure was scripted.
var ErrInjected = errors.New("injected failure")

// Responder plays the device side of a MockHandle's bulk endpoints.
type Responder interface {
	HandleWrite(data []byte) error
	HandleRead(size int) ([]byte, error)
}

// MockBus is a usb.Bus with a fixed device list that hands out one
// MockHandle per Open.
type MockBus struct {
	t            *testing.T
	Devices      []usb.DeviceInfo
	EnumerateErr error
	OpenErr      error
	// Handle is returned by Open; a fresh one is created when nil.
	Handle *MockHandle
	Opened []usb.DeviceInfo
}

func NewMockBus(t *testing.T, devices ...usb.DeviceInfo) *MockBus {
	return &MockBus{t: t, Devices: devices}
}

func (b *MockBus) Enumerate() ([]usb.DeviceInfo, error) {
	if b.EnumerateErr != nil {
		return nil, b.EnumerateErr
	}
	return append([]usb.DeviceInfo(nil), b.Devices...), nil
}

func (b *MockBus) Open(info usb.DeviceInfo) (usb.Handle, error) {
	b.Opened = append(b.Opened, info)
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	if b.Handle == nil {
		b.Handle = NewMockHandle(b.t, nil)
	}
	return b.Handle, nil
}

// MockHandle records every call made on it. Bulk traffic is forwarded to the
// Responder when one is set; otherwise reads are served from Reads in order.
type MockHandle struct {
	t         *testing.T
	responder Responder

	ConfigErr  error
	ClaimErr   error
	Reads      [][]byte
	FailWrite  int // 1-based index of the bulk write to fail, 0 = never
	FailRead   int // 1-based index of the bulk read to fail, 0 = never
	Config     int
	Claimed    map[int]bool
	Released   []int
	CloseCount int
	Writes     [][]byte
	ReadCount  int
	// Calls is the ordered log of operations: "config", "claim", "release",
	// "write", "read", "close".
	Calls []string
}

func NewMockHandle(t *testing.T, r Responder) *MockHandle {
	return &MockHandle{t: t, responder: r, Claimed: map[int]bool{}}
}

func (h *MockHandle) SetConfiguration(cfg int) error {
	h.Calls = append(h.Calls, "config")
	if h.ConfigErr != nil {
		return h.ConfigErr
	}
	h.Config = cfg
	return nil
}

func (h *MockHandle) ClaimInterface(iface int) error {
	h.Calls = append(h.Calls, "claim")
	if h.ClaimErr != nil {
		return h.ClaimErr
	}
	h.Claimed[iface] = true
	return nil
}

func (h *MockHandle) ReleaseInterface(iface int) error {
	h.Calls = append(h.Calls, "release")
	if !h.Claimed[iface] {
		h.t.Errorf("release of unclaimed interface %d", iface)
	}
	delete(h.Claimed, iface)
	h.Released = append(h.Released, iface)
	return nil
}

func (h *MockHandle) BulkWrite(endpoint uint8, data []byte) (int, error) {
	h.Calls = append(h.Calls, "write")
	if h.CloseCount > 0 {
		h.t.Errorf("bulk write on closed handle")
	}
	if h.FailWrite > 0 && len(h.Writes)+1 == h.FailWrite {
		h.FailWrite = 0
		return 0, ErrInjected
	}
	h.Writes = append(h.Writes, append([]byte(nil), data...))
	if h.responder != nil {
		if err := h.responder.HandleWrite(data); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (h *MockHandle) BulkRead(endpoint uint8, buf []byte) (int, error) {
	h.Calls = append(h.Calls, "read")
	h.ReadCount++
	if h.FailRead > 0 && h.ReadCount == h.FailRead {
		return 0, ErrInjected
	}
	var data []byte
	if h.responder != nil {
		var err error
		if data, err = h.responder.HandleRead(len(buf)); err != nil {
			return 0, err
		}
	} else {
		if len(h.Reads) == 0 {
			return 0, errors.New("no scripted reply")
		}
		data, h.Reads = h.Reads[0], h.Reads[1:]
	}
	return copy(buf, data), nil
}

func (h *MockHandle) Close() error {
	h.Calls = append(h.Calls, "close")
	h.CloseCount++
	return nil
}

// CallsSince returns the operations logged after the first n entries.
func (h *MockHandle) CallsSince(n int) []string {
	if n > len(h.Calls) {
		return nil
	}
	return h.Calls[n:]
}
