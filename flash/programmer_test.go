package flash_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Alia5/brickboot/device"
	"github.com/Alia5/brickboot/fault"
	"github.com/Alia5/brickboot/flash"
	bbtesting "github.com/Alia5/brickboot/internal/testing"
	"github.com/Alia5/brickboot/samba"
	"github.com/Alia5/brickboot/session"
	"github.com/Alia5/brickboot/usb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

var sambaDev = usb.DeviceInfo{Bus: 1, Address: 7, VendorID: 0x03EB, ProductID: 0x6124}

var driver = []byte{0x00, 0x48, 0x2D, 0xE9, 0x1E, 0xFF, 0x2F, 0xE1}

type rig struct {
	client *samba.Client
	mon    *bbtesting.Monitor
	handle *bbtesting.MockHandle
}

// newRig opens a session on a simulated monitor whose "driver" copies the
// staged page into flash and whose controller always reports ready.
func newRig(t *testing.T, c flash.Contract) *rig {
	t.Helper()
	mon := bbtesting.NewMonitor()
	mon.SetWord(c.Controller.StatusAddr, 1)
	mon.OnJump = func(m *bbtesting.Monitor, addr uint32) {
		if addr != c.DriverAddr {
			return
		}
		dest := c.FlashBase + m.Word(c.PageParamAddr)*uint32(c.PageSize)
		if c.AddrParamAddr != 0 {
			dest = m.Word(c.AddrParamAddr)
		}
		m.Write(dest, m.Read(c.StagingAddr, c.PageSize))
	}

	h := bbtesting.NewMockHandle(t, mon)
	bus := bbtesting.NewMockBus(t, sambaDev)
	bus.Handle = h
	s, err := session.NewManager(bus).Open(session.DeviceHandle{Info: sambaDev, Variant: device.BootAssistant})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return &rig{client: samba.NewClient(s), mon: mon, handle: h}
}

func image(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*31 + 7)
	}
	return data
}

func TestFlashUnalignedImage(t *testing.T) {
	c := flash.NXT()
	r := newRig(t, c)
	img := image(600)
	addr := c.FlashBase + 256

	var phases []flash.State
	p := flash.New(r.client, flash.WithProgressCallback(func(pr flash.Progress) {
		if len(phases) == 0 || phases[len(phases)-1] != pr.Phase {
			phases = append(phases, pr.Phase)
		}
	}))

	res, err := p.Flash(context.Background(), flash.Region{Addr: addr, Data: img}, driver)
	require.NoError(t, err)

	assert.Equal(t, flash.Done, p.State())
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 600, res.Bytes)
	assert.True(t, res.Verified)
	assert.Equal(t, blake2b.Sum256(img), res.Digest)

	assert.Equal(t, img, r.mon.Read(addr, len(img)))
	assert.Equal(t, make([]byte, 3*256-600), r.mon.Read(addr+600, 3*256-600), "last page is zero padded")
	assert.Equal(t, driver, r.mon.Read(c.DriverAddr, len(driver)))
	assert.Equal(t, uint32(3), r.mon.Word(c.PageParamAddr))
	assert.Equal(t, []uint32{c.DriverAddr, c.DriverAddr, c.DriverAddr}, r.mon.Jumps)

	assert.Contains(t, r.mon.Commands, "WFFFFFF60,00050100")
	assert.Contains(t, r.mon.Commands, "WFFFFFF64,5A000004")
	assert.Contains(t, r.mon.Commands, "R00100100,0258")

	assert.Equal(t, []flash.State{flash.DriverStaged, flash.Programming, flash.Verifying, flash.Done}, phases)
}

func TestFlashUnlocksEveryTouchedRegion(t *testing.T) {
	c := flash.NXT()
	r := newRig(t, c)
	// Pages 63 and 64 straddle the first lock region boundary.
	addr := c.FlashBase + 63*256

	_, err := flash.New(r.client).Flash(context.Background(), flash.Region{Addr: addr, Data: image(300)}, driver)
	require.NoError(t, err)

	assert.Contains(t, r.mon.Commands, "WFFFFFF64,5A000004")
	assert.Contains(t, r.mon.Commands, "WFFFFFF64,5A004004")
}

func TestFlashWithoutController(t *testing.T) {
	c := flash.NXT()
	c.Controller.Enabled = false
	c.AddrParamAddr = 0x00202304
	r := newRig(t, c)
	img := image(512)

	res, err := flash.New(r.client, flash.WithContract(c), flash.WithVerify(false)).
		Flash(context.Background(), flash.Region{Addr: c.FlashBase, Data: img}, driver)
	require.NoError(t, err)

	assert.False(t, res.Verified)
	assert.Equal(t, img, r.mon.Read(c.FlashBase, len(img)))
	assert.Equal(t, c.FlashBase+256, r.mon.Word(c.AddrParamAddr))
	for _, cmd := range r.mon.Commands {
		assert.NotEqual(t, byte('R'), cmd[0], "no read back without verification")
		assert.NotContains(t, cmd, "FFFFFF6")
	}
}

func TestFlashInjectedWriteFailureHalts(t *testing.T) {
	for _, k := range []int{1, 2, 3, 6, 9, 12} {
		c := flash.NXT()
		r := newRig(t, c)
		r.handle.FailWrite = len(r.handle.Writes) + k
		p := flash.New(r.client)

		_, err := p.Flash(context.Background(), flash.Region{Addr: c.FlashBase, Data: image(400)}, driver)

		require.ErrorIs(t, err, fault.ErrUsbWrite, "write %d", k)
		assert.Equal(t, flash.Failed, p.State())
		assert.Equal(t, "write", r.handle.Calls[len(r.handle.Calls)-1], "nothing issued after write %d failed", k)

		n := len(r.handle.Calls)
		_, err = p.Flash(context.Background(), flash.Region{Addr: c.FlashBase, Data: image(400)}, driver)
		assert.ErrorIs(t, err, fault.ErrInternal)
		assert.Empty(t, r.handle.CallsSince(n))
	}
}

func TestFlashInjectedReadFailureHalts(t *testing.T) {
	c := flash.NXT()
	r := newRig(t, c)
	r.handle.FailRead = r.handle.ReadCount + 3
	p := flash.New(r.client)

	_, err := p.Flash(context.Background(), flash.Region{Addr: c.FlashBase, Data: image(256)}, driver)

	require.ErrorIs(t, err, fault.ErrUsbRead)
	assert.Equal(t, flash.Failed, p.State())
	assert.Equal(t, "read", r.handle.Calls[len(r.handle.Calls)-1])
}

func TestFlashVerifyMismatch(t *testing.T) {
	c := flash.NXT()
	r := newRig(t, c)
	copyPage := r.mon.OnJump
	r.mon.OnJump = func(m *bbtesting.Monitor, addr uint32) {
		copyPage(m, addr)
		m.Memory[c.FlashBase+300] ^= 0xFF
	}
	p := flash.New(r.client)

	_, err := p.Flash(context.Background(), flash.Region{Addr: c.FlashBase, Data: image(512)}, driver)

	require.ErrorIs(t, err, fault.ErrProtocol)
	var fe *fault.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, c.FlashBase+300, fe.Addr)
	assert.Equal(t, flash.Failed, p.State())
}

func TestFlashControllerNeverReady(t *testing.T) {
	c := flash.NXT()
	c.Controller.PollLimit = 5
	r := newRig(t, c)
	r.mon.SetWord(c.Controller.StatusAddr, 0)
	p := flash.New(r.client, flash.WithContract(c))

	_, err := p.Flash(context.Background(), flash.Region{Addr: c.FlashBase, Data: image(10)}, driver)

	require.ErrorIs(t, err, fault.ErrProtocol)
	var fe *fault.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, c.Controller.StatusAddr, fe.Addr)
	assert.Empty(t, r.mon.Jumps)
}

func TestFlashInvalidImage(t *testing.T) {
	c := flash.NXT()

	type testCase struct {
		name   string
		region flash.Region
		driver []byte
	}

	cases := []testCase{
		{name: "empty image", region: flash.Region{Addr: c.FlashBase}, driver: driver},
		{name: "larger than flash", region: flash.Region{Addr: c.FlashBase, Data: make([]byte, c.FlashSize+1)}, driver: driver},
		{name: "runs past flash end", region: flash.Region{Addr: c.FlashBase + uint32(c.FlashSize) - 256, Data: image(512)}, driver: driver},
		{name: "outside flash", region: flash.Region{Addr: 0x00200000, Data: image(16)}, driver: driver},
		{name: "not page aligned", region: flash.Region{Addr: c.FlashBase + 4, Data: image(16)}, driver: driver},
		{name: "empty driver", region: flash.Region{Addr: c.FlashBase, Data: image(16)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, c)
			n := len(r.handle.Calls)
			p := flash.New(r.client)

			_, err := p.Flash(context.Background(), tc.region, tc.driver)

			assert.ErrorIs(t, err, fault.ErrInvalidFirmwareImage)
			assert.Equal(t, flash.Idle, p.State())
			assert.Empty(t, r.handle.CallsSince(n))
		})
	}
}

func TestFlashCancelled(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		c := flash.NXT()
		r := newRig(t, c)
		n := len(r.handle.Calls)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := flash.New(r.client)
		_, err := p.Flash(ctx, flash.Region{Addr: c.FlashBase, Data: image(16)}, driver)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, flash.Failed, p.State())
		assert.Empty(t, r.handle.CallsSince(n))
	})

	t.Run("between pages", func(t *testing.T) {
		c := flash.NXT()
		r := newRig(t, c)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		p := flash.New(r.client, flash.WithProgressCallback(func(pr flash.Progress) {
			if pr.Phase == flash.Programming && pr.CurrentPage == 1 {
				cancel()
			}
		}))
		_, err := p.Flash(ctx, flash.Region{Addr: c.FlashBase, Data: image(1024)}, driver)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, flash.Failed, p.State())
		assert.Len(t, r.mon.Jumps, 1)
	})
}
