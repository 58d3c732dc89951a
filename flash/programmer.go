// Package flash reprograms the brick's flash through the boot monitor.
//
// The monitor cannot write flash itself. A small driver is uploaded to RAM
// and called once per page; the Contract describes where the driver, the page
// data and its parameters live.
package flash

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/Alia5/brickboot/fault"
	"github.com/Alia5/brickboot/internal/log"
	"github.com/Alia5/brickboot/samba"
	"golang.org/x/crypto/blake2b"
)

// Target is the subset of *samba.Client the programmer drives.
type Target interface {
	ReadWord(addr uint32) (uint32, error)
	WriteWord(addr uint32, v uint32) error
	SendBuffer(addr uint32, data []byte) error
	ReceiveBuffer(addr uint32, n int) ([]byte, error)
	Jump(addr uint32) error
}

// Region is an image and the flash address it belongs at.
type Region struct {
	Addr uint32
	Data []byte
}

// Result summarizes a successful run.
type Result struct {
	Pages    int
	Bytes    int
	Verified bool
	// Digest is the BLAKE2b-256 sum of the image as supplied.
	Digest [blake2b.Size256]byte
}

const verifyChunk = 16

// Programmer runs one flash operation. It is single use: once Done or
// Failed, further calls return an Internal fault.
type Programmer struct {
	target Target
	config Config
	state  State
	page   []byte
	start  time.Time
}

func New(target Target, opts ...Option) *Programmer {
	if target == nil {
		panic("target cannot be nil")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Programmer{target: target, config: cfg}
}

func (p *Programmer) State() State { return p.state }

// Flash writes region into flash using driver as the RAM-resident page
// writer.
//
// The sequence is:
//  1. Upload the driver
//  2. Unlock the touched lock regions (when the controller is enabled)
//  3. For each page: stage it, set its parameters and call the driver
//  4. Read everything back (when verification is enabled)
//
// The first failing command stops the run and leaves the Programmer Failed.
func (p *Programmer) Flash(ctx context.Context, region Region, driver []byte) (*Result, error) {
	if p.state != Idle {
		return nil, fault.Misuse("flash", "programmer is %s and cannot be reused", p.state)
	}
	if err := p.validate(region, driver); err != nil {
		return nil, err
	}

	p.start = time.Now()
	res, err := p.run(ctx, region, driver)
	if err != nil {
		p.setState(Failed)
		p.config.Logger.Error("flash failed", "error", err)
		return nil, err
	}
	p.setState(Done)
	p.report(Progress{Phase: Done, TotalPages: res.Pages, CurrentPage: res.Pages, Percentage: 100, BytesWritten: res.Bytes})
	return res, nil
}

func (p *Programmer) validate(region Region, driver []byte) error {
	c := p.config.Contract
	if c.PageSize <= 0 || c.PageSize > samba.MaxTransfer || c.FlashSize <= 0 {
		return fault.Misuse("flash", "contract has page size %d and flash size %d", c.PageSize, c.FlashSize)
	}
	if len(region.Data) == 0 {
		return fault.InvalidImage("image is empty")
	}
	if len(region.Data) > c.FlashSize {
		return fault.InvalidImage("image of %d bytes exceeds %d bytes of flash", len(region.Data), c.FlashSize)
	}
	if region.Addr < c.FlashBase || uint64(region.Addr)+uint64(len(region.Data)) > c.flashEnd() {
		return fault.InvalidImage("image does not fit flash at 0x%08X-0x%08X", c.FlashBase, c.flashEnd()).At(region.Addr)
	}
	if (region.Addr-c.FlashBase)%uint32(c.PageSize) != 0 {
		return fault.InvalidImage("address is not aligned to the %d byte page", c.PageSize).At(region.Addr)
	}
	if len(driver) == 0 {
		return fault.InvalidImage("flash driver is empty")
	}
	if len(driver) > samba.MaxTransfer {
		return fault.InvalidImage("flash driver of %d bytes is too large", len(driver))
	}
	return nil
}

func (p *Programmer) run(ctx context.Context, region Region, driver []byte) (*Result, error) {
	c := p.config.Contract
	pages := c.pageCount(len(region.Data))
	firstPage := int((region.Addr - c.FlashBase) / uint32(c.PageSize))
	logger := p.config.Logger.With("addr", hex32(region.Addr), "pages", pages)

	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	if err := p.target.SendBuffer(c.DriverAddr, driver); err != nil {
		return nil, err
	}
	p.setState(DriverStaged)
	logger.Debug("flash driver staged", "driver", hex32(c.DriverAddr), "size", len(driver))
	p.report(Progress{Phase: DriverStaged, TotalPages: pages, Percentage: 2})

	if c.Controller.Enabled {
		if err := p.prepare(ctx, firstPage, pages); err != nil {
			return nil, err
		}
	}

	p.setState(Programming)
	p.page = make([]byte, c.PageSize)
	written := 0
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		off := i * c.PageSize
		chunk := region.Data[off:min(off+c.PageSize, len(region.Data))]
		if err := p.writePage(firstPage+i, region.Addr+uint32(off), chunk); err != nil {
			return nil, err
		}
		written += len(chunk)
		p.report(Progress{
			Phase:        Programming,
			CurrentPage:  i + 1,
			TotalPages:   pages,
			Percentage:   2 + float64(i+1)/float64(pages)*p.programmingShare(),
			BytesWritten: written,
		})
	}
	logger.Info("flash pages written", "bytes", written)

	res := &Result{Pages: pages, Bytes: written, Digest: blake2b.Sum256(region.Data)}
	if !p.config.Verify {
		return res, nil
	}

	p.setState(Verifying)
	if err := p.verify(ctx, region, pages); err != nil {
		return nil, err
	}
	res.Verified = true
	logger.Info("flash verified")
	return res, nil
}

func (p *Programmer) programmingShare() float64 {
	if p.config.Verify {
		return 88
	}
	return 98
}

// prepare sets the flash mode and unlocks every lock region the image
// touches.
func (p *Programmer) prepare(ctx context.Context, firstPage, pages int) error {
	ctl := p.config.Contract.Controller
	if err := p.target.WriteWord(ctl.ModeAddr, ctl.ModeValue); err != nil {
		return err
	}
	perRegion := max(ctl.PagesPerRegion, 1)
	for r := firstPage / perRegion; r <= (firstPage+pages-1)/perRegion; r++ {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		if err := p.waitReady(); err != nil {
			return err
		}
		if err := p.target.WriteWord(ctl.CommandAddr, ctl.unlockCommand(r*perRegion)); err != nil {
			return err
		}
		p.config.Logger.Debug("lock region unlocked", "region", r)
	}
	return nil
}

func (p *Programmer) writePage(index int, dest uint32, chunk []byte) error {
	c := p.config.Contract
	copy(p.page, chunk)
	clear(p.page[len(chunk):])

	if err := p.target.SendBuffer(c.StagingAddr, p.page); err != nil {
		return err
	}
	if err := p.target.WriteWord(c.PageParamAddr, uint32(index)); err != nil {
		return err
	}
	if c.AddrParamAddr != 0 {
		if err := p.target.WriteWord(c.AddrParamAddr, dest); err != nil {
			return err
		}
	}
	if err := p.target.Jump(c.DriverAddr); err != nil {
		return err
	}
	if c.Controller.Enabled {
		return p.waitReady()
	}
	return nil
}

func (p *Programmer) waitReady() error {
	ctl := p.config.Contract.Controller
	for i := 0; i < ctl.PollLimit; i++ {
		status, err := p.target.ReadWord(ctl.StatusAddr)
		if err != nil {
			return err
		}
		if status&ctl.ReadyMask != 0 {
			return nil
		}
	}
	return fault.Protocol("flash", "controller not ready after %d polls", ctl.PollLimit).At(ctl.StatusAddr)
}

func (p *Programmer) verify(ctx context.Context, region Region, pages int) error {
	size := verifyChunk * p.config.Contract.PageSize
	for off := 0; off < len(region.Data); off += size {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		want := region.Data[off:min(off+size, len(region.Data))]
		addr := region.Addr + uint32(off)
		got, err := p.target.ReceiveBuffer(addr, len(want))
		if err != nil {
			return err
		}
		if !bytes.Equal(got, want) {
			i := firstDiff(got, want)
			return fault.Protocol("verify", "flash holds 0x%02X, image has 0x%02X", at(got, i), want[i]).At(addr + uint32(i))
		}
		done := off + len(want)
		p.report(Progress{
			Phase:        Verifying,
			CurrentPage:  p.config.Contract.pageCount(done),
			TotalPages:   pages,
			Percentage:   90 + float64(done)/float64(len(region.Data))*10,
			BytesWritten: len(region.Data),
		})
	}
	return nil
}

func (p *Programmer) setState(s State) {
	p.state = s
	p.config.Logger.Log(context.Background(), log.LevelTrace, "flash state", "state", s.String())
}

func (p *Programmer) report(pr Progress) {
	if p.config.ProgressCallback == nil {
		return
	}
	pr.ElapsedTime = time.Since(p.start)
	p.config.ProgressCallback(pr)
}

func cancelled(err error) error {
	return fault.Wrap(fault.Unknown, "flash", err)
}

func firstDiff(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func at(b []byte, i int) byte {
	if i < len(b) {
		return b[i]
	}
	return 0
}

func hex32(v uint32) string {
	return fmt.Sprintf("0x%08X", v)
}
