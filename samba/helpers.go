package samba

// AT91SAM7 reset controller.
const (
	rstcCR  = 0xFFFFFD00
	rstcMR  = 0xFFFFFD08
	rstcKey = 0xA5 << 24

	rstcProcReset   = 0x1
	rstcPeriphReset = 0x4
	rstcUserResetEn = 0x1
)

// RAMExecAddr is where RAM-resident helpers are conventionally loaded: just
// above the RAM the monitor itself uses.
const RAMExecAddr = 0x00202000

// Reboot resets the processor and peripherals. The device drops off the bus,
// so the only valid follow-up on the session is Close.
func (c *Client) Reboot() error {
	if err := c.WriteWord(rstcMR, rstcKey|4<<8|rstcUserResetEn); err != nil {
		return err
	}
	return c.WriteWord(rstcCR, rstcKey|rstcProcReset|rstcPeriphReset)
}

// Exec loads code at addr, splitting it into MaxTransfer sized sends, and
// jumps to it.
func (c *Client) Exec(addr uint32, code []byte) error {
	if err := c.SendLarge(addr, code); err != nil {
		return err
	}
	return c.Jump(addr)
}

// SendLarge is SendBuffer without the per-command length limit.
func (c *Client) SendLarge(addr uint32, data []byte) error {
	for off := 0; off < len(data); off += MaxTransfer {
		end := min(off+MaxTransfer, len(data))
		if err := c.SendBuffer(addr+uint32(off), data[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveLarge is ReceiveBuffer without the per-command length limit.
func (c *Client) ReceiveLarge(addr uint32, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for off := 0; off < n; off += MaxTransfer {
		chunk, err := c.ReceiveBuffer(addr+uint32(off), min(MaxTransfer, n-off))
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}
