package flash

// Contract is the calling convention between the host and the RAM-resident
// flash driver, plus the flash geometry it writes into.
//
// The driver is jumped to once per page. Before each jump the page data sits
// at StagingAddr, its index within the flash at PageParamAddr and, when
// AddrParamAddr is non-zero, its absolute destination at AddrParamAddr.
type Contract struct {
	PageSize  int
	FlashBase uint32
	FlashSize int

	DriverAddr    uint32
	StagingAddr   uint32
	PageParamAddr uint32
	AddrParamAddr uint32

	Controller Controller
}

// Controller describes the embedded flash controller registers. When
// Enabled, the programmer prepares the controller before the first page and
// waits for it after every page.
type Controller struct {
	Enabled bool

	ModeAddr    uint32
	CommandAddr uint32
	StatusAddr  uint32

	ModeValue      uint32
	Key            uint8
	UnlockCommand  uint32
	ReadyMask      uint32
	PagesPerRegion int
	PollLimit      int
}

// NXT is the contract of the LEGO NXT brick (AT91SAM7S256) with the
// conventional flash driver load addresses.
func NXT() Contract {
	return Contract{
		PageSize:      256,
		FlashBase:     0x00100000,
		FlashSize:     256 * 1024,
		DriverAddr:    0x00202000,
		StagingAddr:   0x00202100,
		PageParamAddr: 0x00202300,
		Controller: Controller{
			Enabled:        true,
			ModeAddr:       0xFFFFFF60,
			CommandAddr:    0xFFFFFF64,
			StatusAddr:     0xFFFFFF68,
			ModeValue:      0x00050100,
			Key:            0x5A,
			UnlockCommand:  0x4,
			ReadyMask:      0x1,
			PagesPerRegion: 64,
			PollLimit:      1000,
		},
	}
}

func (c Contract) pageCount(n int) int {
	return (n + c.PageSize - 1) / c.PageSize
}

func (c Contract) flashEnd() uint64 {
	return uint64(c.FlashBase) + uint64(c.FlashSize)
}

// unlockCommand is the controller command word for the lock region holding
// the given page.
func (c Controller) unlockCommand(page int) uint32 {
	return uint32(c.Key)<<24 | uint32(page)<<8&0xFFFF00 | c.UnlockCommand
}
