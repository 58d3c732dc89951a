package device

// Profile carries the fixed USB session parameters of a variant.
type Profile struct {
	Configuration int
	Interface     int
	// Endpoint addresses including the direction bit.
	OutEndpoint uint8
	InEndpoint  uint8
	// Probe is written after the interface is claimed and Ack is the exact
	// reply expected. An empty Probe means no handshake.
	Probe []byte
	Ack   []byte
}

// RequiresHandshake reports whether Open must run the probe exchange.
func (p Profile) RequiresHandshake() bool { return len(p.Probe) > 0 }

// "N#" switches SAM-BA to non-interactive (binary) mode; the monitor answers
// with its line terminator.
var (
	handshakeProbe = []byte("N#")
	handshakeAck   = []byte("\n\r")
)

var profiles = map[Variant]Profile{
	BootAssistant: {
		Configuration: 1,
		Interface:     1,
		OutEndpoint:   0x01,
		InEndpoint:    0x82,
		Probe:         handshakeProbe,
		Ack:           handshakeAck,
	},
	VendorFirmware: {
		Configuration: 1,
		Interface:     0,
		OutEndpoint:   0x01,
		InEndpoint:    0x82,
		Probe:         handshakeProbe,
		Ack:           handshakeAck,
	},
}

var genericProfile = Profile{
	Configuration: 1,
	Interface:     0,
	OutEndpoint:   0x01,
	InEndpoint:    0x82,
}

// ProfileOf returns the session profile of v. Unknown devices (opened by
// explicit vendor/product IDs) get a generic profile without handshake.
func ProfileOf(v Variant) Profile {
	if p, ok := profiles[v]; ok {
		return p
	}
	return genericProfile
}
