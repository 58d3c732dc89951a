package samba_test

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/Alia5/brickboot/fault"
	"github.com/Alia5/brickboot/samba"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	type testCase struct {
		name     string
		cmd      samba.Command
		expected string
	}

	cases := []testCase{
		{name: "read byte", cmd: samba.ReadByteCmd(0x00100000), expected: "o00100000,#"},
		{name: "read halfword", cmd: samba.ReadHalfwordCmd(0xFFFFFF68), expected: "hFFFFFF68,#"},
		{name: "read word", cmd: samba.ReadWordCmd(0x0000ABCD), expected: "w0000ABCD,#"},
		{name: "write byte", cmd: samba.WriteByteCmd(0x00202000, 0x0A), expected: "O00202000,0A#"},
		{name: "write halfword", cmd: samba.WriteHalfwordCmd(0x00202000, 0xBEEF), expected: "H00202000,BEEF#"},
		{name: "write word", cmd: samba.WriteWordCmd(0xFFFFFF64, 0x5A000004), expected: "WFFFFFF64,5A000004#"},
		{name: "write word zero", cmd: samba.WriteWordCmd(0, 0), expected: "W00000000,00000000#"},
		{name: "send buffer", cmd: samba.SendBufferCmd(0x00202100, make([]byte, 256)), expected: "S00202100,0100#"},
		{name: "send empty buffer", cmd: samba.SendBufferCmd(0x00202100, nil), expected: "S00202100,0000#"},
		{name: "receive buffer", cmd: samba.ReceiveBufferCmd(0x00100000, 0xFFFF), expected: "R00100000,FFFF#"},
		{name: "jump", cmd: samba.JumpCmd(0x00202000), expected: "G00202000#"},
		{name: "version", cmd: samba.VersionCmd(), expected: "V#"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := samba.Encode(tc.cmd)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(got))
		})
	}
}

func TestEncodeMisuse(t *testing.T) {
	type testCase struct {
		name string
		cmd  samba.Command
	}

	cases := []testCase{
		{name: "byte value overflow", cmd: samba.Command{Op: samba.OpWriteByte, Value: 0x100}},
		{name: "halfword value overflow", cmd: samba.Command{Op: samba.OpWriteHalfword, Value: 0x10000}},
		{name: "buffer too long", cmd: samba.SendBufferCmd(0, make([]byte, samba.MaxTransfer+1))},
		{name: "negative receive", cmd: samba.ReceiveBufferCmd(0, -1)},
		{name: "length mismatch", cmd: samba.Command{Op: samba.OpSendBuffer, Length: 4, Payload: []byte{1}}},
		{name: "unknown op", cmd: samba.Command{Op: 'X'}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := samba.Encode(tc.cmd)
			assert.ErrorIs(t, err, fault.ErrInternal)
		})
	}
}

func TestDecodeReadWordAnyAddress(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	addrs := []uint32{0, 1, 0x00100000, 0xFFFFFFFF}
	for i := 0; i < 64; i++ {
		addrs = append(addrs, rng.Uint32())
	}

	for _, addr := range addrs {
		value := rng.Uint32()
		cmd := samba.ReadWordCmd(addr)

		line, err := samba.Encode(cmd)
		require.NoError(t, err)
		assert.Len(t, line, 11)

		reply := binary.LittleEndian.AppendUint32(nil, value)
		got, err := samba.DecodeScalar(cmd, reply)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}
}

func TestDecodeScalar(t *testing.T) {
	type testCase struct {
		name     string
		cmd      samba.Command
		reply    []byte
		expected uint32
		wantErr  bool
	}

	cases := []testCase{
		{name: "byte", cmd: samba.ReadByteCmd(0), reply: []byte{0xA5}, expected: 0xA5},
		{name: "halfword little endian", cmd: samba.ReadHalfwordCmd(0), reply: []byte{0x34, 0x12}, expected: 0x1234},
		{name: "word little endian", cmd: samba.ReadWordCmd(0), reply: []byte{0x78, 0x56, 0x34, 0x12}, expected: 0x12345678},
		{name: "short word", cmd: samba.ReadWordCmd(0x10), reply: []byte{0x78, 0x56}, wantErr: true},
		{name: "empty byte", cmd: samba.ReadByteCmd(0x10), reply: nil, wantErr: true},
		{name: "long halfword", cmd: samba.ReadHalfwordCmd(0x10), reply: []byte{1, 2, 3}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := samba.DecodeScalar(tc.cmd, tc.reply)
			if tc.wantErr {
				assert.ErrorIs(t, err, fault.ErrProtocol)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestDecodeVersion(t *testing.T) {
	v, err := samba.DecodeVersion([]byte("v1.4 Nov 10 2004 14:33:55\n\r"))
	require.NoError(t, err)
	assert.Equal(t, "v1.4 Nov 10 2004 14:33:55", v)

	_, err = samba.DecodeVersion([]byte("v1.4"))
	assert.ErrorIs(t, err, fault.ErrProtocol)

	_, err = samba.DecodeVersion([]byte("v1\x00\n\r"))
	assert.ErrorIs(t, err, fault.ErrProtocol)
}

func TestReplySize(t *testing.T) {
	assert.Equal(t, 1, samba.ReplySize(samba.ReadByteCmd(0)))
	assert.Equal(t, 2, samba.ReplySize(samba.ReadHalfwordCmd(0)))
	assert.Equal(t, 4, samba.ReplySize(samba.ReadWordCmd(0)))
	assert.Equal(t, 300, samba.ReplySize(samba.ReceiveBufferCmd(0, 300)))
	assert.Equal(t, -1, samba.ReplySize(samba.VersionCmd()))
	assert.Equal(t, 0, samba.ReplySize(samba.JumpCmd(0)))
	assert.Equal(t, 0, samba.ReplySize(samba.WriteWordCmd(0, 1)))
}
