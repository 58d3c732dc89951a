package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Alia5/brickboot/device"
	"github.com/Alia5/brickboot/flash"
	"github.com/Alia5/brickboot/session"
	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberAndHexIDFlags(t *testing.T) {
	type testCase struct {
		name    string
		args    []string
		addr    Number
		id      HexID
		wantErr bool
	}

	cases := []testCase{
		{name: "hex address", args: []string{"0x00100000", "--id=03eb"}, addr: 0x00100000, id: 0x03EB},
		{name: "decimal address", args: []string{"256", "--id=0x0694"}, addr: 256, id: 0x0694},
		{name: "underscores", args: []string{"0x0010_0000"}, addr: 0x00100000},
		{name: "too large", args: []string{"0x100000000"}, wantErr: true},
		{name: "bad id", args: []string{"1", "--id=xyz"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cli struct {
				Addr Number `arg:""`
				ID   HexID
			}
			parser, err := kong.New(&cli)
			require.NoError(t, err)

			_, err = parser.Parse(tc.args)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.addr, cli.Addr)
			assert.Equal(t, tc.id, cli.ID)
		})
	}
}

func TestDeviceFlagsQuery(t *testing.T) {
	type testCase struct {
		name     string
		flags    DeviceFlags
		expected session.Query
		wantErr  bool
	}

	cases := []testCase{
		{name: "boot monitor", flags: DeviceFlags{Variant: "samba"}, expected: session.Query{Variant: device.BootAssistant}},
		{name: "lego firmware", flags: DeviceFlags{Variant: "lego"}, expected: session.Query{Variant: device.VendorFirmware}},
		{name: "any", flags: DeviceFlags{Variant: "any"}, expected: session.Query{}},
		{
			name:     "explicit IDs win",
			flags:    DeviceFlags{Variant: "samba", VendorID: 0x03EB, ProductID: 0x6124},
			expected: session.Query{VendorID: 0x03EB, ProductID: 0x6124},
		},
		{name: "vendor without product", flags: DeviceFlags{VendorID: 0x03EB}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.flags.query()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestUdevRules(t *testing.T) {
	rules := udevRules()

	assert.Contains(t, rules, `ATTRS{idVendor}=="03eb", ATTRS{idProduct}=="6124"`)
	assert.Contains(t, rules, `ATTRS{idVendor}=="0694", ATTRS{idProduct}=="0002"`)
	assert.Equal(t, 3, strings.Count(rules, "\n"))
}

func TestFlashTemplate(t *testing.T) {
	m := buildMapFromStruct(reflect.TypeOf(Flash{}))

	assert.NotContains(t, m, "image")
	assert.Equal(t, "0x00100000", m["addr"])
	assert.Equal(t, true, m["verify"])
	assert.Equal(t, false, m["reboot"])
	assert.Equal(t, map[string]any{"variant": "samba", "vendorID": 0, "productID": 0}, m["device"])
}

func TestConfigInit(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "flash.json")
	c := &ConfigInit{Command: "flash", Format: "json", Output: dest}

	require.NoError(t, c.Run())
	data, err := os.ReadFile(dest)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "0x00100000", got["addr"])

	assert.Error(t, c.Run(), "existing file needs --force")
	c.Force = true
	c.Format = "yml"
	assert.NoError(t, c.Run())
}

func TestDrawProgress(t *testing.T) {
	var buf bytes.Buffer
	drawProgress(&buf, flash.Progress{Phase: flash.Programming, CurrentPage: 5, TotalPages: 10, Percentage: 50})
	assert.Equal(t, "\rprogramming   [###############...............]  50.0% 5/10", buf.String())

	buf.Reset()
	drawProgress(&buf, flash.Progress{Phase: flash.Done, CurrentPage: 10, TotalPages: 10, Percentage: 100})
	assert.True(t, strings.HasSuffix(buf.String(), "10/10\n"))
}
