package fingerprint

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linuxFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func TestLinuxProbeReadsSysfs(t *testing.T) {
	fs := linuxFs(t, map[string]string{
		cpuInfoPath:                        "processor\t: 0\nmodel name\t: AMD EPYC 7B13\n",
		"/sys/block/loop0/device/serial":   "LOOPY\n",
		"/sys/block/sda/device/serial":     "  S3Z1NX0K  \n",
		"/sys/block/nvme0n1/device/serial": "NVME-SERIAL\n",
		productUUIDPath:                    "ec2a1b2c-0000-1111\n",
		machineIDPath:                      "ignored",
	})
	h := &hostProbe{fs: fs}

	_, ok := h.ProcessorID()
	assert.False(t, ok)

	name, ok := h.ProcessorName()
	require.True(t, ok)
	assert.Equal(t, "AMD EPYC 7B13", name)

	serial, ok := h.DiskSerial()
	require.True(t, ok)
	assert.Equal(t, "NVME-SERIAL", serial)

	id, ok := h.SystemUUID()
	require.True(t, ok)
	assert.Equal(t, "EC2A1B2C-0000-1111", id)
}

func TestLinuxProbeCPUSerialAndMachineID(t *testing.T) {
	fs := linuxFs(t, map[string]string{
		cpuInfoPath:   "Hardware\t: BCM2835\nSerial\t\t: 10000000abcdef01\n",
		machineIDPath: "0123456789abcdef\n",
	})
	h := &hostProbe{fs: fs}

	id, ok := h.ProcessorID()
	require.True(t, ok)
	assert.Equal(t, "10000000abcdef01", id)

	name, ok := h.ProcessorName()
	require.True(t, ok)
	assert.Equal(t, "BCM2835", name)

	_, ok = h.DiskSerial()
	assert.False(t, ok)

	uuid, ok := h.SystemUUID()
	require.True(t, ok)
	assert.Equal(t, "0123456789abcdef", uuid)
}

func TestLinuxProbeZeroSerialIgnored(t *testing.T) {
	h := &hostProbe{fs: linuxFs(t, map[string]string{cpuInfoPath: "Serial : 0000000000000000\n"})}

	_, ok := h.ProcessorID()
	assert.False(t, ok)
}

func TestLinuxProbeEmptyHost(t *testing.T) {
	h := &hostProbe{fs: afero.NewMemMapFs()}

	assert.Empty(t, Components(fakeProbe{}))
	_, ok := h.ProcessorName()
	assert.False(t, ok)
	_, ok = h.SystemUUID()
	assert.False(t, ok)
}
