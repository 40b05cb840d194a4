package fingerprint

import (
	"bufio"
	"bytes"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const (
	cpuInfoPath     = "/proc/cpuinfo"
	sysBlockPath    = "/sys/block"
	productUUIDPath = "/sys/class/dmi/id/product_uuid"
	machineIDPath   = "/etc/machine-id"
)

// virtualBlockPrefixes name block devices that have no physical serial
var virtualBlockPrefixes = []string{"loop", "ram", "zram", "dm-", "md", "sr", "nbd"}

// ProcessorID returns the CPU serial reported by /proc/cpuinfo. Only some
// architectures (mostly ARM boards) expose one.
func (h *hostProbe) ProcessorID() (string, bool) {
	serial, ok := h.cpuInfoField("Serial")
	if !ok || strings.Trim(serial, "0") == "" {
		return "", false
	}
	return serial, true
}

// ProcessorName returns the CPU model name from /proc/cpuinfo
func (h *hostProbe) ProcessorName() (string, bool) {
	for _, field := range []string{"model name", "Hardware", "cpu model", "cpu"} {
		if name, ok := h.cpuInfoField(field); ok {
			return name, true
		}
	}
	return "", false
}

// DiskSerial returns the serial of the first physical block device
func (h *hostProbe) DiskSerial() (string, bool) {
	entries, err := afero.ReadDir(h.fs, sysBlockPath)
	if err != nil {
		return "", false
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !isVirtualBlock(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if serial, ok := h.readTrimmed(path.Join(sysBlockPath, name, "device", "serial")); ok {
			return serial, true
		}
	}
	return "", false
}

// SystemUUID returns the DMI product UUID, falling back to the systemd
// machine id when DMI is unreadable (it is root-only on many distributions).
func (h *hostProbe) SystemUUID() (string, bool) {
	if id, ok := h.readTrimmed(productUUIDPath); ok {
		return strings.ToUpper(id), true
	}
	return h.readTrimmed(machineIDPath)
}

func (h *hostProbe) cpuInfoField(field string) (string, bool) {
	data, err := afero.ReadFile(h.fs, cpuInfoPath)
	if err != nil {
		return "", false
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found || strings.TrimSpace(key) != field {
			continue
		}
		value = strings.TrimSpace(value)
		if value != "" {
			return value, true
		}
	}
	return "", false
}

func (h *hostProbe) readTrimmed(name string) (string, bool) {
	data, err := afero.ReadFile(h.fs, name)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(string(data))
	return v, v != ""
}

func isVirtualBlock(name string) bool {
	for _, prefix := range virtualBlockPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
