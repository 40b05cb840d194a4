package fingerprint

import (
	"strings"

	"golang.org/x/sys/unix"
)

// ProcessorID is not exposed on macOS
func (h *hostProbe) ProcessorID() (string, bool) {
	return "", false
}

// ProcessorName returns the CPU brand string
func (h *hostProbe) ProcessorName() (string, bool) {
	return sysctl("machdep.cpu.brand_string")
}

// DiskSerial is not read on macOS without IOKit
func (h *hostProbe) DiskSerial() (string, bool) {
	return "", false
}

// SystemUUID returns the platform UUID reported by the kernel
func (h *hostProbe) SystemUUID() (string, bool) {
	id, ok := sysctl("kern.uuid")
	if !ok {
		return "", false
	}
	return strings.ToUpper(id), true
}

func sysctl(name string) (string, bool) {
	v, err := unix.Sysctl(name)
	if err != nil {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
