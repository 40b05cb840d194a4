package fingerprint

import (
	"net"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// hostProbe reads identity signals from the running machine. The
// platform-specific methods live in probe_<goos>.go.
type hostProbe struct {
	fs afero.Fs
}

// SystemProbe returns the probe for the current platform
func SystemProbe() Probe {
	return &hostProbe{fs: afero.NewOsFs()}
}

// MACAddress returns the first non-zero hardware address of a non-loopback
// interface, in interface index order.
func (h *hostProbe) MACAddress() (string, bool) {
	interfaces, err := net.Interfaces()
	if err != nil {
		log.WithError(err).Debug("Failed to list network interfaces")
		return "", false
	}
	return firstMAC(interfaces)
}

func firstMAC(interfaces []net.Interface) (string, bool) {
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 || isZeroMAC(iface.HardwareAddr) {
			continue
		}
		return strings.ToUpper(iface.HardwareAddr.String()), true
	}
	return "", false
}

func isZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}

// Hostname returns the lower-cased host name
func (h *hostProbe) Hostname() (string, bool) {
	name, err := os.Hostname()
	if err != nil {
		return "", false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	return name, name != ""
}
