// Package fingerprint derives an opaque machine identity string from
// hardware signals.
//
// The result is a heuristic, stable across reboots of one machine but not
// guaranteed unique across cloned or virtualized machines that report the
// same hardware identifiers. It is used to bind a license to an installation,
// not as a cryptographic identity.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"
)

// Component prefixes, in the order they appear in a fingerprint
const (
	PrefixMAC      = "MAC:"
	PrefixCPU      = "CPU:"
	PrefixDisk     = "DISK:"
	PrefixUUID     = "UUID:"
	PrefixFallback = "FALLBACK:"

	separator = "|"

	// cpuHashLen is the number of hex characters kept from a hashed CPU name
	cpuHashLen = 16
)

// Probe inspects the host for identity signals. Each method reports whether
// the value could be read; a probe never fails outright.
type Probe interface {
	MACAddress() (string, bool)
	ProcessorID() (string, bool)
	ProcessorName() (string, bool)
	DiskSerial() (string, bool)
	SystemUUID() (string, bool)
	Hostname() (string, bool)
}

// Derive builds the fingerprint MAC|CPU|DISK|UUID from whatever the probe can
// read. When nothing is readable it returns a FALLBACK component built from
// the host name and platform, so the result is never empty.
func Derive(p Probe) string {
	parts := Components(p)
	if len(parts) == 0 {
		parts = []string{fallback(p)}
	}
	return strings.Join(parts, separator)
}

// Components returns the hardware components in fingerprint order, without
// the fallback.
func Components(p Probe) []string {
	var parts []string

	if mac, ok := clean(p.MACAddress()); ok {
		parts = append(parts, PrefixMAC+mac)
	}

	if id, ok := clean(p.ProcessorID()); ok {
		parts = append(parts, PrefixCPU+id)
	} else if name, ok := clean(p.ProcessorName()); ok {
		parts = append(parts, PrefixCPU+hashName(name))
	}

	if serial, ok := clean(p.DiskSerial()); ok {
		parts = append(parts, PrefixDisk+serial)
	}

	if id, ok := clean(p.SystemUUID()); ok {
		parts = append(parts, PrefixUUID+id)
	}

	return parts
}

// Split breaks a fingerprint into its prefix-keyed components
func Split(fp string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(fp, separator) {
		idx := strings.Index(part, ":")
		if idx <= 0 {
			continue
		}
		out[part[:idx+1]] = part[idx+1:]
	}
	return out
}

func fallback(p Probe) string {
	host, ok := clean(p.Hostname())
	if !ok {
		host = "unknown"
	}
	return fmt.Sprintf("%s%s-%s-%s", PrefixFallback, host, runtime.GOARCH, runtime.GOOS)
}

// hashName bounds the length of a free-text processor name
func hashName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])[:cpuHashLen]
}

// clean trims a probed value and drops it when empty. The separator is
// replaced so a component can never split the fingerprint.
func clean(v string, ok bool) (string, bool) {
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	v = strings.ReplaceAll(v, separator, "_")
	return v, v != ""
}
