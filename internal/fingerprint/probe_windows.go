package fingerprint

import (
	"strings"

	"golang.org/x/sys/windows/registry"
)

const (
	cryptographyKey = `SOFTWARE\Microsoft\Cryptography`
	processorKey    = `HARDWARE\DESCRIPTION\System\CentralProcessor\0`
)

// ProcessorID is not readable without WMI
func (h *hostProbe) ProcessorID() (string, bool) {
	return "", false
}

// ProcessorName returns the processor name string from the registry
func (h *hostProbe) ProcessorName() (string, bool) {
	return registryString(processorKey, "ProcessorNameString")
}

// DiskSerial is not readable without WMI
func (h *hostProbe) DiskSerial() (string, bool) {
	return "", false
}

// SystemUUID returns the machine GUID assigned at installation
func (h *hostProbe) SystemUUID() (string, bool) {
	id, ok := registryString(cryptographyKey, "MachineGuid")
	if !ok {
		return "", false
	}
	return strings.ToUpper(id), true
}

func registryString(path, name string) (string, bool) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return "", false
	}
	defer k.Close()

	v, _, err := k.GetStringValue(name)
	if err != nil {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
