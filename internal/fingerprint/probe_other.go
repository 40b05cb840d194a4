//go:build !linux && !darwin && !windows

package fingerprint

func (h *hostProbe) ProcessorID() (string, bool)   { return "", false }
func (h *hostProbe) ProcessorName() (string, bool) { return "", false }
func (h *hostProbe) DiskSerial() (string, bool)    { return "", false }
func (h *hostProbe) SystemUUID() (string, bool)    { return "", false }
