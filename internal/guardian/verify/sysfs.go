package verify

import (
	"os"
	"path/filepath"
	"strings"
)

// Probe reports hardware presence. The production implementation reads
// sysfs directly; the load stage only proves the commands ran, this
// proves the hardware actually came back.
type Probe interface {
	WirelessPresent() bool
	BluetoothPresent() bool
}

// SysfsProbe inspects the kernel's exported device state.
type SysfsProbe struct {
	// Root is "/sys" in production, a fixture dir in tests.
	Root string
}

// NewSysfsProbe returns a probe over the real sysfs tree.
func NewSysfsProbe() *SysfsProbe {
	return &SysfsProbe{Root: "/sys"}
}

// WirelessPresent reports whether any network interface exposes a
// wireless extension directory.
func (p *SysfsProbe) WirelessPresent() bool {
	entries, err := os.ReadDir(filepath.Join(p.Root, "class", "net"))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if _, err := os.Stat(filepath.Join(p.Root, "class", "net", e.Name(), "wireless")); err == nil {
			return true
		}
	}
	return false
}

// BluetoothPresent reports whether any hci controller is registered.
// The controller index is not stable across driver reloads, so any
// hci* entry counts.
func (p *SysfsProbe) BluetoothPresent() bool {
	entries, err := os.ReadDir(filepath.Join(p.Root, "class", "bluetooth"))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "hci") {
			return true
		}
	}
	return false
}
