// Package registry holds the static inventory of kernel modules and
// services the watchdog manages. The lists are fixed at startup; the
// sequencer only ever iterates them in load or unload order.
package registry

import (
	"fmt"
	"sort"
	"time"
)

// Resource identifies the piece of hardware a driver provides.
type Resource string

const (
	ResourceWiFi      Resource = "wifi"
	ResourceBluetooth Resource = "bluetooth"
)

// ServiceScope selects the systemd manager a service belongs to.
type ServiceScope string

const (
	ScopeSystem ServiceScope = "system"
	ScopeUser   ServiceScope = "user"
)

// DriverSpec describes one kernel module. Load proceeds in ascending
// LoadOrder, unload in descending LoadOrder.
type DriverSpec struct {
	// Name is the kernel module name as known to modprobe.
	Name string `json:"name" mapstructure:"name"`

	// LoadOrder orders the load stage; unload runs in reverse.
	LoadOrder int `json:"load-order" mapstructure:"load-order"`

	// SettleDelay is slept after a successful load of this module to let
	// the firmware initialize before the next step.
	SettleDelay time.Duration `json:"settle-delay" mapstructure:"settle-delay"`

	// Provides names the hardware resource backed by this module, used by
	// the verification engine for narrow per-resource reloads.
	Provides Resource `json:"provides" mapstructure:"provides"`
}

// ServiceSpec describes one managed service.
type ServiceSpec struct {
	Name string `json:"name" mapstructure:"name"`

	// Scope is "system" or "user".
	Scope ServiceScope `json:"scope" mapstructure:"scope"`

	// Blocking selects whether the executor waits for the state
	// transition; non-blocking services are started fire-and-forget.
	Blocking bool `json:"blocking" mapstructure:"blocking"`
}

// Registry is the immutable resource inventory.
type Registry struct {
	drivers  []DriverSpec
	services []ServiceSpec
}

// New builds a registry, ordering drivers by LoadOrder. Duplicate
// module names or load orders are rejected.
func New(drivers []DriverSpec, services []ServiceSpec) (*Registry, error) {
	ds := make([]DriverSpec, len(drivers))
	copy(ds, drivers)
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].LoadOrder < ds[j].LoadOrder })

	seen := map[string]bool{}
	for _, d := range ds {
		if d.Name == "" {
			return nil, fmt.Errorf("driver with empty module name")
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate driver module %q", d.Name)
		}
		seen[d.Name] = true
	}

	for _, s := range services {
		if s.Name == "" {
			return nil, fmt.Errorf("service with empty name")
		}
		if s.Scope != ScopeSystem && s.Scope != ScopeUser {
			return nil, fmt.Errorf("service %q: unknown scope %q", s.Name, s.Scope)
		}
	}

	svcs := make([]ServiceSpec, len(services))
	copy(svcs, services)

	return &Registry{drivers: ds, services: svcs}, nil
}

// Default returns the inventory for the T2 Broadcom chipset: the
// Bluetooth controller must come up before the WiFi driver.
func Default() *Registry {
	r, err := New(
		[]DriverSpec{
			{Name: "hci_bcm4377", LoadOrder: 1, SettleDelay: 3 * time.Second, Provides: ResourceBluetooth},
			{Name: "brcmfmac_wcc", LoadOrder: 2, SettleDelay: 3 * time.Second, Provides: ResourceWiFi},
		},
		[]ServiceSpec{
			{Name: "NetworkManager", Scope: ScopeSystem, Blocking: true},
			{Name: "bluetooth", Scope: ScopeSystem, Blocking: true},
		},
	)
	if err != nil {
		panic(err) // static data
	}
	return r
}

// DriversLoadOrder returns drivers in load (forward) order.
func (r *Registry) DriversLoadOrder() []DriverSpec {
	out := make([]DriverSpec, len(r.drivers))
	copy(out, r.drivers)
	return out
}

// DriversUnloadOrder returns drivers in unload (reverse) order.
func (r *Registry) DriversUnloadOrder() []DriverSpec {
	out := make([]DriverSpec, len(r.drivers))
	for i, d := range r.drivers {
		out[len(r.drivers)-1-i] = d
	}
	return out
}

// ServicesStartOrder returns services in start (forward) order.
func (r *Registry) ServicesStartOrder() []ServiceSpec {
	out := make([]ServiceSpec, len(r.services))
	copy(out, r.services)
	return out
}

// ServicesStopOrder returns services in stop (reverse) order.
func (r *Registry) ServicesStopOrder() []ServiceSpec {
	out := make([]ServiceSpec, len(r.services))
	for i, s := range r.services {
		out[len(r.services)-1-i] = s
	}
	return out
}

// DriverFor returns the driver providing the given resource.
func (r *Registry) DriverFor(res Resource) (DriverSpec, bool) {
	for _, d := range r.drivers {
		if d.Provides == res {
			return d, true
		}
	}
	return DriverSpec{}, false
}
