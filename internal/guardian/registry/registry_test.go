package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrdering(t *testing.T) {
	r, err := New(
		[]DriverSpec{
			// Deliberately out of order on input.
			{Name: "wifi_mod", LoadOrder: 2, Provides: ResourceWiFi},
			{Name: "bt_mod", LoadOrder: 1, Provides: ResourceBluetooth},
		},
		[]ServiceSpec{
			{Name: "NetworkManager", Scope: ScopeSystem, Blocking: true},
			{Name: "bluetooth", Scope: ScopeSystem, Blocking: true},
		},
	)
	require.NoError(t, err)

	load := r.DriversLoadOrder()
	require.Len(t, load, 2)
	assert.Equal(t, "bt_mod", load[0].Name)
	assert.Equal(t, "wifi_mod", load[1].Name)

	unload := r.DriversUnloadOrder()
	assert.Equal(t, "wifi_mod", unload[0].Name)
	assert.Equal(t, "bt_mod", unload[1].Name)

	assert.Equal(t, "NetworkManager", r.ServicesStartOrder()[0].Name)
	assert.Equal(t, "bluetooth", r.ServicesStopOrder()[0].Name)
}

func TestValidation(t *testing.T) {
	_, err := New([]DriverSpec{{Name: "m", LoadOrder: 1}, {Name: "m", LoadOrder: 2}}, nil)
	assert.Error(t, err, "duplicate module names must be rejected")

	_, err = New(nil, []ServiceSpec{{Name: "svc", Scope: "session"}})
	assert.Error(t, err, "unknown scope must be rejected")

	_, err = New([]DriverSpec{{Name: "", LoadOrder: 1}}, nil)
	assert.Error(t, err)
}

func TestDriverFor(t *testing.T) {
	r := Default()

	d, ok := r.DriverFor(ResourceWiFi)
	require.True(t, ok)
	assert.Equal(t, "brcmfmac_wcc", d.Name)
	assert.Equal(t, 3*time.Second, d.SettleDelay)

	d, ok = r.DriverFor(ResourceBluetooth)
	require.True(t, ok)
	assert.Equal(t, "hci_bcm4377", d.Name)

	_, ok = r.DriverFor(Resource("thunderbolt"))
	assert.False(t, ok)
}
