package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t2linux-tools/t2guard/internal/guardian/emitter"
	"github.com/t2linux-tools/t2guard/internal/guardian/registry"
)

// scriptedProbe returns per-pass canned answers, then repeats the last.
type scriptedProbe struct {
	wifi []bool
	bt   []bool
	call int
}

func (p *scriptedProbe) WirelessPresent() bool  { return at(p.wifi, p.call) }
func (p *scriptedProbe) BluetoothPresent() bool { defer func() { p.call++ }(); return at(p.bt, p.call) }

func at(s []bool, i int) bool {
	if len(s) == 0 {
		return false
	}
	if i >= len(s) {
		return s[len(s)-1]
	}
	return s[i]
}

type reloadRecorder struct {
	unloads []string
	loads   []string
}

func (r *reloadRecorder) Unload(ctx context.Context, d registry.DriverSpec) error {
	r.unloads = append(r.unloads, d.Name)
	return nil
}

func (r *reloadRecorder) Load(ctx context.Context, d registry.DriverSpec) error {
	r.loads = append(r.loads, d.Name)
	return nil
}

type sinkRecorder struct {
	events []emitter.Event
}

func (s *sinkRecorder) Emit(ctx context.Context, ev emitter.Event) {
	s.events = append(s.events, ev)
}

func newTestEngine(probe Probe, mods ModuleOps, sink emitter.Emitter) *Engine {
	e := New(registry.Default(), probe, mods, sink)
	e.sleep = func(ctx context.Context, d time.Duration) {}
	return e
}

func TestSuccessFirstPass(t *testing.T) {
	mods := &reloadRecorder{}
	sink := &sinkRecorder{}
	e := newTestEngine(&scriptedProbe{wifi: []bool{true}, bt: []bool{true}}, mods, sink)

	res := e.Verify(context.Background())

	assert.True(t, res.OK())
	assert.Equal(t, 1, res.Passes)
	assert.Empty(t, mods.loads, "no narrow reload when everything is present")

	require.Len(t, sink.events, 1)
	assert.Equal(t, emitter.SeverityLow, sink.events[0].Severity)
}

func TestWifiAbsentTwiceThenPresent(t *testing.T) {
	// WiFi missing on passes 1 and 2, present on 3; Bluetooth always up.
	probe := &scriptedProbe{wifi: []bool{false, false, true}, bt: []bool{true}}
	mods := &reloadRecorder{}
	sink := &sinkRecorder{}
	e := newTestEngine(probe, mods, sink)

	res := e.Verify(context.Background())

	assert.True(t, res.OK())
	assert.Equal(t, 3, res.Passes)

	// Exactly two narrow reloads, targeting only the wireless module.
	assert.Equal(t, []string{"brcmfmac_wcc", "brcmfmac_wcc"}, mods.unloads)
	assert.Equal(t, []string{"brcmfmac_wcc", "brcmfmac_wcc"}, mods.loads)
}

func TestExhaustedPassesIsCritical(t *testing.T) {
	probe := &scriptedProbe{wifi: []bool{false}, bt: []bool{true}}
	mods := &reloadRecorder{}
	sink := &sinkRecorder{}
	e := newTestEngine(probe, mods, sink)

	res := e.Verify(context.Background())

	assert.False(t, res.OK())
	assert.Equal(t, DefaultPasses, res.Passes)
	assert.Equal(t, []registry.Resource{registry.ResourceWiFi}, res.Missing())

	// Narrow retry happens between passes only: passes-1 reloads.
	assert.Len(t, mods.loads, DefaultPasses-1)

	require.Len(t, sink.events, 1)
	assert.Equal(t, emitter.SeverityCritical, sink.events[0].Severity)
	assert.Contains(t, sink.events[0].Body, "wifi")
}

func TestBothMissingRetriesBoth(t *testing.T) {
	probe := &scriptedProbe{wifi: []bool{false, true}, bt: []bool{false, true}}
	mods := &reloadRecorder{}
	e := newTestEngine(probe, mods, &sinkRecorder{})

	res := e.Verify(context.Background())

	assert.True(t, res.OK())
	assert.ElementsMatch(t, []string{"brcmfmac_wcc", "hci_bcm4377"}, mods.loads)
}

func TestSysfsProbe(t *testing.T) {
	root := t.TempDir()
	p := &SysfsProbe{Root: root}

	assert.False(t, p.WirelessPresent())
	assert.False(t, p.BluetoothPresent())

	require.NoError(t, os.MkdirAll(filepath.Join(root, "class", "net", "lo"), 0o755))
	assert.False(t, p.WirelessPresent(), "non-wireless interfaces do not count")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "class", "net", "wlan0", "wireless"), 0o755))
	assert.True(t, p.WirelessPresent())

	require.NoError(t, os.MkdirAll(filepath.Join(root, "class", "bluetooth", "hci1"), 0o755))
	assert.True(t, p.BluetoothPresent())
}
