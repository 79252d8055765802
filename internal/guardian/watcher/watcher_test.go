package watcher

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchFirstWins(t *testing.T) {
	tests := []struct {
		line string
		name string
		ok   bool
	}{
		{"brcmfmac 0000:01:00.0: brcmf_cfg80211_scan: scan error (-5)", "", false},
		{"ieee80211 phy0: brcmf_run_escan: error (5)", "", false},
		{"brcmfmac: brcmf_cfg80211_scan: CMD_TRIGGER_SCAN error. Scan Engine Parse Failed, error (5)", "trigger_scan_error", true},
		{"ieee80211 phy0: brcmf_msgbuf_query_dcmd: Timeout on response for query command", "msgbuf_query_dcmd", true},
		{"brcmfmac: brcmf_set_wpa_version: set wpa_auth failed (-52)", "wpa_auth_failed", true},
		{"ieee80211 phy0: brcmf_run_escan: error (-12)", "enomem", true},
		{"Bluetooth: hci0: command 0xfc01 tx timeout, sending frame failed with error -110", "timeout", true},
		{"BRCMF_MSGBUF_QUERY_DCMD uppercase still matches", "msgbuf_query_dcmd", true},
		{"NetworkManager[812]: device state change", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		sig, ok := Match(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		if tt.ok {
			assert.Equal(t, tt.name, sig.Name, tt.line)
		}
	}
}

type triggerRecorder struct {
	sigs  []string
	lines []string
}

func (r *triggerRecorder) trigger(ctx context.Context, sig Signature, line string) {
	r.sigs = append(r.sigs, sig.Name)
	r.lines = append(r.lines, line)
}

func newTestWatcher(rec *triggerRecorder, open StreamFactory) *Watcher {
	w := New(rec.trigger)
	w.open = open
	w.sleep = func(ctx context.Context, d time.Duration) {}
	return w
}

func TestRunTriggersOnMatchedLines(t *testing.T) {
	rec := &triggerRecorder{}
	ctx, cancel := context.WithCancel(context.Background())

	input := strings.Join([]string{
		"kernel: wlp3s0: authenticated",
		"kernel: brcmfmac: brcmf_set_wpa_version: set wpa_auth failed (-52)",
		"kernel: NetworkManager restarted",
	}, "\n")

	opens := 0
	open := func(ctx context.Context) (io.ReadCloser, error) {
		opens++
		if opens == 1 {
			return io.NopCloser(strings.NewReader(input)), nil
		}
		// Simulate shutdown once the first stream is exhausted.
		cancel()
		return nil, errors.New("closed")
	}

	err := newTestWatcher(rec, open).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wpa_auth_failed"}, rec.sigs)
}

func TestRunReopensDroppedStream(t *testing.T) {
	rec := &triggerRecorder{}
	ctx, cancel := context.WithCancel(context.Background())

	streams := []string{
		"kernel: ieee80211 phy0: brcmf_msgbuf_query_dcmd: Timeout on response\n",
		"kernel: Bluetooth: hci0: frame failed with error -110\n",
	}

	opens := 0
	open := func(ctx context.Context) (io.ReadCloser, error) {
		opens++
		if opens <= len(streams) {
			return io.NopCloser(strings.NewReader(streams[opens-1])), nil
		}
		cancel()
		return nil, errors.New("closed")
	}

	err := newTestWatcher(rec, open).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"msgbuf_query_dcmd", "timeout"}, rec.sigs)
	assert.Equal(t, 3, opens)
}

func TestRunFatalWhenJournalUnreadable(t *testing.T) {
	rec := &triggerRecorder{}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		return nil, errors.New("permission denied")
	}

	err := newTestWatcher(rec, open).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Empty(t, rec.sigs)
}

func TestRunFatalOnSilentTerminatingStreams(t *testing.T) {
	rec := &triggerRecorder{}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("")), nil
	}

	err := newTestWatcher(rec, open).Run(context.Background())
	require.Error(t, err)
}
