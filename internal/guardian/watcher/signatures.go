package watcher

import "regexp"

// Signature is one kernel log pattern known to indicate a firmware
// hang on the Broadcom chipset.
type Signature struct {
	// Name is a stable slug used in logs and metric labels.
	Name string

	re *regexp.Regexp
}

// Kernel messages observed during WiFi/Bluetooth firmware hangs.
// Matching is first wins, so the more specific patterns come first.
var signatures = []Signature{
	{Name: "trigger_scan_error", re: regexp.MustCompile(`(?i)CMD_TRIGGER_SCAN.*error.*\(5\)`)},
	{Name: "msgbuf_query_dcmd", re: regexp.MustCompile(`(?i)brcmf_msgbuf_query_dcmd`)},
	{Name: "wpa_auth_failed", re: regexp.MustCompile(`(?i)set wpa_auth failed`)},
	{Name: "enomem", re: regexp.MustCompile(`(?i)error \(-12\)`)},
	{Name: "timeout", re: regexp.MustCompile(`(?i)failed with error -110`)},
}

// Match reports the first signature matching the given log line.
func Match(line string) (Signature, bool) {
	for _, s := range signatures {
		if s.re.MatchString(line) {
			return s, true
		}
	}
	return Signature{}, false
}
