package hang

import "github.com/go-hang/hang/path"

// Config covers every recognized option of spec.md §6. The zero value
// is not a usable Config: at minimum RelayURL and BroadcastPath must be
// set. Reconnect and Volume's zero values (false, 0) are legitimate
// explicit choices (no auto-reconnect, muted-equivalent silence) rather
// than "unset" markers — callers who want spec §6's stated defaults
// (reconnect=true, volume=1.0) should set them explicitly, or build
// Config via config.FromEnv, which distinguishes an absent environment
// variable from one set to a falsy value.
type Config struct {
	RelayURL        string
	BroadcastPath   path.Path
	TargetLatencyMS uint64
	Reconnect       bool

	// PinnedFingerprints, if non-empty, are base64 SHA-256 certificate
	// fingerprints (certs.CertInfo.FingerprintBase64's format) the
	// relay's self-signed certificate must match; see
	// certs.PinnedTLSConfig. Left empty, NewWebTransportDialer callers
	// are responsible for supplying their own verification.
	PinnedFingerprints []string

	RenditionTargetPixels uint64
	RenditionTargetName   string

	Paused bool
	Muted  bool
	Volume float64
}

// DefaultTargetLatencyMS is §6's default target_latency_ms.
const DefaultTargetLatencyMS = 100

// WithDefaults returns a copy of cfg with TargetLatencyMS defaulted to
// DefaultTargetLatencyMS if left unset. 0ms is never a usable target
// latency, so unlike Reconnect and Volume, zero is an unambiguous
// "unset" signal for this field.
func (cfg Config) WithDefaults() Config {
	if cfg.TargetLatencyMS == 0 {
		cfg.TargetLatencyMS = DefaultTargetLatencyMS
	}
	return cfg
}
