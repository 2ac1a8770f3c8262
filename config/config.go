// Package config builds a hang.Config from environment variables,
// following the envOr/getEnv convenience-loader idiom of
// cmd/prism/main.go and denpa-radio's config.Load(): the primary API
// is always a hang.Config literal, this is additive sugar for callers
// who prefer environment-driven setup.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/go-hang/hang"
	"github.com/go-hang/hang/path"
)

// Env names for every recognized option of spec.md §6.
const (
	EnvRelayURL              = "HANG_RELAY_URL"
	EnvBroadcastPath         = "HANG_BROADCAST_PATH"
	EnvTargetLatencyMS       = "HANG_TARGET_LATENCY_MS"
	EnvReconnect             = "HANG_RECONNECT"
	EnvRenditionTargetPixels = "HANG_RENDITION_TARGET_PIXELS"
	EnvRenditionTargetName   = "HANG_RENDITION_TARGET_NAME"
	EnvPaused                = "HANG_PAUSED"
	EnvMuted                 = "HANG_MUTED"
	EnvVolume                = "HANG_VOLUME"
	EnvPinnedFingerprints    = "HANG_PINNED_FINGERPRINTS"
)

// FromEnv builds a hang.Config from the environment, applying spec §6's
// stated defaults (reconnect=true, volume=1.0) whenever the
// corresponding variable is absent. Unlike getEnv's string fallback,
// this distinguishes "unset" from "set to a falsy value" via
// os.LookupEnv, so HANG_RECONNECT=false is honored rather than treated
// the same as an absent variable.
func FromEnv() (hang.Config, error) {
	cfg := hang.Config{
		RelayURL:              envOr(EnvRelayURL, ""),
		TargetLatencyMS:       envOrUint64(EnvTargetLatencyMS, hang.DefaultTargetLatencyMS),
		Reconnect:             envOrBool(EnvReconnect, true),
		RenditionTargetPixels: envOrUint64(EnvRenditionTargetPixels, 0),
		RenditionTargetName:   envOr(EnvRenditionTargetName, ""),
		Paused:                envOrBool(EnvPaused, false),
		Muted:                 envOrBool(EnvMuted, false),
		Volume:                envOrFloat64(EnvVolume, 1.0),
		PinnedFingerprints:    envOrList(EnvPinnedFingerprints),
	}

	if raw, ok := os.LookupEnv(EnvBroadcastPath); ok {
		p, err := path.New(raw)
		if err != nil {
			return hang.Config{}, err
		}
		cfg.BroadcastPath = p
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envOrUint64(key string, fallback uint64) uint64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envOrFloat64(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envOrList(key string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
