package config

import (
	"os"
	"testing"

	"github.com/go-hang/hang"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		EnvRelayURL, EnvBroadcastPath, EnvTargetLatencyMS, EnvReconnect,
		EnvRenditionTargetPixels, EnvRenditionTargetName, EnvPaused,
		EnvMuted, EnvVolume, EnvPinnedFingerprints,
	}
	for _, k := range keys {
		prev, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, prev)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.TargetLatencyMS != hang.DefaultTargetLatencyMS {
		t.Errorf("TargetLatencyMS = %d, want default %d", cfg.TargetLatencyMS, hang.DefaultTargetLatencyMS)
	}
	if !cfg.Reconnect {
		t.Error("Reconnect = false, want true per spec §6 default")
	}
	if cfg.Volume != 1.0 {
		t.Errorf("Volume = %v, want 1.0 per spec §6 default", cfg.Volume)
	}
	if cfg.Paused || cfg.Muted {
		t.Error("expected Paused and Muted both false by default")
	}
	if !cfg.BroadcastPath.Empty() {
		t.Errorf("BroadcastPath = %q, want empty", cfg.BroadcastPath.String())
	}
	if cfg.PinnedFingerprints != nil {
		t.Errorf("PinnedFingerprints = %v, want nil", cfg.PinnedFingerprints)
	}
}

func TestFromEnvHonorsExplicitFalsyValues(t *testing.T) {
	clearEnv(t)
	os.Setenv(EnvReconnect, "false")
	os.Setenv(EnvVolume, "0")
	os.Setenv(EnvPaused, "true")
	os.Setenv(EnvMuted, "true")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Reconnect {
		t.Error("Reconnect = true, want false from explicit HANG_RECONNECT=false")
	}
	if cfg.Volume != 0 {
		t.Errorf("Volume = %v, want 0 from explicit HANG_VOLUME=0", cfg.Volume)
	}
	if !cfg.Paused || !cfg.Muted {
		t.Error("expected Paused and Muted both true")
	}
}

func TestFromEnvParsesBroadcastPath(t *testing.T) {
	clearEnv(t)
	os.Setenv(EnvBroadcastPath, "live/room1")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.BroadcastPath.String() != "live/room1" {
		t.Errorf("BroadcastPath = %q, want %q", cfg.BroadcastPath.String(), "live/room1")
	}
}

func TestFromEnvRejectsInvalidBroadcastPath(t *testing.T) {
	clearEnv(t)
	os.Setenv(EnvBroadcastPath, "../escape")
	if _, err := FromEnv(); err == nil {
		t.Error("expected error for invalid broadcast path")
	}
}

func TestFromEnvParsesPinnedFingerprintList(t *testing.T) {
	clearEnv(t)
	os.Setenv(EnvPinnedFingerprints, "abc123, def456 ,ghi789")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	want := []string{"abc123", "def456", "ghi789"}
	if len(cfg.PinnedFingerprints) != len(want) {
		t.Fatalf("PinnedFingerprints = %v, want %v", cfg.PinnedFingerprints, want)
	}
	for i := range want {
		if cfg.PinnedFingerprints[i] != want[i] {
			t.Errorf("PinnedFingerprints[%d] = %q, want %q", i, cfg.PinnedFingerprints[i], want[i])
		}
	}
}

func TestFromEnvRejectsUnparsableNumbersFallsBack(t *testing.T) {
	clearEnv(t)
	os.Setenv(EnvTargetLatencyMS, "not-a-number")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.TargetLatencyMS != hang.DefaultTargetLatencyMS {
		t.Errorf("TargetLatencyMS = %d, want default %d on unparsable input", cfg.TargetLatencyMS, hang.DefaultTargetLatencyMS)
	}
}
