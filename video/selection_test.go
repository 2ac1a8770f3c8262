package video

import (
	"testing"

	"github.com/go-hang/hang/catalog"
)

func u64(v uint64) *uint64 { return &v }

func alwaysSupported(codec string, description []byte) bool { return true }

func TestSelectManualOverrideWins(t *testing.T) {
	t.Parallel()
	renditions := map[string]catalog.VideoConfig{
		"hd": {Codec: "avc1.640028", CodedWidth: u64(1920), CodedHeight: u64(1080)},
		"sd": {Codec: "avc1.42E01E", CodedWidth: u64(640), CodedHeight: u64(360)},
	}
	got, err := Select(renditions, alwaysSupported, Target{Name: "sd", Pixels: 2_000_000})
	if err != nil {
		t.Fatalf("Select: unexpected error: %v", err)
	}
	if got != "sd" {
		t.Errorf("got %q, want %q", got, "sd")
	}
}

func TestSelectSmallestAboveTarget(t *testing.T) {
	t.Parallel()
	renditions := map[string]catalog.VideoConfig{
		"hd": {Codec: "avc1.640028", CodedWidth: u64(1920), CodedHeight: u64(1080)},
		"sd": {Codec: "avc1.42E01E", CodedWidth: u64(640), CodedHeight: u64(360)},
		"4k": {Codec: "avc1.640033", CodedWidth: u64(3840), CodedHeight: u64(2160)},
	}
	got, err := Select(renditions, alwaysSupported, Target{Pixels: 500_000})
	if err != nil {
		t.Fatalf("Select: unexpected error: %v", err)
	}
	if got != "hd" {
		t.Errorf("got %q, want %q (smallest >= target)", got, "hd")
	}
}

func TestSelectFallsBackToLargestBelowTarget(t *testing.T) {
	t.Parallel()
	renditions := map[string]catalog.VideoConfig{
		"sd": {Codec: "avc1.42E01E", CodedWidth: u64(640), CodedHeight: u64(360)},
		"ld": {Codec: "avc1.42E01E", CodedWidth: u64(320), CodedHeight: u64(180)},
	}
	got, err := Select(renditions, alwaysSupported, Target{Pixels: 10_000_000})
	if err != nil {
		t.Fatalf("Select: unexpected error: %v", err)
	}
	if got != "sd" {
		t.Errorf("got %q, want %q (largest below target)", got, "sd")
	}
}

func TestSelectFallsBackToFirstSupported(t *testing.T) {
	t.Parallel()
	renditions := map[string]catalog.VideoConfig{
		"a": {Codec: "avc1.42E01E"},
		"b": {Codec: "avc1.640028"},
	}
	got, err := Select(renditions, alwaysSupported, Target{Pixels: 500_000})
	if err != nil {
		t.Fatalf("Select: unexpected error: %v", err)
	}
	if got != "a" {
		t.Errorf("got %q, want %q (first in sorted order, no dimensions)", got, "a")
	}
}

func TestSelectFiltersUnsupportedRenditions(t *testing.T) {
	t.Parallel()
	renditions := map[string]catalog.VideoConfig{
		"unsupported": {Codec: "vp09.00.10.08", CodedWidth: u64(100), CodedHeight: u64(100)},
		"ok":          {Codec: "avc1.42E01E", CodedWidth: u64(1000), CodedHeight: u64(1000)},
	}
	probe := func(codec string, description []byte) bool { return codec == "avc1.42E01E" }
	got, err := Select(renditions, probe, Target{Pixels: 0})
	if err != nil {
		t.Fatalf("Select: unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
}

func TestSelectNoSupportedRendition(t *testing.T) {
	t.Parallel()
	renditions := map[string]catalog.VideoConfig{
		"a": {Codec: "vp09.00.10.08"},
	}
	probe := func(codec string, description []byte) bool { return false }
	if _, err := Select(renditions, probe, Target{}); err != ErrNoSupportedRendition {
		t.Fatalf("error = %v, want ErrNoSupportedRendition", err)
	}
}
