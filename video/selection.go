package video

import (
	"encoding/hex"
	"sort"

	"github.com/go-hang/hang/catalog"
)

// SupportProbe reports whether a decoder on the current platform can
// decode codec (with the given optional description / decoder
// configuration bytes). The real implementation lives outside this
// module (a WebCodecs isConfigSupported call in a browser host, a
// native decoder capability query elsewhere); this package only
// consumes the yes/no answer.
type SupportProbe func(codec string, description []byte) bool

// Target selects a rendition either by explicit name (Name wins if
// non-empty) or by a target pixel count.
type Target struct {
	Name   string
	Pixels uint64
}

// pixelArea returns codedWidth*codedHeight, or 0 if either dimension is
// absent from the rendition's config.
func pixelArea(cfg catalog.VideoConfig) uint64 {
	if cfg.CodedWidth == nil || cfg.CodedHeight == nil {
		return 0
	}
	return *cfg.CodedWidth * *cfg.CodedHeight
}

// SupportedRenditions returns the subset of renditions for which probe
// reports support, as rendition names in the catalog's own sorted
// order.
func SupportedRenditions(renditions map[string]catalog.VideoConfig, probe SupportProbe) []string {
	names := make([]string, 0, len(renditions))
	for name, cfg := range renditions {
		var description []byte
		if cfg.Description != "" {
			if raw, err := hex.DecodeString(cfg.Description); err == nil {
				description = raw
			}
		}
		if probe(cfg.Codec, description) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Select implements §4.9's rendition selection algorithm over the
// renditions that pass probe: a non-empty target.Name wins outright if
// it is itself supported; otherwise the smallest supported rendition
// whose pixel area is >= target.Pixels; otherwise the largest supported
// rendition below target.Pixels; otherwise the first supported
// rendition in sorted-name order. ErrNoSupportedRendition is returned
// only when no rendition passes probe at all.
func Select(renditions map[string]catalog.VideoConfig, probe SupportProbe, target Target) (string, error) {
	supported := SupportedRenditions(renditions, probe)
	if len(supported) == 0 {
		return "", ErrNoSupportedRendition
	}

	if target.Name != "" {
		for _, name := range supported {
			if name == target.Name {
				return name, nil
			}
		}
	}

	var (
		bestAbove     string
		bestAboveArea uint64
		haveAbove     bool
		bestBelow     string
		bestBelowArea uint64
		haveBelow     bool
	)
	for _, name := range supported {
		area := pixelArea(renditions[name])
		if area >= target.Pixels {
			if !haveAbove || area < bestAboveArea {
				bestAbove, bestAboveArea, haveAbove = name, area, true
			}
		} else {
			if !haveBelow || area > bestBelowArea {
				bestBelow, bestBelowArea, haveBelow = name, area, true
			}
		}
	}
	if haveAbove {
		return bestAbove, nil
	}
	if haveBelow {
		return bestBelow, nil
	}
	return supported[0], nil
}
