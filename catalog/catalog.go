package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ContainerKind discriminates between the two per-rendition container
// framings a catalog can declare.
type ContainerKind string

const (
	ContainerLegacy ContainerKind = "legacy"
	ContainerCMAF   ContainerKind = "cmaf"
)

// InitTrackRef names the track carrying a CMAF container's combined init
// segment, and the priority to subscribe to it with.
type InitTrackRef struct {
	Name     string `json:"name" validate:"required"`
	Priority uint8  `json:"priority"`
}

// Container describes which per-frame framing a rendition uses. For
// ContainerCMAF, InitTrack must be present; for ContainerLegacy it is
// unused.
type Container struct {
	Kind      ContainerKind `json:"kind" validate:"required,oneof=legacy cmaf"`
	InitTrack *InitTrackRef `json:"init_track,omitempty" validate:"required_if=Kind cmaf"`
}

// Display carries the catalog-declared display size of a video section.
type Display struct {
	Width  uint64 `json:"width"`
	Height uint64 `json:"height"`
}

// VideoConfig is a single video rendition's codec configuration, per §6's
// bit-exact catalog schema.
type VideoConfig struct {
	Codec               string    `json:"codec" validate:"required"`
	Container            Container `json:"container" validate:"required"`
	Description           string   `json:"description,omitempty"`
	CodedWidth            *uint64  `json:"codedWidth,omitempty"`
	CodedHeight           *uint64  `json:"codedHeight,omitempty"`
	DisplayAspectWidth    *uint64  `json:"displayAspectWidth,omitempty"`
	DisplayAspectHeight   *uint64  `json:"displayAspectHeight,omitempty"`
	Framerate             *float64 `json:"framerate,omitempty"`
	Bitrate                *uint64 `json:"bitrate,omitempty"`
	OptimizeForLatency     *bool   `json:"optimizeForLatency,omitempty"`
	Jitter                 *uint64 `json:"jitter,omitempty"`
}

// AudioConfig is a single audio rendition's codec configuration. The
// SampleRate/NumberOfChannels fields follow the WebCodecs AudioDecoderConfig
// registry, supplementing spec.md's catalog schema (which specifies
// VideoConfig in full but leaves AudioConfig's field list implicit by
// symmetry — see DESIGN.md).
type AudioConfig struct {
	Codec            string    `json:"codec" validate:"required"`
	Container        Container `json:"container" validate:"required"`
	Description      string    `json:"description,omitempty"`
	SampleRate       *uint64   `json:"sampleRate,omitempty"`
	NumberOfChannels *uint64   `json:"numberOfChannels,omitempty"`
	Bitrate          *uint64   `json:"bitrate,omitempty"`
}

// VideoSection is the catalog's top-level "video" object.
type VideoSection struct {
	Renditions map[string]VideoConfig `json:"renditions" validate:"required,min=1,dive"`
	Priority   uint8                  `json:"priority"`
	Display    *Display               `json:"display,omitempty"`
	Rotation   *float64               `json:"rotation,omitempty"`
	Flip       *bool                  `json:"flip,omitempty"`
}

// AudioSection is the catalog's top-level "audio" object.
type AudioSection struct {
	Renditions map[string]AudioConfig `json:"renditions" validate:"required,min=1,dive"`
	Priority   uint8                  `json:"priority"`
}

// Catalog is the fully decoded and validated broadcast catalog.
type Catalog struct {
	Video *VideoSection `json:"video,omitempty"`
	Audio *AudioSection `json:"audio,omitempty"`
}

// VideoRenditionNames returns the catalog's video rendition names in
// sorted order, or nil if there is no video section.
func (c *Catalog) VideoRenditionNames() []string {
	if c.Video == nil {
		return nil
	}
	return sortedKeys(c.Video.Renditions)
}

// AudioRenditionNames returns the catalog's audio rendition names in
// sorted order, or nil if there is no audio section.
func (c *Catalog) AudioRenditionNames() []string {
	if c.Audio == nil {
		return nil
	}
	return sortedKeys(c.Audio.Renditions)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterStructValidation(catalogStructLevelValidation, Catalog{})
	})
	return validate
}

func catalogStructLevelValidation(sl validator.StructLevel) {
	cat := sl.Current().Interface().(Catalog)
	if cat.Video == nil && cat.Audio == nil {
		sl.ReportError(cat.Video, "Video", "Video", "atleastonemedia", "")
	}
}

// legacyEntry is one item of the pre-catalog array-of-{track,config} wire
// form this package promotes into the current shape.
type legacyEntry struct {
	Track  string          `json:"track"`
	Config json.RawMessage `json:"config"`
}

// ParseCatalog decodes and validates a catalog document, transparently
// promoting the legacy array-of-{track,config} form into the current
// {video,audio} shape first if the document is a JSON array.
func ParseCatalog(data []byte) (*Catalog, error) {
	trimmed := bytes.TrimSpace(data)
	var cat Catalog
	if len(trimmed) > 0 && trimmed[0] == '[' {
		promoted, err := promoteLegacy(trimmed)
		if err != nil {
			return nil, err
		}
		cat = *promoted
	} else {
		if err := json.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("catalog: decode: %w", err)
		}
	}

	if err := validateCatalog(&cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func validateCatalog(cat *Catalog) error {
	err := getValidator().Struct(cat)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return fmt.Errorf("catalog: validate: %w", err)
	}
	return &SchemaError{Path: verrs[0].Namespace(), Err: verrs[0]}
}

// promoteLegacy converts the legacy `[{track, config}, …]` wire form into
// the current grouped shape, keyed by the teacher's own video/audioN
// track-naming convention (moq_catalog.go's buildMoQCatalog: "video",
// "audio0", "audio1", …).
func promoteLegacy(data []byte) (*Catalog, error) {
	var entries []legacyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("catalog: decode legacy form: %w", err)
	}

	cat := &Catalog{}
	for _, e := range entries {
		switch {
		case e.Track == "video" || strings.HasPrefix(e.Track, "video"):
			var cfg VideoConfig
			if err := json.Unmarshal(e.Config, &cfg); err != nil {
				return nil, fmt.Errorf("catalog: legacy video config for %q: %w", e.Track, err)
			}
			if cat.Video == nil {
				cat.Video = &VideoSection{Renditions: make(map[string]VideoConfig)}
			}
			cat.Video.Renditions[e.Track] = cfg
		case strings.HasPrefix(e.Track, "audio"):
			var cfg AudioConfig
			if err := json.Unmarshal(e.Config, &cfg); err != nil {
				return nil, fmt.Errorf("catalog: legacy audio config for %q: %w", e.Track, err)
			}
			if cat.Audio == nil {
				cat.Audio = &AudioSection{Renditions: make(map[string]AudioConfig)}
			}
			cat.Audio.Renditions[e.Track] = cfg
		}
	}
	return cat, nil
}

// Encode serializes cat back to its current-shape JSON form.
func Encode(cat *Catalog) ([]byte, error) {
	return json.Marshal(cat)
}
