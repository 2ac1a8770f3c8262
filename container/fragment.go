package container

import (
	"encoding/binary"
	"fmt"
)

// Sample is one decoded CMAF sample: its presentation timestamp in
// microseconds, whether it is a sync (key) frame, and its raw payload.
// Data aliases the buffer passed to DecodeFragment; callers that retain a
// Sample past the next read must copy it.
type Sample struct {
	Keyframe  bool
	Timestamp int64
	Data      []byte
}

const (
	tfhdBaseDataOffsetPresent         = 0x000001
	tfhdSampleDescriptionIndexPresent = 0x000002
	tfhdDefaultSampleDurationPresent  = 0x000008
	tfhdDefaultSampleSizePresent      = 0x000010
	tfhdDefaultSampleFlagsPresent     = 0x000020

	trunDataOffsetPresent        = 0x000001
	trunFirstSampleFlagsPresent  = 0x000004
	trunSampleDurationPresent    = 0x000100
	trunSampleSizePresent        = 0x000200
	trunSampleFlagsPresent       = 0x000400
	trunSampleCompositionPresent = 0x000800

	sampleFlagNonSync = 0x00010000
)

// DecodeFragment decodes every sample across every track fragment (traf)
// in a single moof+mdat buffer, per §4.6: "from moof extract tfdt
// base-media-decode-time and trun per-sample durations; from mdat slice
// out per-sample payloads." timescales maps track_ID to its media
// timescale (from TrackTimescales on the init segment's moov).
func DecodeFragment(fragmentData []byte, timescales map[uint32]uint64) (map[uint32][]Sample, error) {
	boxes, err := parseBoxes(fragmentData)
	if err != nil {
		return nil, err
	}
	moofBody, ok := findBox(boxes, "moof")
	if !ok {
		return nil, fmt.Errorf("%w: moof", ErrBoxNotFound)
	}

	moofBoxes, err := parseBoxes(moofBody)
	if err != nil {
		return nil, err
	}

	out := make(map[uint32][]Sample)
	for _, b := range moofBoxes {
		if b.Type != "traf" {
			continue
		}
		trackID, samples, err := decodeTraf(b.Body, fragmentData, timescales)
		if err != nil {
			return nil, err
		}
		out[trackID] = append(out[trackID], samples...)
	}
	return out, nil
}

type tfhdInfo struct {
	trackID                uint32
	defaultSampleDuration  uint32
	defaultSampleSize      uint32
	defaultSampleFlags     uint32
}

func decodeTfhd(body []byte) (tfhdInfo, error) {
	var info tfhdInfo
	if len(body) < 4 {
		return info, fmt.Errorf("%w: tfhd", ErrTruncatedBox)
	}
	flags := beUint32(body[0:4]) & 0x00FFFFFF
	pos := 4
	if len(body) < pos+4 {
		return info, fmt.Errorf("%w: tfhd track_ID", ErrTruncatedBox)
	}
	info.trackID = beUint32(body[pos : pos+4])
	pos += 4
	if flags&tfhdBaseDataOffsetPresent != 0 {
		pos += 8
	}
	if flags&tfhdSampleDescriptionIndexPresent != 0 {
		pos += 4
	}
	if flags&tfhdDefaultSampleDurationPresent != 0 {
		if len(body) < pos+4 {
			return info, fmt.Errorf("%w: tfhd default_sample_duration", ErrTruncatedBox)
		}
		info.defaultSampleDuration = beUint32(body[pos : pos+4])
		pos += 4
	}
	if flags&tfhdDefaultSampleSizePresent != 0 {
		if len(body) < pos+4 {
			return info, fmt.Errorf("%w: tfhd default_sample_size", ErrTruncatedBox)
		}
		info.defaultSampleSize = beUint32(body[pos : pos+4])
		pos += 4
	}
	if flags&tfhdDefaultSampleFlagsPresent != 0 {
		if len(body) < pos+4 {
			return info, fmt.Errorf("%w: tfhd default_sample_flags", ErrTruncatedBox)
		}
		info.defaultSampleFlags = beUint32(body[pos : pos+4])
	}
	return info, nil
}

func decodeTfdt(body []byte) (uint64, error) {
	if len(body) < 1 {
		return 0, fmt.Errorf("%w: tfdt", ErrTruncatedBox)
	}
	version := body[0]
	if version == 1 {
		if len(body) < 12 {
			return 0, fmt.Errorf("%w: tfdt v1", ErrTruncatedBox)
		}
		return binary.BigEndian.Uint64(body[4:12]), nil
	}
	if len(body) < 8 {
		return 0, fmt.Errorf("%w: tfdt v0", ErrTruncatedBox)
	}
	return uint64(beUint32(body[4:8])), nil
}

func decodeTraf(trafBody, fragmentData []byte, timescales map[uint32]uint64) (uint32, []Sample, error) {
	trafBoxes, err := parseBoxes(trafBody)
	if err != nil {
		return 0, nil, err
	}
	tfhdBody, ok := findBox(trafBoxes, "tfhd")
	if !ok {
		return 0, nil, fmt.Errorf("%w: tfhd", ErrBoxNotFound)
	}
	tfhd, err := decodeTfhd(tfhdBody)
	if err != nil {
		return 0, nil, err
	}

	tfdtBody, ok := findBox(trafBoxes, "tfdt")
	if !ok {
		return 0, nil, fmt.Errorf("%w: tfdt", ErrBoxNotFound)
	}
	baseDecodeTime, err := decodeTfdt(tfdtBody)
	if err != nil {
		return 0, nil, err
	}

	timescale, ok := timescales[tfhd.trackID]
	if !ok || timescale == 0 {
		return 0, nil, fmt.Errorf("%w: timescale for track %d", ErrBoxNotFound, tfhd.trackID)
	}

	trunBody, ok := findBox(trafBoxes, "trun")
	if !ok {
		return 0, nil, fmt.Errorf("%w: trun", ErrBoxNotFound)
	}
	samples, err := decodeTrun(trunBody, fragmentData, tfhd, baseDecodeTime, timescale)
	if err != nil {
		return 0, nil, err
	}
	return tfhd.trackID, samples, nil
}

func decodeTrun(body, fragmentData []byte, tfhd tfhdInfo, baseDecodeTime uint64, timescale uint64) ([]Sample, error) {
	if len(body) < 8 {
		return nil, fmt.Errorf("%w: trun header", ErrTruncatedBox)
	}
	flags := beUint32(body[0:4]) & 0x00FFFFFF
	sampleCount := beUint32(body[4:8])
	pos := 8

	if flags&trunDataOffsetPresent == 0 {
		return nil, fmt.Errorf("container: trun without data-offset is not supported")
	}
	if len(body) < pos+4 {
		return nil, fmt.Errorf("%w: trun data_offset", ErrTruncatedBox)
	}
	dataOffset := int32(beUint32(body[pos : pos+4]))
	pos += 4

	var firstSampleFlags uint32
	haveFirstSampleFlags := flags&trunFirstSampleFlagsPresent != 0
	if haveFirstSampleFlags {
		if len(body) < pos+4 {
			return nil, fmt.Errorf("%w: trun first_sample_flags", ErrTruncatedBox)
		}
		firstSampleFlags = beUint32(body[pos : pos+4])
		pos += 4
	}

	samples := make([]Sample, 0, sampleCount)
	dataPos := int(dataOffset)
	decodeTime := baseDecodeTime

	for i := uint32(0); i < sampleCount; i++ {
		duration := tfhd.defaultSampleDuration
		size := tfhd.defaultSampleSize
		sampleFlags := tfhd.defaultSampleFlags
		if i == 0 && haveFirstSampleFlags {
			sampleFlags = firstSampleFlags
		}

		if flags&trunSampleDurationPresent != 0 {
			if len(body) < pos+4 {
				return nil, fmt.Errorf("%w: trun sample_duration", ErrTruncatedBox)
			}
			duration = beUint32(body[pos : pos+4])
			pos += 4
		}
		if flags&trunSampleSizePresent != 0 {
			if len(body) < pos+4 {
				return nil, fmt.Errorf("%w: trun sample_size", ErrTruncatedBox)
			}
			size = beUint32(body[pos : pos+4])
			pos += 4
		}
		if flags&trunSampleFlagsPresent != 0 {
			if len(body) < pos+4 {
				return nil, fmt.Errorf("%w: trun sample_flags", ErrTruncatedBox)
			}
			sampleFlags = beUint32(body[pos : pos+4])
			pos += 4
		}
		if flags&trunSampleCompositionPresent != 0 {
			if len(body) < pos+4 {
				return nil, fmt.Errorf("%w: trun sample_composition_time_offset", ErrTruncatedBox)
			}
			pos += 4
		}

		if dataPos < 0 || dataPos+int(size) > len(fragmentData) {
			return nil, fmt.Errorf("%w: sample %d data out of bounds", ErrTruncatedBox, i)
		}

		timestampMicros := int64(decodeTime * 1_000_000 / timescale)
		samples = append(samples, Sample{
			Keyframe:  sampleFlags&sampleFlagNonSync == 0,
			Timestamp: timestampMicros,
			Data:      fragmentData[dataPos : dataPos+int(size)],
		})

		dataPos += int(size)
		decodeTime += uint64(duration)
	}
	return samples, nil
}
