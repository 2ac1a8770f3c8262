package container

import "fmt"

// TrackTimescales returns each trak's media timescale keyed by track_ID,
// read from moov/trak/mdia/mdhd, needed to convert a fragment's tick-based
// durations into microseconds.
func TrackTimescales(moovBody []byte) (map[uint32]uint64, error) {
	moovBoxes, err := parseBoxes(moovBody)
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]uint64)
	for _, b := range moovBoxes {
		if b.Type != "trak" {
			continue
		}
		id, err := trackID(b.Body)
		if err != nil {
			return nil, err
		}
		ts, err := mediaTimescale(b.Body)
		if err != nil {
			return nil, err
		}
		out[id] = ts
	}
	return out, nil
}

// mediaTimescale extracts a trak's mdia/mdhd timescale.
func mediaTimescale(trakBody []byte) (uint64, error) {
	trakBoxes, err := parseBoxes(trakBody)
	if err != nil {
		return 0, err
	}
	mdiaBody, ok := findBox(trakBoxes, "mdia")
	if !ok {
		return 0, fmt.Errorf("%w: mdia", ErrBoxNotFound)
	}
	mdiaBoxes, err := parseBoxes(mdiaBody)
	if err != nil {
		return 0, err
	}
	mdhdBody, ok := findBox(mdiaBoxes, "mdhd")
	if !ok {
		return 0, fmt.Errorf("%w: mdhd", ErrBoxNotFound)
	}
	if len(mdhdBody) < 1 {
		return 0, fmt.Errorf("%w: mdhd empty", ErrTruncatedBox)
	}
	version := mdhdBody[0]
	var offset int
	if version == 1 {
		offset = 1 + 3 + 8 + 8 // version+flags, creation_time(8), modification_time(8)
	} else {
		offset = 1 + 3 + 4 + 4
	}
	if len(mdhdBody) < offset+4 {
		return 0, fmt.Errorf("%w: mdhd timescale", ErrTruncatedBox)
	}
	return uint64(beUint32(mdhdBody[offset : offset+4])), nil
}
