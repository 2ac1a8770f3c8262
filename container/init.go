package container

import "fmt"

// SplitInitSegment splits the combined ftyp+moov init segment from any
// trailing moof+mdat media segment that arrived in the same buffer (§4.6:
// "the first segment on the wire is a combined ftyp+moov that must be
// split from any trailing moof+mdat"). init contains exactly the ftyp and
// moov boxes (and any leading free/skip boxes); rest is everything after.
func SplitInitSegment(data []byte) (init []byte, rest []byte, err error) {
	boxes, err := parseBoxes(data)
	if err != nil {
		return nil, nil, err
	}

	offset := 0
	sawMoov := false
	for _, b := range boxes {
		boxLen := 8 + len(b.Body)
		offset += boxLen
		if b.Type == "moov" {
			sawMoov = true
			break
		}
	}
	if !sawMoov {
		return nil, nil, ErrNoInitSegment
	}
	return data[:offset], data[offset:], nil
}

// handlerType returns the four-character handler_type of a trak box's
// mdia/hdlr box ("vide" for video, "soun" for audio).
func handlerType(trakBody []byte) (string, error) {
	trakBoxes, err := parseBoxes(trakBody)
	if err != nil {
		return "", err
	}
	mdiaBody, ok := findBox(trakBoxes, "mdia")
	if !ok {
		return "", fmt.Errorf("%w: mdia", ErrBoxNotFound)
	}
	mdiaBoxes, err := parseBoxes(mdiaBody)
	if err != nil {
		return "", err
	}
	hdlrBody, ok := findBox(mdiaBoxes, "hdlr")
	if !ok {
		return "", fmt.Errorf("%w: hdlr", ErrBoxNotFound)
	}
	// hdlr: version(1) + flags(3) + pre_defined(4) + handler_type(4) + ...
	if len(hdlrBody) < 12 {
		return "", fmt.Errorf("%w: hdlr body too short", ErrTruncatedBox)
	}
	return string(hdlrBody[8:12]), nil
}

// trackID returns a trak box's tkhd track_ID.
func trackID(trakBody []byte) (uint32, error) {
	trakBoxes, err := parseBoxes(trakBody)
	if err != nil {
		return 0, err
	}
	tkhdBody, ok := findBox(trakBoxes, "tkhd")
	if !ok {
		return 0, fmt.Errorf("%w: tkhd", ErrBoxNotFound)
	}
	return fullBoxTrackID(tkhdBody)
}

// fullBoxTrackID extracts track_ID from a tkhd full-box body, whose layout
// depends on the version byte: version 1 uses 64-bit creation/modification
// times, version 0 uses 32-bit.
func fullBoxTrackID(tkhdBody []byte) (uint32, error) {
	if len(tkhdBody) < 1 {
		return 0, fmt.Errorf("%w: tkhd empty", ErrTruncatedBox)
	}
	version := tkhdBody[0]
	var offset int
	if version == 1 {
		offset = 1 + 3 + 8 + 8 // version+flags, creation_time, modification_time
	} else {
		offset = 1 + 3 + 4 + 4
	}
	if len(tkhdBody) < offset+4 {
		return 0, fmt.Errorf("%w: tkhd track_ID", ErrTruncatedBox)
	}
	return beUint32(tkhdBody[offset : offset+4]), nil
}

// SplitInitByHandler rewrites a combined N-track init segment into
// per-handler-type inits (one for "vide", one for "soun"), each containing
// only the matching trak and an mvex filtered to that trak's trex entry,
// per §4.6's per-track MSE init requirement. A handler type absent from
// the source init yields a nil entry, not an error.
func SplitInitByHandler(init []byte) (video []byte, audio []byte, err error) {
	boxes, err := parseBoxes(init)
	if err != nil {
		return nil, nil, err
	}
	ftypBody, ok := findBox(boxes, "ftyp")
	if !ok {
		return nil, nil, fmt.Errorf("%w: ftyp", ErrBoxNotFound)
	}
	moovBody, ok := findBox(boxes, "moov")
	if !ok {
		return nil, nil, fmt.Errorf("%w: moov", ErrBoxNotFound)
	}

	videoMoov, err := rewriteMoovForHandler(moovBody, "vide")
	if err != nil {
		return nil, nil, err
	}
	audioMoov, err := rewriteMoovForHandler(moovBody, "soun")
	if err != nil {
		return nil, nil, err
	}

	ftyp := buildBox("ftyp", ftypBody)
	if videoMoov != nil {
		video = append(append([]byte{}, ftyp...), buildBox("moov", videoMoov)...)
	}
	if audioMoov != nil {
		audio = append(append([]byte{}, ftyp...), buildBox("moov", audioMoov)...)
	}
	return video, audio, nil
}

// rewriteMoovForHandler returns a new moov body retaining only the trak(s)
// whose handler type matches want, along with mvhd unchanged and mvex
// filtered to those traks' trex entries. Returns nil if no trak matches.
func rewriteMoovForHandler(moovBody []byte, want string) ([]byte, error) {
	moovBoxes, err := parseBoxes(moovBody)
	if err != nil {
		return nil, err
	}

	keepIDs := make(map[uint32]bool)
	var out []byte
	matched := false
	for _, b := range moovBoxes {
		switch b.Type {
		case "trak":
			ht, err := handlerType(b.Body)
			if err != nil {
				return nil, err
			}
			if ht != want {
				continue
			}
			matched = true
			id, err := trackID(b.Body)
			if err != nil {
				return nil, err
			}
			keepIDs[id] = true
			out = append(out, buildBox("trak", b.Body)...)
		case "mvhd":
			out = append(out, buildBox("mvhd", b.Body)...)
		case "mvex":
			rewritten, err := rewriteMvex(b.Body, keepIDs)
			if err != nil {
				return nil, err
			}
			if rewritten != nil {
				out = append(out, buildBox("mvex", rewritten)...)
			}
		}
	}
	if !matched {
		return nil, nil
	}
	return out, nil
}

// rewriteMvex filters an mvex box's trex children to those whose track_ID
// is in keepIDs. mvex boxes other than trex (e.g. mehd) are kept as-is.
func rewriteMvex(mvexBody []byte, keepIDs map[uint32]bool) ([]byte, error) {
	mvexBoxes, err := parseBoxes(mvexBody)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, b := range mvexBoxes {
		if b.Type != "trex" {
			out = append(out, buildBox(b.Type, b.Body)...)
			continue
		}
		if len(b.Body) < 8 {
			return nil, fmt.Errorf("%w: trex body too short", ErrTruncatedBox)
		}
		id := beUint32(b.Body[4:8])
		if keepIDs[id] {
			out = append(out, buildBox("trex", b.Body)...)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
