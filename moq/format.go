package moq

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortDecoderConfig indicates a decoder configuration record was too
// short to contain its fixed header fields.
var ErrShortDecoderConfig = errors.New("moq: decoder configuration record too short")

// AVCDecoderConfig is the parsed form of an AVCDecoderConfigurationRecord
// (ISO 14496-15 §5.2.4.1.1), giving a decoder the SPS/PPS it needs before
// the first sample arrives.
type AVCDecoderConfig struct {
	ProfileIndication byte
	ProfileCompat     byte
	LevelIndication   byte
	NALULengthSize    int
	SPS               [][]byte
	PPS               [][]byte
}

// ParseAVCDecoderConfig decodes an AVCDecoderConfigurationRecord, the form
// a catalog entry's hex-encoded `description` field carries for H.264
// renditions.
func ParseAVCDecoderConfig(b []byte) (AVCDecoderConfig, error) {
	var cfg AVCDecoderConfig
	if len(b) < 6 {
		return cfg, ErrShortDecoderConfig
	}
	cfg.ProfileIndication = b[1]
	cfg.ProfileCompat = b[2]
	cfg.LevelIndication = b[3]
	cfg.NALULengthSize = int(b[4]&0x03) + 1

	pos := 5
	numSPS := int(b[pos] & 0x1f)
	pos++
	for i := 0; i < numSPS; i++ {
		if pos+2 > len(b) {
			return cfg, ErrShortDecoderConfig
		}
		n := int(binary.BigEndian.Uint16(b[pos:]))
		pos += 2
		if pos+n > len(b) {
			return cfg, ErrShortDecoderConfig
		}
		cfg.SPS = append(cfg.SPS, b[pos:pos+n])
		pos += n
	}

	if pos >= len(b) {
		return cfg, ErrShortDecoderConfig
	}
	numPPS := int(b[pos])
	pos++
	for i := 0; i < numPPS; i++ {
		if pos+2 > len(b) {
			return cfg, ErrShortDecoderConfig
		}
		n := int(binary.BigEndian.Uint16(b[pos:]))
		pos += 2
		if pos+n > len(b) {
			return cfg, ErrShortDecoderConfig
		}
		cfg.PPS = append(cfg.PPS, b[pos:pos+n])
		pos += n
	}
	return cfg, nil
}

// HEVCDecoderConfig is the parsed form of an HEVCDecoderConfigurationRecord
// (ISO 14496-15 §8.3.3.1.2).
type HEVCDecoderConfig struct {
	GeneralProfileIDC byte
	GeneralLevelIDC   byte
	NALULengthSize    int
	VPS               [][]byte
	SPS               [][]byte
	PPS               [][]byte
}

// ParseHEVCDecoderConfig decodes an HEVCDecoderConfigurationRecord.
func ParseHEVCDecoderConfig(b []byte) (HEVCDecoderConfig, error) {
	var cfg HEVCDecoderConfig
	if len(b) < 23 {
		return cfg, ErrShortDecoderConfig
	}
	cfg.GeneralProfileIDC = b[1] & 0x1f
	cfg.GeneralLevelIDC = b[12]
	cfg.NALULengthSize = int(b[21]&0x03) + 1
	numArrays := int(b[22])

	pos := 23
	for i := 0; i < numArrays; i++ {
		if pos >= len(b) {
			return cfg, ErrShortDecoderConfig
		}
		nalType := b[pos] & 0x3f
		pos++
		if pos+2 > len(b) {
			return cfg, ErrShortDecoderConfig
		}
		numNalus := int(binary.BigEndian.Uint16(b[pos:]))
		pos += 2
		for j := 0; j < numNalus; j++ {
			if pos+2 > len(b) {
				return cfg, ErrShortDecoderConfig
			}
			n := int(binary.BigEndian.Uint16(b[pos:]))
			pos += 2
			if pos+n > len(b) {
				return cfg, ErrShortDecoderConfig
			}
			nalu := b[pos : pos+n]
			pos += n
			switch nalType {
			case 32:
				cfg.VPS = append(cfg.VPS, nalu)
			case 33:
				cfg.SPS = append(cfg.SPS, nalu)
			case 34:
				cfg.PPS = append(cfg.PPS, nalu)
			}
		}
	}
	return cfg, nil
}

// AnnexBToAVC1 converts Annex B NALUs (3- or 4-byte start-code prefixed) to
// AVC1 format (4-byte big-endian length prefixed), for renditions whose
// legacy-container frames arrive start-code delimited.
func AnnexBToAVC1(nalus [][]byte) []byte {
	var total int
	for _, nalu := range nalus {
		raw := stripStartCode(nalu)
		total += 4 + len(raw)
	}

	out := make([]byte, 0, total)
	for _, nalu := range nalus {
		raw := stripStartCode(nalu)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(raw)))
		out = append(out, lenBuf[:]...)
		out = append(out, raw...)
	}
	return out
}

// AVC1ToAnnexB converts a length-prefixed AVC1 buffer (as produced by a
// CMAF mdat sample) into Annex B NALUs, for decoder backends that require
// start-code delimiting.
func AVC1ToAnnexB(data []byte, lengthSize int) ([][]byte, error) {
	if lengthSize != 1 && lengthSize != 2 && lengthSize != 4 {
		return nil, fmt.Errorf("moq: unsupported NALU length size %d", lengthSize)
	}
	var nalus [][]byte
	pos := 0
	for pos < len(data) {
		if pos+lengthSize > len(data) {
			return nil, fmt.Errorf("moq: truncated NALU length at offset %d", pos)
		}
		var n int
		switch lengthSize {
		case 1:
			n = int(data[pos])
		case 2:
			n = int(binary.BigEndian.Uint16(data[pos:]))
		case 4:
			n = int(binary.BigEndian.Uint32(data[pos:]))
		}
		pos += lengthSize
		if pos+n > len(data) {
			return nil, fmt.Errorf("moq: truncated NALU payload at offset %d", pos)
		}
		nalu := make([]byte, 0, 4+n)
		nalu = append(nalu, 0, 0, 0, 1)
		nalu = append(nalu, data[pos:pos+n]...)
		nalus = append(nalus, nalu)
		pos += n
	}
	return nalus, nil
}

// stripStartCode removes a 3-byte or 4-byte Annex B start code prefix.
func stripStartCode(nalu []byte) []byte {
	if len(nalu) >= 4 && nalu[0] == 0 && nalu[1] == 0 && nalu[2] == 0 && nalu[3] == 1 {
		return nalu[4:]
	}
	if len(nalu) >= 3 && nalu[0] == 0 && nalu[1] == 0 && nalu[2] == 1 {
		return nalu[3:]
	}
	return nalu
}

// StripADTS removes the ADTS header from a complete ADTS frame, returning
// the raw AAC payload. Returns the input unchanged if it is not a valid
// ADTS frame. Some legacy-container audio renditions wrap their samples in
// ADTS even though the catalog codec string already names the AAC profile.
func StripADTS(data []byte) []byte {
	if len(data) < 7 {
		return data
	}
	if data[0] != 0xFF || (data[1]&0xF0) != 0xF0 {
		return data
	}
	headerSize := 7
	if (data[1] & 0x01) == 0 {
		headerSize = 9
	}
	if len(data) <= headerSize {
		return data
	}
	return data[headerSize:]
}
