package moq

import (
	"fmt"
	"io"
)

// Control-stream message type IDs. Values are assigned per the negotiated
// protocol version (§6); these are the identifiers this package decodes
// and encodes for both supported wire families.
const (
	MsgSessionClient   uint64 = 0x20
	MsgSessionServer   uint64 = 0x21
	MsgAnnounceInterest uint64 = 0x11
	MsgAnnounceInit     uint64 = 0x12
	MsgAnnounce         uint64 = 0x06
	MsgUnannounce       uint64 = 0x09
	MsgSubscribe        uint64 = 0x03
	MsgSubscribeOK      uint64 = 0x04
	MsgSubscribeError   uint64 = 0x05
	MsgSubscribeUpdate  uint64 = 0x02
	MsgUnsubscribe      uint64 = 0x0a
	MsgGoAway           uint64 = 0x10
	MsgMaxRequestID     uint64 = 0x15
)

// Wire families and versions recognized during session setup (§6).
const (
	VersionMoqLiteMin uint64 = 0xff0dad01
	VersionMoqLiteMax uint64 = 0xff0dad03
	VersionIETFLegacy uint64 = 0xff000007
	VersionIETFMin    uint64 = 0xff00000e
	VersionIETFMax    uint64 = 0xff000010
)

// SupportedVersions lists every version this package can negotiate, newest
// preferred first within each family; NegotiateVersion picks the first
// mutually supported entry.
var SupportedVersions = []uint64{
	VersionIETFMax, 0xff00000f, VersionIETFMin, VersionIETFLegacy,
	VersionMoqLiteMax, 0xff0dad02, VersionMoqLiteMin,
}

// NegotiateVersion returns the highest-preference version present in both
// offered (client-supplied, in the order the client prefers) and
// SupportedVersions, or ErrVersionMismatch if there is no overlap.
func NegotiateVersion(offered []uint64) (uint64, error) {
	supported := make(map[uint64]bool, len(SupportedVersions))
	for _, v := range SupportedVersions {
		supported[v] = true
	}
	for _, v := range offered {
		if supported[v] {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w (offered %v)", ErrVersionMismatch, offered)
}

// Setup parameter keys (odd = length-prefixed byte string, even = varint).
const (
	ParamPath         uint64 = 0x01
	ParamMaxRequestID uint64 = 0x02
)

// SessionSetup is exchanged on the first bidirectional stream: the client
// sends its supported versions and parameters, the server replies with the
// single version it selected.
type SessionSetup struct {
	Versions     []uint64
	Path         string
	HasPath      bool
	MaxRequestID uint64
}

// SessionSetupReply is the server's response, naming the negotiated version.
type SessionSetupReply struct {
	SelectedVersion uint64
	MaxRequestID    uint64
}

// AnnounceInterest expresses interest in every broadcast path under prefix.
type AnnounceInterest struct {
	Prefix []string
}

// AnnounceInit is the publisher's initial reply to AnnounceInterest,
// listing every currently active path under the requested prefix.
type AnnounceInit struct {
	ActivePaths [][]string
}

// Announce is an incremental update to the announced set: Active true means
// Suffix was added, false means it was withdrawn.
type Announce struct {
	Suffix []string
	Active bool
}

// Subscribe filter types (§6; only NextGroupStart/LatestObject are live
// filters, AbsoluteStart/AbsoluteRange are retained for protocol
// completeness even though a live-only consumer never issues them).
const (
	FilterNextGroupStart uint64 = 0x01
	FilterLatestObject   uint64 = 0x02
	FilterAbsoluteStart  uint64 = 0x03
	FilterAbsoluteRange  uint64 = 0x04
)

// Subscribe requests delivery of a track.
type Subscribe struct {
	ID          uint64
	Broadcast   []string
	Track       string
	Priority    byte
	MaxLatencyMS uint64
	HasMaxLatency bool
	Ordered     bool
	HasOrdered  bool
	FilterType  uint64
}

// SubscribeOK confirms a subscription, reflecting the parameters actually
// granted (which may differ from what was requested).
type SubscribeOK struct {
	ID           uint64
	Priority     byte
	MaxLatencyMS uint64
	HasMaxLatency bool
	Ordered      bool
	HasOrdered   bool
}

// SubscribeUpdate adjusts a live subscription's priority/latency/ordering
// without resubscribing.
type SubscribeUpdate struct {
	ID           uint64
	Priority     byte
	MaxLatencyMS uint64
	HasMaxLatency bool
	Ordered      bool
	HasOrdered   bool
}

// SubscribeError rejects a subscription.
type SubscribeError struct {
	ID           uint64
	ErrorCode    uint64
	ReasonPhrase string
}

// Unsubscribe cancels a subscription.
type Unsubscribe struct {
	ID uint64
}

// MaxRequestIDMsg updates the peer's request ID quota.
type MaxRequestIDMsg struct {
	ID uint64
}

// GoAway signals a graceful session shutdown, optionally redirecting the
// client to NewSessionURI.
type GoAway struct {
	NewSessionURI string
}

// ReadControlMsg reads one control message from the control stream.
// Wire format: [message_type varint] [message_length varint] [payload].
func ReadControlMsg(r io.Reader) (uint64, []byte, error) {
	br, ok := r.(interface {
		io.Reader
		io.ByteReader
	})
	if !ok {
		return readControlMsgUnbuffered(r)
	}
	msgType, err := ReadVarInt(br)
	if err != nil {
		return 0, nil, fmt.Errorf("read message type: %w", err)
	}
	payload, err := ReadLengthPrefixed(br)
	if err != nil {
		return 0, nil, fmt.Errorf("read message payload: %w", err)
	}
	return msgType, payload, nil
}

func readControlMsgUnbuffered(r io.Reader) (uint64, []byte, error) {
	buffered := &byteReaderAdapter{r: r}
	msgType, err := ReadVarInt(buffered)
	if err != nil {
		return 0, nil, fmt.Errorf("read message type: %w", err)
	}
	payload, err := ReadLengthPrefixed(buffered)
	if err != nil {
		return 0, nil, fmt.Errorf("read message payload: %w", err)
	}
	return msgType, payload, nil
}

// byteReaderAdapter adds single-byte reads to an io.Reader that doesn't
// already implement io.ByteReader, without the extra buffering bufio.Reader
// would add (which could consume bytes belonging to the next message).
type byteReaderAdapter struct {
	r io.Reader
}

func (b *byteReaderAdapter) Read(p []byte) (int, error) { return b.r.Read(p) }

func (b *byteReaderAdapter) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteControlMsg writes a control message as a single atomic Write.
func WriteControlMsg(w io.Writer, msgType uint64, payload []byte) error {
	var buf []byte
	buf = AppendVarInt(buf, msgType)
	buf = AppendVarInt(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ParseSessionSetup parses a SESSION_CLIENT payload.
func ParseSessionSetup(data []byte) (SessionSetup, error) {
	r := newBufReader(data)
	var s SessionSetup

	n, err := r.readVarint()
	if err != nil {
		return s, &ParseError{Field: "num_versions", Err: err}
	}
	s.Versions = make([]uint64, n)
	for i := range s.Versions {
		v, err := r.readVarint()
		if err != nil {
			return s, &ParseError{Field: "version", Err: err}
		}
		s.Versions[i] = v
	}

	numParams, err := r.readVarint()
	if err != nil {
		return s, &ParseError{Field: "num_params", Err: err}
	}
	for i := uint64(0); i < numParams; i++ {
		key, err := r.readVarint()
		if err != nil {
			return s, &ParseError{Field: "param_key", Err: err}
		}
		if key%2 == 1 {
			val, err := r.readVarIntBytes()
			if err != nil {
				return s, &ParseError{Field: "param_value", Err: err}
			}
			if key == ParamPath {
				s.Path = string(val)
				s.HasPath = true
			}
		} else {
			val, err := r.readVarint()
			if err != nil {
				return s, &ParseError{Field: "param_value", Err: err}
			}
			if key == ParamMaxRequestID {
				s.MaxRequestID = val
			}
		}
	}
	return s, nil
}

// SerializeSessionSetup serializes a SESSION_CLIENT payload.
func SerializeSessionSetup(s SessionSetup) []byte {
	var buf []byte
	buf = AppendVarInt(buf, uint64(len(s.Versions)))
	for _, v := range s.Versions {
		buf = AppendVarInt(buf, v)
	}
	numParams := uint64(0)
	if s.HasPath {
		numParams++
	}
	buf = AppendVarInt(buf, numParams)
	if s.HasPath {
		buf = AppendVarInt(buf, ParamPath)
		buf = appendVarIntBytes(buf, []byte(s.Path))
	}
	return buf
}

// ParseSessionSetupReply parses a SESSION_SERVER payload.
func ParseSessionSetupReply(data []byte) (SessionSetupReply, error) {
	r := newBufReader(data)
	var ss SessionSetupReply

	var err error
	ss.SelectedVersion, err = r.readVarint()
	if err != nil {
		return ss, &ParseError{Field: "selected_version", Err: err}
	}

	numParams, err := r.readVarint()
	if err != nil {
		return ss, &ParseError{Field: "num_params", Err: err}
	}
	for i := uint64(0); i < numParams; i++ {
		key, err := r.readVarint()
		if err != nil {
			return ss, &ParseError{Field: "param_key", Err: err}
		}
		if key%2 == 1 {
			if _, err := r.readVarIntBytes(); err != nil {
				return ss, &ParseError{Field: "param_value", Err: err}
			}
		} else {
			val, err := r.readVarint()
			if err != nil {
				return ss, &ParseError{Field: "param_value", Err: err}
			}
			if key == ParamMaxRequestID {
				ss.MaxRequestID = val
			}
		}
	}
	return ss, nil
}

// SerializeSessionSetupReply serializes a SESSION_SERVER payload.
func SerializeSessionSetupReply(ss SessionSetupReply) []byte {
	var buf []byte
	buf = AppendVarInt(buf, ss.SelectedVersion)
	buf = AppendVarInt(buf, 1)
	buf = AppendVarInt(buf, ParamMaxRequestID)
	buf = AppendVarInt(buf, ss.MaxRequestID)
	return buf
}

func parseNamespaceTuple(r *bufReader) ([]string, error) {
	count, err := r.readVarint()
	if err != nil {
		return nil, fmt.Errorf("read tuple count: %w", err)
	}
	parts := make([]string, count)
	for i := range parts {
		b, err := r.readVarIntBytes()
		if err != nil {
			return nil, fmt.Errorf("read tuple element %d: %w", i, err)
		}
		parts[i] = string(b)
	}
	return parts, nil
}

// AppendNamespaceTuple appends a namespace/path tuple to buf.
func AppendNamespaceTuple(buf []byte, parts []string) []byte {
	buf = AppendVarInt(buf, uint64(len(parts)))
	for _, p := range parts {
		buf = appendVarIntBytes(buf, []byte(p))
	}
	return buf
}

// ParseAnnounceInterest parses an ANNOUNCE_INTEREST payload.
func ParseAnnounceInterest(data []byte) (AnnounceInterest, error) {
	r := newBufReader(data)
	prefix, err := parseNamespaceTuple(r)
	if err != nil {
		return AnnounceInterest{}, &ParseError{Field: "prefix", Err: err}
	}
	return AnnounceInterest{Prefix: prefix}, nil
}

// SerializeAnnounceInterest serializes an ANNOUNCE_INTEREST payload.
func SerializeAnnounceInterest(a AnnounceInterest) []byte {
	return AppendNamespaceTuple(nil, a.Prefix)
}

// ParseAnnounceInit parses an ANNOUNCE_INIT payload.
func ParseAnnounceInit(data []byte) (AnnounceInit, error) {
	r := newBufReader(data)
	count, err := r.readVarint()
	if err != nil {
		return AnnounceInit{}, &ParseError{Field: "num_paths", Err: err}
	}
	paths := make([][]string, count)
	for i := range paths {
		p, err := parseNamespaceTuple(r)
		if err != nil {
			return AnnounceInit{}, &ParseError{Field: "path", Err: err}
		}
		paths[i] = p
	}
	return AnnounceInit{ActivePaths: paths}, nil
}

// SerializeAnnounceInit serializes an ANNOUNCE_INIT payload.
func SerializeAnnounceInit(a AnnounceInit) []byte {
	buf := AppendVarInt(nil, uint64(len(a.ActivePaths)))
	for _, p := range a.ActivePaths {
		buf = AppendNamespaceTuple(buf, p)
	}
	return buf
}

// ParseAnnounce parses an ANNOUNCE (or UNANNOUNCE) payload; active
// distinguishes the two at the call site via the message type.
func ParseAnnounce(data []byte, active bool) (Announce, error) {
	r := newBufReader(data)
	suffix, err := parseNamespaceTuple(r)
	if err != nil {
		return Announce{}, &ParseError{Field: "suffix", Err: err}
	}
	return Announce{Suffix: suffix, Active: active}, nil
}

// SerializeAnnounce serializes an ANNOUNCE/UNANNOUNCE payload (the active
// flag is carried by the caller's choice of message type, not the bytes).
func SerializeAnnounce(a Announce) []byte {
	return AppendNamespaceTuple(nil, a.Suffix)
}

// ParseSubscribe parses a SUBSCRIBE payload.
func ParseSubscribe(data []byte) (Subscribe, error) {
	r := newBufReader(data)
	var s Subscribe

	var err error
	s.ID, err = r.readVarint()
	if err != nil {
		return s, &ParseError{Field: "id", Err: err}
	}
	s.Broadcast, err = parseNamespaceTuple(r)
	if err != nil {
		return s, &ParseError{Field: "broadcast", Err: err}
	}
	trackName, err := r.readVarIntBytes()
	if err != nil {
		return s, &ParseError{Field: "track", Err: err}
	}
	s.Track = string(trackName)

	s.Priority, err = r.readByte()
	if err != nil {
		return s, &ParseError{Field: "priority", Err: err}
	}

	hasLatency, err := r.readByte()
	if err != nil {
		return s, &ParseError{Field: "has_max_latency", Err: err}
	}
	if hasLatency != 0 {
		s.MaxLatencyMS, err = r.readVarint()
		if err != nil {
			return s, &ParseError{Field: "max_latency_ms", Err: err}
		}
		s.HasMaxLatency = true
	}

	hasOrdered, err := r.readByte()
	if err != nil {
		return s, &ParseError{Field: "has_ordered", Err: err}
	}
	if hasOrdered != 0 {
		orderedByte, err := r.readByte()
		if err != nil {
			return s, &ParseError{Field: "ordered", Err: err}
		}
		s.Ordered = orderedByte != 0
		s.HasOrdered = true
	}

	s.FilterType, err = r.readVarint()
	if err != nil {
		return s, &ParseError{Field: "filter_type", Err: err}
	}
	return s, nil
}

// SerializeSubscribe serializes a SUBSCRIBE payload.
func SerializeSubscribe(s Subscribe) []byte {
	var buf []byte
	buf = AppendVarInt(buf, s.ID)
	buf = AppendNamespaceTuple(buf, s.Broadcast)
	buf = appendVarIntBytes(buf, []byte(s.Track))
	buf = append(buf, s.Priority)
	if s.HasMaxLatency {
		buf = append(buf, 1)
		buf = AppendVarInt(buf, s.MaxLatencyMS)
	} else {
		buf = append(buf, 0)
	}
	if s.HasOrdered {
		buf = append(buf, 1)
		if s.Ordered {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	} else {
		buf = append(buf, 0)
	}
	buf = AppendVarInt(buf, s.FilterType)
	return buf
}

// ParseSubscribeOK parses a SUBSCRIBE_OK payload.
func ParseSubscribeOK(data []byte) (SubscribeOK, error) {
	r := newBufReader(data)
	var sok SubscribeOK
	var err error
	sok.ID, err = r.readVarint()
	if err != nil {
		return sok, &ParseError{Field: "id", Err: err}
	}
	sok.Priority, err = r.readByte()
	if err != nil {
		return sok, &ParseError{Field: "priority", Err: err}
	}
	hasLatency, err := r.readByte()
	if err != nil {
		return sok, &ParseError{Field: "has_max_latency", Err: err}
	}
	if hasLatency != 0 {
		sok.MaxLatencyMS, err = r.readVarint()
		if err != nil {
			return sok, &ParseError{Field: "max_latency_ms", Err: err}
		}
		sok.HasMaxLatency = true
	}
	hasOrdered, err := r.readByte()
	if err != nil {
		return sok, &ParseError{Field: "has_ordered", Err: err}
	}
	if hasOrdered != 0 {
		ob, err := r.readByte()
		if err != nil {
			return sok, &ParseError{Field: "ordered", Err: err}
		}
		sok.Ordered = ob != 0
		sok.HasOrdered = true
	}
	return sok, nil
}

// SerializeSubscribeOK serializes a SUBSCRIBE_OK payload.
func SerializeSubscribeOK(sok SubscribeOK) []byte {
	var buf []byte
	buf = AppendVarInt(buf, sok.ID)
	buf = append(buf, sok.Priority)
	if sok.HasMaxLatency {
		buf = append(buf, 1)
		buf = AppendVarInt(buf, sok.MaxLatencyMS)
	} else {
		buf = append(buf, 0)
	}
	if sok.HasOrdered {
		buf = append(buf, 1)
		if sok.Ordered {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// ParseSubscribeUpdate parses a SUBSCRIBE_UPDATE payload. It shares its
// wire shape with SUBSCRIBE_OK (priority + optional latency + optional
// ordered), since both describe the same tunable knobs on a live track.
func ParseSubscribeUpdate(data []byte) (SubscribeUpdate, error) {
	sok, err := ParseSubscribeOK(data)
	if err != nil {
		return SubscribeUpdate{}, err
	}
	return SubscribeUpdate(sok), nil
}

// SerializeSubscribeUpdate serializes a SUBSCRIBE_UPDATE payload.
func SerializeSubscribeUpdate(u SubscribeUpdate) []byte {
	return SerializeSubscribeOK(SubscribeOK(u))
}

// ParseSubscribeError parses a SUBSCRIBE_ERROR payload.
func ParseSubscribeError(data []byte) (SubscribeError, error) {
	r := newBufReader(data)
	var se SubscribeError
	var err error
	se.ID, err = r.readVarint()
	if err != nil {
		return se, &ParseError{Field: "id", Err: err}
	}
	se.ErrorCode, err = r.readVarint()
	if err != nil {
		return se, &ParseError{Field: "error_code", Err: err}
	}
	reason, err := r.readVarIntBytes()
	if err != nil {
		return se, &ParseError{Field: "reason", Err: err}
	}
	se.ReasonPhrase = string(reason)
	return se, nil
}

// SerializeSubscribeError serializes a SUBSCRIBE_ERROR payload.
func SerializeSubscribeError(se SubscribeError) []byte {
	var buf []byte
	buf = AppendVarInt(buf, se.ID)
	buf = AppendVarInt(buf, se.ErrorCode)
	buf = appendVarIntBytes(buf, []byte(se.ReasonPhrase))
	return buf
}

// ParseUnsubscribe parses an UNSUBSCRIBE payload.
func ParseUnsubscribe(data []byte) (Unsubscribe, error) {
	r := newBufReader(data)
	id, err := r.readVarint()
	if err != nil {
		return Unsubscribe{}, &ParseError{Field: "id", Err: err}
	}
	return Unsubscribe{ID: id}, nil
}

// SerializeUnsubscribe serializes an UNSUBSCRIBE payload.
func SerializeUnsubscribe(u Unsubscribe) []byte {
	return AppendVarInt(nil, u.ID)
}

// SerializeMaxRequestID serializes a MAX_REQUEST_ID payload.
func SerializeMaxRequestID(id uint64) []byte {
	return AppendVarInt(nil, id)
}

// ParseMaxRequestID parses a MAX_REQUEST_ID payload.
func ParseMaxRequestID(data []byte) (MaxRequestIDMsg, error) {
	r := newBufReader(data)
	id, err := r.readVarint()
	if err != nil {
		return MaxRequestIDMsg{}, &ParseError{Field: "id", Err: err}
	}
	return MaxRequestIDMsg{ID: id}, nil
}

// SerializeGoAway serializes a GOAWAY payload.
func SerializeGoAway(ga GoAway) []byte {
	return appendVarIntBytes(nil, []byte(ga.NewSessionURI))
}

// ParseGoAway parses a GOAWAY payload.
func ParseGoAway(data []byte) (GoAway, error) {
	r := newBufReader(data)
	uri, err := r.readVarIntBytes()
	if err != nil {
		return GoAway{}, &ParseError{Field: "new_session_uri", Err: err}
	}
	return GoAway{NewSessionURI: string(uri)}, nil
}
