package track

// Frame is a single timestamped payload within a Group. The timestamp is
// always normalized to microseconds regardless of the wire container it
// came from (legacy VarInt-prefixed or CMAF moof/tfdt-derived).
type Frame struct {
	Timestamp int64
	Data      []byte
	Keyframe  bool
}
