package moq

import (
	"bytes"
	"errors"
	"testing"
)

func TestNegotiateVersionPrefersOfferedOrder(t *testing.T) {
	t.Parallel()
	v, err := NegotiateVersion([]uint64{0xdeadbeef, VersionIETFMin, VersionMoqLiteMax})
	if err != nil {
		t.Fatalf("NegotiateVersion: unexpected error: %v", err)
	}
	if v != VersionIETFMin {
		t.Errorf("negotiated = %#x, want %#x (first mutually supported offer)", v, VersionIETFMin)
	}
}

func TestNegotiateVersionNoOverlap(t *testing.T) {
	t.Parallel()
	if _, err := NegotiateVersion([]uint64{0x1, 0x2}); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("error = %v, want ErrVersionMismatch", err)
	}
}

func TestControlMsgRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := WriteControlMsg(&buf, MsgSubscribe, []byte("payload")); err != nil {
		t.Fatalf("WriteControlMsg: unexpected error: %v", err)
	}
	msgType, payload, err := ReadControlMsg(&buf)
	if err != nil {
		t.Fatalf("ReadControlMsg: unexpected error: %v", err)
	}
	if msgType != MsgSubscribe {
		t.Errorf("msgType = %#x, want %#x", msgType, MsgSubscribe)
	}
	if string(payload) != "payload" {
		t.Errorf("payload = %q, want %q", payload, "payload")
	}
}

func TestSessionSetupRoundTrip(t *testing.T) {
	t.Parallel()
	s := SessionSetup{
		Versions: []uint64{VersionIETFMax, VersionIETFMin},
		Path:     "/live/stream",
		HasPath:  true,
	}
	got, err := ParseSessionSetup(SerializeSessionSetup(s))
	if err != nil {
		t.Fatalf("ParseSessionSetup: unexpected error: %v", err)
	}
	if len(got.Versions) != 2 || got.Versions[0] != VersionIETFMax || got.Versions[1] != VersionIETFMin {
		t.Errorf("Versions = %v, want %v", got.Versions, s.Versions)
	}
	if got.Path != s.Path || !got.HasPath {
		t.Errorf("Path = %q (HasPath=%v), want %q", got.Path, got.HasPath, s.Path)
	}
}

func TestSessionSetupReplyRoundTrip(t *testing.T) {
	t.Parallel()
	ss := SessionSetupReply{SelectedVersion: VersionIETFMax, MaxRequestID: 100}
	got, err := ParseSessionSetupReply(SerializeSessionSetupReply(ss))
	if err != nil {
		t.Fatalf("ParseSessionSetupReply: unexpected error: %v", err)
	}
	if got.SelectedVersion != ss.SelectedVersion || got.MaxRequestID != ss.MaxRequestID {
		t.Errorf("got %+v, want %+v", got, ss)
	}
}

func TestAnnounceInterestRoundTrip(t *testing.T) {
	t.Parallel()
	a := AnnounceInterest{Prefix: []string{"live", "stream1"}}
	got, err := ParseAnnounceInterest(SerializeAnnounceInterest(a))
	if err != nil {
		t.Fatalf("ParseAnnounceInterest: unexpected error: %v", err)
	}
	if len(got.Prefix) != 2 || got.Prefix[0] != "live" || got.Prefix[1] != "stream1" {
		t.Errorf("Prefix = %v, want %v", got.Prefix, a.Prefix)
	}
}

func TestAnnounceInitRoundTrip(t *testing.T) {
	t.Parallel()
	a := AnnounceInit{ActivePaths: [][]string{{"live", "a"}, {"live", "b"}}}
	got, err := ParseAnnounceInit(SerializeAnnounceInit(a))
	if err != nil {
		t.Fatalf("ParseAnnounceInit: unexpected error: %v", err)
	}
	if len(got.ActivePaths) != 2 {
		t.Fatalf("ActivePaths = %v, want 2 entries", got.ActivePaths)
	}
}

func TestAnnounceRoundTrip(t *testing.T) {
	t.Parallel()
	a := Announce{Suffix: []string{"camera1"}, Active: true}
	got, err := ParseAnnounce(SerializeAnnounce(a), true)
	if err != nil {
		t.Fatalf("ParseAnnounce: unexpected error: %v", err)
	}
	if len(got.Suffix) != 1 || got.Suffix[0] != "camera1" || !got.Active {
		t.Errorf("got %+v, want %+v", got, a)
	}
}

func TestSubscribeRoundTrip(t *testing.T) {
	t.Parallel()
	s := Subscribe{
		ID:            7,
		Broadcast:     []string{"live", "camera1"},
		Track:         "video",
		Priority:      3,
		MaxLatencyMS:  500,
		HasMaxLatency: true,
		Ordered:       true,
		HasOrdered:    true,
		FilterType:    FilterLatestObject,
	}
	got, err := ParseSubscribe(SerializeSubscribe(s))
	if err != nil {
		t.Fatalf("ParseSubscribe: unexpected error: %v", err)
	}
	if got.ID != s.ID || got.Track != s.Track || got.Priority != s.Priority ||
		got.MaxLatencyMS != s.MaxLatencyMS || got.HasMaxLatency != s.HasMaxLatency ||
		got.Ordered != s.Ordered || got.HasOrdered != s.HasOrdered || got.FilterType != s.FilterType ||
		len(got.Broadcast) != len(s.Broadcast) {
		t.Errorf("got %+v, want %+v", got, s)
	}
	for i := range s.Broadcast {
		if got.Broadcast[i] != s.Broadcast[i] {
			t.Errorf("Broadcast[%d] = %q, want %q", i, got.Broadcast[i], s.Broadcast[i])
		}
	}
}

func TestSubscribeRoundTripNoOptionalFields(t *testing.T) {
	t.Parallel()
	s := Subscribe{ID: 1, Broadcast: []string{"a"}, Track: "t", Priority: 0, FilterType: FilterNextGroupStart}
	got, err := ParseSubscribe(SerializeSubscribe(s))
	if err != nil {
		t.Fatalf("ParseSubscribe: unexpected error: %v", err)
	}
	if got.HasMaxLatency || got.HasOrdered {
		t.Errorf("expected no optional fields set, got %+v", got)
	}
}

func TestSubscribeOKRoundTrip(t *testing.T) {
	t.Parallel()
	sok := SubscribeOK{ID: 7, Priority: 2, MaxLatencyMS: 200, HasMaxLatency: true, Ordered: false, HasOrdered: true}
	got, err := ParseSubscribeOK(SerializeSubscribeOK(sok))
	if err != nil {
		t.Fatalf("ParseSubscribeOK: unexpected error: %v", err)
	}
	if got != sok {
		t.Errorf("got %+v, want %+v", got, sok)
	}
}

func TestSubscribeUpdateSharesSubscribeOKShape(t *testing.T) {
	t.Parallel()
	u := SubscribeUpdate{ID: 7, Priority: 9, MaxLatencyMS: 10, HasMaxLatency: true}
	got, err := ParseSubscribeUpdate(SerializeSubscribeUpdate(u))
	if err != nil {
		t.Fatalf("ParseSubscribeUpdate: unexpected error: %v", err)
	}
	if got != u {
		t.Errorf("got %+v, want %+v", got, u)
	}
}

func TestSubscribeErrorRoundTrip(t *testing.T) {
	t.Parallel()
	se := SubscribeError{ID: 3, ErrorCode: 404, ReasonPhrase: "not found"}
	got, err := ParseSubscribeError(SerializeSubscribeError(se))
	if err != nil {
		t.Fatalf("ParseSubscribeError: unexpected error: %v", err)
	}
	if got != se {
		t.Errorf("got %+v, want %+v", got, se)
	}
}

func TestUnsubscribeRoundTrip(t *testing.T) {
	t.Parallel()
	u := Unsubscribe{ID: 42}
	got, err := ParseUnsubscribe(SerializeUnsubscribe(u))
	if err != nil {
		t.Fatalf("ParseUnsubscribe: unexpected error: %v", err)
	}
	if got != u {
		t.Errorf("got %+v, want %+v", got, u)
	}
}

func TestGoAwayRoundTrip(t *testing.T) {
	t.Parallel()
	ga := GoAway{NewSessionURI: "https://example.com/moq"}
	got, err := ParseGoAway(SerializeGoAway(ga))
	if err != nil {
		t.Fatalf("ParseGoAway: unexpected error: %v", err)
	}
	if got != ga {
		t.Errorf("got %+v, want %+v", got, ga)
	}
}
