package hang

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-hang/hang/catalog"
	"github.com/go-hang/hang/moq"
	"github.com/go-hang/hang/mux"
	"github.com/go-hang/hang/track"
)

// BackendKind selects which playback surface a Broadcast renders
// through: §9's canvas and media-element surfaces, plus a WebCodecs-style
// encoded-chunk path.
type BackendKind int

const (
	// BackendCanvas renders through externally decoded frames (the
	// video/audio packages' LatestFrame/AudioBuffer observables),
	// leaving Broadcast's OnVideoFrame/OnAudioFrame hooks as the only
	// wiring this module does.
	BackendCanvas BackendKind = iota
	// BackendMediaElement renders through an MSE-style Sink: encoded
	// fragments flow from Broadcast's frame hooks straight into a
	// mux.Muxer per media type, with no decode in this module at all.
	BackendMediaElement
	// BackendWebCodecs renders through caller-supplied WebCodecs-style
	// decode callbacks: every delivered frame is framing-normalized (see
	// SetWebCodecsSinks) before being handed to onVideoChunk/onAudioChunk,
	// instead of being passed through as the rendition's raw container
	// framing.
	BackendWebCodecs
)

func (k BackendKind) String() string {
	switch k {
	case BackendCanvas:
		return "canvas"
	case BackendMediaElement:
		return "media-element"
	case BackendWebCodecs:
		return "webcodecs"
	default:
		return "unknown"
	}
}

// EncodedChunk is one encoded access unit handed to a caller-supplied
// WebCodecs-style decode callback by the BackendWebCodecs path.
type EncodedChunk struct {
	Keyframe  bool
	Timestamp int64
	Data      []byte
}

// Backend is the sink-agnostic playback surface of §9: it switches a
// Broadcast's frame delivery between the canvas/WebCodecs path and the
// MSE path on demand, and proxies the observables that differ between
// them (buffered ranges, current timestamp, pause) behind one API.
//
// Grounded on mux.Muxer's own Sink abstraction for the media-element
// path; the kind-switch-tears-down-the-old-path shape follows
// video.Switcher's make-before-break discipline, generalized from
// "switch renditions" to "switch rendering backend".
type Backend struct {
	log       *slog.Logger
	broadcast *Broadcast

	mu         sync.Mutex
	kind       BackendKind
	videoSink  mux.Sink
	audioSink  mux.Sink
	videoMuxer *mux.Muxer
	audioMuxer *mux.Muxer
	videoRun   context.CancelFunc
	audioRun   context.CancelFunc

	videoChunk      func(EncodedChunk)
	audioChunk      func(EncodedChunk)
	videoAnnexB     bool
	videoLengthSize int
	audioStripADTS  bool
}

// NewBackend constructs a Backend over b, initially in BackendCanvas
// mode (Broadcast's frame hooks are left unset until SetSinkType(
// BackendMediaElement, ...) or the caller registers its own
// OnVideoFrame/OnAudioFrame hooks directly).
func NewBackend(b *Broadcast, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{log: log.With("component", "backend"), broadcast: b, kind: BackendCanvas}
}

// Kind returns the currently active backend kind.
func (be *Backend) Kind() BackendKind {
	be.mu.Lock()
	defer be.mu.Unlock()
	return be.kind
}

// SetSinkType switches to BackendCanvas, tearing down any media-element
// muxers this Backend owns and leaving further frame delivery to
// whatever hooks the caller registers on the Broadcast directly.
func (be *Backend) SetSinkType(kind BackendKind) error {
	if kind != BackendCanvas {
		return fmt.Errorf("%w: SetSinkType(%v) requires video/audio Sinks, use SetMediaElementSinks", ErrProtocol, kind)
	}
	be.mu.Lock()
	defer be.mu.Unlock()
	be.teardownLocked()
	be.kind = BackendCanvas
	be.broadcast.OnVideoFrame(nil)
	be.broadcast.OnAudioFrame(nil)
	return nil
}

// SetWebCodecsSinks switches to BackendWebCodecs: every delivered video/
// audio frame is framing-normalized for a WebCodecs-style decoder and
// handed to onVideoChunk/onAudioChunk, instead of being passed through as
// the rendition's raw container framing. Every muxer and chunk callback
// this Backend held before the call is torn down first, for both media
// types; a nil callback then leaves that media type's Broadcast hook as
// it was.
//
// Normalization is resolved once, against whichever rendition is active
// in the broadcast's current catalog at call time: a legacy-container
// H.264 rendition's AVC1-length-prefixed samples are converted to
// Annex-B start-code delimiting via moq.AVC1ToAnnexB (the NALU length
// size comes from the rendition's hex-encoded AVCDecoderConfigurationRecord
// description, defaulting to 4 if absent or unparseable), and a
// legacy-container AAC rendition's ADTS-framed samples have their header
// stripped via moq.StripADTS. A CMAF-container rendition is already
// length-prefixed the way WebCodecs' "avc" avc.format expects, so it
// passes through unchanged.
func (be *Backend) SetWebCodecsSinks(onVideoChunk, onAudioChunk func(EncodedChunk)) error {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.teardownLocked()
	be.kind = BackendWebCodecs

	cat := be.broadcast.Catalog()

	if onVideoChunk != nil {
		be.videoChunk = onVideoChunk
		be.videoAnnexB, be.videoLengthSize = videoNeedsAnnexB(cat, be.broadcast.ActiveRendition())
		be.broadcast.OnVideoFrame(be.convertVideoChunk)
	}
	if onAudioChunk != nil {
		be.audioChunk = onAudioChunk
		be.audioStripADTS = audioNeedsADTSStrip(cat)
		be.broadcast.OnAudioFrame(be.convertAudioChunk)
	}
	return nil
}

func (be *Backend) convertVideoChunk(f track.Frame) {
	be.mu.Lock()
	cb := be.videoChunk
	annexB := be.videoAnnexB
	lengthSize := be.videoLengthSize
	be.mu.Unlock()
	if cb == nil {
		return
	}
	data := f.Data
	if annexB {
		nalus, err := moq.AVC1ToAnnexB(f.Data, lengthSize)
		if err != nil {
			be.log.Warn("annex-b conversion failed", "error", err)
			return
		}
		var buf []byte
		for _, n := range nalus {
			buf = append(buf, n...)
		}
		data = buf
	}
	cb(EncodedChunk{Keyframe: f.Keyframe, Timestamp: f.Timestamp, Data: data})
}

func (be *Backend) convertAudioChunk(f track.Frame) {
	be.mu.Lock()
	cb := be.audioChunk
	strip := be.audioStripADTS
	be.mu.Unlock()
	if cb == nil {
		return
	}
	data := f.Data
	if strip {
		data = moq.StripADTS(f.Data)
	}
	cb(EncodedChunk{Keyframe: f.Keyframe, Timestamp: f.Timestamp, Data: data})
}

// videoNeedsAnnexB reports whether activeRendition is a legacy-container
// H.264 rendition and, if so, the NALU length size its samples are
// prefixed with.
func videoNeedsAnnexB(cat *catalog.Catalog, activeRendition string) (bool, int) {
	if cat == nil || cat.Video == nil {
		return false, 4
	}
	cfg, ok := cat.Video.Renditions[activeRendition]
	if !ok || cfg.Container.Kind != catalog.ContainerLegacy {
		return false, 4
	}
	if !strings.HasPrefix(cfg.Codec, "avc1") && !strings.HasPrefix(cfg.Codec, "avc3") {
		return false, 4
	}
	lengthSize := 4
	if raw, err := hex.DecodeString(cfg.Description); err == nil {
		if dec, err := moq.ParseAVCDecoderConfig(raw); err == nil {
			lengthSize = dec.NALULengthSize
		}
	}
	return true, lengthSize
}

// audioNeedsADTSStrip reports whether the catalog's first (by sort order)
// audio rendition — the one ensureAudio subscribes to — is a
// legacy-container AAC rendition whose samples carry an ADTS header.
func audioNeedsADTSStrip(cat *catalog.Catalog) bool {
	if cat == nil || cat.Audio == nil {
		return false
	}
	names := sortedAudioNames(cat.Audio.Renditions)
	if len(names) == 0 {
		return false
	}
	cfg := cat.Audio.Renditions[names[0]]
	return cfg.Container.Kind == catalog.ContainerLegacy && strings.HasPrefix(cfg.Codec, "mp4a")
}

// SetMediaElementSinks switches to BackendMediaElement: every delivered
// video/audio frame is appended to videoSink/audioSink through a
// mux.Muxer per track instead of being handed to a decoder. Every muxer
// and chunk callback this Backend held before the call is torn down
// first, for both media types; a nil sink then leaves that media type's
// Broadcast hook as it was.
//
// A catalog rendition whose container is "legacy" carries no ISO-BMFF
// init segment for a Sink to append. This method does not check the
// rendition's container kind: frames of a legacy rendition are handed
// to the Muxer like any other. Selecting a legacy rendition while in
// BackendMediaElement mode is a caller error; the video/audio packages'
// own SupportProbe is the place to exclude it during selection.
func (be *Backend) SetMediaElementSinks(ctx context.Context, videoSink mux.Sink, videoMimeCodec string, audioSink mux.Sink, audioMimeCodec string) error {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.teardownLocked()
	be.kind = BackendMediaElement

	targetLatencyMicros := int64(0)

	if videoSink != nil {
		m, err := mux.New(videoSink, videoMimeCodec, targetLatencyMicros, be.log)
		if err != nil {
			return fmt.Errorf("%w: video sink: %w", ErrCodecUnsupported, err)
		}
		be.videoSink = videoSink
		be.videoMuxer = m
		runCtx, cancel := context.WithCancel(ctx)
		be.videoRun = cancel
		go m.Run(runCtx)
		be.broadcast.OnVideoFrame(be.appendVideoFragment)
	}

	if audioSink != nil {
		m, err := mux.New(audioSink, audioMimeCodec, targetLatencyMicros, be.log)
		if err != nil {
			return fmt.Errorf("%w: audio sink: %w", ErrCodecUnsupported, err)
		}
		be.audioSink = audioSink
		be.audioMuxer = m
		runCtx, cancel := context.WithCancel(ctx)
		be.audioRun = cancel
		go m.Run(runCtx)
		be.broadcast.OnAudioFrame(be.appendAudioFragment)
	}
	return nil
}

// appendVideoFragment treats a keyframe-leading group's first frame as
// the rendition's init segment (appended at most once per Muxer) and
// every frame thereafter as a fragment to enqueue.
func (be *Backend) appendVideoFragment(f track.Frame) {
	appendFragment(context.Background(), be.videoMuxer, f)
}

func (be *Backend) appendAudioFragment(f track.Frame) {
	appendFragment(context.Background(), be.audioMuxer, f)
}

func appendFragment(ctx context.Context, m *mux.Muxer, f track.Frame) {
	if m == nil {
		return
	}
	if f.Keyframe {
		if err := m.AppendInit(ctx, f.Data); err != nil {
			m.EnqueueFragment(f.Data)
		}
		return
	}
	m.EnqueueFragment(f.Data)
}

func (be *Backend) teardownLocked() {
	if be.videoMuxer != nil {
		be.videoMuxer.Close()
		be.videoRun()
		be.videoMuxer, be.videoSink = nil, nil
	}
	if be.audioMuxer != nil {
		be.audioMuxer.Close()
		be.audioRun()
		be.audioMuxer, be.audioSink = nil, nil
	}
	be.videoChunk, be.audioChunk = nil, nil
}

// BufferedRanges returns the video sink's buffered ranges, or nil if no
// media-element video sink is wired.
func (be *Backend) BufferedRanges() []mux.Range {
	be.mu.Lock()
	defer be.mu.Unlock()
	if be.videoSink == nil {
		return nil
	}
	return be.videoSink.Buffered()
}

// SetPaused pauses or resumes every media-element sink this Backend
// owns. In BackendCanvas mode it only updates the Broadcast's own
// paused observable.
func (be *Backend) SetPaused(paused bool) error {
	be.broadcast.SetPaused(paused)
	be.mu.Lock()
	defer be.mu.Unlock()
	var err error
	if be.videoMuxer != nil {
		if setErr := be.videoMuxer.SetPaused(paused); setErr != nil {
			err = setErr
		}
	}
	if be.audioMuxer != nil {
		if setErr := be.audioMuxer.SetPaused(paused); setErr != nil {
			err = setErr
		}
	}
	return err
}

// Close tears down whichever media-element muxers this Backend owns.
func (be *Backend) Close() {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.teardownLocked()
}
