package hang

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-hang/hang/audio"
	"github.com/go-hang/hang/catalog"
	"github.com/go-hang/hang/jitter"
	"github.com/go-hang/hang/pacer"
	"github.com/go-hang/hang/path"
	"github.com/go-hang/hang/session"
	"github.com/go-hang/hang/track"
	"github.com/go-hang/hang/video"
	"golang.org/x/sync/singleflight"
)

// catalogTrackName is the well-known track a broadcast publishes its
// catalog document on. Neither spec.md nor original_source/ names this
// track explicitly; "catalog.json" follows the wider MoQ/hang ecosystem
// convention documented in DESIGN.md.
const catalogTrackName = "catalog.json"

// BroadcastState is the coarse playback lifecycle observable of spec.md
// §6: offline (Run not started, the catalog subscription failed, or the
// catalog track ended), loading (Run started, no catalog applied yet), or
// live (a catalog has been applied; whether media frames are flowing yet
// is not tracked).
type BroadcastState int

const (
	BroadcastOffline BroadcastState = iota
	BroadcastLoading
	BroadcastLive
)

func (s BroadcastState) String() string {
	switch s {
	case BroadcastOffline:
		return "offline"
	case BroadcastLoading:
		return "loading"
	case BroadcastLive:
		return "live"
	default:
		return "unknown"
	}
}

// VideoStatsSnapshot mirrors video.Stats for the §6 video_stats observable.
type VideoStatsSnapshot struct {
	FrameCount    int64
	BytesReceived int64
	LastTimestamp int64
}

// AudioStatsSnapshot is the §6 audio_stats observable: samples and bytes
// received across the lifetime of the active audio rendition.
type AudioStatsSnapshot struct {
	SamplesReceived int64
	BytesReceived   int64
}

// Broadcast is the client-side playback orchestrator of §4.9–§4.11: it
// subscribes to a broadcast's catalog, selects and switches video/audio
// renditions, and exposes every Observable output of spec.md §6. It does
// not decode media itself — per video/doc.go's explicit scoping, encoded
// frames are handed to caller-supplied hooks (OnVideoFrame/OnAudioFrame)
// and decoded presentation state flows back in through LatestVideoFrame
// and AudioBuffer.
//
// Grounded on distribution/relay.go's catalog-watch-then-fan-out-to-
// renditions shape, adapted from the teacher's server-side relay to a
// client subscriber, and on video.Switcher/jitter.Consumer/pacer.Pacer
// for the per-rendition pipelines themselves.
type Broadcast struct {
	log  *slog.Logger
	conn *Connection
	cfg  atomic.Pointer[Config]

	probe video.SupportProbe

	mu             sync.Mutex
	broadcastState BroadcastState
	cat            *catalog.Catalog

	switcher       *video.Switcher
	videoConsumers map[string]*jitter.Consumer
	activePacer    *pacer.Pacer
	videoStats     video.Stats
	latestFrame    video.LatestFrame

	audioTrack    *track.Track
	audioConsumer *jitter.Consumer
	audioBuffer   *audio.Buffer
	audioSamples  atomic.Int64
	audioBytes    atomic.Int64

	paused atomic.Bool
	muted  atomic.Bool
	volume atomic.Uint64 // math.Float64bits

	onVideoFrame func(track.Frame)
	onAudioFrame func(track.Frame)

	catalogFetch singleflight.Group

	closeOnce sync.Once
}

// NewBroadcast constructs a Broadcast over an already-constructed
// Connection. probe answers "can this platform decode this codec" for
// §4.9 rendition selection; cfg supplies the initial latency/rendition
// target/paused/muted/volume options of §6.
func NewBroadcast(conn *Connection, cfg Config, probe video.SupportProbe, log *slog.Logger) *Broadcast {
	if log == nil {
		log = slog.Default()
	}
	b := &Broadcast{
		log:            log.With("component", "broadcast"),
		conn:           conn,
		probe:          probe,
		videoConsumers: make(map[string]*jitter.Consumer),
	}
	b.switcher = video.NewSwitcher(func(name string) {
		b.log.Info("rendition switch committed", "rendition", name)
	})
	b.cfg.Store(&cfg)
	b.paused.Store(cfg.Paused)
	b.muted.Store(cfg.Muted)
	b.volume.Store(math.Float64bits(cfg.Volume))
	return b
}

// Run subscribes to the broadcast's catalog track and drives rendition
// selection until ctx is done or the catalog track closes. It does not
// itself dial the connection; call Connection.Run concurrently (or have
// already called it) so subscriptions can succeed.
func (b *Broadcast) Run(ctx context.Context, broadcastPath path.Path) error {
	b.setBroadcastState(BroadcastLoading)
	catTrack, err := b.conn.Subscribe(ctx, broadcastPath, catalogTrackName, 0, 0)
	if err != nil {
		b.setBroadcastState(BroadcastOffline)
		return fmt.Errorf("%w: subscribe catalog: %w", ErrNotFound, err)
	}

	for {
		g, err := catTrack.NextGroup(ctx)
		if err != nil {
			b.setBroadcastState(BroadcastOffline)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		}
		f, err := g.ReadFrame(ctx)
		if err != nil {
			continue
		}
		cat, err := catalog.ParseCatalog(f.Data)
		if err != nil {
			b.log.Warn("catalog parse failed", "error", err)
			continue
		}
		b.applyCatalog(ctx, broadcastPath, cat)
	}
}

// RefreshCatalog performs a one-shot catalog fetch outside Run's
// continuous watch loop, for a caller-triggered reload (e.g. a UI retry
// after a parse failure). Concurrent calls for the same broadcastPath
// collapse into a single underlying SUBSCRIBE/read/parse cycle via
// catalogFetch, so a burst of retries never opens more than one
// redundant subscription. The fetched catalog is applied exactly as
// Run's loop would apply one it received itself.
func (b *Broadcast) RefreshCatalog(ctx context.Context, broadcastPath path.Path) (*catalog.Catalog, error) {
	v, err, _ := b.catalogFetch.Do(broadcastPath.String(), func() (interface{}, error) {
		return b.fetchCatalogOnce(ctx, broadcastPath)
	})
	if err != nil {
		return nil, err
	}
	cat := v.(*catalog.Catalog)
	b.applyCatalog(ctx, broadcastPath, cat)
	return cat, nil
}

func (b *Broadcast) fetchCatalogOnce(ctx context.Context, broadcastPath path.Path) (*catalog.Catalog, error) {
	t, err := b.conn.Subscribe(ctx, broadcastPath, catalogTrackName, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe catalog: %w", ErrNotFound, err)
	}
	defer t.Close(nil)

	g, err := t.NextGroup(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog group: %w", ErrTransport, err)
	}
	f, err := g.ReadFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog frame: %w", ErrTransport, err)
	}
	cat, err := catalog.ParseCatalog(f.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse catalog: %w", ErrProtocol, err)
	}
	return cat, nil
}

func (b *Broadcast) applyCatalog(ctx context.Context, broadcastPath path.Path, cat *catalog.Catalog) {
	b.mu.Lock()
	b.cat = cat
	b.mu.Unlock()

	if cat.Video != nil {
		if err := b.reselectVideo(ctx, broadcastPath, cat.Video); err != nil {
			b.log.Warn("video rendition selection failed", "error", err)
		}
	}
	if cat.Audio != nil {
		if err := b.ensureAudio(ctx, broadcastPath, cat.Audio); err != nil {
			b.log.Warn("audio subscription failed", "error", err)
		}
	}
	b.setBroadcastState(BroadcastLive)
}

// reselectVideo runs §4.9's selection algorithm against the catalog's
// current video section and, if the winning rendition differs from the
// active one, opens it as a pending switch (make-before-break).
func (b *Broadcast) reselectVideo(ctx context.Context, broadcastPath path.Path, section *catalog.VideoSection) error {
	cfg := *b.cfg.Load()
	target := video.Target{Name: cfg.RenditionTargetName, Pixels: cfg.RenditionTargetPixels}
	name, err := video.Select(section.Renditions, b.probe, target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCodecUnsupported, err)
	}

	activeName, _ := b.switcher.Active()
	if activeName == name {
		return nil
	}
	if pendingName, _, pending := b.switcher.Pending(); pending && pendingName == name {
		return nil
	}

	t, err := b.conn.Subscribe(ctx, broadcastPath, name, section.Priority, cfg.TargetLatencyMS)
	if err != nil {
		return fmt.Errorf("%w: subscribe rendition %q: %w", ErrTransport, name, err)
	}

	targetLatencyMicros := int64(cfg.TargetLatencyMS) * 1000
	consumer := jitter.NewConsumer(targetLatencyMicros)
	b.mu.Lock()
	b.videoConsumers[name] = consumer
	if b.activePacer == nil {
		b.activePacer = pacer.New(targetLatencyMicros)
	}
	p := b.activePacer
	b.mu.Unlock()

	if activeName == "" {
		b.switcher.SetInitial(name, t)
	} else {
		b.switcher.BeginSwitch(name, t)
	}

	go b.feedGroups(t, consumer)
	go b.drainVideo(ctx, name, consumer, p)
	return nil
}

func (b *Broadcast) feedGroups(t *track.Track, consumer *jitter.Consumer) {
	ctx := context.Background()
	for {
		g, err := t.NextGroup(ctx)
		if err != nil {
			return
		}
		if err := consumer.InsertGroup(g); err != nil {
			b.log.Debug("group rejected by consumer", "error", err)
		}
	}
}

// drainVideo decodes frames from consumer in order, paces their
// presentation, records delivery stats, observes the switcher's
// make-before-break commit condition, and hands each frame to the
// registered OnVideoFrame hook for external decode.
func (b *Broadcast) drainVideo(ctx context.Context, name string, consumer *jitter.Consumer, p *pacer.Pacer) {
	for {
		f, err := consumer.Decode(ctx)
		if err != nil {
			return
		}
		p.Received(f.Timestamp)

		waitStart := time.Now()
		_ = p.Wait(ctx, f.Timestamp)
		slept := time.Since(waitStart)

		b.videoStats.RecordFrame(f.Timestamp, len(f.Data))
		if pendingName, _, pending := b.switcher.Pending(); pending && pendingName == name {
			b.switcher.ObservePendingWait(slept)
		}
		if cb := b.onVideoFrame; cb != nil {
			cb(f)
		}
	}
}

// ensureAudio subscribes to the catalog's first audio rendition (by sorted
// name) if not already subscribed. Unlike video, this module does not switch
// audio renditions mid-stream (spec.md §4.9 describes rendition switching
// for video only).
func (b *Broadcast) ensureAudio(ctx context.Context, broadcastPath path.Path, section *catalog.AudioSection) error {
	b.mu.Lock()
	already := b.audioTrack != nil
	b.mu.Unlock()
	if already {
		return nil
	}

	names := sortedAudioNames(section.Renditions)
	if len(names) == 0 {
		return nil
	}
	name := names[0]
	cfgv := *b.cfg.Load()
	t, err := b.conn.Subscribe(ctx, broadcastPath, name, section.Priority, cfgv.TargetLatencyMS)
	if err != nil {
		return fmt.Errorf("%w: subscribe audio rendition %q: %w", ErrTransport, name, err)
	}

	rendCfg := section.Renditions[name]
	sampleRate := 48000
	channels := 2
	if rendCfg.SampleRate != nil {
		sampleRate = int(*rendCfg.SampleRate)
	}
	if rendCfg.NumberOfChannels != nil {
		channels = int(*rendCfg.NumberOfChannels)
	}
	latencySeconds := float64(cfgv.TargetLatencyMS) / 1000
	if latencySeconds <= 0 {
		latencySeconds = float64(DefaultTargetLatencyMS) / 1000
	}

	consumer := jitter.NewConsumer(int64(cfgv.TargetLatencyMS) * 1000)
	b.mu.Lock()
	b.audioTrack = t
	b.audioConsumer = consumer
	b.audioBuffer = audio.NewBuffer(sampleRate, channels, latencySeconds)
	b.mu.Unlock()

	go b.feedGroups(t, consumer)
	go b.drainAudio(ctx, consumer)
	return nil
}

func (b *Broadcast) drainAudio(ctx context.Context, consumer *jitter.Consumer) {
	for {
		f, err := consumer.Decode(ctx)
		if err != nil {
			return
		}
		b.audioBytes.Add(int64(len(f.Data)))
		if cb := b.onAudioFrame; cb != nil {
			cb(f)
		}
	}
}

func sortedAudioNames(m map[string]catalog.AudioConfig) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (b *Broadcast) setBroadcastState(s BroadcastState) {
	b.mu.Lock()
	b.broadcastState = s
	b.mu.Unlock()
}

// OnVideoFrame registers the callback invoked with every paced, in-order
// video frame. The callback is responsible for decoding and, once a
// presentable image exists, calling LatestVideoFrame().Set.
func (b *Broadcast) OnVideoFrame(f func(track.Frame)) { b.onVideoFrame = f }

// OnAudioFrame registers the callback invoked with every in-order audio
// frame. The callback is responsible for decoding PCM samples and
// writing them into AudioBuffer().
func (b *Broadcast) OnAudioFrame(f func(track.Frame)) { b.onAudioFrame = f }

// LatestVideoFrame returns the presentation observable decoded frames are
// fed into by the caller's OnVideoFrame hook.
func (b *Broadcast) LatestVideoFrame() *video.LatestFrame { return &b.latestFrame }

// AudioBuffer returns the ring buffer decoded PCM samples are fed into by
// the caller's OnAudioFrame hook.
func (b *Broadcast) AudioBuffer() *audio.Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.audioBuffer
}

// State returns the underlying connection's lifecycle state.
func (b *Broadcast) State() session.State { return b.conn.State() }

// BroadcastState returns the current offline/loading/live observable.
func (b *Broadcast) BroadcastState() BroadcastState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.broadcastState
}

// Catalog returns the most recently applied catalog, or nil if none has
// been received yet.
func (b *Broadcast) Catalog() *catalog.Catalog {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cat
}

// ActiveRendition returns the name of the currently active video
// rendition, or "" if none has been selected yet.
func (b *Broadcast) ActiveRendition() string {
	name, _ := b.switcher.Active()
	return name
}

// CurrentTimestampMicros returns the presentation timestamp of the most
// recently delivered video frame.
func (b *Broadcast) CurrentTimestampMicros() int64 { return b.videoStats.LastTimestamp() }

// VideoStats returns a snapshot of cumulative video delivery counters.
func (b *Broadcast) VideoStats() VideoStatsSnapshot {
	return VideoStatsSnapshot{
		FrameCount:    b.videoStats.FrameCount(),
		BytesReceived: b.videoStats.BytesReceived(),
		LastTimestamp: b.videoStats.LastTimestamp(),
	}
}

// AudioStats returns a snapshot of cumulative audio delivery counters.
func (b *Broadcast) AudioStats() AudioStatsSnapshot {
	return AudioStatsSnapshot{
		SamplesReceived: b.audioSamples.Load(),
		BytesReceived:   b.audioBytes.Load(),
	}
}

// RecordAudioSamples lets the caller's OnAudioFrame hook report how many
// decoded PCM samples it wrote into AudioBuffer, for the audio_stats
// observable's samples_received counter — this module never decodes
// audio itself, so it cannot count samples without being told.
func (b *Broadcast) RecordAudioSamples(n int) {
	b.audioSamples.Add(int64(n))
}

// IsPaused reports the current pause state.
func (b *Broadcast) IsPaused() bool { return b.paused.Load() }

// SetPaused updates the pause state.
func (b *Broadcast) SetPaused(paused bool) { b.paused.Store(paused) }

// IsMuted reports the current mute state.
func (b *Broadcast) IsMuted() bool { return b.muted.Load() }

// SetMuted updates the mute state.
func (b *Broadcast) SetMuted(muted bool) { b.muted.Store(muted) }

// Volume returns the current volume, 0.0-1.0.
func (b *Broadcast) Volume() float64 { return math.Float64frombits(b.volume.Load()) }

// SetVolume updates the volume, 0.0-1.0.
func (b *Broadcast) SetVolume(v float64) { b.volume.Store(math.Float64bits(v)) }

// IsBuffering reports whether the audio ring buffer is currently stalled
// awaiting data, a reasonable proxy for §6's is_buffering observable. It
// returns false while no audio rendition is subscribed, and it does not
// consult a media-element Sink (backend.go exposes that path's
// Sink.Buffered ranges through Backend.BufferedRanges only).
func (b *Broadcast) IsBuffering() bool {
	buf := b.AudioBuffer()
	if buf == nil {
		return false
	}
	return buf.Stalled()
}

// SetTargetLatency updates the target latency used by every active
// jitter consumer and the shared video pacer.
func (b *Broadcast) SetTargetLatency(ms uint64) {
	cfg := *b.cfg.Load()
	cfg.TargetLatencyMS = ms
	b.cfg.Store(&cfg)

	micros := int64(ms) * 1000
	b.mu.Lock()
	for _, c := range b.videoConsumers {
		c.SetTargetLatency(micros)
	}
	if b.activePacer != nil {
		b.activePacer.SetTargetLatency(micros)
	}
	if b.audioConsumer != nil {
		b.audioConsumer.SetTargetLatency(micros)
	}
	b.mu.Unlock()
}

// Close tears down every rendition subscription this broadcast opened.
func (b *Broadcast) Close() {
	b.closeOnce.Do(func() {
		if _, t := b.switcher.Active(); t != nil {
			t.Close(session.ErrReset)
		}
		if _, t, ok := b.switcher.Pending(); ok {
			t.Close(session.ErrReset)
		}
		b.mu.Lock()
		audioTrack := b.audioTrack
		b.mu.Unlock()
		if audioTrack != nil {
			audioTrack.Close(session.ErrReset)
		}
	})
}
