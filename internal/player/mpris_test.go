package player

import (
	"context"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"scrobbled/internal/logging"
	"scrobbled/internal/media"
)

type recordedEvent struct {
	kind    string
	track   media.Track
	playing bool
}

type recordingHandler struct {
	events []recordedEvent
}

func (h *recordingHandler) HandleTrackChange(ctx context.Context, track media.Track, playing bool) {
	h.events = append(h.events, recordedEvent{kind: "track", track: track, playing: playing})
}

func (h *recordingHandler) HandlePlayback(ctx context.Context, playing bool) {
	h.events = append(h.events, recordedEvent{kind: "playback", playing: playing})
}

func newTestMonitor(handler Handler) *Monitor {
	return &Monitor{
		handler: handler,
		logger:  logging.NewNop(),
	}
}

func sampleMetadata() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"mpris:trackid":     dbus.MakeVariant(dbus.ObjectPath("/org/mpd/Tracks/7")),
		"xesam:title":       dbus.MakeVariant("Track"),
		"xesam:album":       dbus.MakeVariant("Album"),
		"xesam:artist":      dbus.MakeVariant([]string{"Artist"}),
		"mpris:length":      dbus.MakeVariant(int64(215 * 1e6)),
		"xesam:trackNumber": dbus.MakeVariant(int32(7)),
	}
}

func TestParseMetadata(t *testing.T) {
	track := parseMetadata(sampleMetadata())

	if track.ID != "/org/mpd/Tracks/7" {
		t.Fatalf("unexpected id %q", track.ID)
	}
	if track.Artist != "Artist" || track.Title != "Track" || track.Album != "Album" {
		t.Fatalf("unexpected track %+v", track)
	}
	if track.Duration != 215*time.Second {
		t.Fatalf("unexpected duration %v", track.Duration)
	}
	if track.TrackNumber != 7 {
		t.Fatalf("unexpected track number %d", track.TrackNumber)
	}
}

func TestParseMetadataJoinsMultipleArtists(t *testing.T) {
	raw := sampleMetadata()
	raw["xesam:artist"] = dbus.MakeVariant([]string{"First", "Second"})

	track := parseMetadata(raw)
	if track.Artist != "First, Second" {
		t.Fatalf("unexpected artist %q", track.Artist)
	}
}

func TestTrackChangeDispatchedOnce(t *testing.T) {
	handler := &recordingHandler{}
	monitor := newTestMonitor(handler)
	ctx := context.Background()

	changed := map[string]dbus.Variant{
		"Metadata":       dbus.MakeVariant(sampleMetadata()),
		"PlaybackStatus": dbus.MakeVariant("Playing"),
	}
	monitor.HandleProperties(ctx, playerInterface, changed)
	monitor.HandleProperties(ctx, playerInterface, changed)

	if len(handler.events) != 1 {
		t.Fatalf("expected one event, got %+v", handler.events)
	}
	if handler.events[0].kind != "track" || !handler.events[0].playing {
		t.Fatalf("unexpected event %+v", handler.events[0])
	}
	if handler.events[0].track.Title != "Track" {
		t.Fatalf("unexpected track %+v", handler.events[0].track)
	}
}

func TestPlaybackStatusChangeDispatched(t *testing.T) {
	handler := &recordingHandler{}
	monitor := newTestMonitor(handler)
	ctx := context.Background()

	monitor.HandleProperties(ctx, playerInterface, map[string]dbus.Variant{
		"Metadata":       dbus.MakeVariant(sampleMetadata()),
		"PlaybackStatus": dbus.MakeVariant("Playing"),
	})
	monitor.HandleProperties(ctx, playerInterface, map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant("Paused"),
	})
	monitor.HandleProperties(ctx, playerInterface, map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant("Paused"),
	})

	if len(handler.events) != 2 {
		t.Fatalf("expected two events, got %+v", handler.events)
	}
	last := handler.events[1]
	if last.kind != "playback" || last.playing {
		t.Fatalf("expected pause event, got %+v", last)
	}
}

func TestNewTrackWithoutStatusKeepsLastKnownState(t *testing.T) {
	handler := &recordingHandler{}
	monitor := newTestMonitor(handler)
	ctx := context.Background()

	monitor.HandleProperties(ctx, playerInterface, map[string]dbus.Variant{
		"Metadata":       dbus.MakeVariant(sampleMetadata()),
		"PlaybackStatus": dbus.MakeVariant("Playing"),
	})

	next := sampleMetadata()
	next["mpris:trackid"] = dbus.MakeVariant(dbus.ObjectPath("/org/mpd/Tracks/8"))
	next["xesam:title"] = dbus.MakeVariant("Next Track")
	monitor.HandleProperties(ctx, playerInterface, map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(next),
	})

	if len(handler.events) != 2 {
		t.Fatalf("expected two events, got %+v", handler.events)
	}
	if !handler.events[1].playing {
		t.Fatal("expected playing state carried over to new track")
	}
}

func TestIgnoresOtherInterfaces(t *testing.T) {
	handler := &recordingHandler{}
	monitor := newTestMonitor(handler)

	monitor.HandleProperties(context.Background(), "org.mpris.MediaPlayer2", map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(sampleMetadata()),
	})

	if len(handler.events) != 0 {
		t.Fatalf("expected no events, got %+v", handler.events)
	}
}
