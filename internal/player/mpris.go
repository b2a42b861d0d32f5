package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"scrobbled/internal/config"
	"scrobbled/internal/logging"
	"scrobbled/internal/media"
)

const (
	mprisObjectPath     = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	playerInterface     = "org.mpris.MediaPlayer2.Player"
	propertiesInterface = "org.freedesktop.DBus.Properties"
)

// Handler receives playback notifications from the host player.
type Handler interface {
	HandleTrackChange(ctx context.Context, track media.Track, playing bool)
	HandlePlayback(ctx context.Context, playing bool)
}

// Monitor subscribes to an MPRIS player on the session bus and relays
// track-change and play/pause notifications. Position is polled by
// direct property read, not pushed.
type Monitor struct {
	conn    *dbus.Conn
	busName string
	handler Handler
	logger  *slog.Logger
	signals chan *dbus.Signal

	mu         sync.Mutex
	lastTrack  media.Track
	haveTrack  bool
	lastStatus string
}

// Connect attaches to the session bus and subscribes to property
// changes from the configured player.
func Connect(cfg config.Player, handler Handler, logger *slog.Logger) (*Monitor, error) {
	busName := strings.TrimSpace(cfg.BusName)
	if busName == "" {
		return nil, errors.New("player bus name required")
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchObjectPath(mprisObjectPath),
		dbus.WithMatchSender(busName),
	); err != nil {
		return nil, fmt.Errorf("subscribe to player properties: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	return &Monitor{
		conn:    conn,
		busName: busName,
		handler: handler,
		logger:  logging.NewComponentLogger(logger, "player"),
		signals: signals,
	}, nil
}

// Run consumes player signals until the context is canceled. The
// player's current state is dispatched once up front so a track already
// playing at startup is tracked.
func (m *Monitor) Run(ctx context.Context) error {
	m.dispatchInitialState(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-m.signals:
			if !ok {
				return errors.New("session bus signal stream closed")
			}
			m.handleSignal(ctx, sig)
		}
	}
}

// Close detaches from the session bus.
func (m *Monitor) Close() error {
	if m.conn == nil {
		return nil
	}
	m.conn.RemoveSignal(m.signals)
	return m.conn.Close()
}

// Position reads the player's current position.
func (m *Monitor) Position(ctx context.Context) (time.Duration, error) {
	obj := m.conn.Object(m.busName, mprisObjectPath)
	variant, err := obj.GetProperty(playerInterface + ".Position")
	if err != nil {
		return 0, fmt.Errorf("read position: %w", err)
	}
	micros, ok := variant.Value().(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected position type %T", variant.Value())
	}
	return time.Duration(micros) * time.Microsecond, nil
}

func (m *Monitor) dispatchInitialState(ctx context.Context) {
	obj := m.conn.Object(m.busName, mprisObjectPath)

	status := ""
	if variant, err := obj.GetProperty(playerInterface + ".PlaybackStatus"); err == nil {
		status, _ = variant.Value().(string)
	}

	variant, err := obj.GetProperty(playerInterface + ".Metadata")
	if err != nil {
		m.logger.Debug("no initial player metadata", logging.Error(err))
		return
	}
	raw, ok := variant.Value().(map[string]dbus.Variant)
	if !ok {
		return
	}

	changed := map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(raw),
	}
	if status != "" {
		changed["PlaybackStatus"] = dbus.MakeVariant(status)
	}
	m.HandleProperties(ctx, playerInterface, changed)
}

func (m *Monitor) handleSignal(ctx context.Context, sig *dbus.Signal) {
	if sig == nil || sig.Name != propertiesInterface+".PropertiesChanged" {
		return
	}
	if len(sig.Body) < 2 {
		return
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}
	m.HandleProperties(ctx, iface, changed)
}

// HandleProperties applies one batch of changed player properties,
// de-duplicating repeats of the same track or status.
func (m *Monitor) HandleProperties(ctx context.Context, iface string, changed map[string]dbus.Variant) {
	if iface != playerInterface {
		return
	}

	status, haveStatus := playbackStatus(changed)
	playing := status == "Playing"

	if variant, ok := changed["Metadata"]; ok {
		if raw, ok := variant.Value().(map[string]dbus.Variant); ok {
			track := parseMetadata(raw)
			m.mu.Lock()
			if !haveStatus {
				playing = m.lastStatus == "Playing"
			} else {
				m.lastStatus = status
			}
			isNew := !m.haveTrack || !track.SameItem(m.lastTrack)
			m.lastTrack = track
			m.haveTrack = true
			m.mu.Unlock()

			if isNew {
				m.handler.HandleTrackChange(ctx, track, playing)
				return
			}
		}
	}

	if haveStatus {
		m.mu.Lock()
		statusChanged := status != m.lastStatus
		m.lastStatus = status
		m.mu.Unlock()
		if statusChanged {
			m.handler.HandlePlayback(ctx, playing)
		}
	}
}

func playbackStatus(changed map[string]dbus.Variant) (string, bool) {
	variant, ok := changed["PlaybackStatus"]
	if !ok {
		return "", false
	}
	status, ok := variant.Value().(string)
	return status, ok
}

// parseMetadata maps an MPRIS metadata dictionary onto a track.
func parseMetadata(raw map[string]dbus.Variant) media.Track {
	track := media.Track{}

	if variant, ok := raw["mpris:trackid"]; ok {
		switch value := variant.Value().(type) {
		case dbus.ObjectPath:
			track.ID = string(value)
		case string:
			track.ID = value
		}
	}
	if variant, ok := raw["xesam:title"]; ok {
		track.Title, _ = variant.Value().(string)
	}
	if variant, ok := raw["xesam:album"]; ok {
		track.Album, _ = variant.Value().(string)
	}
	if variant, ok := raw["xesam:artist"]; ok {
		switch value := variant.Value().(type) {
		case []string:
			track.Artist = strings.Join(value, ", ")
		case string:
			track.Artist = value
		}
	}
	if variant, ok := raw["mpris:length"]; ok {
		switch value := variant.Value().(type) {
		case int64:
			track.Duration = time.Duration(value) * time.Microsecond
		case uint64:
			track.Duration = time.Duration(value) * time.Microsecond
		case int32:
			track.Duration = time.Duration(value) * time.Microsecond
		}
	}
	if variant, ok := raw["xesam:trackNumber"]; ok {
		switch value := variant.Value().(type) {
		case int32:
			track.TrackNumber = int(value)
		case int64:
			track.TrackNumber = int(value)
		}
	}
	if variant, ok := raw["xesam:isrc"]; ok {
		track.ISRC, _ = variant.Value().(string)
	}

	return track
}
