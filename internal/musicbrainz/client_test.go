package musicbrainz_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scrobbled/internal/config"
	"scrobbled/internal/logging"
	"scrobbled/internal/media"
	"scrobbled/internal/musicbrainz"
)

func newTestClient(t *testing.T, handler http.Handler) (*musicbrainz.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := musicbrainz.New(config.MusicBrainz{
		BaseURL:   server.URL,
		UserAgent: "scrobbled-test/0.0.0",
		MinScore:  85,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client, server
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Fatalf("encode payload: %v", err)
	}
}

func TestResolvePrefersISRCLookup(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/ws/2/isrc/") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("User-Agent"); got != "scrobbled-test/0.0.0" {
			t.Fatalf("unexpected user agent %q", got)
		}
		writeJSON(t, w, map[string]any{
			"isrc": "USUM71703861",
			"recordings": []map[string]any{{
				"id":    "rec-1",
				"title": "Track",
				"artist-credit": []map[string]any{
					{"artist": map[string]any{"id": "artist-1"}},
					{"artist": map[string]any{"id": "artist-2"}},
				},
				"releases": []map[string]any{{
					"id":            "rel-1",
					"release-group": map[string]any{"id": "rg-1"},
				}},
			}},
		})
	}))

	got := client.Resolve(context.Background(), media.Track{
		Artist: "Artist", Title: "Track", ISRC: "USUM71703861",
	})
	if got.Source != media.SourceExact {
		t.Fatalf("expected exact provenance, got %q", got.Source)
	}
	if got.RecordingMBID != "rec-1" || got.ReleaseMBID != "rel-1" || got.ReleaseGroupMBID != "rg-1" {
		t.Fatalf("unexpected identifier set: %+v", got)
	}
	if len(got.ArtistMBIDs) != 2 || got.ArtistMBIDs[0] != "artist-1" || got.ArtistMBIDs[1] != "artist-2" {
		t.Fatalf("expected ordered artist ids, got %v", got.ArtistMBIDs)
	}
}

func TestResolveFallsBackToSearchOnUnknownISRC(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ws/2/isrc/") {
			http.NotFound(w, r)
			return
		}
		query := r.URL.Query().Get("query")
		if !strings.Contains(query, `recording:"Track"`) || !strings.Contains(query, `artist:"Artist"`) {
			t.Fatalf("unexpected search query %q", query)
		}
		writeJSON(t, w, map[string]any{
			"recordings": []map[string]any{{
				"id":    "rec-2",
				"score": 97,
			}},
		})
	}))

	got := client.Resolve(context.Background(), media.Track{
		Artist: "Artist", Title: "Track", ISRC: "XXZZZ0000000",
	})
	if got.Source != media.SourceFuzzy {
		t.Fatalf("expected fuzzy provenance, got %q", got.Source)
	}
	if got.RecordingMBID != "rec-2" {
		t.Fatalf("expected rec-2, got %q", got.RecordingMBID)
	}
}

func TestResolveRejectsLowScoreCandidate(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"recordings": []map[string]any{{
				"id":    "rec-3",
				"score": 60,
			}},
		})
	}))

	got := client.Resolve(context.Background(), media.Track{Artist: "Artist", Title: "Track"})
	if got.Source != media.SourceNone {
		t.Fatalf("expected no match below acceptance score, got %q", got.Source)
	}
	if got.Resolved() {
		t.Fatalf("expected unresolved set, got %+v", got)
	}
}

func TestRequestPathsWithDefaultShapedBaseURL(t *testing.T) {
	for _, suffix := range []string{"", "/ws/2"} {
		var requested string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requested = r.URL.Path
			writeJSON(t, w, map[string]any{"recordings": []map[string]any{}})
		}))
		t.Cleanup(server.Close)

		cfg := config.Default().MusicBrainz
		cfg.BaseURL = server.URL + suffix
		cfg.RateWindowSeconds = 0
		client, err := musicbrainz.New(cfg, logging.NewNop())
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}

		if _, err := client.LookupISRC(context.Background(), "USUM71703861"); err != nil {
			t.Fatalf("LookupISRC returned error: %v", err)
		}
		if requested != "/ws/2/isrc/USUM71703861" {
			t.Fatalf("base url %q: requested path %q", cfg.BaseURL, requested)
		}

		if _, err := client.SearchRecording(context.Background(), "Artist", "Track", ""); err != nil {
			t.Fatalf("SearchRecording returned error: %v", err)
		}
		if requested != "/ws/2/recording" {
			t.Fatalf("base url %q: requested path %q", cfg.BaseURL, requested)
		}
	}
}

func TestSearchScoreAcceptanceBoundary(t *testing.T) {
	for _, tc := range []struct {
		score    int
		accepted bool
	}{
		{score: 84, accepted: false},
		{score: 85, accepted: true},
	} {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{
				"recordings": []map[string]any{{
					"id":    "rec-boundary",
					"score": tc.score,
				}},
			})
		}))

		recording, err := client.SearchRecording(context.Background(), "Artist", "Track", "")
		if err != nil {
			t.Fatalf("score %d: SearchRecording returned error: %v", tc.score, err)
		}
		if tc.accepted && (recording == nil || recording.ID != "rec-boundary") {
			t.Fatalf("score %d: expected candidate accepted, got %+v", tc.score, recording)
		}
		if !tc.accepted && recording != nil {
			t.Fatalf("score %d: expected candidate rejected, got %+v", tc.score, recording)
		}
	}
}

func TestResolveIncludesAlbumInQuery(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		if !strings.Contains(query, `release:"Album"`) {
			t.Fatalf("expected album clause in query, got %q", query)
		}
		writeJSON(t, w, map[string]any{"recordings": []map[string]any{}})
	}))

	client.Resolve(context.Background(), media.Track{Artist: "Artist", Title: "Track", Album: "Album"})
}

func TestResolveSwallowsServerErrors(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))

	got := client.Resolve(context.Background(), media.Track{Artist: "Artist", Title: "Track"})
	if got.Source != media.SourceNone {
		t.Fatalf("expected unresolved result on remote failure, got %q", got.Source)
	}
}

func TestNewRequiresBaseURLAndUserAgent(t *testing.T) {
	if _, err := musicbrainz.New(config.MusicBrainz{UserAgent: "x"}, logging.NewNop()); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := musicbrainz.New(config.MusicBrainz{BaseURL: "http://localhost"}, logging.NewNop()); err == nil {
		t.Fatal("expected error for missing user agent")
	}
}
