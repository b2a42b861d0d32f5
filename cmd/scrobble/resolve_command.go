package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scrobbled/internal/logging"
	"scrobbled/internal/media"
	"scrobbled/internal/metadata"
	"scrobbled/internal/musicbrainz"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var (
		artist string
		title  string
		album  string
		isrc   string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve MusicBrainz identifiers for a track",
		Long: `Resolve MusicBrainz identifiers for a track, exactly as the daemon
would during playback. Results are written through to the metadata
cache when caching is enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			track := media.Track{
				Artist: strings.TrimSpace(artist),
				Title:  strings.TrimSpace(title),
				Album:  strings.TrimSpace(album),
				ISRC:   strings.TrimSpace(isrc),
			}
			if !track.Valid() {
				return fmt.Errorf("both --artist and --title are required")
			}

			logger := logging.NewNop()
			resolver, err := musicbrainz.New(cfg.MusicBrainz, logger)
			if err != nil {
				return fmt.Errorf("build resolver: %w", err)
			}

			cache, err := openCache(cfg)
			if err != nil {
				// Resolution still works without the cache, results
				// just are not persisted.
				cache = nil
			}
			var identifiers media.IdentifierSet
			if cache != nil {
				service := metadata.NewService(cache, resolver, true, logger)
				identifiers = service.Identify(cmd.Context(), track)
			} else {
				identifiers = resolver.Resolve(cmd.Context(), track)
			}

			rows := [][]string{
				{"Fingerprint", string(track.Fingerprint())},
				{"Source", string(identifiers.Source)},
			}
			if identifiers.RecordingMBID != "" {
				rows = append(rows, []string{"Recording MBID", identifiers.RecordingMBID})
			}
			if len(identifiers.ArtistMBIDs) > 0 {
				rows = append(rows, []string{"Artist MBIDs", strings.Join(identifiers.ArtistMBIDs, ", ")})
			}
			if identifiers.ReleaseMBID != "" {
				rows = append(rows, []string{"Release MBID", identifiers.ReleaseMBID})
			}
			if identifiers.ReleaseGroupMBID != "" {
				rows = append(rows, []string{"Release Group MBID", identifiers.ReleaseGroupMBID})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))
			if !identifiers.Resolved() {
				fmt.Fprintln(cmd.OutOrStdout(), "No identifiers found; the listen would be submitted without MBIDs")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&artist, "artist", "", "Artist name")
	cmd.Flags().StringVar(&title, "title", "", "Track title")
	cmd.Flags().StringVar(&album, "album", "", "Album title")
	cmd.Flags().StringVar(&isrc, "isrc", "", "ISRC for exact lookup")

	return cmd
}
