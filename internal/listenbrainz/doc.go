// Package listenbrainz submits listen events to the ListenBrainz API.
package listenbrainz
