// Package services defines the [Catalog], [PlaylistStore] and [OwnerResolver] collaborators and
// implements all three with [MediaServerClient].
//
// # Media Server Client
//
// [MediaServerClient] talks to the media server REST API. Requests carry the configured API token
// as a bearer token through an [oauth2.StaticTokenSource] and are paced by a [rate.Limiter].
//
// Catalog items are fetched a page at a time and mapped from [ItemDTO] to [models.MediaEntry]:
//   - RunTimeTicks (100ns units) becomes the Runtime duration
//   - Genres, Tags, Artists, Studios and People become string sets
//   - UserData supplies PlayCount, IsFavorite, IsPlayed and LastPlayed
//
// Identifiers are normalized to lowercase hyphenated UUIDs; the server may emit them without hyphens.
//
// # Error Handling
//
// Failed calls wrap [shared.ErrExternalSync]. A 404 from a lookup is not an error: Resolve and
// ResolveOwner return nil so callers can detect deleted playlists and unknown owners.
package services
