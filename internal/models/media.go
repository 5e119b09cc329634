package models

import (
	"strings"
	"time"
)

// MediaKind is the catalog type of a [MediaEntry].
type MediaKind string

const (
	MediaAudio      MediaKind = "Audio"
	MediaAudioBook  MediaKind = "AudioBook"
	MediaBook       MediaKind = "Book"
	MediaEpisode    MediaKind = "Episode"
	MediaMovie      MediaKind = "Movie"
	MediaMusicVideo MediaKind = "MusicVideo"
	MediaVideo      MediaKind = "Video"
	// MediaSeries is a container of episodes and cannot be a playlist member.
	MediaSeries MediaKind = "Series"
)

var knownKinds = map[MediaKind]bool{
	MediaAudio:      true,
	MediaAudioBook:  true,
	MediaBook:       true,
	MediaEpisode:    true,
	MediaMovie:      true,
	MediaMusicVideo: true,
	MediaVideo:      true,
	MediaSeries:     true,
}

// Known reports whether k is a catalog type the media server understands.
func (k MediaKind) Known() bool {
	return knownKinds[k]
}

// Playlistable reports whether entries of kind k may be added to an external playlist.
func (k MediaKind) Playlistable() bool {
	return k.Known() && k != MediaSeries
}

// ParseMediaKind matches s case-insensitively against the known kinds.
func ParseMediaKind(s string) (MediaKind, bool) {
	for k := range knownKinds {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k, true
		}
	}
	return "", false
}

// ValueKind is the type of an attribute value.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueBool
	ValueDate
	ValueDuration
	ValueSet
	ValueEnum
)

func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueBool:
		return "bool"
	case ValueDate:
		return "date"
	case ValueDuration:
		return "duration"
	case ValueSet:
		return "set"
	case ValueEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Field names an attribute of a [MediaEntry].
type Field string

const (
	FieldName            Field = "Name"
	FieldAlbum           Field = "Album"
	FieldAlbumArtist     Field = "AlbumArtist"
	FieldArtists         Field = "Artists"
	FieldGenres          Field = "Genres"
	FieldTags            Field = "Tags"
	FieldStudios         Field = "Studios"
	FieldPeople          Field = "People"
	FieldProductionYear  Field = "ProductionYear"
	FieldCommunityRating Field = "CommunityRating"
	FieldCriticRating    Field = "CriticRating"
	FieldOfficialRating  Field = "OfficialRating"
	FieldPlayCount       Field = "PlayCount"
	FieldIsFavorite      Field = "IsFavorite"
	FieldIsPlayed        Field = "IsPlayed"
	FieldDateCreated     Field = "DateCreated"
	FieldLastPlayed      Field = "LastPlayed"
	FieldReleaseDate     Field = "ReleaseDate"
	FieldRuntime         Field = "Runtime"
	FieldMediaType       Field = "MediaType"
	FieldOverview        Field = "Overview"
	FieldPath            Field = "Path"
)

var fieldKinds = map[Field]ValueKind{
	FieldName:            ValueString,
	FieldAlbum:           ValueString,
	FieldAlbumArtist:     ValueString,
	FieldArtists:         ValueSet,
	FieldGenres:          ValueSet,
	FieldTags:            ValueSet,
	FieldStudios:         ValueSet,
	FieldPeople:          ValueSet,
	FieldProductionYear:  ValueNumber,
	FieldCommunityRating: ValueNumber,
	FieldCriticRating:    ValueNumber,
	FieldOfficialRating:  ValueString,
	FieldPlayCount:       ValueNumber,
	FieldIsFavorite:      ValueBool,
	FieldIsPlayed:        ValueBool,
	FieldDateCreated:     ValueDate,
	FieldLastPlayed:      ValueDate,
	FieldReleaseDate:     ValueDate,
	FieldRuntime:         ValueDuration,
	FieldMediaType:       ValueEnum,
	FieldOverview:        ValueString,
	FieldPath:            ValueString,
}

// Kind returns the value kind of the field and whether the field is known.
func (f Field) Kind() (ValueKind, bool) {
	k, ok := fieldKinds[f]
	return k, ok
}

// Fields returns every known field name.
func Fields() []Field {
	out := make([]Field, 0, len(fieldKinds))
	for f := range fieldKinds {
		out = append(out, f)
	}
	return out
}

// Value holds a single attribute value. Only the member matching Kind is meaningful.
type Value struct {
	Kind ValueKind     `json:"kind"`
	Str  string        `json:"str,omitempty"`
	Num  float64       `json:"num,omitempty"`
	Bool bool          `json:"bool,omitempty"`
	Time time.Time     `json:"time,omitempty"`
	Dur  time.Duration `json:"dur,omitempty"`
	Set  []string      `json:"set,omitempty"`
}

func StringValue(s string) Value          { return Value{Kind: ValueString, Str: s} }
func NumberValue(n float64) Value         { return Value{Kind: ValueNumber, Num: n} }
func BoolValue(b bool) Value              { return Value{Kind: ValueBool, Bool: b} }
func DateValue(t time.Time) Value         { return Value{Kind: ValueDate, Time: t} }
func DurationValue(d time.Duration) Value { return Value{Kind: ValueDuration, Dur: d} }
func SetValue(items ...string) Value      { return Value{Kind: ValueSet, Set: items} }
func EnumValue(s string) Value            { return Value{Kind: ValueEnum, Str: s} }

// Present reports whether the value carries data. Blank strings, empty sets and zero dates are unset.
func (v Value) Present() bool {
	switch v.Kind {
	case ValueString, ValueEnum:
		return strings.TrimSpace(v.Str) != ""
	case ValueSet:
		return len(v.Set) > 0
	case ValueDate:
		return !v.Time.IsZero()
	default:
		return true
	}
}

// EntrySnapshot is best-effort display metadata copied from an entry.
type EntrySnapshot struct {
	Name   string `json:"name,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// MediaEntry is one catalog item. The catalog owns it; this package never mutates a fetched entry.
type MediaEntry struct {
	ID         string          `json:"id"`
	Kind       MediaKind       `json:"kind"`
	Attributes map[Field]Value `json:"attributes"`
}

// NewMediaEntry creates an entry with its MediaType attribute set.
func NewMediaEntry(id string, kind MediaKind) MediaEntry {
	return MediaEntry{
		ID:         id,
		Kind:       kind,
		Attributes: map[Field]Value{FieldMediaType: EnumValue(string(kind))},
	}
}

// With sets an attribute and returns the entry for chaining during construction.
func (e MediaEntry) With(f Field, v Value) MediaEntry {
	if e.Attributes == nil {
		e.Attributes = map[Field]Value{}
	}
	e.Attributes[f] = v
	return e
}

// Get returns the attribute value when it is present.
func (e MediaEntry) Get(f Field) (Value, bool) {
	v, ok := e.Attributes[f]
	if !ok || !v.Present() {
		return Value{}, false
	}
	return v, true
}

// Runtime returns the entry duration and whether the catalog supplied one.
func (e MediaEntry) Runtime() (time.Duration, bool) {
	v, ok := e.Get(FieldRuntime)
	if !ok || v.Kind != ValueDuration || v.Dur <= 0 {
		return 0, false
	}
	return v.Dur, true
}

// Snapshot copies name, artist and album for display in ignore listings.
func (e MediaEntry) Snapshot() EntrySnapshot {
	var snap EntrySnapshot
	if v, ok := e.Get(FieldName); ok {
		snap.Name = v.Str
	}
	if v, ok := e.Get(FieldArtists); ok {
		snap.Artist = strings.Join(v.Set, ", ")
	} else if v, ok := e.Get(FieldAlbumArtist); ok {
		snap.Artist = v.Str
	}
	if v, ok := e.Get(FieldAlbum); ok {
		snap.Album = v.Str
	}
	return snap
}
