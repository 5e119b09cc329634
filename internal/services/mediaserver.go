package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultMediaServerURL = "http://127.0.0.1:8096"
	defaultPageSize       = 500
	ticksPerSecond        = 10_000_000
)

// errNotFound marks a 404 response internally.
var errNotFound = errors.New("resource not found")

// NameDTO is the {"Name": ...} shape used for studios and people.
type NameDTO struct {
	Name string `json:"Name"`
}

// UserDataDTO holds per-user play state of an item.
type UserDataDTO struct {
	PlayCount      int        `json:"PlayCount"`
	IsFavorite     bool       `json:"IsFavorite"`
	Played         bool       `json:"Played"`
	LastPlayedDate *time.Time `json:"LastPlayedDate"`
}

// ItemDTO is a catalog item as returned by the media server.
type ItemDTO struct {
	ID              string       `json:"Id"`
	Type            string       `json:"Type"`
	Name            string       `json:"Name"`
	Album           string       `json:"Album"`
	AlbumArtist     string       `json:"AlbumArtist"`
	Artists         []string     `json:"Artists"`
	Genres          []string     `json:"Genres"`
	Tags            []string     `json:"Tags"`
	Studios         []NameDTO    `json:"Studios"`
	People          []NameDTO    `json:"People"`
	ProductionYear  *int         `json:"ProductionYear"`
	CommunityRating *float64     `json:"CommunityRating"`
	CriticRating    *float64     `json:"CriticRating"`
	OfficialRating  string       `json:"OfficialRating"`
	RunTimeTicks    *int64       `json:"RunTimeTicks"`
	DateCreated     *time.Time   `json:"DateCreated"`
	PremiereDate    *time.Time   `json:"PremiereDate"`
	Overview        string       `json:"Overview"`
	Path            string       `json:"Path"`
	UserData        *UserDataDTO `json:"UserData"`
}

type itemsPage struct {
	Items            []ItemDTO `json:"Items"`
	TotalRecordCount int       `json:"TotalRecordCount"`
}

// PlaylistDTO is a playlist as returned by the media server.
type PlaylistDTO struct {
	ID       string   `json:"Id"`
	Name     string   `json:"Name"`
	OwnerID  string   `json:"OwnerUserId"`
	IsPublic bool     `json:"OpenAccess"`
	ItemIDs  []string `json:"ItemIds"`
}

type userDTO struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// MediaServerClient implements [Catalog], [PlaylistStore] and [OwnerResolver] over HTTP.
type MediaServerClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
	pageSize   int
}

// NewMediaServerClient creates a client from cfg. An empty API token sends unauthenticated requests.
func NewMediaServerClient(cfg shared.MediaServerConfig, logger *log.Logger) *MediaServerClient {
	baseURL := strings.TrimRight(cfg.URL, "/")
	if baseURL == "" {
		baseURL = defaultMediaServerURL
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	base := &http.Client{Timeout: cfg.Timeout()}
	httpClient := base
	if cfg.APIToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.APIToken,
			TokenType:   "Bearer",
		}))
		httpClient.Timeout = cfg.Timeout()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &MediaServerClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     shared.WithLogger(logger, "component", "media-server"),
		pageSize:   defaultPageSize,
	}
}

func (c *MediaServerClient) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", shared.ErrExternalSync, method, endpoint, err)
	}
	return resp, nil
}

func (c *MediaServerClient) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Message != "" {
			return fmt.Errorf("%w: %s %s (status %d): %s", shared.ErrExternalSync, method, endpoint, resp.StatusCode, errResp.Message)
		}
		return fmt.Errorf("%w: %s %s: status %d", shared.ErrExternalSync, method, endpoint, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrExternalSync, err)
		}
	}

	return nil
}

// Raw performs a request against path and returns the undecoded response.
func (c *MediaServerClient) Raw(ctx context.Context, method, path string, body []byte) (*APIResponse, error) {
	var payload any
	if len(body) > 0 {
		payload = json.RawMessage(body)
	}

	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// ResolveOwner calls GET /Users/{id}.
func (c *MediaServerClient) ResolveOwner(ctx context.Context, ownerID string) (*Owner, error) {
	var user userDTO
	err := c.doRequest(ctx, http.MethodGet, "/Users/"+url.PathEscape(ownerID), nil, &user)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	id, err := shared.NormalizeID(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: owner id: %v", shared.ErrExternalSync, err)
	}
	return &Owner{ID: id, Name: user.Name}, nil
}

// Entries pages through GET /Users/{id}/Items restricted to kinds.
func (c *MediaServerClient) Entries(ctx context.Context, ownerID string, kinds []models.MediaKind) ([]models.MediaEntry, error) {
	types := make([]string, len(kinds))
	for i, k := range kinds {
		types[i] = string(k)
	}

	var entries []models.MediaEntry
	skipped := 0
	for start := 0; ; {
		q := url.Values{}
		q.Set("Recursive", "true")
		q.Set("IncludeItemTypes", strings.Join(types, ","))
		q.Set("Fields", "Genres,Tags,Studios,People,DateCreated,Overview,Path")
		q.Set("EnableUserData", "true")
		q.Set("StartIndex", strconv.Itoa(start))
		q.Set("Limit", strconv.Itoa(c.pageSize))

		var page itemsPage
		endpoint := fmt.Sprintf("/Users/%s/Items?%s", url.PathEscape(ownerID), q.Encode())
		if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			if errors.Is(err, errNotFound) {
				return nil, fmt.Errorf("%w: %s", shared.ErrOwnerNotFound, ownerID)
			}
			return nil, err
		}

		for _, item := range page.Items {
			e, ok := item.toEntry()
			if !ok {
				skipped++
				continue
			}
			entries = append(entries, e)
		}

		start += len(page.Items)
		if len(page.Items) == 0 || start >= page.TotalRecordCount {
			break
		}
	}

	if skipped > 0 {
		c.logger.Warn("skipped catalog items with unusable ids or types", "owner", ownerID, "count", skipped)
	}
	return entries, nil
}

// Resolve calls GET /Playlists/{id}. A 404 yields nil.
func (c *MediaServerClient) Resolve(ctx context.Context, id string) (*Playlist, error) {
	var dto PlaylistDTO
	err := c.doRequest(ctx, http.MethodGet, "/Playlists/"+url.PathEscape(id), nil, &dto)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	pl := &Playlist{ID: id, Name: dto.Name, Public: dto.IsPublic}
	if owner, err := shared.NormalizeID(dto.OwnerID); err == nil {
		pl.OwnerID = owner
	}
	for _, raw := range dto.ItemIDs {
		if itemID, err := shared.NormalizeID(raw); err == nil {
			pl.EntryIDs = append(pl.EntryIDs, itemID)
		}
	}
	return pl, nil
}

// Create calls POST /Playlists.
func (c *MediaServerClient) Create(ctx context.Context, spec PlaylistSpec) (string, error) {
	body := map[string]any{
		"Name":      spec.Name,
		"UserId":    spec.OwnerID,
		"IsPublic":  spec.Public,
		"MediaType": string(spec.MediaType),
		"Ids":       []string{},
	}

	var created struct {
		ID string `json:"Id"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/Playlists", body, &created); err != nil {
		if errors.Is(err, errNotFound) {
			return "", fmt.Errorf("%w: playlists endpoint missing", shared.ErrExternalSync)
		}
		return "", err
	}

	id, err := shared.NormalizeID(created.ID)
	if err != nil {
		return "", fmt.Errorf("%w: created playlist id: %v", shared.ErrExternalSync, err)
	}
	return id, nil
}

// ReplaceMembership calls PUT /Playlists/{id}/Items with the full ordered membership.
func (c *MediaServerClient) ReplaceMembership(ctx context.Context, id string, entryIDs []string) error {
	if entryIDs == nil {
		entryIDs = []string{}
	}
	err := c.doRequest(ctx, http.MethodPut, "/Playlists/"+url.PathEscape(id)+"/Items", map[string]any{"Ids": entryIDs}, nil)
	if errors.Is(err, errNotFound) {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	return err
}

// Update calls POST /Playlists/{id}.
func (c *MediaServerClient) Update(ctx context.Context, id string, spec PlaylistSpec) error {
	body := map[string]any{"Name": spec.Name, "IsPublic": spec.Public}
	err := c.doRequest(ctx, http.MethodPost, "/Playlists/"+url.PathEscape(id), body, nil)
	if errors.Is(err, errNotFound) {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	return err
}

// Delete calls DELETE /Items/{id}. Deleting a missing playlist succeeds.
func (c *MediaServerClient) Delete(ctx context.Context, id string) error {
	err := c.doRequest(ctx, http.MethodDelete, "/Items/"+url.PathEscape(id), nil, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

// toEntry maps the DTO to a [models.MediaEntry]. Items with invalid ids or unknown types are rejected.
func (d ItemDTO) toEntry() (models.MediaEntry, bool) {
	id, err := shared.NormalizeID(d.ID)
	if err != nil {
		return models.MediaEntry{}, false
	}
	kind, ok := models.ParseMediaKind(d.Type)
	if !ok {
		return models.MediaEntry{}, false
	}

	e := models.NewMediaEntry(id, kind)
	setString := func(f models.Field, s string) {
		if strings.TrimSpace(s) != "" {
			e = e.With(f, models.StringValue(s))
		}
	}
	setSet := func(f models.Field, items []string) {
		if len(items) > 0 {
			e = e.With(f, models.SetValue(items...))
		}
	}
	setDate := func(f models.Field, t *time.Time) {
		if t != nil && !t.IsZero() {
			e = e.With(f, models.DateValue(*t))
		}
	}

	setString(models.FieldName, d.Name)
	setString(models.FieldAlbum, d.Album)
	setString(models.FieldAlbumArtist, d.AlbumArtist)
	setString(models.FieldOfficialRating, d.OfficialRating)
	setString(models.FieldOverview, d.Overview)
	setString(models.FieldPath, d.Path)
	setSet(models.FieldArtists, d.Artists)
	setSet(models.FieldGenres, d.Genres)
	setSet(models.FieldTags, d.Tags)
	setSet(models.FieldStudios, names(d.Studios))
	setSet(models.FieldPeople, names(d.People))
	setDate(models.FieldDateCreated, d.DateCreated)
	setDate(models.FieldReleaseDate, d.PremiereDate)

	if d.ProductionYear != nil {
		e = e.With(models.FieldProductionYear, models.NumberValue(float64(*d.ProductionYear)))
	}
	if d.CommunityRating != nil {
		e = e.With(models.FieldCommunityRating, models.NumberValue(*d.CommunityRating))
	}
	if d.CriticRating != nil {
		e = e.With(models.FieldCriticRating, models.NumberValue(*d.CriticRating))
	}
	if d.RunTimeTicks != nil && *d.RunTimeTicks > 0 {
		e = e.With(models.FieldRuntime, models.DurationValue(TicksToDuration(*d.RunTimeTicks)))
	}
	if d.UserData != nil {
		e = e.With(models.FieldPlayCount, models.NumberValue(float64(d.UserData.PlayCount)))
		e = e.With(models.FieldIsFavorite, models.BoolValue(d.UserData.IsFavorite))
		e = e.With(models.FieldIsPlayed, models.BoolValue(d.UserData.Played))
		setDate(models.FieldLastPlayed, d.UserData.LastPlayedDate)
	}
	return e, true
}

func names(dtos []NameDTO) []string {
	out := make([]string, 0, len(dtos))
	for _, d := range dtos {
		if d.Name != "" {
			out = append(out, d.Name)
		}
	}
	return out
}

// TicksToDuration converts 100ns media server ticks to a [time.Duration].
func TicksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * (time.Second / ticksPerSecond)
}
