package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
)

const defaultAniListEndpoint = "https://graphql.anilist.co"

// AniList tolère ~90 requêtes/minute.
const defaultAniListRate = rate.Limit(90.0 / 60.0)

const mediaSearchQuery = `query ($id: Int, $search: String, $seasonYear: Int) {
  Media(id: $id, type: ANIME, format_not_in: [MOVIE, MUSIC, MANGA, NOVEL, ONE_SHOT], search: $search, seasonYear: $seasonYear) {
    id
    idMal
    title { romaji english native }
    format
    status(version: 2)
    description(asHtml: false)
    startDate { year month day }
    endDate { year month day }
    season
    seasonYear
    episodes
    duration
    coverImage { large }
    genres
    synonyms
    averageScore
    source
    siteUrl
  }
}`

type AniListService struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

func NewAniListService() *AniListService {
	return &AniListService{
		endpoint: defaultAniListEndpoint,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(defaultAniListRate, 3),
	}
}

func (s *AniListService) WithEndpoint(endpoint string) *AniListService {
	if strings.TrimSpace(endpoint) != "" {
		s.endpoint = strings.TrimSpace(endpoint)
	}
	return s
}

// WithRateLimit remplace le pacing des requêtes (rate.Inf pour les tests).
func (s *AniListService) WithRateLimit(limit rate.Limit, burst int) *AniListService {
	if burst <= 0 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(limit, burst)
	return s
}

type aniListGraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type aniListGraphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type aniListGraphQLResponse[T any] struct {
	Data   T                     `json:"data"`
	Errors []aniListGraphQLError `json:"errors,omitempty"`
}

type mediaData struct {
	Media *domain.AnimeMetadata `json:"Media"`
}

// MediaResponse expose le statut HTTP brut : la politique de retry
// appartient au resolver.
type MediaResponse struct {
	StatusCode int
	// RetryAfter vaut 0 si l'en-tête est absent ou illisible.
	RetryAfter time.Duration
	Media      domain.AnimeMetadata
}

// SearchMedia interroge AniList. seasonYear <= 0 retire la contrainte d'année.
func (s *AniListService) SearchMedia(ctx context.Context, search string, seasonYear int) (MediaResponse, error) {
	vars := map[string]any{"search": search}
	if seasonYear > 0 {
		vars["seasonYear"] = seasonYear
	}
	req := aniListGraphQLRequest{Query: mediaSearchQuery, Variables: vars}

	var out aniListGraphQLResponse[mediaData]
	status, header, err := s.do(ctx, req, &out)
	if err != nil {
		return MediaResponse{}, err
	}
	resp := MediaResponse{StatusCode: status, RetryAfter: parseRetryAfter(header.Get("Retry-After"))}
	if status == http.StatusOK && out.Data.Media != nil {
		resp.Media = *out.Data.Media
	}
	return resp, nil
}

func (s *AniListService) do(ctx context.Context, req aniListGraphQLRequest, out any) (int, http.Header, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	b, err := json.Marshal(req)
	if err != nil {
		return 0, nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "aae-server")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("anilist request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Le corps (erreurs GraphQL) n'apporte rien de plus que le statut.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, resp.Header, fmt.Errorf("decode anilist response: %w", err)
	}
	return resp.StatusCode, resp.Header, nil
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
