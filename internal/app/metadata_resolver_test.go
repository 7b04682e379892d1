package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/naming"
)

type searchCall struct {
	search string
	year   int
}

type fakeSearcher struct {
	mu     sync.Mutex
	calls  []searchCall
	answer func(call searchCall, n int) MediaResponse
}

func (f *fakeSearcher) SearchMedia(_ context.Context, search string, seasonYear int) (MediaResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := searchCall{search: search, year: seasonYear}
	f.calls = append(f.calls, c)
	return f.answer(c, len(f.calls)), nil
}

type fakeSleeper struct {
	slept []time.Duration
}

func (s *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return nil
}

func newTestResolver(api mediaSearcher, year int) (*MetadataResolver, *fakeSleeper) {
	r := NewMetadataResolver(zerolog.Nop(), api, nil, nil, DefaultResolverOptions())
	r.now = func() time.Time { return time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC) }
	s := &fakeSleeper{}
	r.sleep = s.sleep
	return r, s
}

func TestMetadataResolver_NotFoundWalksYearsThenYearless(t *testing.T) {
	api := &fakeSearcher{answer: func(searchCall, int) MediaResponse {
		return MediaResponse{StatusCode: http.StatusNotFound}
	}}
	r, sleeper := newTestResolver(api, 2023)

	media, err := r.Resolve(context.Background(), naming.ParsedName{Title: "Show"})
	require.NoError(t, err)
	assert.True(t, media.IsZero())

	// 2023..2000 inclus, puis exactement une requête sans année.
	require.Len(t, api.calls, 25)
	for i, c := range api.calls[:24] {
		assert.Equal(t, 2023-i, c.year)
		assert.Equal(t, "Show", c.search)
	}
	assert.Equal(t, 0, api.calls[24].year)
	assert.Empty(t, sleeper.slept)
}

func TestMetadataResolver_RateLimitedSleepsRetryAfter(t *testing.T) {
	api := &fakeSearcher{answer: func(_ searchCall, n int) MediaResponse {
		if n == 1 {
			return MediaResponse{StatusCode: http.StatusTooManyRequests, RetryAfter: 3 * time.Second}
		}
		return MediaResponse{StatusCode: http.StatusOK, Media: domain.AnimeMetadata{ID: 7}}
	}}
	r, sleeper := newTestResolver(api, 2024)

	media, err := r.Resolve(context.Background(), naming.ParsedName{Title: "Show"})
	require.NoError(t, err)
	assert.Equal(t, 7, media.ID)

	require.Len(t, sleeper.slept, 1)
	assert.GreaterOrEqual(t, sleeper.slept[0], 3*time.Second)
	require.Len(t, api.calls, 2)
	assert.Equal(t, api.calls[0], api.calls[1])
}

func TestMetadataResolver_RateLimitedDefaultsToFiveSeconds(t *testing.T) {
	api := &fakeSearcher{answer: func(_ searchCall, n int) MediaResponse {
		if n == 1 {
			return MediaResponse{StatusCode: http.StatusTooManyRequests}
		}
		return MediaResponse{StatusCode: http.StatusOK, Media: domain.AnimeMetadata{ID: 7}}
	}}
	r, sleeper := newTestResolver(api, 2024)

	_, err := r.Resolve(context.Background(), naming.ParsedName{Title: "Show"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, sleeper.slept)
}

func TestMetadataResolver_ServerErrorsExhaustBudget(t *testing.T) {
	api := &fakeSearcher{answer: func(searchCall, int) MediaResponse {
		return MediaResponse{StatusCode: http.StatusServiceUnavailable}
	}}
	r, sleeper := newTestResolver(api, 2024)

	_, err := r.Resolve(context.Background(), naming.ParsedName{Title: "Show", Season: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMetadataGaveUp))

	// Budget de 5 retries : 6 requêtes, 5 pauses de 5s, aucun candidat suivant.
	assert.Len(t, api.calls, 6)
	assert.Len(t, sleeper.slept, 5)
	for _, c := range api.calls {
		assert.Equal(t, "Show S01", c.search)
	}
}

func TestMetadataResolver_RetryBudgetIsShared(t *testing.T) {
	api := &fakeSearcher{answer: func(_ searchCall, n int) MediaResponse {
		if n%2 == 0 {
			return MediaResponse{StatusCode: http.StatusTooManyRequests, RetryAfter: time.Second}
		}
		return MediaResponse{StatusCode: http.StatusBadGateway}
	}}
	r, _ := newTestResolver(api, 2024)
	r.opts.MaxRetries = 2

	_, err := r.Resolve(context.Background(), naming.ParsedName{Title: "Show"})
	require.ErrorIs(t, err, ErrMetadataGaveUp)
	assert.Len(t, api.calls, 3)
}

func TestMetadataResolver_OtherStatusYieldsEmpty(t *testing.T) {
	api := &fakeSearcher{answer: func(searchCall, int) MediaResponse {
		return MediaResponse{StatusCode: http.StatusBadRequest}
	}}
	r, sleeper := newTestResolver(api, 2024)

	media, err := r.Resolve(context.Background(), naming.ParsedName{Title: "Show"})
	require.NoError(t, err)
	assert.True(t, media.IsZero())
	assert.Len(t, api.calls, 1)
	assert.Empty(t, sleeper.slept)
}

func TestMetadataResolver_StopsAtFirstCandidateHit(t *testing.T) {
	api := &fakeSearcher{answer: func(c searchCall, _ int) MediaResponse {
		if c.search == "Show 2023" {
			return MediaResponse{StatusCode: http.StatusOK, Media: domain.AnimeMetadata{ID: 99}}
		}
		return MediaResponse{StatusCode: http.StatusOK}
	}}
	r, _ := newTestResolver(api, 2024)

	media, err := r.Resolve(context.Background(), naming.ParsedName{Title: "Show", Season: 1, Year: 2023})
	require.NoError(t, err)
	assert.Equal(t, 99, media.ID)
	require.Len(t, api.calls, 2)
	assert.Equal(t, "Show S01 2023", api.calls[0].search)
	assert.Equal(t, "Show 2023", api.calls[1].search)
}

func TestMetadataResolver_SleepHonorsCancellation(t *testing.T) {
	api := &fakeSearcher{answer: func(searchCall, int) MediaResponse {
		return MediaResponse{StatusCode: http.StatusInternalServerError}
	}}
	r := NewMetadataResolver(zerolog.Nop(), api, nil, nil, DefaultResolverOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, naming.ParsedName{Title: "Show"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, api.calls, 1)
}
