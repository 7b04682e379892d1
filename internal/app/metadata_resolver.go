package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/naming"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/ports"
)

type mediaSearcher interface {
	SearchMedia(ctx context.Context, search string, seasonYear int) (MediaResponse, error)
}

type ResolverOptions struct {
	// Budget partagé par les retries 429 et 5xx d'une même requête.
	MaxRetries int
	// Attente sur 429 quand Retry-After est absent.
	DefaultRetryAfter time.Duration
	ServerErrorDelay  time.Duration
	// L'année décrémentée sur 404 ne descend pas sous MinYear.
	MinYear int
}

func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		MaxRetries:        5,
		DefaultRetryAfter: 5 * time.Second,
		ServerErrorDelay:  5 * time.Second,
		MinYear:           2000,
	}
}

// MetadataResolver transforme un nom de fichier en métadonnées AniList.
// Aucun cache : chaque fichier paie sa résolution.
type MetadataResolver struct {
	logger   zerolog.Logger
	api      mediaSearcher
	reporter ports.Reporter
	metrics  *Metrics
	opts     ResolverOptions

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewMetadataResolver(logger zerolog.Logger, api mediaSearcher, reporter ports.Reporter, metrics *Metrics, opts ResolverOptions) *MetadataResolver {
	def := DefaultResolverOptions()
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.DefaultRetryAfter <= 0 {
		opts.DefaultRetryAfter = def.DefaultRetryAfter
	}
	if opts.ServerErrorDelay <= 0 {
		opts.ServerErrorDelay = def.ServerErrorDelay
	}
	if opts.MinYear <= 0 {
		opts.MinYear = def.MinYear
	}
	return &MetadataResolver{
		logger:   logger,
		api:      api,
		reporter: reporter,
		metrics:  metrics,
		opts:     opts,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Resolve essaie chaque candidat dans l'ordre et s'arrête au premier
// résultat non vide. Un résultat vide sans erreur veut dire "inconnu".
func (r *MetadataResolver) Resolve(ctx context.Context, p naming.ParsedName) (domain.AnimeMetadata, error) {
	for _, search := range naming.SearchCandidates(p) {
		media, err := r.query(ctx, search)
		if err != nil {
			return domain.AnimeMetadata{}, err
		}
		if !media.IsZero() {
			r.logger.Debug().Str("search", search).Int("anilist_id", media.ID).Msg("metadata resolved")
			return media, nil
		}
	}
	return domain.AnimeMetadata{}, nil
}

func (r *MetadataResolver) query(ctx context.Context, search string) (domain.AnimeMetadata, error) {
	year := r.now().Year()
	withYear := true
	retries := 0

	for {
		seasonYear := 0
		if withYear {
			seasonYear = year
		}
		resp, err := r.api.SearchMedia(ctx, search, seasonYear)
		if err != nil {
			return domain.AnimeMetadata{}, fmt.Errorf("query %q: %w", search, err)
		}

		switch code := resp.StatusCode; {
		case code == http.StatusOK:
			return resp.Media, nil

		case code == http.StatusNotFound:
			r.metrics.metadataRetry("not_found")
			if withYear && year > r.opts.MinYear {
				year--
				report(ctx, r.reporter, ports.SeverityWarning, fmt.Sprintf("AniList query %q: retrying with %d", search, year), false)
				continue
			}
			if withYear {
				withYear = false
				continue
			}
			return domain.AnimeMetadata{}, nil

		case code == http.StatusTooManyRequests:
			if retries >= r.opts.MaxRetries {
				return domain.AnimeMetadata{}, fmt.Errorf("query %q after %d retries: %w", search, retries, ErrMetadataGaveUp)
			}
			retries++
			r.metrics.metadataRetry("rate_limited")
			wait := resp.RetryAfter
			if wait <= 0 {
				wait = r.opts.DefaultRetryAfter
			}
			report(ctx, r.reporter, ports.SeverityWarning, fmt.Sprintf("AniList rate limited, sleeping %s", wait), true)
			if err := r.sleep(ctx, wait); err != nil {
				return domain.AnimeMetadata{}, err
			}

		case code >= http.StatusInternalServerError:
			if retries >= r.opts.MaxRetries {
				return domain.AnimeMetadata{}, fmt.Errorf("query %q after %d retries: %w", search, retries, ErrMetadataGaveUp)
			}
			retries++
			r.metrics.metadataRetry("server_error")
			report(ctx, r.reporter, ports.SeverityWarning, fmt.Sprintf("AniList server error %d, retrying", code), true)
			if err := r.sleep(ctx, r.opts.ServerErrorDelay); err != nil {
				return domain.AnimeMetadata{}, err
			}

		default:
			report(ctx, r.reporter, ports.SeverityError, fmt.Sprintf("AniList API error: %d", code), false)
			return domain.AnimeMetadata{}, nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
