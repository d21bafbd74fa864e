// Package wiring constructs the concrete dependency graph every
// cmd/setgraph subcommand runs against: the Postgres pool, the silver
// storage adapters, the enrichment/resolution/scheduling cores, and
// the observability recorder. It exists so no subcommand package
// repeats the same construction code, mirroring how cmd/nup/main.go
// builds one shared client.Config and hands pointers to it to every
// registered subcommand.
package wiring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/corvyn/setgraph/internal/bronze"
	"github.com/corvyn/setgraph/internal/config"
	"github.com/corvyn/setgraph/internal/db"
	"github.com/corvyn/setgraph/internal/enrich"
	"github.com/corvyn/setgraph/internal/model"
	"github.com/corvyn/setgraph/internal/observe"
	"github.com/corvyn/setgraph/internal/providers"
	"github.com/corvyn/setgraph/internal/queue"
	"github.com/corvyn/setgraph/internal/resolve"
	"github.com/corvyn/setgraph/internal/robots"
	"github.com/corvyn/setgraph/internal/scheduler"
	"github.com/corvyn/setgraph/internal/silver"
	"github.com/corvyn/setgraph/internal/source"
	"github.com/corvyn/setgraph/internal/transform"
)

// App bundles every wired component a subcommand might need. Fields
// are exported so subcommand packages can reach into them directly,
// the same way cmd/nup subcommands reach into client.Config's fields.
type App struct {
	Pool *pgxpool.Pool

	Bronze     *bronze.Store
	Silver     *silver.Store
	QueueStore *silver.QueueStore
	RunStore   *silver.RunStore

	Transformer *transform.Transformer
	Resolver    *resolve.Resolver
	Enricher    *enrich.Enricher
	Scheduler   *scheduler.Scheduler
	Recorder    *observe.Recorder
	Robots      *robots.Governor
	Registry    *source.Registry
	Redis       *redis.Client // nil if cfg.Redis is unset
}

// Build opens a pool against cfg.Postgres and wires every downstream
// component over it. Callers are responsible for calling
// app.Close() when done.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := db.NewPool(ctx, cfg.Postgres, db.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("wiring: opening pool: %w", err)
	}

	silverStore := silver.New(pool)
	runStore := silver.NewRunStore(pool)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	governor := robots.New(httpClient, "setgraph/1.0 (+https://github.com/corvyn/setgraph)", 0)

	app := &App{
		Pool:       pool,
		Bronze:     bronze.New(pool, nil), // no Cloud Storage archiver: overflow payloads stay inline until a bucket is configured
		Silver:     silverStore,
		QueueStore: silver.NewQueueStore(pool),
		RunStore:   runStore,
		Transformer: transform.New(transform.Stores{
			Artists:        silverStore,
			Tracks:         silverStore,
			Playlists:      silverStore,
			PlaylistTracks: silverStore,
			Transitions:    silverStore,
			TrackArtists:   silverStore,
		}),
		Recorder: observe.NewRecorder(runStore, "setgraph"),
		Robots:   governor,
		Registry: source.NewRegistry(), // site adapters register themselves here as they're added
	}

	var labelMap resolve.LabelMapStore = silverStore
	if cfg.Redis != nil {
		app.Redis = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
		})
		labelMap = resolve.NewRedisLabelMapCache(app.Redis, silverStore, 15*time.Minute)
	}

	app.Resolver = resolve.New(resolve.Sources{
		TitleIndex:   silverStore,
		LabelMap:     labelMap,
		ArtistTitles: silverStore,
		Feedback:     silverStore,
	})

	app.Enricher = enrich.New(buildProviders(cfg), app.Resolver, enrich.Config{})

	// No adapter currently reports a crawl-delay-bearing host per
	// source, so the scheduler's robots floor defers entirely to each
	// source's own MinInterval until adapters are registered.
	noCrawlDelay := func(model.Source) time.Duration { return 0 }
	app.Scheduler = scheduler.New(scheduler.NewMemStore(), schedulerConfigs(cfg), noCrawlDelay)

	return app, nil
}

// buildProviders constructs every enrich.Providers client from
// cfg.APITokens. Spotify's bearer token is the pre-obtained access
// token; the OAuth client-credentials exchange itself is out of scope
// (per providers.NewSpotifyClient's own doc comment), so
// SpotifyClientSecret doubles as that token here.
func buildProviders(cfg *config.Config) enrich.Providers {
	return enrich.Providers{
		Spotify:        providers.NewSpotifyClient(cfg.APITokens.SpotifyClientSecret),
		Tidal:          providers.NewTidalClient(cfg.APITokens.TidalToken),
		MusicBrainz:    providers.NewMusicBrainzClient(),
		Discogs:        providers.NewDiscogsClient(cfg.APITokens.DiscogsToken),
		LastFM:         providers.NewLastFMClient(cfg.APITokens.LastFMAPIKey),
		AcousticBrainz: providers.NewAcousticBrainzClient(),
		GetSongBPM:     providers.NewGetSongBPMClient(cfg.APITokens.GetSongBPMAPIKey),
	}
}

// schedulerConfigs adapts config.SourceConfig (JSON-friendly Duration
// strings) into scheduler.SourceConfig (plain time.Duration).
func schedulerConfigs(cfg *config.Config) map[model.Source]scheduler.SourceConfig {
	out := make(map[model.Source]scheduler.SourceConfig, len(cfg.Sources))
	for src, sc := range cfg.Sources {
		out[src] = scheduler.SourceConfig{
			MinInterval:        time.Duration(sc.MinInterval),
			MaxInterval:        time.Duration(sc.MaxInterval),
			Priority:           sc.Priority,
			Enabled:            sc.Enabled,
			RespectRobots:      sc.RespectRobots,
			AdaptiveScheduling: sc.AdaptiveScheduling,
			MaxConcurrentPages: sc.MaxConcurrentPages,
			RetryOnFailure:     sc.RetryOnFailure,
		}
	}
	return out
}

// Close releases the pool and, if configured, the Redis client.
// Subcommands should defer this right after a successful Build.
func (app *App) Close() {
	app.Pool.Close()
	if app.Redis != nil {
		app.Redis.Close()
	}
}

// QueueDispatcher builds a queue.Dispatcher over the wired QueueStore
// and handler.
func (app *App) QueueDispatcher(handler queue.Handler, qcfg queue.Config) *queue.Dispatcher {
	return queue.New(app.QueueStore, handler, qcfg)
}

// TaskHandler builds the default queue.Handler dispatching on
// queue.Task.Kind: KindEnrich runs the waterfall and persists the
// result, KindResolve is left for C10's feedback-driven re-resolution
// once a task's raw title is threaded through (not yet produced by any
// enqueuer, so it returns an error that marks the task dead-lettered
// rather than retrying forever against a kind nothing ever sends).
func (app *App) TaskHandler() queue.Handler {
	return func(ctx context.Context, t queue.Task) error {
		switch t.Kind {
		case queue.KindEnrich:
			return app.runEnrichTask(ctx, t)
		default:
			return fmt.Errorf("wiring: no handler for task kind %q", t.Kind)
		}
	}
}

func (app *App) runEnrichTask(ctx context.Context, t queue.Task) error {
	track, ok, err := app.Silver.FindTrackByID(ctx, t.TrackID)
	if err != nil {
		return fmt.Errorf("loading track %s: %w", t.TrackID, err)
	}
	if !ok {
		return fmt.Errorf("no such track %s", t.TrackID)
	}
	enriched, status := app.Enricher.Enrich(ctx, track)
	if _, err := app.Silver.UpsertTrack(ctx, enriched); err != nil {
		return fmt.Errorf("saving enriched track %s: %w", t.TrackID, err)
	}
	if err := app.Silver.SaveEnrichmentStatus(ctx, status); err != nil {
		return fmt.Errorf("saving enrichment status for %s: %w", t.TrackID, err)
	}
	return nil
}
