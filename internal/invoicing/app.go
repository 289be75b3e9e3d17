package invoicing

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"mailinvoice/internal/bookings"
	"mailinvoice/internal/cache"
	"mailinvoice/internal/catalog"
	"mailinvoice/internal/config"
	"mailinvoice/internal/pipeline"
	"mailinvoice/internal/render"
	"mailinvoice/internal/storage"
)

// App holds the long-lived components built from one Config.
type App struct {
	Config   config.Config
	Log      zerolog.Logger
	DB       *storage.DB
	Cache    cache.Store
	Catalog  *catalog.Catalog
	Bookings bookings.Store
	Parser   *pipeline.Parser
	Resolver *bookings.Resolver
	Sync     *catalog.SyncService
	Service  *Service
}

// Open wires the database, cache, booking source and invoice service. The
// catalog is synced from the booking source when one is configured; a failed
// sync leaves the built-in catalog in place.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	store, err := cache.New(cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	source, err := bookings.NewStore(cfg, db)
	if err != nil {
		_ = cache.Close(store)
		_ = db.Close()
		return nil, err
	}

	cat := catalog.New()
	parser := pipeline.NewParser(cat, cfg)
	bridge := bookings.NewBridge(store, cfg)
	resolver := bookings.NewResolver(source, cat, parser, bridge, cfg, log)

	app := &App{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Cache:    store,
		Catalog:  cat,
		Bookings: source,
		Parser:   parser,
		Resolver: resolver,
	}
	if source != nil {
		app.Sync = catalog.NewSyncService(db, source, cat)
		if n, err := app.Sync.Sync(ctx); err != nil {
			log.Warn().Err(err).Msg("catalog sync failed; using built-in services")
		} else {
			log.Debug().Int("services", n).Msg("catalog synced")
		}
	}

	app.Service = NewService(cfg, log, Deps{
		Cache:    store,
		Parser:   parser,
		Resolver: resolver,
		Bridge:   bridge,
		Renderer: render.NewPDFRenderer(),
		Files:    NewFileStore(cfg.PDFDir()),
		Ledger:   db,
	})
	return app, nil
}

func (a *App) Processor() *ProcessingService {
	return NewProcessingService(a.DB, a.Service, a.Log)
}

func (a *App) Close() error {
	return errors.Join(cache.Close(a.Cache), a.DB.Close())
}
