package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JoeyJohnson82/ScCrawler/api/schemas"
	"github.com/JoeyJohnson82/ScCrawler/cdpengine"
	"github.com/JoeyJohnson82/ScCrawler/crawl"
	"github.com/JoeyJohnson82/ScCrawler/htmldom"
	"github.com/JoeyJohnson82/ScCrawler/internal/config"
	"github.com/JoeyJohnson82/ScCrawler/internal/observability"
	"github.com/JoeyJohnson82/ScCrawler/internal/store"
)

// components holds the initialized services a crawl command needs. It
// centralizes construction order and teardown so each command body stays a
// straight line.
type components struct {
	Session *crawl.Session
	Store   store.Store

	// HTMLEngine is set when the pure-Go backend is active; it carries
	// backend-only surfaces like the traffic archive.
	HTMLEngine *htmldom.Engine

	cdp    *cdpengine.Engine
	dbPool *pgxpool.Pool
}

// Shutdown releases everything in reverse construction order.
func (c *components) Shutdown() {
	logger := observability.GetLogger()
	if c.cdp != nil {
		c.cdp.Close()
		logger.Debug("Browser engine shut down.")
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn("Error closing store.", zap.Error(err))
		}
	}
	if c.dbPool != nil {
		c.dbPool.Close()
		logger.Debug("Database connection pool closed.")
	}
}

// newComponents builds the session and, when withStore is set, the
// persistence backend. On failure everything already constructed is torn
// down before returning.
func newComponents(ctx context.Context, cfg *config.Config, withStore bool) (*components, error) {
	logger := observability.GetLogger()
	c := &components{}

	var initErr error
	defer func() {
		if initErr != nil {
			c.Shutdown()
		}
	}()

	if initErr = c.buildEngine(ctx, cfg, logger); initErr != nil {
		return nil, initErr
	}
	logger.Debug("Crawl engine initialized.", zap.String("backend", cfg.Engine.Backend))

	if withStore {
		if initErr = c.buildStore(ctx, cfg, logger); initErr != nil {
			return nil, initErr
		}
		logger.Debug("Store initialized.", zap.String("driver", cfg.Store.Driver))
	}

	return c, nil
}

func (c *components) buildEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	persona := schemas.PersonaByName(cfg.Engine.Persona)

	switch cfg.Engine.Backend {
	case "cdp":
		session, engine, err := cdpengine.NewSession(ctx, cdpengine.Config{
			Persona:           persona,
			Headless:          cfg.Engine.CDP.Headless,
			Args:              cfg.Engine.CDP.Args,
			Humanize:          cfg.Engine.CDP.Humanize,
			NavigationTimeout: cfg.Network.NavigationTimeout,
			Logger:            logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize CDP engine: %w", err)
		}
		c.Session = session
		c.cdp = engine

	default:
		session, engine, err := htmldom.NewSession(htmldom.Config{
			Persona:            persona,
			ExecuteScripts:     cfg.Engine.ExecuteScripts,
			FailOnScriptError:  cfg.Engine.FailOnScriptError,
			CaptureTraffic:     cfg.Engine.CaptureTraffic,
			CaptureBodies:      cfg.Engine.CaptureBodies,
			NavigationTimeout:  cfg.Network.NavigationTimeout,
			InsecureSkipVerify: cfg.Network.InsecureSkipVerify,
			EnableHTTP3:        cfg.Network.EnableHTTP3,
			ProxyURL:           cfg.Network.ProxyURL,
			Logger:             logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize htmldom engine: %w", err)
		}
		c.Session = session
		c.HTMLEngine = engine
	}
	return nil
}

func (c *components) buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to create database connection pool: %w", err)
		}
		c.dbPool = pool

		pg, err := store.NewPostgres(ctx, pool, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		c.Store = pg

	default:
		s, err := store.NewSQLite(ctx, cfg.Store.SQLitePath, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		c.Store = s
	}
	return nil
}
