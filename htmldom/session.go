package htmldom

import (
	"github.com/JoeyJohnson82/ScCrawler/crawl"
)

// NewSession builds an engine from cfg and wraps it in a crawl session. The
// engine is returned alongside so callers can reach backend-only surfaces
// like the traffic archive.
func NewSession(cfg Config, opts ...crawl.Option) (*crawl.Session, *Engine, error) {
	engine, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Logger != nil {
		opts = append([]crawl.Option{crawl.WithLogger(cfg.Logger)}, opts...)
	}
	return crawl.NewSession(engine, opts...), engine, nil
}
