package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JoeyJohnson82/ScCrawler/api/schemas"
	"github.com/JoeyJohnson82/ScCrawler/crawl"
)

// Runner drives one scenario through a crawl session, accumulating extracted
// fields into a batch. A runner is single-use, like the session it wraps.
type Runner struct {
	session     *crawl.Session
	logger      *zap.Logger
	stepTimeout time.Duration

	batch *schemas.ExtractionBatch
}

// RunnerOption configures a Runner at construction time.
type RunnerOption func(*Runner)

// WithRunnerLogger attaches a structured logger. Runners log nothing by default.
func WithRunnerLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) RunnerOption {
	return func(r *Runner) {
		if id != "" {
			r.batch.RunID = id
		}
	}
}

// WithStepTimeout caps each leaf operation. Zero means no per-step deadline.
func WithStepTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.stepTimeout = d
	}
}

// NewRunner builds a runner over the given session.
func NewRunner(session *crawl.Session, opts ...RunnerOption) *Runner {
	r := &Runner{
		session: session,
		logger:  zap.NewNop(),
		batch:   &schemas.ExtractionBatch{RunID: uuid.New().String()},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("run_id", r.batch.RunID))
	return r
}

// Run executes the scenario and returns the extraction batch. The batch is
// returned even on failure so partial results can still be persisted; the
// error reports the step that broke.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*schemas.ExtractionBatch, error) {
	r.batch.Scenario = sc.Name
	r.batch.StartedAt = time.Now()
	defer func() { r.batch.FinishedAt = time.Now() }()

	r.logger.Info("Running scenario",
		zap.String("scenario", sc.Name), zap.String("start_url", sc.StartURL))

	err := r.session.NavigateTo(sc.StartURL).Do(ctx, func(ctx context.Context) error {
		return r.runSteps(ctx, sc.Steps)
	})
	if err != nil {
		return r.batch, fmt.Errorf("scenario '%s': %w", sc.Name, err)
	}

	// The page scope has unwound; nodes exposed during Steps are now in
	// scope for the top-level statements.
	if err := r.runSteps(ctx, sc.Then); err != nil {
		return r.batch, fmt.Errorf("scenario '%s': %w", sc.Name, err)
	}

	r.logger.Info("Scenario finished",
		zap.String("scenario", sc.Name), zap.Int("records", len(r.batch.Records)))
	return r.batch, nil
}

func (r *Runner) runSteps(ctx context.Context, steps []Step) error {
	for i := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runStep(ctx, &steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step *Step) error {
	switch {
	case step.In != nil:
		t, err := step.In.Target()
		if err != nil {
			return err
		}
		return r.session.In(t).Do(ctx, func(ctx context.Context) error {
			return r.runSteps(ctx, step.Steps)
		})

	case step.ForAll != nil:
		t, err := step.ForAll.Target()
		if err != nil {
			return err
		}
		return r.session.ForAll(t).Do(ctx, func(ctx context.Context) error {
			return r.runSteps(ctx, step.Steps)
		})

	case step.Expose != nil:
		t, err := step.Expose.Target()
		if err != nil {
			return err
		}
		stepCtx, cancel := r.stepContext(ctx)
		defer cancel()
		return r.session.In(t).Expose(stepCtx)

	case step.OnCurrentPage:
		return r.session.OnCurrentPage(ctx, func(ctx context.Context) error {
			return r.runSteps(ctx, step.Steps)
		})

	case step.Type != nil:
		stepCtx, cancel := r.stepContext(ctx)
		defer cancel()
		return r.session.TypeIn(stepCtx, *step.Type)

	case step.Click:
		stepCtx, cancel := r.stepContext(ctx)
		defer cancel()
		page, err := r.session.Click(stepCtx)
		if err != nil {
			return err
		}
		if len(step.Steps) == 0 {
			return nil
		}
		return page.Do(ctx, func(ctx context.Context) error {
			return r.runSteps(ctx, step.Steps)
		})

	case step.Extract != nil:
		return r.extract(step.Extract)

	default:
		// Unreachable after Validate; kept so a hand-built step tree fails
		// loudly instead of being skipped.
		return fmt.Errorf("step carries no verb")
	}
}

// extract captures one field from the current scope or a from-target and
// appends it to the batch.
func (r *Runner) extract(spec *ExtractSpec) error {
	var node *html.Node
	if spec.From != nil {
		t, err := spec.From.Target()
		if err != nil {
			return err
		}
		node, err = r.session.From(t)
		if err != nil {
			return fmt.Errorf("extract '%s': %w", spec.Field, err)
		}
	} else {
		node = r.session.Current()
	}

	value := nodeValue(node, spec.Attr)
	r.batch.Append(schemas.ExtractionRecord{
		ID:      uuid.New().String(),
		PageURL: r.session.CurrentURL(),
		Field:   spec.Field,
		Value:   value,
	})
	r.logger.Debug("Extracted field",
		zap.String("field", spec.Field), zap.String("value", value))
	return nil
}

// nodeValue renders a node for extraction: an attribute when requested,
// otherwise the trimmed text content.
func nodeValue(node *html.Node, attr string) string {
	sel := goquery.NewDocumentFromNode(node).Selection
	if attr != "" {
		return sel.AttrOr(attr, "")
	}
	return strings.TrimSpace(sel.Text())
}

func (r *Runner) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.stepTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.stepTimeout)
}
