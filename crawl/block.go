package crawl

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Action is the caller-supplied body of a scoped block. It runs with the
// block's resolved node installed as the current scope and may issue further
// DSL calls against the session it closed over.
type Action func(ctx context.Context) error

// Block is a pending scoped operation built by NavigateTo, In or Click.
// Building one performs no resolution and no I/O; the node is resolved when
// Do or Expose is invoked.
type Block struct {
	session *Session
	label   string
	resolve func(ctx context.Context) (*html.Node, error)
}

// Do resolves the block's node, pushes it as the innermost scope, runs fn,
// and pops the scope again. The pop runs on every exit path, so a failing
// action leaves the stack at its prior depth while the failure propagates.
func (b *Block) Do(ctx context.Context, fn Action) error {
	n, err := b.resolve(ctx)
	if err != nil {
		return err
	}
	b.session.enterScope(b.label, n)
	defer b.session.exitScope(b.label)
	return fn(ctx)
}

// Expose resolves the block's node and appends it at the far end of the
// scope stack instead of scoping a nested action around it. The node becomes
// the current scope only once every inner scope has unwound, which lets a
// single resolution feed several subsequent top-level statements.
func (b *Block) Expose(ctx context.Context) error {
	n, err := b.resolve(ctx)
	if err != nil {
		return err
	}
	b.session.stack.pushBack(n)
	b.session.logger.Debug("Exposed node at stack tail",
		zap.String("target", b.label), zap.Int("depth", b.session.stack.depth()))
	return nil
}

// ListBlock is a pending list-scoped operation built by ForAll.
type ListBlock struct {
	session *Session
	label   string
	resolve func(ctx context.Context) ([]*html.Node, error)
}

// Do resolves the list eagerly and runs fn once per match in document order,
// each time with that node as the innermost scope. Iteration is sequential;
// the first failing action stops the loop and propagates after its scope has
// been released.
func (lb *ListBlock) Do(ctx context.Context, fn Action) error {
	nodes, err := lb.resolve(ctx)
	if err != nil {
		return err
	}
	lb.session.logger.Debug("Iterating matches",
		zap.String("target", lb.label), zap.Int("count", len(nodes)))
	for _, n := range nodes {
		if err := lb.runScoped(ctx, n, fn); err != nil {
			return err
		}
	}
	return nil
}

func (lb *ListBlock) runScoped(ctx context.Context, n *html.Node, fn Action) error {
	lb.session.enterScope(lb.label, n)
	defer lb.session.exitScope(lb.label)
	return fn(ctx)
}
