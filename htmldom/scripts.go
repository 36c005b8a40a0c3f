package htmldom

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JoeyJohnson82/ScCrawler/api/schemas"
)

const defaultScriptTimeout = 30 * time.Second

// scriptRunner executes page JavaScript on a Goja VM. Each document gets a
// fresh VM with console routed into the logger and a minimal navigator
// carrying the persona. There is no DOM bridge; scripts touching document
// state fail, and failHard decides whether that aborts the load.
type scriptRunner struct {
	logger   *zap.Logger
	persona  schemas.Persona
	failHard bool
}

func newScriptRunner(logger *zap.Logger, persona schemas.Persona, failHard bool) *scriptRunner {
	return &scriptRunner{
		logger:   logger.Named("scripts"),
		persona:  persona,
		failHard: failHard,
	}
}

// runInline executes the document's inline script bodies in order. Scripts
// with a src attribute are skipped; fetching them is a rendering concern.
func (r *scriptRunner) runInline(ctx context.Context, doc *html.Node, pageURL *url.URL) error {
	scripts, err := htmlquery.QueryAll(doc, "//script[not(@src)]")
	if err != nil {
		return err
	}
	if len(scripts) == 0 {
		return nil
	}

	vm := r.newVM()
	for _, tag := range scripts {
		src := htmlquery.InnerText(tag)
		if strings.TrimSpace(src) == "" {
			continue
		}
		if _, err := r.execute(ctx, vm, src); err != nil {
			if r.failHard {
				return err
			}
			r.logger.Warn("Page script failed",
				zap.String("url", pageURL.String()), zap.Error(err))
		}
	}
	return nil
}

// evaluate runs a standalone snippet on a fresh VM and exports the result.
func (r *scriptRunner) evaluate(ctx context.Context, src string) (interface{}, error) {
	return r.execute(ctx, r.newVM(), src)
}

func (r *scriptRunner) newVM() *goja.Runtime {
	vm := goja.New()

	registry := new(require.Registry)
	registry.RegisterNativeModule("console", console.RequireWithPrinter(&consolePrinter{r.logger}))
	registry.Enable(vm)
	console.Enable(vm)

	navigator := vm.NewObject()
	_ = navigator.Set("userAgent", r.persona.UserAgent)
	_ = navigator.Set("platform", r.persona.Platform)
	_ = navigator.Set("languages", r.persona.Languages)
	_ = vm.Set("navigator", navigator)
	_ = vm.Set("window", vm.GlobalObject())

	return vm
}

// execute runs src with interrupt handling tied to the context deadline.
func (r *scriptRunner) execute(ctx context.Context, vm *goja.Runtime, src string) (interface{}, error) {
	timeout := defaultScriptTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout && remaining > 0 {
			timeout = remaining
		}
	}

	done := make(chan struct{})
	interruptHandler := make(chan struct{})
	vm.ClearInterrupt()

	go func() {
		defer close(interruptHandler)
		select {
		case <-time.After(timeout):
			r.logger.Warn("Script execution timeout", zap.Duration("timeout", timeout))
			vm.Interrupt(fmt.Sprintf("execution timeout exceeded (%v)", timeout))
		case <-ctx.Done():
			vm.Interrupt(ctx.Err().Error())
		case <-done:
		}
	}()

	result, err := vm.RunString(src)

	close(done)
	<-interruptHandler

	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("script interrupted by context: %w", ctx.Err())
			}
			return nil, fmt.Errorf("script interrupted: %w", err)
		}
		if jsErr, ok := err.(*goja.Exception); ok {
			return nil, fmt.Errorf("script exception: %s", jsErr.String())
		}
		return nil, fmt.Errorf("script error: %w", err)
	}

	if promise, ok := result.Export().(*goja.Promise); ok {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			return promise.Result().Export(), nil
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("script promise rejected: %v", promise.Result().Export())
		default:
			r.logger.Warn("Script returned a pending promise; asynchronous results are not awaited")
			return nil, nil
		}
	}
	return result.Export(), nil
}

type consolePrinter struct {
	logger *zap.Logger
}

func (p *consolePrinter) Log(msg string)   { p.logger.Info("Page console", zap.String("message", msg)) }
func (p *consolePrinter) Warn(msg string)  { p.logger.Warn("Page console", zap.String("message", msg)) }
func (p *consolePrinter) Error(msg string) { p.logger.Error("Page console", zap.String("message", msg)) }
