package repositorycache

import (
	"context"

	"github.com/goliatone/go-query-cache/querycache"
)

type cacheOptionsContextKey struct{}

type bypassContextKey struct{}

// WithCacheOptions attaches per call cache options to the context. Options
// added later are applied after earlier ones.
func WithCacheOptions(ctx context.Context, opts ...querycache.Option) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(opts) == 0 {
		return ctx
	}

	combined := append(cacheOptionsFromContext(ctx), opts...)
	return context.WithValue(ctx, cacheOptionsContextKey{}, combined)
}

// WithoutCache makes reads on ctx go straight to the base repository.
func WithoutCache(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bypassContextKey{}, true)
}

func cacheOptionsFromContext(ctx context.Context) []querycache.Option {
	if ctx == nil {
		return nil
	}
	if opts, ok := ctx.Value(cacheOptionsContextKey{}).([]querycache.Option); ok {
		return append([]querycache.Option(nil), opts...)
	}
	return nil
}

func cacheBypassed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	bypass, _ := ctx.Value(bypassContextKey{}).(bool)
	return bypass
}
