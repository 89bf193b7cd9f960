package handlers

import (
	"github.com/valyala/fasthttp"

	"orderinsight/internal/insight"
)

// ListInsights evaluates the insight rules against the tenant's latest
// metrics and returns the firing insights, most severe first.
func ListInsights(generator *insight.Generator) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID, ok := MustTenant(ctx)
		if !ok {
			return
		}

		insights, err := generator.Generate(ctx, tenantID)
		if err != nil {
			errResponse(ctx, fasthttp.StatusServiceUnavailable, "insight generation failed")
			return
		}
		jsonResponse(ctx, map[string]any{"insights": insights})
	}
}
