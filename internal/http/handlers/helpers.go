package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/valyala/fasthttp"

	httpctx "orderinsight/internal/http/ctx"
	"orderinsight/internal/kpi"
)

// MustTenant returns the tenant the request is scoped to, or sends 401
// and returns ("", false).
func MustTenant(ctx *fasthttp.RequestCtx) (string, bool) {
	tenantID, ok := httpctx.TenantFromCtx(ctx)
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString("unauthorized")
		return "", false
	}
	return tenantID, true
}

func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		log.Printf("%s %s -> %d (%s) ip=%s", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start), ctx.RemoteAddr())
	}
}

func jsonResponse(ctx *fasthttp.RequestCtx, data any) {
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(data)
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetBodyString(msg)
}

// displayValue converts currency metrics from integer cents to decimal
// units for API output. Everything else passes through unchanged.
func displayValue(unit kpi.Unit, value float64) float64 {
	if unit == kpi.UnitCurrency {
		return value / 100
	}
	return value
}
