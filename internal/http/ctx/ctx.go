package ctx

import (
	"github.com/valyala/fasthttp"

	dbpkg "orderinsight/internal/db"
)

const (
	UserKey   = "user"
	APIKeyKey = "apiKey"
	TenantKey = "tenantID"
)

func SetUser(ctx *fasthttp.RequestCtx, user *dbpkg.User) {
	ctx.SetUserValue(UserKey, user)
}

func UserFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	v := ctx.UserValue(UserKey)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*dbpkg.User)
	return u, ok
}

func SetAPIKey(ctx *fasthttp.RequestCtx, apiKey *dbpkg.APIKey) {
	ctx.SetUserValue(APIKeyKey, apiKey)
	ctx.SetUserValue(TenantKey, apiKey.TenantID)
}

func APIKeyFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.APIKey, bool) {
	v := ctx.UserValue(APIKeyKey)
	if v == nil {
		return nil, false
	}
	ak, ok := v.(*dbpkg.APIKey)
	return ak, ok
}

// TenantFromCtx returns the tenant the request is scoped to. Set only
// by the bearer-auth middleware; handlers never take a tenant id from
// the request body or query string.
func TenantFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(TenantKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
