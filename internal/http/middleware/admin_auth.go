package middleware

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "orderinsight/internal/db"
	httpctx "orderinsight/internal/http/ctx"
)

// AdminAuth guards the operator surface with HTTP basic auth against
// admin users in the database.
func AdminAuth(db *gorm.DB) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			auth := ctx.Request.Header.Peek("Authorization")
			const prefix = "Basic "
			if !bytes.HasPrefix(auth, []byte(prefix)) {
				unauthorized(ctx)
				return
			}

			decoded, err := base64.StdEncoding.DecodeString(string(auth[len(prefix):]))
			if err != nil {
				unauthorized(ctx)
				return
			}
			username, password, ok := strings.Cut(string(decoded), ":")
			if !ok {
				unauthorized(ctx)
				return
			}

			user, err := dbpkg.GetUserByUsername(db, username)
			if err != nil {
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("database error")
				return
			}
			if user == nil || !user.IsAdmin || !dbpkg.CheckPassword(user, password) {
				unauthorized(ctx)
				return
			}

			httpctx.SetUser(ctx, user)
			next(ctx)
		}
	}
}

func unauthorized(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("WWW-Authenticate", `Basic realm="orderinsight admin"`)
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetBodyString("unauthorized")
}
