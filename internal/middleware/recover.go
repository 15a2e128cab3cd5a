package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Beatrizpaiva2025/Mia-Welcome/pkg/utils"
)

// Recover turns a panic into a 500 {"status":"error"} so providers always get
// a structured answer.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("panic recovered",
				"component", "http",
				"path", r.URL.Path,
				"request_id", chimw.GetReqID(r.Context()),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			if r.Header.Get("Connection") != "Upgrade" {
				utils.RespondStatus(w, http.StatusInternalServerError, "error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
