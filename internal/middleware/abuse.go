package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/harborview/civicwatch/internal/models"
	"github.com/harborview/civicwatch/internal/services"
	pkghttp "github.com/harborview/civicwatch/pkg/http"
)

// AbuseProtection runs every request through the abuse engine: blocked
// origins are rejected before any handler work, and the request is scored
// against the origin's rolling window. A tracker-store outage fails open;
// rejecting all traffic on a state-store hiccup is worse than briefly
// losing the scoring signal.
func AbuseProtection(engine *services.AbuseEngine, ipConfig *pkghttp.IPConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := pkghttp.ExtractClientIP(r, ipConfig)

			err := engine.Observe(r.Context(), clientIP, r.URL.Path, r.UserAgent())
			if err != nil {
				if errors.Is(err, models.ErrBlockedOrigin) {
					pkghttp.WriteError(w, http.StatusForbidden, models.RejectionCode(err), "requests from this origin are temporarily blocked")
					return
				}
				logger.Error("abuse tracking unavailable",
					slog.String("ip_address", clientIP),
					slog.Any("error", err))
			}

			next.ServeHTTP(w, r)
		})
	}
}
