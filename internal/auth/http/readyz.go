package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/pkg/authsdk"
	"github.com/aussiebroadwan/stocktake/pkg/httpx"
	"github.com/aussiebroadwan/stocktake/pkg/jwtx"
)

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Checks the database connection and that the signer can produce a token.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"status, uptime, version, checks - service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, st store.Store, signer jwtx.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authsdk.HealthChecks{Database: "ok", Signer: "ok"}
		ready := true

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			ready = false
		}

		if signer == nil {
			checks.Signer = "error: no signer configured"
			ready = false
		} else if _, err := signer.Sign(jwtx.Claims{}); err != nil {
			checks.Signer = "error: " + err.Error()
			ready = false
		}

		status, code := "ok", http.StatusOK
		if !ready {
			status, code = "degraded", http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, authsdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
