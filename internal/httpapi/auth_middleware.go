package httpapi

import (
	"net"
	"net/http"

	"github.com/airchainpay/relay/internal/auth"
	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/relayerr"
)

// authMiddleware gates every /api route behind a bearer token issued by
// d.Auth. A client IP that exhausts its attempt budget is rejected before
// the token is even parsed. A rejected token
// counts against both the auth-failures metric and the Authentication
// critical path, so repeated credential stuffing trips that path's circuit
// independently of transaction-processing traffic.
func (d *Deps) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := authClientIP(r)
		if d.AuthLimiter != nil && !d.AuthLimiter.AllowAttempt(clientIP) {
			d.rejectAuth(w, r, relayerr.Auth("ERR_RATE_LIMITED", "too many authentication attempts", nil))
			return
		}

		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			d.rejectAuth(w, r, err)
			return
		}

		if _, err := d.Auth.Verify(token); err != nil {
			d.rejectAuth(w, r, err)
			return
		}

		if d.AuthLimiter != nil {
			d.AuthLimiter.Reset(clientIP)
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Deps) rejectAuth(w http.ResponseWriter, r *http.Request, cause error) {
	if d.Metrics != nil {
		d.Metrics.RecordAuthFailure()
	}
	if d.Guard != nil {
		d.Guard.RecordFailureDetailed(models.PathAuthentication, cause, models.SeverityMedium, "auth_rejected")
	}
	writeJSON(w, http.StatusUnauthorized, relayerr.ToResponse(relayerr.Classify(cause), requestIDFrom(r.Context())))
}

func authClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
