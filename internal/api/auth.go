package api

import (
	"context"
	"net/http"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-functions/internal/functions"
	"github.com/hackgods/clinic-functions/internal/identity"
)

// Authenticate verifies the bearer token when one is sent. Requests without
// a token go through anonymously and handlers decide whether that is enough.
// A token that fails validation is answered by onError.
func Authenticate(v *validator.Validator, log zerolog.Logger, onError func(w http.ResponseWriter)) func(http.Handler) http.Handler {
	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("rejected bearer token")
		onError(w)
	}

	mw := jwtmiddleware.New(
		v.ValidateToken,
		jwtmiddleware.WithCredentialsOptional(true),
		jwtmiddleware.WithErrorHandler(errorHandler),
	)
	return mw.CheckJWT
}

// CallerFromContext returns the verified caller, or nil for anonymous requests.
func CallerFromContext(ctx context.Context) *functions.Caller {
	claims, ok := ctx.Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	if !ok || claims.RegisteredClaims.Subject == "" {
		return nil
	}

	caller := &functions.Caller{UID: claims.RegisteredClaims.Subject}
	if custom, ok := claims.CustomClaims.(*identity.TokenClaims); ok {
		caller.Role = custom.Role
		caller.Email = custom.Email
	}
	return caller
}

func callableAuthError(w http.ResponseWriter) {
	writeCallableError(w, &functions.Error{Code: functions.CodeUnauthenticated, Message: "Invalid or expired token"})
}

func documentAuthError(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "invalid_token", "token could not be verified")
}
