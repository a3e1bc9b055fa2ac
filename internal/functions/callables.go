package functions

import (
	"context"
	"encoding/json"
)

// Caller is the verified identity behind a callable invocation.
type Caller struct {
	UID   string
	Role  string
	Email string
}

// Callable is a client-invoked function. caller is nil for anonymous calls.
// Failures should be *Error values.
type Callable func(ctx context.Context, caller *Caller, data json.RawMessage) (any, error)

// HTTPFunc is a plain HTTP function without caller identity.
type HTTPFunc func(ctx context.Context) (any, error)

func (f *Functions) Callables() map[string]Callable {
	return map[string]Callable{
		"signUpUser":                    f.SignUpUser,
		"signInUser":                    f.SignInUser,
		"getUserRole":                   f.GetUserRole,
		"cleanupUserData":               f.CleanupUserData,
		"manualCleanupProviderRequests": f.ManualCleanupProviderRequests,
	}
}

func (f *Functions) HTTPFunctions() map[string]HTTPFunc {
	return map[string]HTTPFunc{
		"migrateProviderRequestsExpireAt": f.MigrateProviderRequestsExpireAt,
		"manualCleanupExpiredRequests":    f.ManualCleanupExpiredRequests,
	}
}
