package functions

import (
	"context"
	"errors"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/identity"
	"github.com/hackgods/clinic-functions/internal/records"
)

// refusingBackend fails every commit touching one collection.
type refusingBackend struct {
	*docstore.MemoryBackend
	collection string
}

func (b refusingBackend) Commit(ctx context.Context, writes []docstore.Write) ([]docstore.Change, error) {
	for _, w := range writes {
		if w.Collection == b.collection {
			return nil, errors.New("backend unavailable")
		}
	}
	return b.MemoryBackend.Commit(ctx, writes)
}

func signUp(t *testing.T, h *harness, email string) SignUpResponse {
	t.Helper()
	res, err := h.f.SignUpUser(context.Background(), nil, payload(t, SignUpRequest{
		Email:     email,
		Password:  "secret1",
		Nom:       "Durand",
		Prenom:    "Alice",
		Telephone: "+33600000000",
	}))
	require.NoError(t, err)
	return res.(SignUpResponse)
}

func TestSignUpCreatesPatient(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	res := signUp(t, h, "Alice@Example.com")
	assert.True(t, res.Success)
	assert.Equal(t, "Patient account created successfully", res.Message)
	require.NotEmpty(t, res.UserID)

	acc, err := h.accounts.GetUser(ctx, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", acc.Email)
	assert.Equal(t, "Alice Durand", acc.DisplayName)

	user := h.get(t, records.Users, res.UserID)
	assert.Equal(t, "patient", user["role"])
	assert.Equal(t, "Durand", user["nom"])
	assert.Equal(t, "Alice", user["prenom"])
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, "+33600000000", user["telephone"])

	assert.True(t, h.exists(t, records.Patients, res.UserID), "the users trigger provisions the patient profile")
}

func TestSignUpValidation(t *testing.T) {
	tests := []struct {
		name string
		req  map[string]any
		code Code
	}{
		{"missing password", map[string]any{"email": "a@example.com", "nom": "Durand", "prenom": "Alice"}, CodeInvalidArgument},
		{"missing email", map[string]any{"password": "secret1", "nom": "Durand", "prenom": "Alice"}, CodeInvalidArgument},
		{"blank nom", map[string]any{"email": "a@example.com", "password": "secret1", "nom": "  ", "prenom": "Alice"}, CodeInvalidArgument},
		{"bad email", map[string]any{"email": "not-an-email", "password": "secret1", "nom": "Durand", "prenom": "Alice"}, CodeInvalidArgument},
		{"weak password", map[string]any{"email": "a@example.com", "password": "123", "nom": "Durand", "prenom": "Alice"}, CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)

			_, err := h.f.SignUpUser(context.Background(), nil, payload(t, tt.req))
			requireCode(t, err, tt.code)

			_, err = h.accounts.GetUserByEmail(context.Background(), "a@example.com")
			assert.ErrorIs(t, err, identity.ErrUserNotFound, "no account is created")
			assert.Equal(t, 0, h.backend.Count(records.Users))
		})
	}
}

func TestSignUpMalformedData(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.f.SignUpUser(context.Background(), nil, []byte(`"just a string"`))
	requireCode(t, err, CodeInvalidArgument)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	h := newHarness(t, true)
	signUp(t, h, "dup@example.com")

	_, err := h.f.SignUpUser(context.Background(), nil, payload(t, SignUpRequest{
		Email: "DUP@example.com", Password: "another1", Nom: "Martin", Prenom: "Bob",
	}))
	requireCode(t, err, CodeAlreadyExists)
	assert.Equal(t, 1, h.backend.Count(records.Users))
}

func TestSignUpRollsBackAccount(t *testing.T) {
	h := newHarness(t, false)
	h.f.store = docstore.New(refusingBackend{MemoryBackend: h.backend, collection: records.Users}, nil)

	_, err := h.f.SignUpUser(context.Background(), nil, payload(t, SignUpRequest{
		Email: "rollback@example.com", Password: "secret1", Nom: "Durand", Prenom: "Alice",
	}))
	requireCode(t, err, CodeInternal)

	_, err = h.accounts.GetUserByEmail(context.Background(), "rollback@example.com")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestSignIn(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	created := signUp(t, h, "alice@example.com")

	res, err := h.f.SignInUser(ctx, nil, payload(t, SignInRequest{Email: "alice@example.com", Password: "secret1"}))
	require.NoError(t, err)
	signIn := res.(SignInResponse)
	assert.True(t, signIn.Success)
	assert.Equal(t, UserSummary{
		UID:    created.UserID,
		Email:  "alice@example.com",
		Role:   "patient",
		Nom:    "Durand",
		Prenom: "Alice",
	}, signIn.User)

	v, err := h.tokens.Validator()
	require.NoError(t, err)
	got, err := v.ValidateToken(ctx, signIn.CustomToken)
	require.NoError(t, err)
	claims := got.(*validator.ValidatedClaims)
	assert.Equal(t, created.UserID, claims.RegisteredClaims.Subject)
	custom := claims.CustomClaims.(*identity.TokenClaims)
	assert.Equal(t, "patient", custom.Role)
	assert.Equal(t, "alice@example.com", custom.Email)
}

func TestSignInFailures(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	signUp(t, h, "alice@example.com")

	orphan, err := h.accounts.CreateUser(ctx, identity.NewAccount{Email: "orphan@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotEmpty(t, orphan.UID)

	tests := []struct {
		name string
		req  SignInRequest
		code Code
	}{
		{"missing password", SignInRequest{Email: "alice@example.com"}, CodeInvalidArgument},
		{"unknown email", SignInRequest{Email: "bob@example.com", Password: "secret1"}, CodeNotFound},
		{"wrong password", SignInRequest{Email: "alice@example.com", Password: "nope-nope"}, CodeUnauthenticated},
		{"account without users document", SignInRequest{Email: "orphan@example.com", Password: "secret1"}, CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.f.SignInUser(ctx, nil, payload(t, tt.req))
			requireCode(t, err, tt.code)
		})
	}
}

func TestGetUserRole(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	created := signUp(t, h, "alice@example.com")

	_, err := h.f.GetUserRole(ctx, nil, nil)
	requireCode(t, err, CodeUnauthenticated)

	res, err := h.f.GetUserRole(ctx, &Caller{UID: created.UserID}, nil)
	require.NoError(t, err)
	role := res.(UserRoleResponse)
	assert.True(t, role.Success)
	assert.Equal(t, "patient", role.User.Role)
	assert.Equal(t, created.UserID, role.User.UID)

	_, err = h.f.GetUserRole(ctx, &Caller{UID: "ghost"}, nil)
	requireCode(t, err, CodeNotFound)
}

func TestCallableRegistry(t *testing.T) {
	h := newHarness(t, false)

	assert.ElementsMatch(t, []string{
		"signUpUser", "signInUser", "getUserRole", "cleanupUserData", "manualCleanupProviderRequests",
	}, keys(h.f.Callables()))
	assert.ElementsMatch(t, []string{
		"migrateProviderRequestsExpireAt", "manualCleanupExpiredRequests",
	}, keys(h.f.HTTPFunctions()))
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
