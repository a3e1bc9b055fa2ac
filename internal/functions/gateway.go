package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/identity"
	"github.com/hackgods/clinic-functions/internal/records"
)

type SignUpRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Nom       string `json:"nom"`
	Prenom    string `json:"prenom"`
	Telephone string `json:"telephone"`
}

type SignUpResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserSummary struct {
	UID    string `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Nom    string `json:"nom"`
	Prenom string `json:"prenom"`
}

type SignInResponse struct {
	Success     bool        `json:"success"`
	CustomToken string      `json:"customToken"`
	User        UserSummary `json:"user"`
}

type UserRoleResponse struct {
	Success bool        `json:"success"`
	User    UserSummary `json:"user"`
}

// SignUpUser registers a patient: an auth account plus its users document.
// If the document cannot be written the account is removed again.
func (f *Functions) SignUpUser(ctx context.Context, _ *Caller, data json.RawMessage) (any, error) {
	var req SignUpRequest
	if err := decodeData(data, &req); err != nil {
		return nil, err
	}
	req.Nom = strings.TrimSpace(req.Nom)
	req.Prenom = strings.TrimSpace(req.Prenom)
	if req.Email == "" || req.Password == "" || req.Nom == "" || req.Prenom == "" {
		return nil, invalidArgument("Email, password, nom and prenom are required")
	}

	acc, err := f.accounts.CreateUser(ctx, identity.NewAccount{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.Prenom + " " + req.Nom,
		PhoneNumber: req.Telephone,
	})
	switch {
	case errors.Is(err, identity.ErrEmailExists):
		return nil, alreadyExists("The email address is already in use", err)
	case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrWeakPassword):
		return nil, invalidArgument(errorMessage(err))
	case err != nil:
		return nil, internal("Failed to create user", err)
	}

	user := records.User{
		Role:      records.RolePatient,
		Nom:       req.Nom,
		Prenom:    req.Prenom,
		Email:     acc.Email,
		Telephone: req.Telephone,
		CreatedAt: f.now().UTC(),
	}
	if err := f.store.Set(ctx, records.Users, acc.UID, user); err != nil {
		if delErr := f.accounts.DeleteUser(ctx, acc.UID); delErr != nil {
			f.logger("gateway").Error().Err(delErr).Str("uid", acc.UID).Msg("roll back auth account")
		}
		return nil, internal("Failed to create user", err)
	}

	f.logger("gateway").Info().Str("uid", acc.UID).Msg("patient account created")
	return SignUpResponse{
		Success: true,
		UserID:  acc.UID,
		Message: "Patient account created successfully",
	}, nil
}

// SignInUser checks the credentials and issues a custom token carrying the
// user's role and email.
func (f *Functions) SignInUser(ctx context.Context, _ *Caller, data json.RawMessage) (any, error) {
	var req SignInRequest
	if err := decodeData(data, &req); err != nil {
		return nil, err
	}
	if req.Email == "" || req.Password == "" {
		return nil, invalidArgument("Email and password are required")
	}

	acc, err := f.accounts.VerifyPassword(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		return nil, notFound("No user found with this email")
	case errors.Is(err, identity.ErrInvalidPassword):
		return nil, &Error{Code: CodeUnauthenticated, Message: "Invalid email or password"}
	case err != nil:
		return nil, internal("Sign in failed", err)
	}

	user, err := f.loadUser(ctx, acc.UID)
	if err != nil {
		return nil, err
	}

	token, err := f.tokens.Mint(acc.UID, identity.TokenClaims{Role: user.Role, Email: user.Email})
	if err != nil {
		return nil, internal("Sign in failed", err)
	}

	f.logger("gateway").Info().Str("uid", acc.UID).Msg("user signed in")
	return SignInResponse{Success: true, CustomToken: token, User: user}, nil
}

// GetUserRole returns the caller's users document summary.
func (f *Functions) GetUserRole(ctx context.Context, caller *Caller, _ json.RawMessage) (any, error) {
	if caller == nil {
		return nil, unauthenticated()
	}
	user, err := f.loadUser(ctx, caller.UID)
	if err != nil {
		return nil, err
	}
	return UserRoleResponse{Success: true, User: user}, nil
}

func (f *Functions) loadUser(ctx context.Context, uid string) (UserSummary, error) {
	doc, err := f.store.Get(ctx, records.Users, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return UserSummary{}, notFound("User profile not found")
	}
	if err != nil {
		return UserSummary{}, internal("Failed to get user data", err)
	}

	u, err := docstore.Decode[records.User](doc.Data)
	if err != nil {
		return UserSummary{}, internal("Failed to get user data", err)
	}
	return UserSummary{
		UID:    uid,
		Email:  u.Email,
		Role:   string(u.Role),
		Nom:    u.Nom,
		Prenom: u.Prenom,
	}, nil
}

func decodeData(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return invalidArgument(fmt.Sprintf("Malformed request data: %v", err))
	}
	return nil
}

// errorMessage strips the wrapping context off identity errors.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidEmail):
		return "The email address is badly formatted"
	case errors.Is(err, identity.ErrWeakPassword):
		return "The password must be at least 6 characters long"
	}
	return err.Error()
}
