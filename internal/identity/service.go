// Package identity is the authentication service: accounts with hashed
// passwords, custom claims, custom token issuance and verification. Deleting
// an account is reported to a DeleteSink so the account reaper can react.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const minPasswordLength = 6

var (
	ErrUserNotFound    = errors.New("auth account not found")
	ErrEmailExists     = errors.New("email already in use")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrWeakPassword    = errors.New("password must be at least 6 characters")
)

// Account is a stored auth account.
type Account struct {
	UID          string            `gorm:"primaryKey;size:64" json:"uid"`
	Email        string            `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string            `gorm:"not null" json:"-"`
	DisplayName  string            `json:"displayName"`
	PhoneNumber  string            `json:"phoneNumber,omitempty"`
	Claims       datatypes.JSONMap `json:"customClaims,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func (Account) TableName() string {
	return "auth_accounts"
}

// NewAccount is the input of CreateUser.
type NewAccount struct {
	Email       string
	Password    string
	DisplayName string
	PhoneNumber string
}

// DeleteSink is told about every deleted account.
type DeleteSink func(ctx context.Context, uid, email string)

type Service struct {
	db       *gorm.DB
	onDelete DeleteSink
	cost     int
}

type Option func(*Service)

// WithDeleteSink registers the receiver of account deletions.
func WithDeleteSink(sink DeleteSink) Option {
	return func(s *Service) { s.onDelete = sink }
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{db: db, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or updates the accounts table.
func (s *Service) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Account{}); err != nil {
		return fmt.Errorf("migrate auth accounts: %w", err)
	}
	return nil
}

func (s *Service) CreateUser(ctx context.Context, in NewAccount) (*Account, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acc := &Account{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(in.DisplayName),
		PhoneNumber:  in.PhoneNumber,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Account{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailExists
		}
		return tx.Create(acc).Error
	})
	if err != nil {
		if errors.Is(err, ErrEmailExists) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%s: %w", email, ErrEmailExists)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	return acc, nil
}

func (s *Service) GetUser(ctx context.Context, uid string) (*Account, error) {
	var acc Account
	err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("uid %s: %w", uid, ErrUserNotFound)
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &acc, nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*Account, error) {
	var acc Account
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("email %s: %w", email, ErrUserNotFound)
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &acc, nil
}

// VerifyPassword looks the account up by email and checks the password.
func (s *Service) VerifyPassword(ctx context.Context, email, password string) (*Account, error) {
	acc, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}
	return acc, nil
}

// SetCustomClaims replaces the custom claims of an account.
func (s *Service) SetCustomClaims(ctx context.Context, uid string, claims map[string]any) error {
	res := s.db.WithContext(ctx).Model(&Account{}).Where("uid = ?", uid).Update("claims", datatypes.JSONMap(claims))
	if res.Error != nil {
		return fmt.Errorf("set claims: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("uid %s: %w", uid, ErrUserNotFound)
	}
	return nil
}

// DeleteUser removes the account and reports the deletion to the sink.
func (s *Service) DeleteUser(ctx context.Context, uid string) error {
	acc, err := s.GetUser(ctx, uid)
	if err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Where("uid = ?", uid).Delete(&Account{})
	if res.Error != nil {
		return fmt.Errorf("delete account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("uid %s: %w", uid, ErrUserNotFound)
	}

	if s.onDelete != nil {
		s.onDelete(ctx, acc.UID, acc.Email)
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%q: %w", raw, ErrInvalidEmail)
	}
	return email, nil
}
