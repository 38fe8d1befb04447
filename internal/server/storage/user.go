package storage

import (
	"context"
	"time"

	"github.com/encorehub/authd/internal/models"
)

// NewEmailUser объединяет данные, записываемые при регистрации через
// email-провайдер. Пользователь, учетные данные и профиль пишутся в
// одной транзакции.
type NewEmailUser struct {
	User       *models.User
	Credential *models.EmailCredential
	Profile    *models.Profile
}

// UserStorage defines interface for user data persistence
type UserStorage interface {
	// CreateEmailUser creates user, email credential and profile in a
	// single transaction.
	// Returns ErrEmailAlreadyExists if email is taken for the provider.
	CreateEmailUser(ctx context.Context, nu NewEmailUser) error

	// GetUserByID retrieves user by ID
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByID(ctx context.Context, userID string) (*models.User, error)

	// FindUserByEmail retrieves user by email within the email provider,
	// regardless of account status.
	// Returns ErrUserNotFound if user doesn't exist
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)

	// FindActiveUserByEmail retrieves an active email-provider user
	// together with the email credential.
	// Returns ErrUserNotFound if no active user matches
	FindActiveUserByEmail(ctx context.Context, email string) (*models.User, *models.EmailCredential, error)

	// FindByVerificationToken retrieves user and credential by the
	// verification token value.
	// Returns ErrVerificationNotFound if no credential matches
	FindByVerificationToken(ctx context.Context, token string) (*models.User, *models.EmailCredential, error)

	// UpdateVerification replaces the verification token, expiry and
	// last-sent timestamp for the user's email credential.
	UpdateVerification(ctx context.Context, userID, token string, expires, sentAt time.Time) error

	// MarkEmailVerified flags the credential as verified. The consumed
	// token value is retained so that a repeated verification attempt
	// can be recognized and answered idempotently.
	MarkEmailVerified(ctx context.Context, userID string) error

	// UpdateLastLogin updates the last login timestamp
	UpdateLastLogin(ctx context.Context, userID string, lastLogin time.Time) error
}
