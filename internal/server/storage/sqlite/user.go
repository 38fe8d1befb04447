package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/encorehub/authd/internal/models"
	"github.com/encorehub/authd/internal/server/storage"
)

// CreateEmailUser creates user, email credential and profile in a single
// transaction
func (s *Storage) CreateEmailUser(ctx context.Context, nu storage.NewEmailUser) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback после commit безвреден

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, username, email, role, provider_type, status,
			avatar_url, created_at, updated_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		nu.User.ID,
		nu.User.Username,
		nu.User.Email,
		nu.User.Role,
		nu.User.ProviderType,
		nu.User.Status,
		nu.User.AvatarURL,
		nu.User.CreatedAt,
		nu.User.UpdatedAt,
		nu.User.LastLogin,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ErrEmailAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO email_users (user_id, password_hash, is_verified_email,
			verification_token, verification_expires, last_verification_sent,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		nu.Credential.UserID,
		nu.Credential.PasswordHash,
		nu.Credential.IsVerified,
		nu.Credential.VerificationToken,
		nu.Credential.VerificationExpires,
		nu.Credential.LastVerificationSent,
		nu.Credential.CreatedAt,
		nu.Credential.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert email credential: %w", err)
	}

	if nu.Profile != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_profiles (user_id, birthday, phone)
			VALUES (?, ?, ?)
		`,
			nu.Profile.UserID,
			nullString(nu.Profile.Birthday),
			nullString(nu.Profile.Phone),
		)
		if err != nil {
			return fmt.Errorf("failed to insert user profile: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const userColumns = `id, username, email, role, provider_type, status,
	avatar_url, created_at, updated_at, last_login`

// GetUserByID retrieves user by ID
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, userID)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// FindUserByEmail retrieves email-provider user by email regardless of status
func (s *Storage) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND provider_type = 'email'`,
		email)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return user, nil
}

// FindActiveUserByEmail retrieves an active email-provider user together
// with the email credential
func (s *Storage) FindActiveUserByEmail(ctx context.Context, email string) (*models.User, *models.EmailCredential, error) {
	return s.findUserWithCredential(ctx, `
		SELECT u.id, u.username, u.email, u.role, u.provider_type, u.status,
			u.avatar_url, u.created_at, u.updated_at, u.last_login,
			e.user_id, e.password_hash, e.is_verified_email,
			e.verification_token, e.verification_expires,
			e.last_verification_sent, e.created_at, e.updated_at
		FROM users u
		JOIN email_users e ON e.user_id = u.id
		WHERE u.email = ? AND u.provider_type = 'email' AND u.status = 'active'
	`, email, storage.ErrUserNotFound)
}

// FindByVerificationToken retrieves user and credential by verification token
func (s *Storage) FindByVerificationToken(ctx context.Context, token string) (*models.User, *models.EmailCredential, error) {
	return s.findUserWithCredential(ctx, `
		SELECT u.id, u.username, u.email, u.role, u.provider_type, u.status,
			u.avatar_url, u.created_at, u.updated_at, u.last_login,
			e.user_id, e.password_hash, e.is_verified_email,
			e.verification_token, e.verification_expires,
			e.last_verification_sent, e.created_at, e.updated_at
		FROM users u
		JOIN email_users e ON e.user_id = u.id
		WHERE e.verification_token = ?
	`, token, storage.ErrVerificationNotFound)
}

// UpdateVerification replaces verification token, expiry and last-sent time
func (s *Storage) UpdateVerification(ctx context.Context, userID, token string, expires, sentAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE email_users
		SET verification_token = ?, verification_expires = ?,
			last_verification_sent = ?, updated_at = ?
		WHERE user_id = ?
	`, token, expires, sentAt, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update verification: %w", err)
	}

	return requireRowAffected(result, storage.ErrUserNotFound)
}

// MarkEmailVerified flags the credential as verified. Значение токена
// сохраняется: повторная попытка подтверждения по тому же токену
// распознается и отвечается идемпотентно.
func (s *Storage) MarkEmailVerified(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE email_users SET is_verified_email = 1, updated_at = ?
		WHERE user_id = ?
	`, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}

	return requireRowAffected(result, storage.ErrUserNotFound)
}

// UpdateLastLogin updates the last login timestamp
func (s *Storage) UpdateLastLogin(ctx context.Context, userID string, lastLogin time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`,
		lastLogin, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return requireRowAffected(result, storage.ErrUserNotFound)
}

func (s *Storage) findUserWithCredential(ctx context.Context, query, arg string, notFound error) (*models.User, *models.EmailCredential, error) {
	user := &models.User{}
	cred := &models.EmailCredential{}

	var lastLogin sql.NullTime
	var verificationToken sql.NullString
	var verificationExpires, lastSent sql.NullTime

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Role,
		&user.ProviderType,
		&user.Status,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
		&cred.UserID,
		&cred.PasswordHash,
		&cred.IsVerified,
		&verificationToken,
		&verificationExpires,
		&lastSent,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, notFound
		}
		return nil, nil, fmt.Errorf("failed to query user with credential: %w", err)
	}

	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}
	if verificationToken.Valid {
		cred.VerificationToken = verificationToken.String
	}
	if verificationExpires.Valid {
		cred.VerificationExpires = &verificationExpires.Time
	}
	if lastSent.Valid {
		cred.LastVerificationSent = &lastSent.Time
	}

	return user, cred, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var lastLogin sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Role,
		&user.ProviderType,
		&user.Status,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
	)
	if err != nil {
		return nil, err
	}

	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}

	return user, nil
}

func requireRowAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
