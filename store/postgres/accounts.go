package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/internal/flows"
)

const accountColumns = `id, external_ref, username, email, name, phone, password_hash,
	email_verified, password_verified, is_registered, is_active, is_logged_out, requires_reauth,
	last_login_at, last_logout_at, last_password_check, created_at, updated_at`

// AccountStore implements goEnroll.AccountStore on the accounts table.
type AccountStore struct {
	db    DB
	newID func() string
}

// NewAccountStore returns a store over db.
func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db, newID: uuid.NewString}
}

// BeginScan locks the account for identity, by external ref and then by
// email, and applies the scan decision in the same transaction.
func (s *AccountStore) BeginScan(ctx context.Context, identity goEnroll.Identity, now time.Time) (goEnroll.ScanOutcome, *goEnroll.Account, error) {
	var (
		outcome goEnroll.ScanOutcome
		account *goEnroll.Account
	)
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		a, err := lockAccount(ctx, tx, identity)
		if err != nil {
			return err
		}

		state := flows.AccountState{}
		if a != nil {
			state = flows.AccountState{Exists: true, IsRegistered: a.IsRegistered, IsLoggedOut: a.IsLoggedOut}
		}
		outcome = flows.DecideScan(state)

		switch outcome {
		case flows.ScanFresh:
			return nil
		case flows.ScanClaimed:
			account = a
			return nil
		case flows.ScanReset:
			account, err = scanAccount(tx.QueryRow(ctx, `
				UPDATE accounts SET
					external_ref = $2,
					password_hash = '',
					email_verified = FALSE,
					password_verified = FALSE,
					is_registered = FALSE,
					is_logged_out = FALSE,
					requires_reauth = FALSE,
					last_login_at = NULL,
					last_logout_at = NULL,
					last_password_check = NULL,
					updated_at = $3
				WHERE id = $1
				RETURNING `+accountColumns, a.ID, identity.Ref, now))
			if err != nil {
				return fmt.Errorf("postgres: reset account: %w", err)
			}
			return nil
		default:
			account = a
			if a.ExternalRef == identity.Ref {
				return nil
			}
			if _, err := tx.Exec(ctx, `UPDATE accounts SET external_ref = $2, updated_at = $3 WHERE id = $1`,
				a.ID, identity.Ref, now); err != nil {
				return fmt.Errorf("postgres: rebind account ref: %w", err)
			}
			account.ExternalRef = identity.Ref
			account.UpdatedAt = now
			return nil
		}
	})
	if err != nil {
		return 0, nil, err
	}
	return outcome, account, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, identity goEnroll.Identity) (*goEnroll.Account, error) {
	a, err := scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE external_ref = $1 FOR UPDATE`, identity.Ref))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: lock account by ref: %w", err)
	}

	a, err = scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1) FOR UPDATE`, identity.Email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: lock account by email: %w", err)
	}
	return a, nil
}

// CompleteRegistration upserts the account keyed by external ref. The
// update branch only applies to unclaimed rows; when it is skipped no row
// is returned and the call fails with goEnroll.ErrAlreadyRegistered.
func (s *AccountStore) CompleteRegistration(ctx context.Context, identity goEnroll.Identity, passwordHash string, now time.Time) (*goEnroll.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, `
		INSERT INTO accounts (
			id, external_ref, username, email, name, phone, password_hash,
			email_verified, password_verified, is_registered, is_active, is_logged_out, requires_reauth,
			last_password_check, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			TRUE, TRUE, TRUE, TRUE, FALSE, FALSE,
			$8, $8, $8
		)
		ON CONFLICT (external_ref) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			password_hash = EXCLUDED.password_hash,
			email_verified = TRUE,
			password_verified = TRUE,
			is_registered = TRUE,
			is_active = TRUE,
			is_logged_out = FALSE,
			requires_reauth = FALSE,
			last_password_check = EXCLUDED.last_password_check,
			updated_at = EXCLUDED.updated_at
		WHERE NOT (accounts.is_registered AND NOT accounts.is_logged_out)
		RETURNING `+accountColumns,
		s.newID(), identity.Ref, identity.Username, goEnroll.NormalizeEmail(identity.Email),
		identity.Name, identity.Phone, passwordHash, now,
	))
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, goEnroll.ErrAlreadyRegistered
	case isUniqueViolation(err):
		// Username or email is held by another identity's account.
		return nil, goEnroll.ErrAlreadyRegistered
	default:
		return nil, fmt.Errorf("postgres: register account: %w", err)
	}
}

// GetByID implements goEnroll.AccountStore.
func (s *AccountStore) GetByID(ctx context.Context, id string) (*goEnroll.Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByUsername implements goEnroll.AccountStore.
func (s *AccountStore) GetByUsername(ctx context.Context, username string) (*goEnroll.Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(username) = lower($1)`, username)
}

// GetByEmail implements goEnroll.AccountStore.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*goEnroll.Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
}

func (s *AccountStore) getOne(ctx context.Context, query string, arg string) (*goEnroll.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, goEnroll.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get account: %w", err)
	}
	return a, nil
}

// RecordLogin implements goEnroll.AccountStore.
func (s *AccountStore) RecordLogin(ctx context.Context, id string, at time.Time, passwordChecked bool) error {
	return s.exec(ctx, "record login", `
		UPDATE accounts SET
			last_login_at = $2,
			is_logged_out = FALSE,
			requires_reauth = FALSE,
			is_active = TRUE,
			last_password_check = CASE WHEN $3 THEN $2 ELSE last_password_check END,
			updated_at = $2
		WHERE id = $1`, id, at, passwordChecked)
}

// SetRequiresReauth implements goEnroll.AccountStore.
func (s *AccountStore) SetRequiresReauth(ctx context.Context, id string, required bool) error {
	return s.exec(ctx, "set requires reauth",
		`UPDATE accounts SET requires_reauth = $2 WHERE id = $1`, id, required)
}

// MarkLoggedOut implements goEnroll.AccountStore.
func (s *AccountStore) MarkLoggedOut(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, "mark logged out",
		`UPDATE accounts SET is_logged_out = TRUE, last_logout_at = $2, updated_at = $2 WHERE id = $1`, id, at)
}

// Repair implements goEnroll.AccountStore.
func (s *AccountStore) Repair(ctx context.Context, id string) error {
	return s.exec(ctx, "repair account",
		`UPDATE accounts SET is_active = TRUE, is_registered = TRUE WHERE id = $1`, id)
}

func (s *AccountStore) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return goEnroll.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*goEnroll.Account, error) {
	var a goEnroll.Account
	err := row.Scan(
		&a.ID, &a.ExternalRef, &a.Username, &a.Email, &a.Name, &a.Phone, &a.PasswordHash,
		&a.EmailVerified, &a.PasswordVerified, &a.IsRegistered, &a.IsActive, &a.IsLoggedOut, &a.RequiresReauth,
		&a.LastLoginAt, &a.LastLogoutAt, &a.LastPasswordCheck, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
