package local

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"io"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-buildtracker"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ErrEmailTaken = goerrors.New("user already registered", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict).
	WithTextCode("EMAIL_TAKEN")

// Backend implements buildtracker.AuthBackend on the application database
type Backend struct {
	db         *bun.DB
	accounts   repository.Repository[*accountRecord]
	tokens     *buildtracker.TokenService
	refreshTTL time.Duration
	cost       int
	logger     buildtracker.Logger
	now        func() time.Time
}

var _ buildtracker.AuthBackend = (*Backend)(nil)

// NewBackend creates a backend issuing tokens with tokens
func NewBackend(db *bun.DB, tokens *buildtracker.TokenService) *Backend {
	return &Backend{
		db: db,
		accounts: repository.NewRepository[*accountRecord](db, repository.ModelHandlers[*accountRecord]{
			NewRecord: func() *accountRecord { return &accountRecord{} },
			GetID: func(a *accountRecord) uuid.UUID {
				if a == nil {
					return uuid.Nil
				}
				return a.ID
			},
			SetID: func(a *accountRecord, id uuid.UUID) {
				if a != nil {
					a.ID = id
				}
			},
			GetIdentifier: func() string {
				return "email"
			},
		}),
		tokens:     tokens,
		refreshTTL: 30 * 24 * time.Hour,
		cost:       DefaultCost,
		logger:     nopLogger{},
		now:        time.Now,
	}
}

func (b *Backend) WithLogger(l buildtracker.Logger) *Backend {
	if l != nil {
		b.logger = l
	}
	return b
}

// WithRefreshTTL sets the lifetime of refresh tokens
func (b *Backend) WithRefreshTTL(d time.Duration) *Backend {
	if d > 0 {
		b.refreshTTL = d
	}
	return b
}

// WithCost sets the bcrypt cost, tests use bcrypt.MinCost
func (b *Backend) WithCost(cost int) *Backend {
	b.cost = cost
	return b
}

type credentials struct {
	Email    string
	Password string
}

func (c credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Password, validation.Required, validation.Length(6, 72)),
	)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (b *Backend) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*buildtracker.Tokens, error) {
	creds := credentials{Email: normalizeEmail(email), Password: password}
	if err := creds.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sign up").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"fields": buildtracker.FormatValidationErrorToMap(err)})
	}

	hash, err := HashPassword(creds.Password, b.cost)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "hash password")
	}

	var tokens *buildtracker.Tokens
	err = b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*accountRecord)(nil)).
			Where("?TableAlias.email = ?", creds.Email).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return ErrEmailTaken.Clone()
		}

		record, err := b.accounts.CreateTx(ctx, tx, &accountRecord{
			ID:           uuid.New(),
			Email:        creds.Email,
			PasswordHash: hash,
			UserMetadata: metadata,
		})
		if err != nil {
			return err
		}

		tokens, err = b.issue(ctx, tx, record.account(), uuid.NewString())
		return err
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("account registered", "user_id", tokens.User.ID)
	return tokens, nil
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*buildtracker.Tokens, error) {
	record, err := b.findByEmail(ctx, b.db, normalizeEmail(email))
	if err != nil {
		if buildtracker.IsRecordNotFound(err) {
			return nil, buildtracker.ErrInvalidCredentials.Clone()
		}
		return nil, err
	}

	if err := ComparePasswordAndHash(password, record.PasswordHash); err != nil {
		b.logger.Debug("password mismatch", "user_id", record.ID.String())
		return nil, buildtracker.ErrInvalidCredentials.Clone()
	}

	return b.issue(ctx, b.db, record.account(), uuid.NewString())
}

// Refresh rotates refreshToken: the presented token is revoked and a new
// pair is issued for the same session
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*buildtracker.Tokens, error) {
	var tokens *buildtracker.Tokens
	reusedSession := ""
	err := b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := &refreshTokenRecord{}
		err := tx.NewSelect().
			Model(current).
			Where("?TableAlias.token = ?", refreshToken).
			Scan(ctx)
		if err != nil {
			if goerrors.Is(err, sql.ErrNoRows) {
				return invalidRefreshToken("not found")
			}
			return err
		}

		if current.Revoked {
			reusedSession = current.SessionID
			return invalidRefreshToken("already used")
		}

		if b.now().After(current.ExpiresAt) {
			return invalidRefreshToken("expired")
		}

		if _, err := tx.NewUpdate().
			Model((*refreshTokenRecord)(nil)).
			Set("revoked = ?", true).
			Where("token = ?", current.Token).
			Exec(ctx); err != nil {
			return err
		}

		account := &accountRecord{}
		if err := tx.NewSelect().
			Model(account).
			Where("?TableAlias.id = ?", current.AccountID).
			Scan(ctx); err != nil {
			return invalidRefreshToken("account missing")
		}

		tokens, err = b.issue(ctx, tx, account.account(), current.SessionID)
		return err
	})

	// a revoked token presented again ends the whole session
	if reusedSession != "" {
		if _, rerr := b.revokeSession(ctx, b.db, reusedSession); rerr != nil {
			b.logger.Error("revoke reused session failed", "error", rerr)
		}
	}

	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// SignOut revokes every refresh token of the access token session
func (b *Backend) SignOut(ctx context.Context, accessToken string) error {
	claims, err := b.tokens.Parse(accessToken)
	if err != nil {
		return err
	}
	if claims.SessionID == "" {
		return nil
	}
	n, err := b.revokeSession(ctx, b.db, claims.SessionID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "revoke session")
	}
	b.logger.Debug("session revoked", "user_id", claims.Subject, "tokens", n)
	return nil
}

func (b *Backend) GetUser(ctx context.Context, accessToken string) (*buildtracker.Account, error) {
	claims, err := b.tokens.Parse(accessToken)
	if err != nil {
		return nil, err
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, buildtracker.ErrTokenMalformed.Clone()
	}

	record := &accountRecord{}
	if err := b.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", uid).
		Scan(ctx); err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, buildtracker.ErrNotAuthenticated.Clone()
		}
		return nil, err
	}
	return record.account(), nil
}

// ResetPasswordForEmail does not send mail, it logs the request. Unknown
// emails are not reported.
func (b *Backend) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	record, err := b.findByEmail(ctx, b.db, normalizeEmail(email))
	if err != nil {
		if buildtracker.IsRecordNotFound(err) {
			return nil
		}
		return err
	}
	b.logger.Info("password reset requested", "user_id", record.ID.String(), "redirect_to", redirectTo)
	return nil
}

// VerifyToken validates the access token signature and expiry
func (b *Backend) VerifyToken(ctx context.Context, token string) (*buildtracker.Session, error) {
	return b.tokens.VerifyToken(ctx, token)
}

func (b *Backend) findByEmail(ctx context.Context, db bun.IDB, email string) (*accountRecord, error) {
	record := &accountRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, buildtracker.ErrRecordNotFound.Clone()
		}
		return nil, err
	}
	return record, nil
}

func (b *Backend) issue(ctx context.Context, db bun.IDB, account *buildtracker.Account, sessionID string) (*buildtracker.Tokens, error) {
	access, expiresAt, err := b.tokens.Sign(account, sessionID)
	if err != nil {
		return nil, err
	}

	refresh, err := newRefreshToken()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "generate refresh token")
	}

	uid, err := uuid.Parse(account.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account id")
	}

	if _, err := db.NewInsert().Model(&refreshTokenRecord{
		Token:     refresh,
		AccountID: uid,
		SessionID: sessionID,
		ExpiresAt: b.now().Add(b.refreshTTL),
	}).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "store refresh token")
	}

	return &buildtracker.Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(b.tokens.TTL().Seconds()),
		ExpiresAt:    expiresAt.Unix(),
		User:         account,
	}, nil
}

func (b *Backend) revokeSession(ctx context.Context, db bun.IDB, sessionID string) (int64, error) {
	res, err := db.NewUpdate().
		Model((*refreshTokenRecord)(nil)).
		Set("revoked = ?", true).
		Where("session_id = ?", sessionID).
		Where("revoked = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func invalidRefreshToken(reason string) error {
	return goerrors.New("Invalid Refresh Token", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode("INVALID_REFRESH_TOKEN").
		WithMetadata(map[string]any{"reason": reason})
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

type nopLogger struct{}

func (nopLogger) Debug(format string, args ...any) {}
func (nopLogger) Info(format string, args ...any)  {}
func (nopLogger) Warn(format string, args ...any)  {}
func (nopLogger) Error(format string, args ...any) {}
