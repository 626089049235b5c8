package buildtracker

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Profiles() Profiles
	Builds() Builds
	Updates() Updates
	Steps() Steps
	Comments() Comments
}

type mngr struct {
	db       *bun.DB
	profiles Profiles
	builds   Builds
	updates  Updates
	steps    Steps
	comments Comments
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:       db,
		profiles: NewProfilesRepository(db),
		builds:   NewBuildsRepository(db),
		updates:  NewUpdatesRepository(db),
		steps:    NewStepsRepository(db),
		comments: NewCommentsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}

	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.builds == nil {
		return errors.New("repository builds should be initialized")
	}

	if m.updates == nil {
		return errors.New("repository updates should be initialized")
	}

	if m.steps == nil {
		return errors.New("repository steps should be initialized")
	}

	if m.comments == nil {
		return errors.New("repository comments should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
			return f(withTx(ctx, tx), tx)
		})
	}
}

type txCtxKey struct{}

// withTx makes lookups that only receive a context, such as the profile
// lookup of an identity resolution, run inside tx
func withTx(ctx context.Context, tx bun.Tx) context.Context {
	return context.WithValue(ctx, txCtxKey{}, tx)
}

// dbFromContext returns the transaction in ctx or db
func dbFromContext(ctx context.Context, db *bun.DB) bun.IDB {
	if tx, ok := ctx.Value(txCtxKey{}).(bun.Tx); ok {
		return tx
	}
	return db
}

func (m mngr) Profiles() Profiles {
	return m.profiles
}

func (m mngr) Builds() Builds {
	return m.builds
}

func (m mngr) Updates() Updates {
	return m.updates
}

func (m mngr) Steps() Steps {
	return m.steps
}

func (m mngr) Comments() Comments {
	return m.comments
}

func uuidHandlers[T any](newRecord func() T, getID func(T) uuid.UUID, setID func(T, uuid.UUID)) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID:     getID,
		SetID:     setID,
		GetIdentifier: func() string {
			return "id"
		},
	}
}

// parseRecordID parses a route id, malformed ids are reported as not found
func parseRecordID(kind, id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, notFound(kind, id)
	}
	return uid, nil
}

func mapNotFound(err error, kind, id string) error {
	if err == nil {
		return nil
	}
	if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	return err
}
