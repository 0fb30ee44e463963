package auth

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log"
	"path"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	PasswordResets() *PasswordResets
	EnsureSchema(ctx context.Context) error
}

type mngr struct {
	db             *bun.DB
	users          Users
	passwordResets *PasswordResets
}

// NewRepositoryManager creates the repositories backed by db
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		users:          NewUsersRepository(db),
		passwordResets: NewPasswordResetsRepository(db, nil),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.passwordResets == nil {
		return errors.New("repository passwordResets should be initialized")
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
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) PasswordResets() *PasswordResets {
	return m.passwordResets
}

// EnsureSchema creates the tables for the database dialect if missing
func (m mngr) EnsureSchema(ctx context.Context) error {
	dir, err := schemaDir(m.db.Dialect().Name())
	if err != nil {
		return err
	}

	statements, err := loadSchema(GetSchemaFS(), dir)
	if err != nil {
		return err
	}

	return m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply schema").
					WithMetadata(map[string]any{"statement": stmt})
			}
		}
		return nil
	})
}

func schemaDir(name dialect.Name) (string, error) {
	switch name {
	case dialect.SQLite:
		return "data/sql/schema/sqlite", nil
	case dialect.PG:
		return "data/sql/schema/postgres", nil
	default:
		return "", goerrors.New("unsupported database dialect", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"dialect": name.String()})
	}
}

func loadSchema(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read schema files")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var statements []string
	for _, name := range names {
		content, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read schema file").
				WithMetadata(map[string]any{"file": name})
		}
		for _, stmt := range strings.Split(string(content), ";") {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				statements = append(statements, stmt)
			}
		}
	}

	return statements, nil
}
