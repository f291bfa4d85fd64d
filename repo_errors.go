package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pgUniqueViolation = "23505"

// Named constraints created by the migrations package.
var constraintColumns = map[string]string{
	"users_pkey":                          "id",
	"uq_users_username":                   "username",
	"uq_users_email":                      "email",
	"linked_accounts_pkey":                "id",
	"uq_linked_accounts_provider_account": "provider_account_id",
	"uq_linked_accounts_user_provider":    "provider",
	"api_secrets_pkey":                    "id",
	"uq_api_secrets_user_name":            "name",
}

// mapStoreError converts driver errors into the package taxonomy. notFound
// is returned for missing rows.
func mapStoreError(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}

	if repository.IsRecordNotFound(err) {
		return notFound
	}

	if column, ok := uniqueViolationColumn(err); ok {
		return &UniqueViolationError{Column: column, Err: err}
	}

	return &StoreError{Op: op, Err: err}
}

func uniqueViolationColumn(err error) (string, bool) {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		if pgErr.Field('C') != pgUniqueViolation {
			return "", false
		}
		if column, ok := constraintColumns[pgErr.Field('n')]; ok {
			return column, true
		}
		return "unknown", true
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			columns, _ := sqliteUniqueColumns(sqliteErr.Error())
			return sqliteViolationColumn(columns), true
		}
		return "", false
	}

	// repository errors keep the driver error as their source
	for e := err; e != nil; e = errors.Unwrap(e) {
		if columns, ok := sqliteUniqueColumns(e.Error()); ok {
			return sqliteViolationColumn(columns), true
		}
	}

	if repository.IsDuplicatedKey(err) {
		return "unknown", true
	}
	return "", false
}

// sqliteUniqueColumns parses "UNIQUE constraint failed: users.username (2067)".
func sqliteUniqueColumns(msg string) ([]string, bool) {
	const marker = "UNIQUE constraint failed: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return nil, false
	}

	rest := msg[i+len(marker):]
	if j := strings.Index(rest, " ("); j >= 0 {
		rest = rest[:j]
	}
	if j := strings.IndexByte(rest, ';'); j >= 0 {
		rest = rest[:j]
	}

	var columns []string
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if k := strings.LastIndexByte(part, '.'); k >= 0 {
			part = part[k+1:]
		}
		if part != "" {
			columns = append(columns, part)
		}
	}
	return columns, true
}

func sqliteViolationColumn(columns []string) string {
	has := func(name string) bool {
		for _, c := range columns {
			if c == name {
				return true
			}
		}
		return false
	}

	switch {
	case has("provider_account_id"):
		return "provider_account_id"
	case has("provider") && has("user_id"):
		return "provider"
	case has("name") && has("user_id"):
		return "name"
	case len(columns) == 1:
		return columns[0]
	}
	return "unknown"
}
