package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	chstore "waiver-wire/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database if needed and applies all
// embedded SQL files in lexical order. The returned connection targets that
// database and is owned by the caller.
func RunClickhouseMigrations(ctx context.Context, dsn string, logger logrus.FieldLogger) (conn *chstore.Conn, err error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := ensureDatabase(ctx, dsn, dbName); err != nil {
		return nil, err
	}

	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, fmt.Errorf("read embedded clickhouse migrations: %w", err)
	}

	conn, err = chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse database %s: %w", dbName, err)
	}
	defer func() {
		if err != nil {
			conn.Close()
			conn = nil
		}
	}()

	for _, file := range files {
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		stmts, err := statements(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse migration %s: %w", file, err)
		}
		// The driver runs one statement per Exec.
		for i, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("apply migration %s (statement %d): %w", file, i+1, err)
			}
		}
		if logger != nil {
			logger.WithFields(logrus.Fields{"file": file, "statements": len(stmts)}).Debug("applied clickhouse migration")
		}
	}

	return conn, nil
}

func ensureDatabase(ctx context.Context, dsn, dbName string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect to clickhouse: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

// statements splits a migration into statements on semicolons outside
// single-quoted literals. Line comments are dropped and a doubled quote is
// an escaped quote.
func statements(sql string) ([]string, error) {
	var (
		out     []string
		cur     strings.Builder
		quoted  bool
		comment bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case comment:
			if ch == '\n' {
				comment = false
				cur.WriteByte(ch)
			}
		case quoted:
			cur.WriteByte(ch)
			if ch == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					cur.WriteByte(sql[i+1])
					i++
					continue
				}
				quoted = false
			}
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			comment = true
			i++
		case ch == '\'':
			quoted = true
			cur.WriteByte(ch)
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	if quoted {
		return nil, errors.New("unterminated string literal")
	}
	flush()
	return out, nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", errors.New("clickhouse dsn missing database")
	}
	return db, nil
}
