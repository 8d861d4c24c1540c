// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package databases wraps a SQL connection behind the fixed set of
// operations the agent's tools need: list tables, describe tables, and run
// arbitrary queries.
package databases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kadirpekel/dbchat/pkg/config"
	"github.com/kadirpekel/dbchat/pkg/rag"
)

// ErrMissingQuery is returned by LoadData when no query string is supplied.
var ErrMissingQuery = errors.New("a query parameter is necessary to filter the data")

// Handler is invoked after every executed query with the original query
// string and the raw result rows, in execution order.
type Handler func(query string, rows [][]any)

// Adapter exposes a SQL database to the agent. Adapters are shared across
// conversations and hold no per-caller state; anything caller-specific,
// like the query handler, travels with each call.
//
// Queries are executed verbatim against the live database; callers are
// responsible for query safety.
type Adapter struct {
	db      *sql.DB
	dialect string
}

// NewAdapter creates an adapter over a pooled connection.
func NewAdapter(cfg *config.DatabaseConfig, pool *Pool) (*Adapter, error) {
	db, err := pool.Get(cfg)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		db:      db,
		dialect: cfg.Dialect(),
	}, nil
}

// ListTables returns the user table names of the connected database.
func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	var query string
	switch a.dialect {
	case "postgres":
		query = "SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = 'public' ORDER BY tablename"
	case "mysql":
		query = "SHOW TABLES"
	case "sqlite":
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	default:
		return nil, fmt.Errorf("unsupported dialect %q", a.dialect)
	}

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}

	return tables, rows.Err()
}

// DescribeTables returns a schema description for the named tables, one
// CREATE TABLE style block per table.
func (a *Adapter) DescribeTables(ctx context.Context, names []string) (string, error) {
	var blocks []string
	for _, name := range names {
		block, err := a.describeTable(ctx, name)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (a *Adapter) describeTable(ctx context.Context, name string) (string, error) {
	if a.dialect == "sqlite" {
		// sqlite keeps the original DDL around
		var ddl string
		err := a.db.QueryRowContext(ctx,
			"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&ddl)
		if err != nil {
			return "", fmt.Errorf("failed to describe table %q: %w", name, err)
		}
		return ddl, nil
	}

	var query string
	switch a.dialect {
	case "postgres":
		query = `SELECT column_name, data_type, is_nullable
			FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = $1
			ORDER BY ordinal_position`
	case "mysql":
		query = `SELECT column_name, data_type, is_nullable
			FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY ordinal_position`
	default:
		return "", fmt.Errorf("unsupported dialect %q", a.dialect)
	}

	rows, err := a.db.QueryContext(ctx, query, name)
	if err != nil {
		return "", fmt.Errorf("failed to describe table %q: %w", name, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var column, dataType, nullable string
		if err := rows.Scan(&column, &dataType, &nullable); err != nil {
			return "", fmt.Errorf("failed to scan column: %w", err)
		}
		col := fmt.Sprintf("\t%s %s", column, dataType)
		if strings.EqualFold(nullable, "NO") {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	if len(cols) == 0 {
		return "", fmt.Errorf("table %q not found", name)
	}

	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", name, strings.Join(cols, ",\n")), nil
}

// LoadData executes an arbitrary query and returns one document per result
// row, the row's column values joined with ", ". A non-nil handler is
// invoked with the query and the raw rows before conversion.
//
// An empty query is rejected before touching the connection.
func (a *Adapter) LoadData(ctx context.Context, query string, h Handler) ([]rag.Document, error) {
	if query == "" {
		return nil, ErrMissingQuery
	}

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var items [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			// drivers hand back []byte for text columns
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		items = append(items, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if h != nil {
		h(query, items)
	}

	documents := make([]rag.Document, 0, len(items))
	for _, item := range items {
		entries := make([]string, len(item))
		for i, entry := range item {
			entries[i] = fmt.Sprint(entry)
		}
		documents = append(documents, rag.NewDocument(strings.Join(entries, ", ")))
	}

	return documents, nil
}
