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

package databases

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/dbchat/pkg/config"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "test.db"),
	}

	pool := NewPool()
	t.Cleanup(func() { _ = pool.Close() })

	adapter, err := NewAdapter(cfg, pool)
	require.NoError(t, err)

	_, err = adapter.db.Exec(`CREATE TABLE city (id INTEGER PRIMARY KEY, name TEXT NOT NULL, population INTEGER)`)
	require.NoError(t, err)
	_, err = adapter.db.Exec(`CREATE TABLE country (code TEXT PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = adapter.db.Exec(`INSERT INTO city (id, name, population) VALUES (1, 'Toronto', 2930000), (2, 'Tokyo', 13960000)`)
	require.NoError(t, err)

	return adapter
}

func TestListTables(t *testing.T) {
	adapter := newTestAdapter(t)

	tables, err := adapter.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "country"}, tables)
}

func TestDescribeTables(t *testing.T) {
	adapter := newTestAdapter(t)

	description, err := adapter.DescribeTables(context.Background(), []string{"city", "country"})
	require.NoError(t, err)

	assert.Contains(t, description, "CREATE TABLE city")
	assert.Contains(t, description, "CREATE TABLE country")
	assert.Contains(t, description, "population INTEGER")

	_, err = adapter.DescribeTables(context.Background(), []string{"missing"})
	assert.Error(t, err)
}

func TestLoadDataRequiresQuery(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.LoadData(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrMissingQuery)
}

func TestLoadDataBuildsDocuments(t *testing.T) {
	adapter := newTestAdapter(t)

	docs, err := adapter.LoadData(context.Background(), "SELECT id, name FROM city ORDER BY id", nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "1, Toronto", docs[0].Text)
	assert.Equal(t, "2, Tokyo", docs[1].Text)
	assert.NotEmpty(t, docs[0].ID)
}

func TestLoadDataInvokesHandler(t *testing.T) {
	adapter := newTestAdapter(t)

	var gotQuery string
	var gotRows [][]any
	handler := func(query string, rows [][]any) {
		gotQuery = query
		gotRows = rows
	}

	query := "SELECT name, population FROM city ORDER BY population DESC"
	_, err := adapter.LoadData(context.Background(), query, handler)
	require.NoError(t, err)

	assert.Equal(t, query, gotQuery)
	require.Len(t, gotRows, 2)
	assert.Equal(t, "Tokyo", gotRows[0][0])
	assert.Equal(t, int64(13960000), gotRows[0][1])
}

func TestLoadDataBadQuery(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.LoadData(context.Background(), "SELECT nope FROM missing", nil)
	assert.Error(t, err)
}

func TestPoolReusesConnections(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "shared.db"),
	}

	pool := NewPool()
	t.Cleanup(func() { _ = pool.Close() })

	db1, err := pool.Get(cfg)
	require.NoError(t, err)
	db2, err := pool.Get(cfg)
	require.NoError(t, err)

	assert.Same(t, db1, db2, "same DSN should yield the same pool")
}
