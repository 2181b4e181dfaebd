package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/arbiter/internal/domain"
	"github.com/soyeahso/arbiter/internal/logging"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.sql.PingContext(context.Background()))
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate(context.Background()))

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestOpen_SeparateDatabases(t *testing.T) {
	a := NewAgentStore(testDB(t))
	b := NewAgentStore(testDB(t))
	ctx := context.Background()

	_, err := a.Create(ctx, domain.Agent{Name: "only-in-a", Model: "m"})
	require.NoError(t, err)

	list, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// --- AgentStore tests ---

func TestAgentStore_CreateAndFind(t *testing.T) {
	s := NewAgentStore(testDB(t))
	ctx := context.Background()

	created, err := s.Create(ctx, domain.Agent{
		Name:         "foo",
		Description:  "hi there",
		Model:        "gpt-4",
		SystemPrompt: "be nice",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.AgentStatusIdle, created.Status)

	got, ok, err := s.FindByName(ctx, "foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "hi there", got.Description)
	assert.Equal(t, "gpt-4", got.Model)
	assert.Equal(t, "be nice", got.SystemPrompt)
	assert.Equal(t, domain.AgentStatusIdle, got.Status)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func TestAgentStore_FindMissing(t *testing.T) {
	s := NewAgentStore(testDB(t))
	_, ok, err := s.FindByName(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAgentStore_NamesAreCaseSensitive(t *testing.T) {
	s := NewAgentStore(testDB(t))
	ctx := context.Background()
	_, err := s.Create(ctx, domain.Agent{Name: "Foo", Model: "m"})
	require.NoError(t, err)

	_, ok, err := s.FindByName(ctx, "foo")
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := s.DeleteByName(ctx, "foo")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestAgentStore_DuplicatesDeleteFirst(t *testing.T) {
	s := NewAgentStore(testDB(t))
	ctx := context.Background()

	for _, d := range []string{"first", "second"} {
		_, err := s.Create(ctx, domain.Agent{Name: "dup", Description: d, Model: "m"})
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, domain.Agent{Name: "other", Model: "m"})
	require.NoError(t, err)

	got, ok, err := s.FindByName(ctx, "dup")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", got.Description)

	deleted, err := s.DeleteByName(ctx, "dup")
	require.NoError(t, err)
	assert.True(t, deleted)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Description)
	assert.Equal(t, "other", list[1].Name)
}

func TestAgentStore_ListOrder(t *testing.T) {
	s := NewAgentStore(testDB(t))
	ctx := context.Background()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	for _, n := range []string{"zeta", "alpha", "mid"} {
		_, err := s.Create(ctx, domain.Agent{Name: n, Model: "m"})
		require.NoError(t, err)
	}
	list, err = s.List(ctx)
	require.NoError(t, err)
	var names []string
	for _, a := range list {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
}

func TestAgentStore_ClosedDBReturnsError(t *testing.T) {
	db, err := Open(context.Background(), logging.New(nil, "silent"))
	require.NoError(t, err)
	s := NewAgentStore(db)
	require.NoError(t, db.Close())

	_, err = s.Create(context.Background(), domain.Agent{Name: "x", Model: "m"})
	assert.Error(t, err)
	_, err = s.List(context.Background())
	assert.Error(t, err)
}
