package artifact

import (
	"context"
	"testing"

	"CimplrBankImport/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSLifecycle(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "tmp/upload_1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "tmp/upload_1", []byte("hello")))
	ok, err = s.Exists(ctx, "tmp/upload_1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Move(ctx, "tmp/upload_1", "bank_import_1.csv"))
	ok, _ = s.Exists(ctx, "tmp/upload_1")
	assert.False(t, ok)

	data, err := s.Read(ctx, "bank_import_1.csv")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Put(ctx, "bank_import_1.csv", []byte("replaced")))
	data, err = s.Read(ctx, "bank_import_1.csv")
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))

	require.NoError(t, s.Delete(ctx, "bank_import_1.csv"))
	require.NoError(t, s.Delete(ctx, "bank_import_1.csv"), "delete is idempotent")

	_, err = s.Read(ctx, "bank_import_1.csv")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Move(ctx, "tmp/missing", "x"), ErrNotFound)
}

func TestFSList(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "tmp/upload_a", []byte("a")))
	require.NoError(t, s.Put(ctx, "tmp/upload_b", []byte("b")))
	require.NoError(t, s.Put(ctx, "bank_import_c.xlsx", []byte("c")))

	objs, err := s.List(ctx, "tmp/")
	require.NoError(t, err)
	keys := make([]string, 0, len(objs))
	for _, o := range objs {
		keys = append(keys, o.Key)
		assert.False(t, o.ModTime.IsZero())
	}
	assert.ElementsMatch(t, []string{"tmp/upload_a", "tmp/upload_b"}, keys)
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "../etc/passwd", "/abs", "a/../../b", `a\b`, "."} {
		assert.Error(t, s.Put(ctx, key, []byte("x")), key)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, config.Artifacts{Backend: "fs", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "artifacts:fs", st.Name())
	assert.NoError(t, st.Ping(ctx))

	_, err = Open(ctx, config.Artifacts{Backend: "ftp"})
	assert.Error(t, err)
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "k", objectName("", "k"))
	assert.Equal(t, "stmts/k", objectName("/stmts/", "k"))
	assert.Equal(t, "k", trimPrefix("stmts", "stmts/k"))
}
