package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smartdoc-go/internal/model"
	"smartdoc-go/internal/repository"
	"smartdoc-go/internal/service"
	"smartdoc-go/pkg/tasks"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type discardObjects struct{}

func (discardObjects) Put(_ context.Context, _ string, r io.Reader, _ int64, _ string) error {
	_, err := io.Copy(io.Discard, r)
	return err
}
func (discardObjects) Remove(context.Context, string) error { return nil }
func (discardObjects) PresignedURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

type noChunks struct{}

func (noChunks) Clear(context.Context, uint) error { return nil }

type countingDispatcher struct{ n int }

func (d *countingDispatcher) Dispatch(context.Context, tasks.IngestTask) error {
	d.n++
	return nil
}

func newTestImporter(t *testing.T) (*seedImporter, *countingDispatcher, repository.DocumentRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Document{}, &model.DocumentChunk{}))

	users := repository.NewUserRepository(db)
	require.NoError(t, users.Create(&model.User{Username: "admin", Password: "x"}))
	docs := repository.NewDocumentRepository(db)
	d := &countingDispatcher{}
	documents := service.NewDocumentService(docs, repository.NewChunkRepository(db), noChunks{}, discardObjects{}, d,
		service.UploadOptions{AutoStart: false})
	return &seedImporter{users: users, docs: docs, documents: documents, owner: "admin"}, d, docs
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSeedImporter_ImportDirIsIdempotent(t *testing.T) {
	imp, dispatcher, docs := newTestImporter(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.pdf"), "%PDF-1.4 a")
	writeFile(t, filepath.Join(dir, "nested", "B.PDF"), "%PDF-1.4 b")
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a pdf")
	writeFile(t, filepath.Join(dir, "fake.pdf"), "plain text")

	n, err := imp.importDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, dispatcher.n)

	list, total, err := docs.FindByOwner(1, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, d := range list {
		assert.Equal(t, model.StatusProcessing, d.Status)
	}

	n, err = imp.importDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, dispatcher.n)
}

func TestSeedImporter_MissingDirOrOwner(t *testing.T) {
	imp, _, _ := newTestImporter(t)

	n, err := imp.importDir(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Zero(t, n)

	imp.owner = "nobody"
	_, err = imp.importDir(context.Background(), t.TempDir())
	assert.Error(t, err)
}
