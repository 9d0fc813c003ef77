package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"picturecoupon/internal/config"
	"picturecoupon/internal/database"
	"picturecoupon/internal/models"
	"picturecoupon/internal/pictures"
	"picturecoupon/internal/repository"
)

type fakeAttachments struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]models.Attachment
	err    error
}

func newFakeAttachments() *fakeAttachments {
	return &fakeAttachments{nextID: 100, rows: map[int64]models.Attachment{}}
}

func (f *fakeAttachments) Create(_ context.Context, a models.Attachment) (models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.Attachment{}, f.err
	}
	f.nextID++
	a.ID = f.nextID
	f.rows[a.ID] = a
	return a, nil
}

func (f *fakeAttachments) GetByID(_ context.Context, id int64) (models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return models.Attachment{}, repository.ErrAttachmentNotFound
	}
	return a, nil
}

type putCall struct {
	bucket      string
	key         string
	data        []byte
	contentType string
}

type fakeObjects struct {
	puts []putCall
	err  error
	// failAfter makes every Put after the first failAfter calls fail with err.
	failAfter int
}

func (f *fakeObjects) OriginalsBucket() string {
	return "originals"
}

func (f *fakeObjects) Put(_ context.Context, bucket, key string, r io.Reader, size int64, contentType string) (int64, error) {
	if f.err != nil && len(f.puts) >= f.failAfter {
		return 0, f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	f.puts = append(f.puts, putCall{bucket: bucket, key: key, data: data, contentType: contentType})
	return size, nil
}

type fakeQueue struct {
	tasks []map[string]any
}

func (f *fakeQueue) Enqueue(_ context.Context, values map[string]any) error {
	f.tasks = append(f.tasks, values)
	return nil
}

type fakeUsers struct {
	users []models.User
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeUsers) List(_ context.Context, limit, offset int) ([]models.User, error) {
	if offset >= len(f.users) {
		return nil, nil
	}
	end := min(offset+limit, len(f.users))
	return f.users[offset:end], nil
}

type fakeSettings struct {
	values map[string]string
	err    error
}

func (f *fakeSettings) Get(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.values[key]
	if !ok {
		return "", repository.ErrSettingNotFound
	}
	return v, nil
}

func (f *fakeSettings) Set(_ context.Context, key, value string) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
	return nil
}

type fakeOrders struct {
	rows map[string]models.OrderPicture
}

func (f *fakeOrders) SavePicture(_ context.Context, snapshot models.OrderPicture) error {
	if f.rows == nil {
		f.rows = map[string]models.OrderPicture{}
	}
	if existing, ok := f.rows[snapshot.OrderID]; ok && existing.UserID != snapshot.UserID {
		return repository.ErrOrderPictureConflict
	}
	f.rows[snapshot.OrderID] = snapshot
	return nil
}

func (f *fakeOrders) GetPicture(_ context.Context, orderID string) (models.OrderPicture, error) {
	snapshot, ok := f.rows[orderID]
	if !ok {
		return models.OrderPicture{}, repository.ErrOrderPictureNotFound
	}
	return snapshot, nil
}

var errBoom = errors.New("boom")

type fixture struct {
	cfg         *config.AppConfig
	meta        pictures.MetaStore
	attachments *fakeAttachments
	objects     *fakeObjects
	queue       *fakeQueue
	users       *fakeUsers
	settings    *fakeSettings
	loader      *pictures.Loader
	pictures    *PictureService
}

func newFixture(t *testing.T, max int) *fixture {
	t.Helper()

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.AppConfig{}
	cfg.Storage.Endpoint = "cdn.example.test"
	cfg.Storage.UseSSL = true
	cfg.Pictures.MaxUploadBytes = 1 << 20
	cfg.Security.SignatureSecret = "sig"

	f := &fixture{
		cfg:         cfg,
		meta:        repository.NewSQLiteMetaRepository(db),
		attachments: newFakeAttachments(),
		objects:     &fakeObjects{},
		queue:       &fakeQueue{},
		users: &fakeUsers{users: []models.User{
			{ID: 1, Email: "ana@example.test", DisplayName: "Ana"},
			{ID: 2, Email: "bo@example.test", DisplayName: "Bo"},
		}},
		settings: &fakeSettings{values: map[string]string{}},
	}

	settings := NewSettingsService(f.settings, max, zerolog.Nop())
	resolver := NewAttachmentResolver(f.attachments, cfg.Storage)
	f.loader = pictures.NewLoader(f.meta, resolver, settings)
	f.pictures = NewPictureService(f.loader, f.users, f.attachments, f.objects, f.queue, cfg, zerolog.Nop())
	return f
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func pngFile(t *testing.T, name string) UploadFile {
	data := pngBytes(t)
	return UploadFile{
		FileName:    name,
		ContentType: "image/png",
		Size:        int64(len(data)),
		Reader:      bytes.NewReader(data),
	}
}
