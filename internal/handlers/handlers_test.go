package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picturecoupon/internal/config"
	"picturecoupon/internal/database"
	"picturecoupon/internal/models"
	"picturecoupon/internal/pictures"
	"picturecoupon/internal/repository"
	"picturecoupon/internal/service"
)

type memAttachments struct {
	rows   map[int64]models.Attachment
	nextID int64
}

func (m *memAttachments) Create(_ context.Context, a models.Attachment) (models.Attachment, error) {
	m.nextID++
	a.ID = m.nextID
	m.rows[a.ID] = a
	return a, nil
}

func (m *memAttachments) GetByID(_ context.Context, id int64) (models.Attachment, error) {
	a, ok := m.rows[id]
	if !ok {
		return models.Attachment{}, repository.ErrAttachmentNotFound
	}
	return a, nil
}

func (m *memAttachments) List(_ context.Context, limit, offset int) ([]models.Attachment, error) {
	out := []models.Attachment{}
	for id := int64(1); id <= m.nextID; id++ {
		if a, ok := m.rows[id]; ok {
			out = append(out, a)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

type memObjects struct {
	count     int
	failAfter int
}

func (m *memObjects) OriginalsBucket() string { return "originals" }

func (m *memObjects) Put(_ context.Context, _, _ string, r io.Reader, size int64, _ string) (int64, error) {
	if m.failAfter > 0 && m.count >= m.failAfter {
		return 0, errors.New("bucket unavailable")
	}
	m.count++
	_, err := io.Copy(io.Discard, r)
	return size, err
}

type memUsers []models.User

func (m memUsers) GetByID(_ context.Context, id int64) (models.User, error) {
	for _, u := range m {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m memUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range m {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m memUsers) List(_ context.Context, limit, offset int) ([]models.User, error) {
	if offset >= len(m) {
		return nil, nil
	}
	return m[offset:min(offset+limit, len(m))], nil
}

type memSettings map[string]string

func (m memSettings) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", repository.ErrSettingNotFound
	}
	return v, nil
}

func (m memSettings) Set(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

type memOrders map[string]models.OrderPicture

func (m memOrders) SavePicture(_ context.Context, s models.OrderPicture) error {
	if existing, ok := m[s.OrderID]; ok && existing.UserID != s.UserID {
		return repository.ErrOrderPictureConflict
	}
	m[s.OrderID] = s
	return nil
}

func (m memOrders) GetPicture(_ context.Context, orderID string) (models.OrderPicture, error) {
	s, ok := m[orderID]
	if !ok {
		return models.OrderPicture{}, repository.ErrOrderPictureNotFound
	}
	return s, nil
}

type noQueue struct{}

func (noQueue) Enqueue(context.Context, map[string]any) error { return nil }

type testServer struct {
	router      *gin.Engine
	meta        pictures.MetaStore
	attachments *memAttachments
	objects     *memObjects
	orders      memOrders
}

var (
	shopper = models.User{ID: 1, Email: "ana@example.test", DisplayName: "Ana", Role: models.UserRoleUser, Status: models.UserStatusActive}
	admin   = models.User{ID: 2, Email: "root@example.test", DisplayName: "Root", Role: models.UserRoleAdmin, Status: models.UserStatusActive}
)

func newTestServer(t *testing.T, max int, current models.User) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.AppConfig{}
	cfg.Storage.PublicURL = "https://img.example.test"
	cfg.Pictures.MaxUploadBytes = 1 << 20

	ts := &testServer{
		meta:        repository.NewSQLiteMetaRepository(db),
		attachments: &memAttachments{rows: map[int64]models.Attachment{}},
		objects:     &memObjects{},
		orders:      memOrders{},
	}
	users := memUsers{shopper, admin}
	log := zerolog.Nop()

	settings := service.NewSettingsService(memSettings{}, max, log)
	loader := pictures.NewLoader(ts.meta, service.NewAttachmentResolver(ts.attachments, cfg.Storage), settings)

	h := HandlerSet{
		log:         log,
		cfg:         cfg,
		pictures:    service.NewPictureService(loader, users, ts.attachments, ts.objects, noQueue{}, cfg, log),
		orders:      service.NewOrderService(ts.orders, loader, log),
		settings:    settings,
		attachments: ts.attachments,
	}

	asUser := func(c *gin.Context) {
		c.Set("current_user", current)
		c.Next()
	}

	ts.router = gin.New()
	h.mount(ts.router.Group("/api/v1"), gin.HandlersChain{asUser}, gin.HandlersChain{asUser})
	return ts
}

func (ts *testServer) seed(t *testing.T, userID int64, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		ts.attachments.rows[id] = models.Attachment{ID: id, Bucket: "originals", ObjectKey: "2024/01/01/p.png", FileName: "p.png"}
		ts.attachments.nextID = max(ts.attachments.nextID, id)
	}
	require.NoError(t, ts.meta.Store(context.Background(), userID, pictures.HistoryMetaKey, ids))
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func multipartPNGs(t *testing.T, field string, n int) (*bytes.Buffer, string) {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2))))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i := 0; i < n; i++ {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="me.png"`)
		header.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(img.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestListPicturesEmpty(t *testing.T) {
	ts := newTestServer(t, 10, shopper)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/pictures", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp historyResponse
	decode(t, w, &resp)
	assert.Nil(t, resp.Current)
	assert.Empty(t, resp.Older)
	assert.Equal(t, 10, resp.Max)
	assert.False(t, resp.IsFull)
}

func TestListPicturesSplitsCurrentAndOlder(t *testing.T) {
	ts := newTestServer(t, 10, shopper)
	ts.seed(t, shopper.ID, 1, 2, 3)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/pictures", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp historyResponse
	decode(t, w, &resp)
	require.NotNil(t, resp.Current)
	assert.Equal(t, int64(3), resp.Current.ID)
	assert.Contains(t, resp.Current.Avatar, "avatar-96")
	require.Len(t, resp.Older, 2)
	assert.Equal(t, int64(1), resp.Older[0].ID)
	assert.Contains(t, resp.Older[0].Avatar, "avatar-64")
	assert.Equal(t, "https://img.example.test/originals/2024/01/01/p.png", resp.Older[0].PublicURL)
}

func TestUploadPictures(t *testing.T) {
	ts := newTestServer(t, 2, shopper)

	body, contentType := multipartPNGs(t, "picture[]", 3)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pictures", body)
	req.Header.Set("Content-Type", contentType)

	w := ts.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Accepted []pictures.PictureData `json:"accepted"`
		Skipped  int                    `json:"skipped"`
		History  historyResponse        `json:"history"`
	}
	decode(t, w, &resp)
	assert.Len(t, resp.Accepted, 2)
	assert.Equal(t, 1, resp.Skipped)
	assert.True(t, resp.History.IsFull)
	assert.Equal(t, 2, ts.objects.count)

	body, contentType = multipartPNGs(t, "picture", 1)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/pictures", body)
	req.Header.Set("Content-Type", contentType)
	w = ts.do(req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUploadReportsFilesThatFailedToStore(t *testing.T) {
	ts := newTestServer(t, 10, shopper)
	ts.objects.failAfter = 1

	body, contentType := multipartPNGs(t, "picture", 2)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pictures", body)
	req.Header.Set("Content-Type", contentType)

	w := ts.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Accepted []pictures.PictureData  `json:"accepted"`
		Failed   []service.UploadFailure `json:"failed"`
		History  historyResponse         `json:"history"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Accepted, 1)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "me.png", resp.Failed[0].Name)
	require.NotNil(t, resp.History.Current)
	assert.Equal(t, resp.Accepted[0].ID, resp.History.Current.ID)
}

func TestUploadWithoutFiles(t *testing.T) {
	ts := newTestServer(t, 10, shopper)

	body, contentType := multipartPNGs(t, "other", 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pictures", body)
	req.Header.Set("Content-Type", contentType)
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)

	assert.Equal(t, http.StatusBadRequest, ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/pictures", nil)).Code)
}

func TestRestoreAndRemovePicture(t *testing.T) {
	ts := newTestServer(t, 10, shopper)
	ts.seed(t, shopper.ID, 1, 2, 3)

	w := ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/pictures/1/restore", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp historyResponse
	decode(t, w, &resp)
	assert.Equal(t, int64(1), resp.Current.ID)

	w = ts.do(httptest.NewRequest(http.MethodDelete, "/api/v1/pictures/2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	ids, err := ts.meta.Load(context.Background(), shopper.ID, pictures.HistoryMetaKey)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, ids)

	assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodDelete, "/api/v1/pictures/42", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(httptest.NewRequest(http.MethodDelete, "/api/v1/pictures/abc", nil)).Code)
}

func TestAvatarByIDAndEmail(t *testing.T) {
	ts := newTestServer(t, 10, shopper)

	assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/avatars/1", nil)).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/avatars/99", nil)).Code)

	ts.seed(t, shopper.ID, 5)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/avatars/ana@example.test?size=48", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		UserID int64  `json:"userId"`
		Size   int    `json:"size"`
		Avatar string `json:"avatar"`
	}
	decode(t, w, &resp)
	assert.Equal(t, int64(1), resp.UserID)
	assert.Equal(t, 48, resp.Size)
	assert.Contains(t, resp.Avatar, "height='48'")
}

func TestCheckoutWidgetAndOrderSnapshot(t *testing.T) {
	ts := newTestServer(t, 10, shopper)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/widget", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var widget map[string]any
	decode(t, w, &widget)
	assert.Equal(t, false, widget["hasProfilePicture"])

	ts.seed(t, shopper.ID, 7)
	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/widget", nil))
	decode(t, w, &widget)
	assert.Equal(t, true, widget["hasProfilePicture"])
	assert.Contains(t, widget["avatar"], "avatar-128")

	w = ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/orders/A-1/picture", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders/A-1/picture", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var order map[string]any
	decode(t, w, &order)
	assert.EqualValues(t, 1, order["userId"])

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders/B-2/picture", nil))
	decode(t, w, &order)
	assert.Nil(t, order["picture"])
	assert.Equal(t, noCheckoutPicture, order["message"])
}

func TestOrderSnapshotOfAnotherUserIsConflict(t *testing.T) {
	ts := newTestServer(t, 10, shopper)
	ts.seed(t, shopper.ID, 7)
	ts.orders["A-1"] = models.OrderPicture{OrderID: "A-1", UserID: admin.ID, PictureID: 3}

	w := ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/orders/A-1/picture", nil))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"order_picture_conflict"}`, w.Body.String())
	assert.Equal(t, admin.ID, ts.orders["A-1"].UserID)
	assert.Equal(t, int64(3), ts.orders["A-1"].PictureID)
}

func TestAdminUserHistory(t *testing.T) {
	ts := newTestServer(t, 10, admin)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/profile-pictures/1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/profile-pictures/9", nil)).Code)

	ts.seed(t, shopper.ID, 4)
	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/profile-pictures/1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"count": 1,
		"user": {"id": 1, "display_name": "Ana", "username": "ana@example.test"},
		"pictures": [{"id": 4, "name": "p.png", "public_url": "https://img.example.test/originals/2024/01/01/p.png", "type": "png"}]
	}`, w.Body.String())

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/profile-pictures", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var all []pictures.HistoryData
	decode(t, w, &all)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].Count)
	assert.Equal(t, 0, all[1].Count)
}

func TestAdminSettings(t *testing.T) {
	ts := newTestServer(t, 10, admin)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/settings", bytes.NewBufferString(`{"maxProfilePictures":"3"}`))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"maxProfilePictures":"3","effectiveMaxProfilePictures":3,"defaultMaxProfilePictures":10}`, w.Body.String())

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/pictures", nil))
	var resp historyResponse
	decode(t, w, &resp)
	assert.Equal(t, 3, resp.Max)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/admin/settings", bytes.NewBufferString(`{"maxProfilePictures":"lots"}`))
	req.Header.Set("Content-Type", "application/json")
	w = ts.do(req)
	assert.JSONEq(t, `{"maxProfilePictures":"lots","effectiveMaxProfilePictures":10,"defaultMaxProfilePictures":10}`, w.Body.String())
}

func TestAdminListAttachments(t *testing.T) {
	ts := newTestServer(t, 10, admin)
	ts.seed(t, shopper.ID, 1, 2, 3)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/attachments?perPage=2&page=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Items []map[string]any `json:"items"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Items, 1)
	assert.EqualValues(t, 3, resp.Items[0]["id"])
	assert.Equal(t, false, resp.Items[0]["verified"])
}
