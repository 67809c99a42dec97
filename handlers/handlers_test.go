package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"book-club-system/middleware"
	"book-club-system/models"
	"book-club-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingDispatcher struct {
	sent []models.Notification
}

func (d *collectingDispatcher) Dispatch(n models.Notification) {
	d.sent = append(d.sent, n)
}

type memoryUploader struct{}

func (memoryUploader) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	_, err := io.Copy(io.Discard, body)
	return "https://cdn.test/" + key, err
}

type testServer struct {
	app        *fiber.App
	store      *services.MemoryStore
	dispatcher *collectingDispatcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()
	store := services.NewMemoryStore()
	dispatcher := &collectingDispatcher{}
	rewards := services.DefaultRewards()
	levels := services.NewLevelCalculator(services.DefaultLevelThreshold)

	progression := services.NewProgressionService(store, rewards, levels, dispatcher, log)
	bulk := services.NewBulkAwardService(store, rewards, levels, dispatcher, log)
	notifications := services.NewNotificationService(store, nil, log)

	app := fiber.New(fiber.Config{Immutable: true})
	secured := app.Group("/",
		middleware.UserContextMiddleware(log),
		middleware.EnsureUserMiddleware(progression, log),
	)
	SetupProgressionRoutes(secured, progression)
	SetupClubRoutes(secured, services.NewClubService(store, progression, memoryUploader{}, log))
	SetupMembershipRoutes(secured, services.NewMembershipService(store, progression, dispatcher, log))
	SetupBookRoutes(secured, services.NewBookService(store, progression, bulk, log))
	SetupNotificationRoutes(secured, notifications)

	return &testServer{app: app, store: store, dispatcher: dispatcher}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}, roles ...string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	for _, r := range roles {
		req.Header.Add("X-User-Roles", r)
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestProgressRoutes(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/user/progress", "ana", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["xp"])
	assert.EqualValues(t, 1, body["level"])
	assert.EqualValues(t, 500, body["next_level_at"])
	assert.EqualValues(t, 500, body["remaining"])

	status, _ = s.do(t, "GET", "/user/progress", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAdminGrant(t *testing.T) {
	s := newTestServer(t)
	s.do(t, "GET", "/user/progress", "ana", nil)

	status, _ := s.do(t, "POST", "/admin/xp/grant", "boss", map[string]interface{}{"user_id": "ana", "action": "VOTAR"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := s.do(t, "POST", "/admin/xp/grant", "boss", map[string]interface{}{"user_id": "ana", "action": "COMPLETAR_LIBRO", "amount": 600}, "admin")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["level_up"])
	assert.EqualValues(t, 2, body["new_level"])

	status, _ = s.do(t, "POST", "/admin/xp/grant", "boss", map[string]interface{}{"user_id": "ana", "action": "BAILAR"}, "admin")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, "POST", "/admin/xp/grant", "boss", map[string]interface{}{"user_id": "ana", "action": "VOTAR", "amount": -1}, "admin")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, "POST", "/admin/xp/grant", "boss", map[string]interface{}{"user_id": "ghost", "action": "VOTAR"}, "admin")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = s.do(t, "GET", "/user/progress/history?page=1&size=5", "ana", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["total_items"])
}

func TestClubMembershipAndBookFlow(t *testing.T) {
	s := newTestServer(t)

	status, club := s.do(t, "POST", "/clubs", "owner", map[string]string{"name": "Lectores del Sur"})
	require.Equal(t, fiber.StatusCreated, status)
	clubID := club["id"].(string)
	assert.Equal(t, "lectores-del-sur", club["slug"])

	status, _ = s.do(t, "POST", "/clubs", "owner", map[string]string{"name": "x"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, req := s.do(t, "POST", "/clubs/"+clubID+"/join-requests", "reader", nil)
	require.Equal(t, fiber.StatusCreated, status)
	requestID := req["id"].(string)

	status, body := s.do(t, "POST", "/clubs/"+clubID+"/join-requests", "reader", nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "ALREADY_REQUESTED", body["code"])

	status, _ = s.do(t, "GET", "/clubs/"+clubID+"/join-requests", "reader", nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = s.do(t, "GET", "/clubs/"+clubID+"/join-requests", "owner", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["requests"], 1)

	status, _ = s.do(t, "POST", "/join-requests/"+requestID+"/accept", "owner", nil)
	require.Equal(t, fiber.StatusOK, status)

	status, body = s.do(t, "POST", "/join-requests/"+requestID+"/accept", "owner", nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "REQUEST_RESOLVED", body["code"])

	status, body = s.do(t, "GET", "/clubs/"+clubID, "reader", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["members"], 2)

	status, book := s.do(t, "POST", "/clubs/"+clubID+"/books", "reader", map[string]string{"title": "Pedro Páramo", "author": "Juan Rulfo"})
	require.Equal(t, fiber.StatusCreated, status)
	bookID := book["id"].(string)

	status, body = s.do(t, "POST", "/clubs/"+clubID+"/books", "owner", map[string]string{"title": "pedro paramo"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_BOOK", body["code"])

	status, _ = s.do(t, "PATCH", "/books/"+bookID+"/status", "reader", map[string]string{"status": "leido"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, "PATCH", "/books/"+bookID+"/status", "owner", map[string]string{"status": "terminado"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = s.do(t, "PATCH", "/books/"+bookID+"/status", "owner", map[string]string{"status": "leido"})
	require.Equal(t, fiber.StatusOK, status)
	award := body["award"].(map[string]interface{})
	assert.Len(t, award["members"], 2)

	// owner: 50 create + 100 read; reader: 20 join + 10 book + 100 read
	_, owner := s.do(t, "GET", "/user/progress", "owner", nil)
	assert.EqualValues(t, 150, owner["xp"])
	_, reader := s.do(t, "GET", "/user/progress", "reader", nil)
	assert.EqualValues(t, 130, reader["xp"])

	status, body = s.do(t, "PATCH", "/books/"+bookID+"/status", "owner", map[string]string{"status": "leyendo"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "INVALID_STATUS_TRANSITION", body["code"])
}

func TestChangeRoleRoute(t *testing.T) {
	s := newTestServer(t)
	_, club := s.do(t, "POST", "/clubs", "owner", map[string]string{"name": "Club de Poesía"})
	clubID := club["id"].(string)
	s.do(t, "GET", "/user/progress", "beto", nil)
	require.NoError(t, s.store.CreateMembership(context.Background(), &models.ClubMembership{ClubID: clubID, UserID: "beto", Role: models.ClubRoleReader}))

	status, body := s.do(t, "PATCH", "/clubs/"+clubID+"/members/beto/role", "owner", map[string]string{"role": "MODERATOR"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "MODERATOR", body["role"])

	status, _ = s.do(t, "PATCH", "/clubs/"+clubID+"/members/beto/role", "owner", map[string]string{"role": "OWNER"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, "PATCH", "/clubs/"+clubID+"/members/beto/role", "beto", map[string]string{"role": "READER"})
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestCoverUploadRoute(t *testing.T) {
	s := newTestServer(t)
	_, club := s.do(t, "POST", "/clubs", "owner", map[string]string{"name": "Club Visual"})
	clubID := club["id"].(string)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="cover"; filename="portada.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/clubs/"+clubID+"/cover", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-User-ID", "owner")
	status, body := s.send(t, req)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body["cover_url"], "https://cdn.test/clubs/"+clubID+"/cover-")

	req = httptest.NewRequest("POST", "/clubs/"+clubID+"/cover", nil)
	req.Header.Set("X-User-ID", "owner")
	status, _ = s.send(t, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestNotificationRoutes(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	s.do(t, "GET", "/user/progress", "ana", nil)

	for _, title := range []string{"uno", "dos"} {
		require.NoError(t, s.store.CreateNotification(ctx, &models.Notification{UserID: "ana", Type: models.NotificationLevelUp, Title: title}))
	}
	require.NoError(t, s.store.CreateNotification(ctx, &models.Notification{UserID: "beto", Type: models.NotificationLevelUp, Title: "ajena"}))

	status, body := s.do(t, "GET", "/notifications?unread=true", "ana", nil)
	require.Equal(t, fiber.StatusOK, status)
	list := body["notifications"].([]interface{})
	require.Len(t, list, 2)
	firstID := list[0].(map[string]interface{})["id"].(string)

	status, _ = s.do(t, "PATCH", "/notifications/"+firstID+"/read", "ana", nil)
	assert.Equal(t, fiber.StatusNoContent, status)

	status, _ = s.do(t, "PATCH", "/notifications/"+firstID+"/read", "beto", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = s.do(t, "PATCH", "/notifications/read-all", "ana", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["updated"])

	_, body = s.do(t, "GET", "/notifications?unread=true", "ana", nil)
	assert.Empty(t, body["notifications"])
}

func TestLevelUpThroughBookCompletionDispatchesNotification(t *testing.T) {
	s := newTestServer(t)
	_, club := s.do(t, "POST", "/clubs", "owner", map[string]string{"name": "Club Veloz"})
	clubID := club["id"].(string)
	require.NoError(t, s.store.SetProgress(context.Background(), "owner", 490, 1, nil))

	_, book := s.do(t, "POST", "/clubs/"+clubID+"/books", "owner", map[string]string{"title": "Ficciones"})
	// 490 + 10 for adding the book reaches 500
	require.Len(t, s.dispatcher.sent, 1)

	status, _ := s.do(t, "PATCH", "/books/"+book["id"].(string)+"/status", "owner", map[string]string{"status": "leido"})
	require.Equal(t, fiber.StatusOK, status)

	_, progress := s.do(t, "GET", "/user/progress", "owner", nil)
	assert.EqualValues(t, 600, progress["xp"])
	assert.EqualValues(t, 2, progress["level"])
	assert.Len(t, s.dispatcher.sent, 1, "600 stays below the 1000 needed for level 3")
}
