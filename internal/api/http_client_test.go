package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hr-portal/internal/dto"
	"hr-portal/internal/events"
	"hr-portal/internal/unread"
	"hr-portal/pkg/apperrors"
)

func envelope(body interface{}) []byte {
	raw, _ := json.Marshal(body)
	data, _ := json.Marshal(map[string]interface{}{
		"status":  true,
		"body":    json.RawMessage(raw),
		"message": "OK",
	})
	return data
}

func TestHTTPClient_UnreadCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/unread-counts", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_, _ = w.Write(envelope(UnreadCounts{AdminNotifications: 2, UserNotifications: 7}))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "secret-token", zap.NewNop())
	counts, err := client.UnreadCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts.AdminNotifications)
	assert.Equal(t, 7, counts.UserNotifications)
}

func TestHTTPClient_ErrorTaxonomy(t *testing.T) {
	var status int
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "secret-token", zap.NewNop())

	t.Run("401 - истёкший credential", func(t *testing.T) {
		status, body = http.StatusUnauthorized, `{}`
		_, err := client.UnreadCounts(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.IsAuthentication(err))
	})

	t.Run("422 - отказ валидации с текстом backend", func(t *testing.T) {
		status, body = http.StatusUnprocessableEntity, `{"status":false,"message":"собеседник не найден"}`
		err := client.MarkAllRead(context.Background(), unread.ClassUserNotifications)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Contains(t, err.Error(), "собеседник не найден")
	})

	t.Run("500 - FetchError с именем эндпоинта", func(t *testing.T) {
		status, body = http.StatusInternalServerError, `{}`
		_, err := client.Notifications(context.Background(), unread.ClassAdminNotifications)
		require.Error(t, err)
		assert.True(t, apperrors.IsFetch(err))
		assert.Contains(t, err.Error(), "/notifications")
	})
}

func TestHTTPClient_NetworkFailureIsFetchError(t *testing.T) {
	// Сервер закрыт до запроса: чистая транспортная ошибка.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewHTTPClient(srv.URL, "secret-token", zap.NewNop())
	_, err := client.UnreadCounts(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsFetch(err))
}

func TestHTTPClient_SendMessageMultipart(t *testing.T) {
	attachmentPath := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, os.WriteFile(attachmentPath, []byte("png-данные"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "15", r.FormValue("peerId"))
		assert.Equal(t, "срочно", r.FormValue("body"))
		assert.Equal(t, "true", r.FormValue("isUrgent"))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "scan.png", header.Filename)

		_, _ = w.Write(envelope(events.ChatMessage{ID: 77, FromID: 1, ToID: 15, Body: "срочно", IsUrgent: true}))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "secret-token", zap.NewNop())
	echoed, err := client.SendMessage(context.Background(), dto.SendMessageDTO{
		PeerID:   15,
		Body:     "срочно",
		IsUrgent: true,
		Image:    &dto.StagedAttachmentDTO{FileName: "scan.png", Path: attachmentPath},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(77), echoed.ID, "эхо сервера несёт авторитетный id")
}

func TestHTTPClient_SendMessageMissingAttachment(t *testing.T) {
	client := NewHTTPClient("http://unused", "secret-token", zap.NewNop())
	_, err := client.SendMessage(context.Background(), dto.SendMessageDTO{
		PeerID: 15,
		Image:  &dto.StagedAttachmentDTO{FileName: "gone.png", Path: "/nonexistent/gone.png"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err), "подготовленный файл исчез с диска - это ошибка данных, а не транспорта")
}
