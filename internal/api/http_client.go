package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"hr-portal/internal/dto"
	"hr-portal/internal/events"
	"hr-portal/internal/unread"
	"hr-portal/pkg/apperrors"
)

// Конверт ответов backend-портала.
type httpEnvelope struct {
	Status  bool            `json:"status"`
	Body    json.RawMessage `json:"body"`
	Message string          `json:"message"`
}

type HTTPClient struct {
	baseURL    string
	credential string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPClient(baseURL, credential string, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		credential: credential,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// doJSON выполняет запрос и разворачивает конверт ответа в out.
func (c *HTTPClient) doJSON(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return apperrors.NewFetchError(endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.credential)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewFetchError(endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.NewAuthenticationError("backend отклонил credential")
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var envelope httpEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Message != "" {
			return apperrors.NewValidationError("%s", envelope.Message)
		}
		return apperrors.NewValidationError("backend отклонил данные запроса")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return apperrors.NewFetchError(endpoint, fmt.Errorf("статус %s", resp.Status))
	}

	if out == nil {
		return nil
	}

	var envelope httpEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return apperrors.NewFetchError(endpoint, err)
	}
	if err := json.Unmarshal(envelope.Body, out); err != nil {
		return apperrors.NewFetchError(endpoint, err)
	}
	return nil
}

func (c *HTTPClient) UnreadCounts(ctx context.Context) (*UnreadCounts, error) {
	var counts UnreadCounts
	if err := c.doJSON(ctx, http.MethodGet, "/notifications/unread-counts", nil, "", &counts); err != nil {
		return nil, err
	}
	return &counts, nil
}

func (c *HTTPClient) Notifications(ctx context.Context, class unread.Class) ([]events.NotificationRecord, error) {
	var records []events.NotificationRecord
	endpoint := "/notifications?class=" + string(class)
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, "", &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *HTTPClient) MarkRead(ctx context.Context, class unread.Class, notificationID string) error {
	endpoint := "/notifications/" + notificationID + "/read?class=" + string(class)
	return c.doJSON(ctx, http.MethodPost, endpoint, nil, "", nil)
}

func (c *HTTPClient) MarkAllRead(ctx context.Context, class unread.Class) error {
	endpoint := "/notifications/read-all?class=" + string(class)
	return c.doJSON(ctx, http.MethodPost, endpoint, nil, "", nil)
}

func (c *HTTPClient) ConversationMessages(ctx context.Context, peerID uint64) ([]events.ChatMessage, error) {
	var messages []events.ChatMessage
	endpoint := "/chat/conversations/" + strconv.FormatUint(peerID, 10) + "/messages"
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, "", &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage отправляет сообщение multipart-формой: текст, флаг срочности
// и до двух вложений (картинка и файл). Возвращает эхо сервера с
// авторитетным id - только оно попадает в список переписки.
func (c *HTTPClient) SendMessage(ctx context.Context, message dto.SendMessageDTO) (*events.ChatMessage, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	_ = writer.WriteField("peerId", strconv.FormatUint(message.PeerID, 10))
	_ = writer.WriteField("body", message.Body)
	_ = writer.WriteField("isUrgent", strconv.FormatBool(message.IsUrgent))

	if message.Image != nil {
		if err := attachPart(writer, "image", message.Image); err != nil {
			return nil, err
		}
	}
	if message.File != nil {
		if err := attachPart(writer, "file", message.File); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, apperrors.NewFetchError("/chat/messages", err)
	}

	var echoed events.ChatMessage
	if err := c.doJSON(ctx, http.MethodPost, "/chat/messages", &buf, writer.FormDataContentType(), &echoed); err != nil {
		return nil, err
	}
	return &echoed, nil
}

func attachPart(writer *multipart.Writer, field string, attachment *dto.StagedAttachmentDTO) error {
	f, err := os.Open(attachment.Path)
	if err != nil {
		return apperrors.NewValidationError("вложение недоступно: %s", attachment.FileName)
	}
	defer f.Close()

	name := attachment.FileName
	if name == "" {
		name = filepath.Base(attachment.Path)
	}
	part, err := writer.CreateFormFile(field, name)
	if err != nil {
		return apperrors.NewFetchError("/chat/messages", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return apperrors.NewFetchError("/chat/messages", err)
	}
	return nil
}
