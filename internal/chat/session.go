package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"hr-portal/internal/api"
	"hr-portal/internal/dto"
	"hr-portal/internal/events"
	"hr-portal/internal/unread"
	"hr-portal/pkg/apperrors"
	"hr-portal/pkg/customvalidator"
)

// State - состояние открытой переписки.
// Closed -> Loading -> Ready -> (Sending -> Ready | Sending -> Error).
type State int

const (
	StateClosed State = iota
	StateLoading
	StateReady
	StateSending
	StateError
)

// Session - транзиентное состояние одной открытой переписки: список
// сообщений, подготовленные вложения, флаг отправки. События по закрытой
// переписке сюда не попадают - только в трекер непрочитанного.
type Session struct {
	apiClient api.Client
	tracker   *unread.Tracker
	bookmarks unread.BookmarkStore
	validate  *validator.Validate
	viewerID  uint64
	logger    *zap.Logger

	mu       sync.Mutex
	state    State
	peerID   uint64
	messages []events.ChatMessage
	// Поколение активной переписки: ответ, прилетевший после переключения
	// на другого собеседника, отбрасывается по несовпадению поколения.
	generation uint64
	// Подготовленные вложения: максимум одна картинка и один файл,
	// выбор того же вида заменяет предыдущее.
	pendingImage *dto.StagedAttachmentDTO
	pendingFile  *dto.StagedAttachmentDTO
	lastErr      error
}

func NewSession(apiClient api.Client, tracker *unread.Tracker, bookmarks unread.BookmarkStore, viewerID uint64, logger *zap.Logger) (*Session, error) {
	v := validator.New()
	if err := customvalidator.RegisterCustomValidations(v); err != nil {
		return nil, err
	}
	return &Session{
		apiClient: apiClient,
		tracker:   tracker,
		bookmarks: bookmarks,
		validate:  v,
		viewerID:  viewerID,
		logger:    logger,
		state:     StateClosed,
	}, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) PeerID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Messages - копия списка сообщений открытой переписки, по возрастанию
// (createdAt, id).
func (s *Session) Messages() []events.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// SelectPeer переключает активную переписку: немедленная загрузка списка
// сообщений, после подтверждённой загрузки - сброс закладки на последний
// загруженный id. Поздний ответ для уже неактивного собеседника
// отбрасывается и не портит список новой переписки.
func (s *Session) SelectPeer(ctx context.Context, peerID uint64) error {
	s.mu.Lock()
	if s.state != StateClosed {
		s.tracker.CloseConversation(events.ConversationKey(s.viewerID, s.peerID))
	}
	s.generation++
	gen := s.generation
	s.peerID = peerID
	s.state = StateLoading
	s.messages = nil
	s.lastErr = nil
	s.mu.Unlock()

	messages, err := s.apiClient.ConversationMessages(ctx, peerID)

	s.mu.Lock()
	if s.generation != gen {
		// Пока грузили, зритель переключился дальше.
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.state = StateError
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	sortMessages(messages)
	s.messages = messages
	s.state = StateReady
	lastID := uint64(0)
	if len(messages) > 0 {
		lastID = messages[len(messages)-1].ID
	}
	key := events.ConversationKey(s.viewerID, peerID)
	s.mu.Unlock()

	// Вид подтверждённо открыт: переписка считается прочитанной.
	s.tracker.OpenConversation(key)
	if err := s.bookmarks.Set(ctx, key, lastID); err != nil {
		s.logger.Warn("Не удалось сохранить закладку переписки", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// Close закрывает переписку. Поколение поднимается, чтобы все in-flight
// ответы по ней были отброшены.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	key := events.ConversationKey(s.viewerID, s.peerID)
	s.generation++
	s.state = StateClosed
	s.peerID = 0
	s.messages = nil
	s.pendingImage = nil
	s.pendingFile = nil
	s.lastErr = nil
	s.mu.Unlock()

	s.tracker.CloseConversation(key)
}

// StageImage готовит картинку к отправке; повторный выбор заменяет
// предыдущую (очереди нет).
func (s *Session) StageImage(attachment dto.StagedAttachmentDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingImage = &attachment
}

func (s *Session) StageFile(attachment dto.StagedAttachmentDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingFile = &attachment
}

func (s *Session) PendingAttachments() (image, file *dto.StagedAttachmentDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingImage, s.pendingFile
}

// Send отправляет сообщение активной переписки. Нужен текст или вложение,
// иначе ValidationError. Оптимистичной вставки нет: в список попадает
// только эхо сервера с авторитетным id; при ошибке список не мутируется.
func (s *Session) Send(ctx context.Context, body string, isUrgent bool) (*events.ChatMessage, error) {
	s.mu.Lock()
	if s.state != StateReady && s.state != StateError {
		s.mu.Unlock()
		return nil, apperrors.NewValidationError("переписка не готова к отправке")
	}

	message := dto.SendMessageDTO{
		PeerID:   s.peerID,
		Body:     body,
		Image:    s.pendingImage,
		File:     s.pendingFile,
		IsUrgent: isUrgent,
	}
	if err := s.validate.Struct(&message); err != nil {
		s.mu.Unlock()
		return nil, apperrors.NewValidationError("сообщение пустое: нужен текст или вложение")
	}

	s.state = StateSending
	gen := s.generation
	s.mu.Unlock()

	echoed, err := s.apiClient.SendMessage(ctx, message)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil, nil
	}
	if err != nil {
		s.state = StateError
		s.lastErr = err
		return nil, err
	}

	s.appendLocked(*echoed)
	s.pendingImage = nil
	s.pendingFile = nil
	s.state = StateReady
	s.lastErr = nil
	return echoed, nil
}

// ApplyPush кладёт пуш-сообщение в открытый список. Возвращает false,
// если переписка закрыта или сообщение из другой пары - тогда оно
// учитывается только трекером.
func (s *Session) ApplyPush(message events.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed || s.state == StateLoading {
		return false
	}
	if events.ConversationKey(message.FromID, message.ToID) != events.ConversationKey(s.viewerID, s.peerID) {
		return false
	}
	s.appendLocked(message)
	return true
}

// ApplyPoll накатывает снимок опроса открытой переписки. Снимок для уже
// неактивного собеседника отбрасывается по несовпадению поколения.
func (s *Session) ApplyPoll(generation uint64, peerID uint64, snapshot []events.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation || s.peerID != peerID || s.state == StateClosed {
		return
	}

	known := make(map[uint64]bool, len(snapshot))
	for _, m := range snapshot {
		known[m.ID] = true
	}
	merged := make([]events.ChatMessage, 0, len(snapshot)+len(s.messages))
	merged = append(merged, snapshot...)
	// Сохраняем то, чего опрос ещё не видел: свежие пуши и эхо отправки.
	for _, m := range s.messages {
		if !known[m.ID] {
			merged = append(merged, m)
		}
	}
	sortMessages(merged)
	s.messages = merged
}

// Generation - текущее поколение для привязки in-flight опроса.
func (s *Session) Generation() (uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation, s.peerID
}

func (s *Session) appendLocked(message events.ChatMessage) {
	for _, m := range s.messages {
		if m.ID == message.ID {
			return
		}
	}
	s.messages = append(s.messages, message)
	sortMessages(s.messages)
}

func sortMessages(messages []events.ChatMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})
}
