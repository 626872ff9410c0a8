package session

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"hr-portal/internal/api"
	"hr-portal/internal/chat"
	"hr-portal/internal/events"
	"hr-portal/internal/feed"
	"hr-portal/internal/poll"
	"hr-portal/internal/realtime"
	"hr-portal/internal/unread"
	"hr-portal/pkg/apperrors"
	"hr-portal/pkg/config"
)

// Identity - аутентифицированный пользователь сессии.
type Identity struct {
	UserID  uint64
	IsAdmin bool
}

// Имена циклов опроса.
const (
	taskCounts    = "counts"
	taskAdminList = "admin_list"
	taskUserList  = "user_list"
	taskOpenChat  = "open_chat"
)

// RequestHandler получает события по заявкам (новая заявка, смена статуса)
// для списков презентационного слоя.
type RequestHandler func(event events.Event)

// Session - явный контекстный объект realtime-ядра, один на идентичность.
// Создаётся при входе, разрушается при выходе; подписки и закладки прошлой
// идентичности не должны протекать в новую сессию.
type Session struct {
	identity   Identity
	credential string

	bus       realtime.Bus
	apiClient api.Client
	bookmarks unread.BookmarkStore
	tracker   *unread.Tracker
	adminFeed *feed.Feed
	userFeed  *feed.Feed
	chat      *chat.Session
	scheduler *poll.Scheduler
	polling   config.PollingConfig
	logger    *zap.Logger

	subs       []realtime.Subscription
	onRequest  RequestHandler
	closed     bool
}

func New(
	identity Identity,
	credential string,
	bus realtime.Bus,
	apiClient api.Client,
	bookmarks unread.BookmarkStore,
	alertFn unread.AlertFunc,
	polling config.PollingConfig,
	logger *zap.Logger,
) (*Session, error) {
	tracker := unread.NewTracker(alertFn, logger)
	chatSession, err := chat.NewSession(apiClient, tracker, bookmarks, identity.UserID, logger)
	if err != nil {
		return nil, err
	}

	return &Session{
		identity:   identity,
		credential: credential,
		bus:        bus,
		apiClient:  apiClient,
		bookmarks:  bookmarks,
		tracker:    tracker,
		adminFeed:  feed.New(),
		userFeed:   feed.New(),
		chat:       chatSession,
		scheduler:  poll.NewScheduler(logger),
		polling:    polling,
		logger:     logger,
	}, nil
}

func (s *Session) Tracker() *unread.Tracker { return s.tracker }
func (s *Session) AdminFeed() *feed.Feed    { return s.adminFeed }
func (s *Session) UserFeed() *feed.Feed     { return s.userFeed }
func (s *Session) Chat() *chat.Session      { return s.chat }

// SetRequestHandler подключает слушателя событий по заявкам.
// Вызывается до Start.
func (s *Session) SetRequestHandler(fn RequestHandler) {
	s.onRequest = fn
}

// Start подключает шину, оформляет подписки и запускает циклы опроса.
// AuthenticationError фатальна (нужен повторный вход); отказ по одному
// приватному каналу - нет: канал пропускается, остальное работает.
func (s *Session) Start(ctx context.Context) error {
	if err := s.bus.Connect(ctx, s.credential); err != nil {
		if apperrors.IsAuthentication(err) {
			return err
		}
		// Транспорт полежит - события догонит опрос.
		s.logger.Warn("Шина недоступна, работаем только на опросе", zap.Error(err))
	} else {
		s.subscribeAll(ctx)
	}

	s.registerPolling()
	return nil
}

func (s *Session) subscribeAll(ctx context.Context) {
	s.subscribeTopic(ctx, events.ChatTopic(s.identity.UserID), func(sub realtime.Subscription) {
		sub.On(events.KindNewChatMessage, s.handleChatEvent)
	})
	s.subscribeTopic(ctx, events.UserNotificationsTopic(s.identity.UserID), func(sub realtime.Subscription) {
		sub.On(events.KindNewUserNotification, func(event events.Event) {
			s.handleNotificationEvent(event, s.userFeed, unread.ClassUserNotifications)
		})
	})

	if !s.identity.IsAdmin {
		return
	}

	s.subscribeTopic(ctx, events.TopicNotifications, func(sub realtime.Subscription) {
		sub.On(events.KindNewNotification, func(event events.Event) {
			s.handleNotificationEvent(event, s.adminFeed, unread.ClassAdminNotifications)
		})
	})
	s.subscribeTopic(ctx, events.TopicRequests, func(sub realtime.Subscription) {
		sub.On(events.KindNewRequest, s.handleRequestEvent)
		sub.On(events.KindRequestStatusUpdated, s.handleRequestEvent)
	})
}

func (s *Session) subscribeTopic(ctx context.Context, topic string, wire func(realtime.Subscription)) {
	sub, err := s.bus.Subscribe(ctx, topic)
	if err != nil {
		// Отказ по каналу не валит остальные подписки.
		s.logger.Warn("Подписка не оформлена", zap.String("topic", topic), zap.Error(err))
		return
	}
	wire(sub)
	s.subs = append(s.subs, sub)
}

// handleChatEvent маршрутизирует пуш-сообщение: открытая переписка
// получает его в список, закрытая - только в счётчик непрочитанного.
func (s *Session) handleChatEvent(event events.Event) {
	payload, err := event.DecodePayload()
	if err != nil {
		s.logger.Warn("Нечитаемое событие чата", zap.String("eventId", event.ID), zap.Error(err))
		return
	}
	message, ok := payload.(events.ChatMessage)
	if !ok {
		return
	}

	if s.chat.ApplyPush(message) {
		return
	}

	key := events.ConversationKey(message.FromID, message.ToID)
	s.tracker.OnChatMessage(key, messageEventID(message))
}

// Для дедупа в трекере используем id самого сообщения: повторная доставка
// того же сообщения приходит с новым id события, но с тем же id записи.
func messageEventID(message events.ChatMessage) string {
	return strconv.FormatUint(message.ID, 10)
}

func (s *Session) handleNotificationEvent(event events.Event, target *feed.Feed, class unread.Class) {
	payload, err := event.DecodePayload()
	if err != nil {
		s.logger.Warn("Нечитаемое событие уведомления", zap.String("eventId", event.ID), zap.Error(err))
		return
	}
	record, ok := payload.(events.NotificationRecord)
	if !ok {
		return
	}

	// Дедуп и в ленте, и в счётчике - по id записи, а не по id события:
	// повторная эмиссия того же уведомления не должна считаться дважды.
	target.ApplyPush(record)
	s.tracker.OnPushEvent(class, record.ID)
}

func (s *Session) handleRequestEvent(event events.Event) {
	if s.onRequest != nil {
		s.onRequest(event)
	}
}

func (s *Session) registerPolling() {
	// Счётчики опрашиваются всегда: это источник истины после обрывов шины.
	s.scheduler.Register(taskCounts, s.polling.CountsInterval, false, s.pollCounts)

	if s.identity.IsAdmin {
		s.scheduler.Register(taskAdminList, s.polling.ListsInterval, true, func(ctx context.Context) error {
			return s.pollList(ctx, unread.ClassAdminNotifications, s.adminFeed)
		})
	}
	s.scheduler.Register(taskUserList, s.polling.ListsInterval, true, func(ctx context.Context) error {
		return s.pollList(ctx, unread.ClassUserNotifications, s.userFeed)
	})
	s.scheduler.Register(taskOpenChat, s.polling.OpenChatInterval, true, s.pollOpenChat)
}

func (s *Session) pollCounts(ctx context.Context) error {
	// Поколения фиксируются до запроса: ответ, пересёкшийся с mark-read,
	// будет отброшен трекером.
	adminGen := s.tracker.BeginPoll(unread.ClassAdminNotifications)
	userGen := s.tracker.BeginPoll(unread.ClassUserNotifications)

	counts, err := s.apiClient.UnreadCounts(ctx)
	if err != nil {
		return err
	}

	if s.identity.IsAdmin {
		s.tracker.ApplyServerCount(unread.ClassAdminNotifications, counts.AdminNotifications, adminGen)
	}
	s.tracker.ApplyServerCount(unread.ClassUserNotifications, counts.UserNotifications, userGen)
	return nil
}

func (s *Session) pollList(ctx context.Context, class unread.Class, target *feed.Feed) error {
	records, err := s.apiClient.Notifications(ctx, class)
	if err != nil {
		return err
	}
	target.ApplySnapshot(records)
	return nil
}

func (s *Session) pollOpenChat(ctx context.Context) error {
	generation, peerID := s.chat.Generation()
	if peerID == 0 {
		return nil
	}
	messages, err := s.apiClient.ConversationMessages(ctx, peerID)
	if err != nil {
		return err
	}
	s.chat.ApplyPoll(generation, peerID, messages)
	return nil
}

// --- Открытие/закрытие видов (зовёт презентационный слой) ---

// OpenNotifications - пользователь открыл "колокольчик": счётчик в ноль
// немедленно, серверное mark-all-read вдогонку, опрос ленты возобновляется.
func (s *Session) OpenNotifications(ctx context.Context, class unread.Class) {
	s.tracker.SetViewing(class, true)
	s.tracker.MarkRead(class)

	target, task := s.feedFor(class)
	if target == nil {
		return
	}
	target.MarkAllRead()
	// Пока зритель листает ленту, снимки опроса сливаются, а не заменяют её.
	target.SetInteracting(true)
	s.scheduler.Resume(task)

	if err := s.apiClient.MarkAllRead(ctx, class); err != nil {
		// Локально уже ноль; сервер догонит при следующем mark-read.
		s.logger.Warn("mark-all-read не дошёл до сервера", zap.String("class", string(class)), zap.Error(err))
	}
}

func (s *Session) CloseNotifications(class unread.Class) {
	s.tracker.SetViewing(class, false)
	if target, task := s.feedFor(class); target != nil {
		target.SetInteracting(false)
		s.scheduler.Suspend(task)
	}
}

// MarkNotificationRead - одиночное "прочитано" по записи ленты: локальный
// флип сразу, серверный вызов вдогонку.
func (s *Session) MarkNotificationRead(ctx context.Context, class unread.Class, notificationID string) {
	if target, _ := s.feedFor(class); target != nil {
		target.MarkRead(notificationID)
	}
	if err := s.apiClient.MarkRead(ctx, class, notificationID); err != nil {
		s.logger.Warn("mark-read не дошёл до сервера",
			zap.String("class", string(class)),
			zap.String("notificationId", notificationID),
			zap.Error(err),
		)
	}
}

// RecomputeConversationUnread пересчитывает непрочитанное переписки из
// закладки и списка сообщений (зовётся при отрисовке списка переписок).
func (s *Session) RecomputeConversationUnread(ctx context.Context, peerID uint64, messages []events.ChatMessage) (int, error) {
	key := events.ConversationKey(s.identity.UserID, peerID)
	bookmark, err := s.bookmarks.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	count := unread.ComputeUnread(messages, s.identity.UserID, bookmark)
	s.tracker.SetConversationUnread(key, count)
	return count, nil
}

func (s *Session) feedFor(class unread.Class) (*feed.Feed, string) {
	switch class {
	case unread.ClassAdminNotifications:
		return s.adminFeed, taskAdminList
	case unread.ClassUserNotifications:
		return s.userFeed, taskUserList
	default:
		return nil, ""
	}
}

// OpenConversation открывает переписку и включает её частый опрос.
func (s *Session) OpenConversation(ctx context.Context, peerID uint64) error {
	if err := s.chat.SelectPeer(ctx, peerID); err != nil {
		return err
	}
	s.scheduler.Resume(taskOpenChat)
	return nil
}

func (s *Session) CloseConversation() {
	s.scheduler.Suspend(taskOpenChat)
	s.chat.Close()
}

// Close - teardown сессии: все циклы опроса остановлены, все подписки
// сняты, шина закрыта. Закладки не трогаем (это не logout).
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	s.scheduler.Stop()
	s.chat.Close()
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	s.tracker.Stop()
	if err := s.bus.Close(); err != nil {
		s.logger.Debug("Закрытие шины", zap.Error(err))
	}
}

// Logout - teardown плюс очистка локальных закладок: следующая сессия
// (возможно, другой человек) начинает с чистого листа и первого опроса.
func (s *Session) Logout(ctx context.Context) error {
	s.Close()
	return s.bookmarks.Clear(ctx)
}
