package unread

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Class - класс счётчика непрочитанного.
type Class string

const (
	ClassAdminNotifications Class = "admin_notifications"
	ClassUserNotifications  Class = "user_notifications"
)

// Размер окна недавних id: достаточно, чтобы покрыть гонку пуша с соседним
// снимком опроса, и ограничено, чтобы не расти бесконечно.
const seenWindowSize = 512

// Окно, в котором шквал событий схлопывается в один алерт.
const alertCollapseWindow = 2 * time.Second

// AlertFunc - пользовательский алерт (звук/бейдж). Вызывается не чаще
// одного раза на окно схлопывания для каждого класса.
type AlertFunc func(class Class)

// seenWindow - ограниченное множество недавних id событий.
type seenWindow struct {
	ids   map[string]bool
	order []string
}

func newSeenWindow() *seenWindow {
	return &seenWindow{ids: make(map[string]bool)}
}

// remember возвращает false, если id уже встречался.
func (w *seenWindow) remember(id string) bool {
	if w.ids[id] {
		return false
	}
	w.ids[id] = true
	w.order = append(w.order, id)
	if len(w.order) > seenWindowSize {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.ids, oldest)
	}
	return true
}

type classState struct {
	count   int
	viewing bool
	seen    *seenWindow
	// Поколение согласования: mark-read его повышает, ответ опроса,
	// запрошенный при старом поколении, игнорируется.
	generation uint64
	alertTimer *time.Timer
}

// Tracker считает непрочитанное по классам и перепискам, согласуя три
// источника: пуш-события, снимки опроса и локальные закладки. Счётчик
// никогда не уходит в минус и не считает одно событие дважды.
type Tracker struct {
	mu            sync.Mutex
	classes       map[Class]*classState
	conversations map[string]*classState
	alertFn       AlertFunc
	logger        *zap.Logger
}

func NewTracker(alertFn AlertFunc, logger *zap.Logger) *Tracker {
	return &Tracker{
		classes:       make(map[Class]*classState),
		conversations: make(map[string]*classState),
		alertFn:       alertFn,
		logger:        logger,
	}
}

func (t *Tracker) classLocked(class Class) *classState {
	st, ok := t.classes[class]
	if !ok {
		st = &classState{seen: newSeenWindow()}
		t.classes[class] = st
	}
	return st
}

func (t *Tracker) conversationLocked(key string) *classState {
	st, ok := t.conversations[key]
	if !ok {
		st = &classState{seen: newSeenWindow()}
		t.conversations[key] = st
	}
	return st
}

// OnPushEvent учитывает пуш-событие класса. Возвращает false, если событие
// не увеличило счётчик: класс открыт у зрителя (событие уходит прямо в
// открытую ленту) или id уже встречался.
func (t *Tracker) OnPushEvent(class Class, eventID string) bool {
	t.mu.Lock()
	st := t.classLocked(class)
	if !st.seen.remember(eventID) {
		t.mu.Unlock()
		return false
	}
	if st.viewing {
		t.mu.Unlock()
		return false
	}
	st.count++
	t.scheduleAlertLocked(st, class)
	t.mu.Unlock()
	return true
}

// scheduleAlertLocked схлопывает шквал событий в один алерт: первый
// элемент серии взводит таймер, остальные в окне его не трогают.
func (t *Tracker) scheduleAlertLocked(st *classState, class Class) {
	if t.alertFn == nil || st.alertTimer != nil {
		return
	}
	st.alertTimer = time.AfterFunc(alertCollapseWindow, func() {
		t.mu.Lock()
		st.alertTimer = nil
		t.mu.Unlock()
		t.alertFn(class)
	})
}

// BeginPoll фиксирует поколение перед запросом счётчика у сервера.
func (t *Tracker) BeginPoll(class Class) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.classLocked(class).generation
}

// ApplyServerCount согласует серверный счётчик с локальным оптимистичным.
// Берём максимум: слегка устаревший опрос не должен затирать вниз свежий
// пуш-инкремент, вниз счётчик сойдётся следующим опросом. Ответ, запрошенный
// до mark-read (не то поколение), игнорируется целиком.
func (t *Tracker) ApplyServerCount(class Class, serverCount int, generation uint64) {
	if serverCount < 0 {
		serverCount = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.classLocked(class)
	if st.generation != generation {
		t.logger.Debug("Счётчик из устаревшего опроса отброшен",
			zap.String("class", string(class)),
			zap.Int("serverCount", serverCount),
		)
		return
	}
	if st.viewing {
		return
	}
	if serverCount > st.count {
		st.count = serverCount
	}
}

// MarkRead обнуляет счётчик класса немедленно (оптимистично) и поднимает
// поколение, отсекая все ответы опроса, запрошенные до этого момента.
// Серверное "прочитать всё" вызывает владелец сессии.
func (t *Tracker) MarkRead(class Class) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.classLocked(class)
	st.count = 0
	st.generation++
	if st.alertTimer != nil {
		st.alertTimer.Stop()
		st.alertTimer = nil
	}
}

// SetViewing отмечает, открыт ли соответствующий вид у зрителя.
// Открытый класс не инкрементируется пушами и не перетирается опросом.
func (t *Tracker) SetViewing(class Class, viewing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.classLocked(class).viewing = viewing
}

func (t *Tracker) Count(class Class) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.classLocked(class).count
}

// --- Чат: непрочитанное по перепискам ---
//
// Для чата авторитет - не серверный счётчик, а локальная закладка:
// счётчик пересчитывается из списка сообщений и закладки (§ComputeUnread),
// пуши лишь оптимистично двигают его между пересчётами.

// OnChatMessage учитывает пуш-сообщение переписки.
func (t *Tracker) OnChatMessage(conversationKey, eventID string) bool {
	t.mu.Lock()
	st := t.conversationLocked(conversationKey)
	if !st.seen.remember(eventID) {
		t.mu.Unlock()
		return false
	}
	if st.viewing {
		t.mu.Unlock()
		return false
	}
	st.count++
	t.mu.Unlock()
	return true
}

// SetConversationUnread выставляет пересчитанное из закладки значение.
// Пересчёт авторитетен, но вниз между mark-read не двигаем - только
// открытие переписки обнуляет.
func (t *Tracker) SetConversationUnread(conversationKey string, count int) {
	if count < 0 {
		count = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.conversationLocked(conversationKey)
	if st.viewing {
		return
	}
	if count > st.count {
		st.count = count
	}
}

// OpenConversation - зритель открыл переписку: счётчик в ноль, дальнейшие
// пуши по ней идут в открытый список, а не в счётчик.
func (t *Tracker) OpenConversation(conversationKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.conversationLocked(conversationKey)
	st.count = 0
	st.viewing = true
}

func (t *Tracker) CloseConversation(conversationKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conversationLocked(conversationKey).viewing = false
}

func (t *Tracker) ConversationUnread(conversationKey string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversationLocked(conversationKey).count
}

// TotalChatUnread - суммарный бейдж чата.
func (t *Tracker) TotalChatUnread() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, st := range t.conversations {
		total += st.count
	}
	return total
}

// Stop гасит взведённые таймеры алертов. Вызывается при teardown сессии.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, st := range t.classes {
		if st.alertTimer != nil {
			st.alertTimer.Stop()
			st.alertTimer = nil
		}
	}
}
