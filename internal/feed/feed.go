package feed

import (
	"sort"
	"sync"

	"hr-portal/internal/events"
)

// Feed - локальная лента уведомлений, синхронизируемая по двум независимым
// путям: пуш из шины и снимки опроса. Пути могут гоняться и дублировать,
// поэтому слияние коммутативно: дедуп по id, порядок по createdAt.
type Feed struct {
	mu      sync.Mutex
	records []events.NotificationRecord
	ids     map[string]bool
	// id записей, существующих только локально (оптимистичные вставки,
	// ещё не отражённые опросом).
	localOnly map[string]bool
	// Пользователь сейчас "в ленте" (листает историю) - снимок нельзя
	// накатывать целиком, только сливать.
	interacting bool
}

func New() *Feed {
	return &Feed{
		ids:       make(map[string]bool),
		localOnly: make(map[string]bool),
	}
}

// ApplyPush вставляет запись из пуш-события в голову ленты.
// Уже известный id - no-op; возвращает, была ли запись новой.
func (f *Feed) ApplyPush(record events.NotificationRecord) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ids[record.ID] {
		return false
	}
	f.ids[record.ID] = true
	f.records = append([]events.NotificationRecord{record}, f.records...)
	return true
}

// AddLocal добавляет оптимистичную локальную запись (например, только что
// отправленное сообщение до эха опроса). Переживает слияние со снимком.
func (f *Feed) AddLocal(record events.NotificationRecord) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ids[record.ID] {
		return false
	}
	f.ids[record.ID] = true
	f.localOnly[record.ID] = true
	f.records = append([]events.NotificationRecord{record}, f.records...)
	return true
}

// ApplySnapshot накатывает авторитетный снимок опроса. Вне взаимодействия -
// полная замена; во время взаимодействия - объединение по id с пересортировкой,
// локальные оптимистичные записи сохраняются.
func (f *Feed) ApplySnapshot(snapshot []events.NotificationRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.interacting {
		f.records = make([]events.NotificationRecord, len(snapshot))
		copy(f.records, snapshot)
		f.ids = make(map[string]bool, len(snapshot))
		for _, r := range snapshot {
			f.ids[r.ID] = true
		}
		f.localOnly = make(map[string]bool)
		f.sortLocked()
		return
	}

	inSnapshot := make(map[string]bool, len(snapshot))
	merged := make([]events.NotificationRecord, 0, len(snapshot)+len(f.records))
	for _, r := range snapshot {
		inSnapshot[r.ID] = true
		merged = append(merged, r)
	}
	for _, r := range f.records {
		if inSnapshot[r.ID] {
			// Эхо дошло: запись больше не локальная.
			delete(f.localOnly, r.ID)
			continue
		}
		merged = append(merged, r)
	}

	f.records = merged
	f.ids = make(map[string]bool, len(merged))
	for _, r := range merged {
		f.ids[r.ID] = true
	}
	f.sortLocked()
}

func (f *Feed) sortLocked() {
	sort.SliceStable(f.records, func(i, j int) bool {
		if !f.records[i].CreatedAt.Equal(f.records[j].CreatedAt) {
			return f.records[i].CreatedAt.After(f.records[j].CreatedAt)
		}
		return f.records[i].ID > f.records[j].ID
	})
}

func (f *Feed) SetInteracting(interacting bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interacting = interacting
}

// MarkAllRead - локальный флип isRead; серверное подтверждение идёт
// отдельным вызовом REST.
func (f *Feed) MarkAllRead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		f.records[i].IsRead = true
	}
}

func (f *Feed) MarkRead(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].IsRead = true
			return
		}
	}
}

// Records возвращает копию ленты в порядке "свежие сверху".
func (f *Feed) Records() []events.NotificationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.NotificationRecord, len(f.records))
	copy(out, f.records)
	return out
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}
