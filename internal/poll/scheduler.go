package poll

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func - одна итерация опроса. Ошибка только логируется: повтор -
// следующий плановый тик, отдельного backoff по спецификации не нужно.
type Func func(ctx context.Context) error

// Таймаут одной итерации, чтобы зависший запрос не пережил свой интервал.
const tickTimeout = 25 * time.Second

type command int

const (
	cmdSuspend command = iota
	cmdResume
)

type task struct {
	name      string
	interval  time.Duration
	fn        Func
	suspended bool
	ctrl      chan command
}

// Scheduler гоняет независимые циклы опроса с разными интервалами.
// Закрытый вид приостанавливает свой цикл; возобновление - немедленный
// запрос и дальше по интервалу. Stop гасит все таймеры: протёкший тикер,
// стреляющий после teardown, - это дефект.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
	logger  *zap.Logger
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*task),
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// Register добавляет цикл опроса и сразу запускает его горутину.
// suspended=true - цикл ждёт первого Resume (вид ещё закрыт).
func (s *Scheduler) Register(name string, interval time.Duration, suspended bool, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, exists := s.tasks[name]; exists {
		return
	}

	t := &task{
		name:      name,
		interval:  interval,
		fn:        fn,
		suspended: suspended,
		ctrl:      make(chan command, 4),
	}
	s.tasks[name] = t
	s.wg.Add(1)
	go s.run(t)
}

func (s *Scheduler) run(t *task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if !t.suspended {
		s.tick(t)
	}

	for {
		select {
		case <-s.stopCh:
			return
		case cmd := <-t.ctrl:
			switch cmd {
			case cmdSuspend:
				t.suspended = true
			case cmdResume:
				if t.suspended {
					t.suspended = false
					// Вид снова открыт: один запрос сразу, дальше по интервалу.
					s.tick(t)
					ticker.Reset(t.interval)
				}
			}
		case <-ticker.C:
			if !t.suspended {
				s.tick(t)
			}
		}
	}
}

func (s *Scheduler) tick(t *task) {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	if err := t.fn(ctx); err != nil {
		// Сбой тика не фатален - следующий тик и есть повтор.
		s.logger.Debug("Тик опроса неудачен", zap.String("task", t.name), zap.Error(err))
	}
}

// Suspend приостанавливает цикл (вид закрыт, нагрузку не создаём).
func (s *Scheduler) Suspend(name string) {
	s.send(name, cmdSuspend)
}

// Resume возобновляет цикл: немедленный запрос, затем интервал.
func (s *Scheduler) Resume(name string) {
	s.send(name, cmdResume)
}

func (s *Scheduler) send(name string, cmd command) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	stopped := s.stopped
	s.mu.Unlock()
	if !ok || stopped {
		return
	}
	select {
	case t.ctrl <- cmd:
	case <-s.stopCh:
	}
}

// Stop останавливает все циклы и дожидается их завершения.
// Повторный вызов безопасен.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}
