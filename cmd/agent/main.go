// Агент - безголовый клиент realtime-ядра: подключается к шлюзу под
// заданным credential, держит счётчики/ленты в актуальном состоянии и
// пишет алерты в лог. Презентационного слоя у него нет.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"hr-portal/internal/api"
	"hr-portal/internal/realtime"
	"hr-portal/internal/session"
	"hr-portal/internal/unread"
	"hr-portal/pkg/config"
	applogger "hr-portal/pkg/logger"
)

func main() {
	logger := applogger.NewLogger()
	cfg := config.New()

	credential := os.Getenv("AGENT_TOKEN")
	if credential == "" {
		logger.Fatal("AGENT_TOKEN не задан: агенту нужен credential пользователя")
	}
	userID, err := strconv.ParseUint(os.Getenv("AGENT_USER_ID"), 10, 64)
	if err != nil {
		logger.Fatal("AGENT_USER_ID не задан или не число", zap.Error(err))
	}
	isAdmin := os.Getenv("AGENT_IS_ADMIN") == "true"

	bookmarks, err := unread.NewSQLiteBookmarkStore(cfg.Client.BookmarkDBPath)
	if err != nil {
		logger.Fatal("Не удалось открыть базу закладок", zap.Error(err))
	}
	defer bookmarks.Close()

	bus := realtime.NewWSBus(cfg.Client.GatewayURL, logger)
	apiClient := api.NewHTTPClient(cfg.Client.APIBaseURL, credential, logger)

	alert := func(class unread.Class) {
		logger.Info("🔔 Новые события", zap.String("class", string(class)))
	}

	sess, err := session.New(
		session.Identity{UserID: userID, IsAdmin: isAdmin},
		credential,
		bus,
		apiClient,
		bookmarks,
		alert,
		cfg.Polling,
		logger,
	)
	if err != nil {
		logger.Fatal("Не удалось собрать сессию", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		logger.Fatal("Сессия не стартовала: нужен повторный вход", zap.Error(err))
	}
	logger.Info("Агент запущен",
		zap.Uint64("userId", userID),
		zap.Bool("isAdmin", isAdmin),
	)

	<-ctx.Done()
	sess.Close()
	logger.Info("Агент остановлен")
}
