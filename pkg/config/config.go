package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Port string
}

type RedisConfig struct {
	Address  string
	Password string
	// Префикс pub/sub каналов, чтобы несколько стендов могли жить в одном Redis.
	ChannelPrefix string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL time.Duration
}

// GatewayConfig - настройки realtime-шлюза.
type GatewayConfig struct {
	// Токен служебного эндпоинта приёма событий от backend-сервисов.
	IngressToken string
	// Размер буфера исходящих сообщений на одно соединение.
	ClientSendBuffer int
}

// ClientConfig - настройки клиентской части (агента).
type ClientConfig struct {
	GatewayURL string // ws://host:port/ws
	APIBaseURL string // REST backend портала
	// Путь к локальной базе закладок "прочитано до".
	BookmarkDBPath string
}

// PollingConfig - интервалы фонового опроса.
// Пуш - это оптимизация, опрос - источник истины.
type PollingConfig struct {
	CountsInterval   time.Duration
	ListsInterval    time.Duration
	OpenChatInterval time.Duration
}

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Gateway GatewayConfig
	Client  ClientConfig
	Polling PollingConfig
}

func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Предупреждение: .env файл не найден или не удалось его загрузить.")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Redis: RedisConfig{
			Address:       getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			ChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "hrportal"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET_KEY", "2F8E1C7A94D0B36585FA1D20C9E4B"),
			AccessTokenTTL: time.Hour * 24,
		},
		Gateway: GatewayConfig{
			IngressToken:     getEnv("GATEWAY_INGRESS_TOKEN", ""),
			ClientSendBuffer: getEnvInt("GATEWAY_SEND_BUFFER", 256),
		},
		Client: ClientConfig{
			GatewayURL:     getEnv("GATEWAY_URL", "ws://localhost:8080/ws"),
			APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8000/api"),
			BookmarkDBPath: getEnv("BOOKMARK_DB_PATH", "./bookmarks.db"),
		},
		Polling: PollingConfig{
			CountsInterval:   getEnvDuration("POLL_COUNTS_INTERVAL", 30*time.Second),
			ListsInterval:    getEnvDuration("POLL_LISTS_INTERVAL", 60*time.Second),
			OpenChatInterval: getEnvDuration("POLL_OPEN_CHAT_INTERVAL", 5*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
