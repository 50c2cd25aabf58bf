package config

import (
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config — конфигурация процесса, читается из окружения.
// Файл .env подхватывается, если лежит рядом с бинарником.
type Config struct {
	APIID       int    `env:"API_ID" env-required:"true"`
	APIHash     string `env:"API_HASH" env-required:"true"`
	DatabaseURL string `env:"DATABASE_URL" env-required:"true"`

	Port      string        `env:"PORT" env-default:"8080"`
	OpTimeout time.Duration `env:"OP_TIMEOUT" env-default:"30s"`

	// SOCKS5-прокси для исходящих подключений к Telegram (опционально).
	ProxyAddr     string `env:"PROXY_ADDR"`
	ProxyLogin    string `env:"PROXY_LOGIN"`
	ProxyPassword string `env:"PROXY_PASSWORD"`
}

// MustLoad читает конфигурацию и завершает процесс, если обязательные
// переменные не заданы: без api_id/api_hash и базы хаб бесполезен.
func MustLoad() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[CONFIG] .env не найден, используем переменные окружения")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("[CONFIG] не удалось прочитать конфигурацию: %v", err)
	}
	return &cfg
}
