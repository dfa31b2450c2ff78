package config

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/darkconsole/console-chat/models"
)

// Config holds the project config values
type Config struct {
	URL                    string
	DatabaseName           string
	BaseURL                string
	Port                   string
	Env                    string
	JWTSecret              string
	MaxAttachmentBytes     int
	SendRatePerSec         float64
	SendBurst              int
	CommunityRetentionDays int
	HistoryLimit           int
}

// New sets up all config related services
func New() *Config {
	// a missing .env is fine, the environment wins anyway
	_ = godotenv.Load()

	env := os.Getenv("ENV")

	//setup zap logger and replace default logger
	logger, err := setLogger(env)
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		URL:                    os.Getenv("DB_URI"),
		DatabaseName:           os.Getenv("DB_NAME"),
		BaseURL:                os.Getenv("BASE_URL"),
		Port:                   os.Getenv("PORT"),
		Env:                    env,
		JWTSecret:              os.Getenv("JWT_SECRET"),
		MaxAttachmentBytes:     intEnv("MAX_ATTACHMENT_BYTES", 5<<20),
		SendRatePerSec:         floatEnv("SEND_RATE_PER_SEC", 5),
		SendBurst:              intEnv("SEND_BURST", 10),
		CommunityRetentionDays: intEnv("COMMUNITY_RETENTION_DAYS", 30),
		HistoryLimit:           intEnv("HISTORY_LIMIT", 200),
	}
}

// setLogger picks the zap preset for the running environment
func setLogger(env string) (*zap.Logger, error) {
	switch env {
	case "development":
		return zap.NewDevelopment()
	case "production":
		return zap.NewProduction()
	default:
		return zap.NewExample(), nil
	}
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		zap.S().Warnw("ignoring invalid integer setting", "key", key, "value", v)
		return def
	}
	return n
}

func floatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		zap.S().Warnw("ignoring invalid number setting", "key", key, "value", v)
		return def
	}
	return f
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().Errorw(message, "error", err)
	b, _ := json.Marshal(models.ErrorMessageResponse{Response: models.MessageError{Message: message, Error: errString(err)}})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	w.Write(b)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
