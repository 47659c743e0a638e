package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 应用配置
type Config struct {
	Port     int
	MongoURI string
	MongoDB  string
	JWTKey   string
	Debug    bool

	CORSOrigins []string

	// 占用租约
	LeaseTimeout       time.Duration
	RenewInterval      time.Duration
	ClaimSweepInterval time.Duration

	// 队列与会话
	QueueRefreshInterval time.Duration
	StorePollInterval    time.Duration
	SessionIdleTimeout   time.Duration

	// 可选外部依赖，为空时不启用
	AMQPURL     string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	SMTPFrom    string
	CatalogFile string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		MongoURI: getEnv("MONGO_URI", "mongodb://127.0.0.1:27017/dialer"),
		MongoDB:  getEnv("MONGO_DB", "dialer"),
		JWTKey:   getEnv("JWT_KEY", "your-secret-key"), // 实际环境应替换为安全密钥
		Debug:    getEnv("GIN_MODE", "debug") == "debug",

		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3001", "http://localhost:5173"}),

		LeaseTimeout:       getEnvDuration("LEASE_TIMEOUT", 5*time.Minute),
		RenewInterval:      getEnvDuration("RENEW_INTERVAL", 2*time.Minute),
		ClaimSweepInterval: getEnvDuration("CLAIM_SWEEP_INTERVAL", time.Minute),

		QueueRefreshInterval: getEnvDuration("QUEUE_REFRESH_INTERVAL", 5*time.Second),
		StorePollInterval:    getEnvDuration("STORE_POLL_INTERVAL", time.Second),
		SessionIdleTimeout:   getEnvDuration("SESSION_IDLE_TIMEOUT", 15*time.Minute),

		AMQPURL:     getEnv("AMQP_URL", ""),
		SMTPHost:    getEnv("SMTP_HOST", ""),
		SMTPPort:    getEnvInt("SMTP_PORT", 587),
		SMTPUser:    getEnv("SMTP_USER", ""),
		SMTPPass:    getEnv("SMTP_PASS", ""),
		SMTPFrom:    getEnv("SMTP_FROM", "sales@example.com"),
		CatalogFile: getEnv("CATALOG_FILE", ""),
	}
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvList(key string, defaultValue []string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
