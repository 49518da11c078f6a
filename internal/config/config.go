package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL,required"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	JWTSecret            string `env:"JWT_SECRET,required,notEmpty"`
	JWTSessionTTLMinutes int    `env:"JWT_SESSION_TTL_MINUTES" envDefault:"1440"`
	JWTResetTTLMinutes   int    `env:"JWT_RESET_TTL_MINUTES" envDefault:"30"`

	AppBaseURL       string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
	ResetPasswordURL string `env:"RESET_PASSWORD_URL" envDefault:"http://localhost:3000/changepassword"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	S3Bucket       string `env:"S3_BUCKET"`
	S3Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	S3BaseEndpoint string `env:"S3_BASE_ENDPOINT"`
	S3AccessKey    string `env:"S3_ACCESS_KEY"`
	S3SecretKey    string `env:"S3_SECRET_KEY"`
	S3PublicURL    string `env:"S3_PUBLIC_URL"`
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"./uploads"`
	UploadURL      string `env:"UPLOAD_URL" envDefault:"/uploads"`
	MaxUploadMB    int64  `env:"MAX_UPLOAD_MB" envDefault:"5"`

	MailLimitWindowMinutes int `env:"MAIL_LIMIT_WINDOW_MINUTES" envDefault:"10"`
	MailLimitMax           int `env:"MAIL_LIMIT_MAX" envDefault:"3"`
	AuthRatePerMinute      int `env:"AUTH_RATE_PER_MINUTE" envDefault:"20"`
	AuthRateBurst          int `env:"AUTH_RATE_BURST" envDefault:"5"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.JWTSessionTTLMinutes) * time.Minute
}

func (c *Config) ResetTTL() time.Duration {
	return time.Duration(c.JWTResetTTLMinutes) * time.Minute
}

func (c *Config) MailLimitWindow() time.Duration {
	return time.Duration(c.MailLimitWindowMinutes) * time.Minute
}

func (c *Config) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return 5 << 20
	}
	return c.MaxUploadMB << 20
}
