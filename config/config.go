package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// JWT
	JWTSecret    string
	JWTExpiresIn time.Duration

	// AWS S3
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3BucketName       string

	// Server
	Port            string
	AppEnv          string
	AppName         string
	FrontendBaseURL string

	// File Upload
	MaxFileSize       int64
	AllowedExtensions string

	// Logging
	LogLevel     string
	LogFile      string
	RollbarToken string

	// Email
	MailFrom       string
	SendgridAPIKey string

	// LINE
	LineChannelSecret      string
	LineChannelAccessToken string

	// School day rules
	SchoolDayStart   string
	LateGraceMinutes int
	HalfDayHours     float64

	// Account security
	VerificationResendCooldown time.Duration
	VerificationTTL            time.Duration
	PasswordResetTTL           time.Duration
	LoginMaxAttempts           int
	LoginLockWindow            time.Duration

	// Feature Toggles
	UseRedisNotifications bool
	SkipMigrate           bool
	EnableSchedulers      bool
}

func (c *Config) GetDSN() string {
	if c.DBDriver == "postgres" {
		return "host=" + c.DBHost + " user=" + c.DBUser + " password=" + c.DBPassword +
			" dbname=" + c.DBName + " port=" + c.DBPort + " sslmode=disable TimeZone=UTC"
	}
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=UTC"
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.ToLower(c.AppEnv) == "production"
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string

	// Stage & base path for SSM (allows multi-env without code changes)
	basePath := getEnv("SSM_BASE_PATH", "/schoolpulse")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	basePath = strings.TrimRight(basePath, "/")
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "ap-southeast-1"))})
		if err != nil {
			log.Fatal("Failed to create AWS session:", err)
		}
		log.Printf("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssm.New(sess), prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	}

	getVal := func(key, def string) string {
		if useSSM {
			if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	}

	cfg, err := build(getVal)
	if err != nil {
		log.Fatal(err)
	}
	AppConfig = cfg

	validateConfig(AppConfig, useSSM)
}

// build assembles a Config from a key lookup. Invalid numeric or duration values are errors.
func build(getVal func(key, def string) string) (*Config, error) {
	jwtExpires, err := ParseDuration(getVal("JWT_EXPIRES_IN", "7d"))
	if err != nil {
		return nil, configError("JWT_EXPIRES_IN", err)
	}
	maxFileSize, err := strconv.ParseInt(getVal("MAX_FILE_SIZE", "10485760"), 10, 64)
	if err != nil {
		return nil, configError("MAX_FILE_SIZE", err)
	}
	lateGrace, err := strconv.Atoi(getVal("LATE_GRACE_MINUTES", "15"))
	if err != nil {
		return nil, configError("LATE_GRACE_MINUTES", err)
	}
	halfDay, err := strconv.ParseFloat(getVal("HALF_DAY_HOURS", "4"), 64)
	if err != nil {
		return nil, configError("HALF_DAY_HOURS", err)
	}
	maxAttempts, err := strconv.Atoi(getVal("LOGIN_MAX_ATTEMPTS", "5"))
	if err != nil {
		return nil, configError("LOGIN_MAX_ATTEMPTS", err)
	}

	var cooldown, verifyTTL, resetTTL, lockWindow time.Duration
	for _, d := range []struct {
		key, def string
		dst      *time.Duration
	}{
		{"VERIFICATION_RESEND_COOLDOWN", "60s", &cooldown},
		{"VERIFICATION_TTL", "48h", &verifyTTL},
		{"PASSWORD_RESET_TTL", "1h", &resetTTL},
		{"LOGIN_LOCK_WINDOW", "15m", &lockWindow},
	} {
		v, err := ParseDuration(getVal(d.key, d.def))
		if err != nil {
			return nil, configError(d.key, err)
		}
		*d.dst = v
	}

	dbDriver := strings.ToLower(getVal("DB_DRIVER", "mysql"))
	defaultPort := "3306"
	if dbDriver == "postgres" {
		defaultPort = "5432"
	}

	return &Config{
		DBDriver:   dbDriver,
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", defaultPort),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "schoolpulse"),

		RedisHost:     getVal("REDIS_HOST", "localhost"),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		JWTSecret:    getVal("JWT_SECRET", "your_super_secret_jwt_key"),
		JWTExpiresIn: jwtExpires,

		AWSRegion:          getVal("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:     getVal("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getVal("AWS_SECRET_ACCESS_KEY", ""),
		S3BucketName:       getVal("S3_BUCKET_NAME", "schoolpulse-storage"),

		Port:            getVal("PORT", "3000"),
		AppEnv:          getVal("APP_ENV", "development"),
		AppName:         getVal("APP_NAME", "SchoolPulse"),
		FrontendBaseURL: strings.TrimRight(getVal("FRONTEND_BASE_URL", "http://localhost:3001"), "/"),

		MaxFileSize:       maxFileSize,
		AllowedExtensions: getVal("ALLOWED_EXTENSIONS", "jpg,jpeg,png,gif,pdf,doc,docx,ppt,pptx,xlsx"),

		LogLevel:     getVal("LOG_LEVEL", "info"),
		LogFile:      getVal("LOG_FILE", "logs/app.log"),
		RollbarToken: getVal("ROLLBAR_TOKEN", ""),

		MailFrom:       getVal("MAIL_FROM", "no-reply@schoolpulse.local"),
		SendgridAPIKey: getVal("SENDGRID_API_KEY", ""),

		LineChannelSecret:      getVal("LINE_CHANNEL_SECRET", ""),
		LineChannelAccessToken: getVal("LINE_CHANNEL_ACCESS_TOKEN", ""),

		SchoolDayStart:   getVal("SCHOOL_DAY_START", "08:30"),
		LateGraceMinutes: lateGrace,
		HalfDayHours:     halfDay,

		VerificationResendCooldown: cooldown,
		VerificationTTL:            verifyTTL,
		PasswordResetTTL:           resetTTL,
		LoginMaxAttempts:           maxAttempts,
		LoginLockWindow:            lockWindow,

		UseRedisNotifications: strings.ToLower(getVal("USE_REDIS_NOTIFICATIONS", "false")) == "true",
		SkipMigrate:           strings.ToLower(getVal("SKIP_MIGRATE", "false")) == "true",
		EnableSchedulers:      strings.ToLower(getVal("ENABLE_SCHEDULERS", "true")) == "true",
	}, nil
}

// ParseDuration accepts Go durations plus day/week shorthand such as "7d" or "2w".
func ParseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}
	v := strings.TrimSpace(strings.ToLower(s))
	if len(v) > 1 {
		unit := v[len(v)-1]
		if n, err2 := strconv.Atoi(v[:len(v)-1]); err2 == nil {
			switch unit {
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n*7) * 24 * time.Hour, nil
			}
		}
	}
	return 0, err
}

// ForTesting returns a development configuration with no external services.
func ForTesting() *Config {
	cfg, _ := build(func(_, def string) string { return def })
	cfg.AppEnv = "test"
	cfg.JWTSecret = "test-secret-key-0123456789"
	cfg.EnableSchedulers = false
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// fetchSSMParameters reads all parameters under prefix and returns map with UPPERCASE keys.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	next := aws.String("")
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
		}
		if *next != "" {
			in.NextToken = next
		}
		resp, err := client.GetParametersByPath(in)
		if err != nil {
			log.Printf("Warning: unable to fetch SSM parameters for prefix %s: %v", prefix, err)
			break
		}
		for _, p := range resp.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			if key := ssmKey(*p.Name); key != "" {
				out[key] = *p.Value
			}
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out
}

// ssmKey keeps the last path segment of a parameter name.
func ssmKey(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.ToUpper(name)
}

func validateConfig(c *Config, usedSSM bool) {
	if !c.IsProduction() {
		return
	}
	required := map[string]string{
		"DB_PASSWORD": c.DBPassword,
		"JWT_SECRET":  c.JWTSecret,
	}
	for k, v := range required {
		if strings.TrimSpace(v) == "" {
			log.Fatalf("Missing required secret %s in production (SSM=%v)", k, usedSSM)
		}
	}
	if len(c.JWTSecret) < 16 {
		log.Fatal("JWT_SECRET too short (min 16 chars)")
	}
}

type invalidValueError struct {
	key string
	err error
}

func (e *invalidValueError) Error() string { return "invalid " + e.key + ": " + e.err.Error() }
func (e *invalidValueError) Unwrap() error { return e.err }

func configError(key string, err error) error {
	return &invalidValueError{key: key, err: err}
}
