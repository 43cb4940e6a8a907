package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"schoolpulse_go/config"

	"github.com/pkg/errors"
	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"
	"github.com/sirupsen/logrus"
)

// Setup configures the global logrus logger: JSON output, the configured
// level, an optional log file and error reporting to Rollbar.
func Setup(cfg *config.Config) error {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	out, err := output(cfg)
	if err != nil {
		return err
	}
	logrus.SetOutput(out)

	if cfg.RollbarToken != "" {
		logrus.AddHook(NewRollbarHook(cfg))
	}
	return nil
}

func output(cfg *config.Config) (io.Writer, error) {
	if cfg.LogFile == "" || cfg.AppEnv == "development" || cfg.AppEnv == "test" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating log directory")
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, errors.Wrap(err, "opening log file")
	}
	return io.MultiWriter(os.Stdout, file), nil
}

// Flush waits for queued Rollbar items before shutdown.
func Flush() {
	rollbar.Wait()
}

// RollbarHook forwards warnings and errors to Rollbar.
type RollbarHook struct {
	report func(level string, args ...interface{})
}

var _ logrus.Hook = (*RollbarHook)(nil)

func NewRollbarHook(cfg *config.Config) *RollbarHook {
	rollbar.SetToken(cfg.RollbarToken)
	rollbar.SetEnvironment(cfg.AppEnv)
	rollbar.SetCodeVersion(cfg.AppName)
	rollbar.SetStackTracer(rollbarerrors.StackTracer)
	if host, err := os.Hostname(); err == nil {
		rollbar.SetServerHost(host)
	}
	rollbar.SetEnabled(true)
	return &RollbarHook{report: rollbar.Log}
}

func (h *RollbarHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (h *RollbarHook) Fire(entry *logrus.Entry) error {
	extras := make(map[string]interface{}, len(entry.Data))
	var cause error
	for k, v := range entry.Data {
		if e, ok := v.(error); ok && k == logrus.ErrorKey {
			cause = e
			continue
		}
		extras[k] = v
	}

	level := rollbarLevel(entry.Level)
	if cause != nil {
		h.report(level, errors.WithMessage(cause, entry.Message), extras)
		return nil
	}
	h.report(level, entry.Message, extras)
	return nil
}

func rollbarLevel(l logrus.Level) string {
	switch l {
	case logrus.PanicLevel, logrus.FatalLevel:
		return rollbar.CRIT
	case logrus.ErrorLevel:
		return rollbar.ERR
	case logrus.WarnLevel:
		return rollbar.WARN
	case logrus.InfoLevel:
		return rollbar.INFO
	default:
		return rollbar.DEBUG
	}
}
