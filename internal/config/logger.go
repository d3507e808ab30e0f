package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogger는 App 설정에 맞게 표준 로거를 구성하고 기본 엔트리를 반환합니다
func SetupLogger(app App) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(app.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL 파싱 실패: %w", err)
	}

	logger := logrus.StandardLogger()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)

	switch app.LogFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("지원하지 않는 LOG_FORMAT: %s", app.LogFormat)
	}

	return logrus.NewEntry(logger).WithField("app", "sentinel"), nil
}
