package logger

import (
	"github.com/sirupsen/logrus"
)

// Log — глобальный структурированный логгер приложения.
// До вызова Init равен nil, использующий код обязан это учитывать.
var Log *logrus.Logger

// Init инициализирует логгер с указанным уровнем, формат по умолчанию JSON.
func Init(level string) {
	Log = logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	if Log != nil {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}
