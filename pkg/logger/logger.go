package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	base        *zap.Logger
	once        sync.Once
	serviceName = "default"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Init replaces the default production logger.
func Init(l *zap.Logger) {
	base = l
}

func get() *zap.Logger {
	once.Do(func() {
		if base == nil {
			base, _ = zap.NewProduction()
		}
	})
	return base
}

func Info(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Fatal(fmt.Sprintf(format, args...))
}
