package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronLogger adapts a logrus logger to cron.Logger. Cron's informational chatter is
// logged at debug level.
type CronLogger struct {
	Logger *logrus.Logger
}

var _ cron.Logger = (*CronLogger)(nil)

func NewCronLogger(logger *logrus.Logger) *CronLogger {
	return &CronLogger{
		Logger: logger,
	}
}

func (cronLogger *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	cronLogger.Logger.WithFields(fields(keysAndValues)).Debugf("cron: %s", msg)
}

func (cronLogger *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	cronLogger.Logger.WithFields(fields(keysAndValues)).WithError(err).Errorf("cron: %s", msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	result := logrus.Fields{}
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 < len(keysAndValues) {
			result[key] = keysAndValues[i+1]
		} else {
			result[key] = nil
		}
	}
	return result
}
