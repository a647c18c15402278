// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"fmt"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/pion/logging"
)

type loggerFactory struct {
	log mlog.LoggerIFace
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{
		log:   f.log,
		scope: scope,
	}
}

// pionLogger forwards pion logs to mlog. Pion is very verbose at debug level
// so it gets demoted to trace.
type pionLogger struct {
	log   mlog.LoggerIFace
	scope string
}

func (l *pionLogger) Trace(msg string) {
	l.log.Trace(msg, mlog.String("scope", l.scope))
}

func (l *pionLogger) Tracef(format string, args ...interface{}) {
	l.Trace(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Debug(msg string) {
	l.log.Trace(msg, mlog.String("scope", l.scope))
}

func (l *pionLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Info(msg string) {
	l.log.Info(msg, mlog.String("scope", l.scope))
}

func (l *pionLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Warn(msg string) {
	l.log.Warn(msg, mlog.String("scope", l.scope))
}

func (l *pionLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Error(msg string) {
	l.log.Error(msg, mlog.String("scope", l.scope))
}

func (l *pionLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}
