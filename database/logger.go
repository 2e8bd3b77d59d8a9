/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/testspec/utils"
)

// Logger is the structured logger handed to every persistence component.
// fields are alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// NewLogger returns a Logger writing through the named utils logger, so its
// level follows utils.ConfigureLogLevel and utils.SetLoggerLevel.
func NewLogger(name string) Logger {
	return FromLogrus(utils.NewLogger(name))
}

// FromLogrus adapts an existing logrus logger.
func FromLogrus(l *logrus.Logger) Logger {
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// LoggerOrNop returns l, or a logger that discards everything when l is nil.
func LoggerOrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

type logrusLogger struct {
	entry *logrus.Entry
}

func (l *logrusLogger) Debug(msg string, fields ...interface{}) {
	l.with(fields).Debug(msg)
}

func (l *logrusLogger) Info(msg string, fields ...interface{}) {
	l.with(fields).Info(msg)
}

func (l *logrusLogger) Warn(msg string, fields ...interface{}) {
	l.with(fields).Warn(msg)
}

func (l *logrusLogger) Error(msg string, fields ...interface{}) {
	l.with(fields).Error(msg)
}

// with turns key/value pairs into logrus fields. A trailing key without a
// value is kept under "extra".
func (l *logrusLogger) with(kv []interface{}) *logrus.Entry {
	if len(kv) == 0 {
		return l.entry
	}
	fields := make(logrus.Fields, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			fields["extra"] = kv[i]
			break
		}
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.entry.WithFields(fields)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
