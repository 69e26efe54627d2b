/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// logger.go is the Verbosef/Errorf logging facade threaded through every
// component (log.Verbosef(...), log.Errorf(...)). The facade is backed
// by logrus instead of a bare *log.Logger, giving structured
// per-component fields.
package router

import "github.com/sirupsen/logrus"

// Logger is the facade every layer logs through. Component is set once
// per subsystem (e.g. "arp", "ipv4", "napt") and carried on every entry.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger builds a Logger writing at level through logrus's default
// text formatter.
func NewLogger(level logrus.Level) *Logger {
	l := logrus.New()
	l.SetLevel(level)
	return &Logger{entry: logrus.NewEntry(l)}
}

// Component returns a child Logger tagging every subsequent call with
// the given subsystem name, mirroring spec.md §7's "log at component
// category."
func (l *Logger) Component(name string) *Logger {
	return &Logger{entry: l.entry.WithField("component", name)}
}

func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Verbosef(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}
