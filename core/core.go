// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core holds what every part of the engine shares: the process
// Context with its logger and configuration, configuration loading and
// the time services that pace the main loop.
package core

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Context is created once in main and passed down to every component
// that needs to log or abort.
type Context struct {
	Log    *log.Logger
	Config Configuration
}

// NewContext creates a Context logging to stderr at the configured level.
func NewContext(cfg Configuration) *Context {
	logger := log.New()
	logger.Out = os.Stderr
	logger.Formatter = &log.TextFormatter{FullTimestamp: true}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return &Context{
		Log:    logger,
		Config: cfg,
	}
}

// Logger returns a logger tagged with the component name.
func (c *Context) Logger(component string) log.FieldLogger {
	return c.Log.WithField("component", component)
}

// Fatal logs err and terminates the process through the logger's ExitFunc.
func (c *Context) Fatal(err error, msg string) {
	c.Log.WithError(err).Fatal(msg)
}

// Must calls Fatal when err is not nil.
func (c *Context) Must(err error, msg string) {
	if err != nil {
		c.Fatal(err, msg)
	}
}
