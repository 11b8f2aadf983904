package main

import (
	"io"
	"slices"
	"sync"

	"github.com/go-pkgz/lgr"
)

// logMasker owns the logger setup. Every token seen during the run is added
// as an lgr secret, so one that arrives after startup is masked too.
type logMasker struct {
	mu      sync.Mutex
	w       io.Writer
	dbg     bool
	secrets []string
}

func newLogMasker(w io.Writer, dbg bool) *logMasker {
	m := &logMasker{w: w, dbg: dbg}
	m.setup()
	return m
}

// Add masks secret in all further log lines. Empty and known values are ignored.
func (m *logMasker) Add(secret string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if secret == "" || slices.Contains(m.secrets, secret) {
		return
	}
	m.secrets = append(m.secrets, secret)
	m.setup()
}

// setup sends logs to w only; the terminal belongs to the dashboard.
func (m *logMasker) setup() {
	logOpts := []lgr.Option{lgr.Out(m.w), lgr.Err(m.w)}
	if m.dbg {
		logOpts = append(logOpts, lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.CallerFile)
	}
	if len(m.secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(m.secrets...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
