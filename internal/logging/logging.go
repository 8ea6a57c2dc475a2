// Package logging configures the process-wide structured logger, in the
// style of the pack's logrus-based health/observability setup.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Options controls how New builds a logger.
type Options struct {
	Level string // parsed with logrus.ParseLevel; defaults to info on error
	JSON  bool
	File  string // if set, logs are written here instead of stderr
}

// New builds a logrus.Logger per opts and returns it wrapped as an Entry
// carrying no fields yet, ready for callers to attach component-scoped
// fields via WithField.
func New(opts Options) (*logrus.Entry, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		log.SetOutput(f)
	}

	return logrus.NewEntry(log), nil
}
