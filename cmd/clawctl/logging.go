package main

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// newLogger logs to stderr, or to --log-file (else nowhere) while a screen
// owns the terminal.
func newLogger(screen bool) (*log.Logger, func() error, error) {
	var w io.Writer = os.Stderr
	closeFn := func() error { return nil }

	if screen {
		w = io.Discard
		if opts.LogFile != "" {
			f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, nil, errors.Wrap(err, "open log file")
			}
			w = f
			closeFn = f.Close
		}
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
	if opts.Verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger, closeFn, nil
}
