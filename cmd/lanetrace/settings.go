package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"lanetrace/internal/config"
	"lanetrace/internal/logging"
)

// settings is the config file with command-line overrides applied.
type settings struct {
	file   config.File
	path   string
	logger *slog.Logger
}

func loadSettings(cmd *cobra.Command) (settings, error) {
	flags := cmd.Root().PersistentFlags()

	levelStr, err := flags.GetString("log-level")
	if err != nil {
		return settings{}, fmt.Errorf("failed to get log-level flag: %w", err)
	}
	level, err := logging.ParseLevel(levelStr)
	if err != nil {
		return settings{}, err
	}
	s := settings{logger: logging.NewTo(cmd.ErrOrStderr(), level)}

	path, err := flags.GetString("config")
	if err != nil {
		return settings{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path != "" {
		s.file, err = config.Load(path)
		if err != nil {
			return settings{}, err
		}
		s.path = path
	} else {
		s.file, s.path, err = config.Discover(".")
		switch {
		case errors.Is(err, config.ErrNotFound):
			s.logger.Debug("no config file, using defaults")
		case err != nil:
			return settings{}, err
		}
	}

	overrides := []struct {
		flag string
		dst  *string
	}{
		{"verbosity", &s.file.Trace.Verbosity},
		{"format", &s.file.Trace.Format},
		{"glyphs", &s.file.Trace.Glyphs},
		{"color", &s.file.Trace.Color},
	}
	for _, o := range overrides {
		if !flags.Changed(o.flag) {
			continue
		}
		v, err := flags.GetString(o.flag)
		if err != nil {
			return settings{}, fmt.Errorf("failed to get %s flag: %w", o.flag, err)
		}
		*o.dst = v
	}
	if flags.Changed("channel-width") {
		width, err := flags.GetInt("channel-width")
		if err != nil {
			return settings{}, fmt.Errorf("failed to get channel-width flag: %w", err)
		}
		s.file.Trace.ChannelWidth = width
	}
	if err := s.file.Validate(); err != nil {
		return settings{}, err
	}
	if s.path != "" {
		s.logger.Debug("config loaded", "path", s.path)
	}
	return s, nil
}

// writerIsTerminal reports whether w is a terminal file.
func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}
