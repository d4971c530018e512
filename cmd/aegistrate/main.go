// Command aegistrate runs the bot.
package main

import (
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/config"
	"github.com/keshon/aegistrate/internal/registration"
	"github.com/keshon/aegistrate/internal/startup"
)

// Exit codes.
const (
	exitOK        = 0
	exitError     = 1
	exitConfig    = 2
	exitTimeout   = 3
	exitSyncSetup = 4
	exitCatalog   = 5
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrConfigMissing), errors.Is(err, config.ErrConfigInvalid):
		return exitConfig
	case errors.Is(err, startup.ErrStartupTimeout):
		return exitTimeout
	case errors.Is(err, registration.ErrSyncSetup):
		return exitSyncSetup
	case errors.Is(err, command.ErrDuplicateCommandName),
		errors.Is(err, command.ErrInvalidDescriptor),
		errors.Is(err, command.ErrUnknownPlugin):
		return exitCatalog
	}
	return exitError
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	err := newRootCommand().Execute()
	code := exitCode(err)
	if err != nil {
		log.Error().Err(err).Int("exit_code", code).Msg("aegistrate stopped")
	}
	os.Exit(code)
}
