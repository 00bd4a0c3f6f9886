package fsm

import (
	"context"
	"io"

	"github.com/muurk/tlsecho/internal/config"
)

// ArgParser populates the record from command-line arguments. Returning
// config.ErrHelp means help was printed and the process should exit cleanly.
type ArgParser interface {
	ParseArgs(args []string, rec *config.Record) error
}

// Validator performs cross-field checks on a parsed record.
type Validator interface {
	Validate(rec *config.Record) error
}

// ServerRunner runs the server until it stops.
type ServerRunner interface {
	RunServer(ctx context.Context, rec *config.Record) error
}

// ClientRunner runs the interactive client until the session ends.
type ClientRunner interface {
	RunClient(ctx context.Context, rec *config.Record) error
}

// ArgParserFunc adapts a function to ArgParser.
type ArgParserFunc func(args []string, rec *config.Record) error

func (f ArgParserFunc) ParseArgs(args []string, rec *config.Record) error {
	return f(args, rec)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(rec *config.Record) error

func (f ValidatorFunc) Validate(rec *config.Record) error {
	return f(rec)
}

// ServerRunnerFunc adapts a function to ServerRunner.
type ServerRunnerFunc func(ctx context.Context, rec *config.Record) error

func (f ServerRunnerFunc) RunServer(ctx context.Context, rec *config.Record) error {
	return f(ctx, rec)
}

// ClientRunnerFunc adapts a function to ClientRunner.
type ClientRunnerFunc func(ctx context.Context, rec *config.Record) error

func (f ClientRunnerFunc) RunClient(ctx context.Context, rec *config.Record) error {
	return f(ctx, rec)
}

// DefaultArgParser parses with config.ParseArgs, printing help to stdout.
func DefaultArgParser(stdout io.Writer) ArgParser {
	return ArgParserFunc(func(args []string, rec *config.Record) error {
		return config.ParseArgs(args, rec, stdout)
	})
}

// DefaultValidator applies config.Validate.
func DefaultValidator() Validator {
	return ValidatorFunc(config.Validate)
}
