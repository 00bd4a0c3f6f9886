package fsm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/muurk/tlsecho/internal/config"
	"github.com/muurk/tlsecho/internal/logging"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Observer is notified of every transition.
type Observer func(from, to State)

// Config wires the machine's collaborators.
type Config struct {
	// Args excludes the program name.
	Args []string

	// Parser defaults to config.ParseArgs.
	Parser ArgParser
	// Validator defaults to config.Validate.
	Validator Validator
	Server    ServerRunner
	Client    ClientRunner

	Observer Observer

	// Stdout receives help text, Stderr fatal diagnostics. Both default to
	// the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Machine drives one process run. It is not reusable.
type Machine struct {
	cfg   Config
	state State
	rec   *config.Record

	mu      sync.Mutex
	closers []io.Closer
	cleaned bool
}

// New creates a machine in StateInit.
func New(cfg Config) *Machine {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Parser == nil {
		cfg.Parser = DefaultArgParser(cfg.Stdout)
	}
	if cfg.Validator == nil {
		cfg.Validator = DefaultValidator()
	}
	return &Machine{cfg: cfg, state: StateInit}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Record returns the configuration record, nil before Init has run.
func (m *Machine) Record() *config.Record {
	return m.rec
}

// AddCloser registers a resource closed during Cleanup, in reverse order of
// registration.
func (m *Machine) AddCloser(c io.Closer) {
	if c == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, c)
}

// Run drives the machine to StateExit and returns the process exit code.
func (m *Machine) Run(ctx context.Context) int {
	if m.state != StateInit {
		return config.ExitFailure
	}

	for !m.state.Terminal() {
		next := m.step(ctx)
		m.transition(next)
	}

	if m.rec == nil {
		return config.ExitFailure
	}
	return m.rec.ExitCode
}

func (m *Machine) transition(next State) {
	from := m.state
	m.state = next
	logging.LogTransition(from.String(), next.String())
	if m.cfg.Observer != nil {
		m.cfg.Observer(from, next)
	}
}

// step runs the current state and returns the next one. A panic fails the
// run and routes to Cleanup, or to Exit if Cleanup itself panicked.
func (m *Machine) step(ctx context.Context) (next State) {
	current := m.state
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Panic during state",
				zap.String("state", current.String()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			m.fail(fmt.Errorf("internal error in %s: %v", current, r))
			if current == StateCleanup {
				next = StateExit
			} else {
				next = StateCleanup
			}
		}
	}()

	switch current {
	case StateInit:
		return m.init()
	case StateParseArgs:
		return m.parseArgs()
	case StateValidateConfig:
		return m.validate()
	case StateModeSelect:
		return m.selectMode()
	case StateServerMode:
		return m.runServer(ctx)
	case StateClientStandard:
		return m.runClient(ctx)
	case StateCleanup:
		return m.cleanup()
	default:
		m.fail(fmt.Errorf("unknown state %s", current))
		return StateCleanup
	}
}

func (m *Machine) init() State {
	m.rec = config.Default()
	return StateParseArgs
}

func (m *Machine) parseArgs() State {
	err := m.cfg.Parser.ParseArgs(m.cfg.Args, m.rec)
	switch {
	case err == nil:
		return StateValidateConfig
	case errors.Is(err, config.ErrHelp):
		m.rec.Mode = config.ModeHelp
		m.rec.ExitCode = config.ExitSuccess
		return StateCleanup
	default:
		m.fail(err)
		return StateCleanup
	}
}

func (m *Machine) validate() State {
	if err := m.cfg.Validator.Validate(m.rec); err != nil {
		m.fail(err)
		return StateCleanup
	}
	return StateModeSelect
}

func (m *Machine) selectMode() State {
	switch {
	case m.rec.Mode == config.ModeHelp:
		return StateCleanup
	case m.rec.HasRemote():
		m.rec.Mode = config.ModeClientStandard
		return StateClientStandard
	default:
		m.rec.Mode = config.ModeServer
		return StateServerMode
	}
}

func (m *Machine) runServer(ctx context.Context) State {
	if m.cfg.Server == nil {
		m.fail(errors.New("server mode is not available"))
		return StateCleanup
	}
	if err := m.cfg.Server.RunServer(ctx, m.rec); err != nil {
		m.fail(err)
	}
	return StateCleanup
}

func (m *Machine) runClient(ctx context.Context) State {
	if m.cfg.Client == nil {
		m.fail(errors.New("client mode is not available"))
		return StateCleanup
	}
	if err := m.cfg.Client.RunClient(ctx, m.rec); err != nil {
		m.fail(err)
	}
	return StateCleanup
}

// cleanup closes registered resources and releases the record. It tolerates
// a record that was never created and runs its body at most once.
func (m *Machine) cleanup() State {
	m.mu.Lock()
	if m.cleaned {
		m.mu.Unlock()
		return StateExit
	}
	m.cleaned = true
	closers := m.closers
	m.closers = nil
	m.mu.Unlock()

	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i].Close())
	}
	if err != nil {
		logging.Warn("Errors during cleanup", zap.Error(err))
	}

	m.rec.Release()
	logging.Sync()
	return StateExit
}

// fail records a failure exit code and prints the diagnostic.
func (m *Machine) fail(err error) {
	if m.rec != nil {
		m.rec.ExitCode = config.ExitFailure
	}
	logging.Error("Run failed", zap.String("state", m.state.String()), zap.Error(err))
	fmt.Fprintf(m.cfg.Stderr, "Error: %v\n", err)
}
