// Package log installs the process-wide zerolog logger and provides a
// StepLogger for timing the C1-C13 stages of one analytical pass.
//
// Grounded on the teacher's internal/log/progress.go StepLogger (named
// steps, per-step duration, a Finish() summary), trimmed to its quiet,
// non-interactive form: the engine runs under a scheduler/cron driver with
// no TTY, so the teacher's Spinner/ProgressIndicator/ETA rendering is
// dropped rather than adapted — there is no terminal to draw a progress bar
// on. Step timing is reported through zerolog fields instead of stdout.
package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init installs the global zerolog logger. format selects "console" (human,
// for local/dev use) or anything else for plain JSON (production), mirroring
// the teacher's cmd/cryptorun/main.go console-vs-JSON selection.
func Init(format string) {
	zerolog.TimeFieldFormat = time.RFC3339

	if format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// StepLogger times a named sequence of pipeline stages for one (symbol,
// timeframe) pass, logging each stage's start, completion, and duration.
type StepLogger struct {
	logger    zerolog.Logger
	steps     []string
	current   int
	startedAt time.Time
	stepStart time.Time
	durations []time.Duration
}

// NewStepLogger builds a StepLogger bound to a parent logger already carrying
// the pass's (symbol, timeframe) context fields.
func NewStepLogger(logger zerolog.Logger, steps []string) *StepLogger {
	return &StepLogger{
		logger:    logger,
		steps:     steps,
		current:   -1,
		startedAt: time.Now(),
		durations: make([]time.Duration, len(steps)),
	}
}

// StartStep begins timing stepName; it must be one of the steps passed to
// NewStepLogger.
func (sl *StepLogger) StartStep(stepName string) {
	sl.completeCurrent()
	idx := -1
	for i, s := range sl.steps {
		if s == stepName {
			idx = i
			break
		}
	}
	if idx == -1 {
		sl.logger.Warn().Str("step", stepName).Msg("starting unrecognized pipeline step")
	}
	sl.current = idx
	sl.stepStart = time.Now()
	sl.logger.Debug().Str("step", stepName).Msg("pipeline step starting")
}

func (sl *StepLogger) completeCurrent() {
	if sl.current < 0 || sl.current >= len(sl.steps) {
		return
	}
	d := time.Since(sl.stepStart)
	sl.durations[sl.current] = d
	sl.logger.Debug().Str("step", sl.steps[sl.current]).Dur("duration", d).Msg("pipeline step completed")
}

// Finish completes any in-flight step and logs a total-duration summary.
func (sl *StepLogger) Finish() {
	sl.completeCurrent()
	total := time.Since(sl.startedAt)
	evt := sl.logger.Info().Dur("total_duration", total)
	for i, s := range sl.steps {
		evt = evt.Dur(s, sl.durations[i])
	}
	evt.Msg("analytical pass completed")
}

// Fail logs the pass as failed at whichever step was in flight.
func (sl *StepLogger) Fail(err error) {
	step := "unknown"
	if sl.current >= 0 && sl.current < len(sl.steps) {
		step = sl.steps[sl.current]
	}
	sl.logger.Error().Err(err).Str("failed_step", step).Dur("elapsed", time.Since(sl.startedAt)).Msg("analytical pass failed")
}
