package logging

import (
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillAdapter routes watermill's structured logs into zerolog.
type WatermillAdapter struct {
	logger zerolog.Logger
	fields watermill.LogFields
}

var _ watermill.LoggerAdapter = (*WatermillAdapter)(nil)

func Watermill(logger zerolog.Logger) *WatermillAdapter {
	return &WatermillAdapter{logger: Component(logger, "watermill")}
}

func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(a.logger.Error().Err(err), fields).Msg(msg)
}

func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(a.logger.Info(), fields).Msg(msg)
}

func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(a.logger.Debug(), fields).Msg(msg)
}

func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(a.logger.Trace(), fields).Msg(msg)
}

func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{logger: a.logger, fields: a.fields.Add(fields)}
}

func (a *WatermillAdapter) event(ev *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range a.fields.Add(fields) {
		ev = ev.Interface(k, v)
	}
	return ev
}

// BadgerAdapter satisfies badger.Logger. Badger is chatty at info level so
// its info and debug output are both logged at debug.
type BadgerAdapter struct {
	logger zerolog.Logger
}

func Badger(logger zerolog.Logger) *BadgerAdapter {
	return &BadgerAdapter{logger: Component(logger, "badger")}
}

func (a *BadgerAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error().Msg(trimFormat(format, args...))
}

func (a *BadgerAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn().Msg(trimFormat(format, args...))
}

func (a *BadgerAdapter) Infof(format string, args ...interface{}) {
	a.logger.Debug().Msg(trimFormat(format, args...))
}

func (a *BadgerAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug().Msg(trimFormat(format, args...))
}

func trimFormat(format string, args ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
