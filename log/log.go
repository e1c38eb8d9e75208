package log

/*
   Copyright 2024 Tidemark Labs

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging surface used across the engine.
// Each graph carries its own Logger; there is no process-wide mutable
// logging state.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	// With returns a Logger carrying additional structured context.
	With(keysAndValues ...interface{}) Logger
}

// Options select the level and encoding of an engine logger.
type Options struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string
	// Console switches to human readable output instead of JSON.
	Console bool
}

// Build constructs a logger from the options with the given structured
// context. An unknown level name is an error.
func (o Options) Build(keysAndValues ...interface{}) (logger Logger, err error) {
	level := zapcore.InfoLevel
	if o.Level != "" {
		if err = level.UnmarshalText([]byte(o.Level)); err != nil {
			return nil, err
		}
	}

	cfg := zap.NewProductionConfig()
	if o.Console {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	root, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return zapLogger{root.Sugar()}, nil
}

// New returns a JSON logger at info level with the given structured
// context.
func New(keysAndValues ...interface{}) (logger Logger) {
	logger, err := Options{}.Build()
	if err != nil {
		panic(err)
	}
	return logger.With(keysAndValues...)
}

// Discard drops every entry. Useful to silence a graph in tests.
var Discard Logger = zapLogger{zap.NewNop().Sugar()}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Infow(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l zapLogger) Warnw(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}

func (l zapLogger) Errorw(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l zapLogger) Debugw(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l zapLogger) With(keysAndValues ...interface{}) (logger Logger) {
	return zapLogger{l.s.With(keysAndValues...)}
}
