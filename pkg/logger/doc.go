// Package logger provides structured logging for osugrab.
//
// It wraps zerolog behind a small Logger interface with leveled methods,
// field chaining (WithField/WithFields/WithError), pretty console output
// and optional file output. A global instance is available through
// Initialize/GetLogger for code paths that do not carry a logger.
package logger
