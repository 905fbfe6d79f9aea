package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const timeFormat = "06-01-02 15:04:05"

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.NoLevel
	}
}

// leveledLogger fans every record out to a set of console writers. Errors
// may be routed to a separate set (see SetErrorWriter).
type leveledLogger struct {
	mu      sync.RWMutex
	verbose bool
	out     []io.Writer
	errOut  []io.Writer
	std     zerolog.Logger
	errs    zerolog.Logger
}

var globalLogger = newLeveledLogger(os.Stdout)

// exit is swapped in tests so FATAL does not kill the test binary.
var exit = os.Exit

func newLeveledLogger(w io.Writer) *leveledLogger {
	l := &leveledLogger{out: []io.Writer{w}}
	l.rebuild()
	return l
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: timeFormat,
		NoColor:    w != os.Stdout && w != os.Stderr,
		FormatLevel: func(i interface{}) string {
			return fmt.Sprintf("%-5s", strings.ToUpper(fmt.Sprint(i)))
		},
	}
}

func newZerolog(writers []io.Writer) zerolog.Logger {
	console := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		console = append(console, consoleWriter(w))
	}
	return zerolog.New(zerolog.MultiLevelWriter(console...)).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()
}

// rebuild must be called with mu held for writing.
func (l *leveledLogger) rebuild() {
	l.std = newZerolog(l.out)
	if len(l.errOut) == 0 {
		l.errs = l.std
		return
	}
	l.errs = newZerolog(l.errOut)
}

func SetVerbose(verbose bool) {
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.verbose = verbose
}

func IsVerbose() bool {
	globalLogger.mu.RLock()
	defer globalLogger.mu.RUnlock()
	return globalLogger.verbose
}

// SetWriterForAll replaces every destination, including a separate error writer.
func SetWriterForAll(writer io.Writer) {
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.out = []io.Writer{writer}
	globalLogger.errOut = nil
	globalLogger.rebuild()
}

// AddWriterForAll tees every level to an extra destination, such as a log file.
func AddWriterForAll(writer io.Writer) {
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.out = append(globalLogger.out, writer)
	if len(globalLogger.errOut) > 0 {
		globalLogger.errOut = append(globalLogger.errOut, writer)
	}
	globalLogger.rebuild()
}

// SetErrorWriter sends ERROR and FATAL to stderr while keeping any extra writers.
func SetErrorWriter() {
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	errOut := []io.Writer{os.Stderr}
	if len(globalLogger.out) > 1 {
		errOut = append(errOut, globalLogger.out[1:]...)
	}
	globalLogger.errOut = errOut
	globalLogger.rebuild()
}

func (l *leveledLogger) log(level LogLevel, format string, args ...interface{}) {
	l.mu.RLock()
	if level == DEBUG && !l.verbose {
		l.mu.RUnlock()
		return
	}
	zl := l.std
	if level >= ERROR {
		zl = l.errs
	}
	l.mu.RUnlock()

	zl.WithLevel(level.zerolog()).Msgf(format, args...)

	if level == FATAL {
		exit(1)
	}
}

func Debug(format string, args ...interface{}) {
	globalLogger.log(DEBUG, format, args...)
}

func Info(format string, args ...interface{}) {
	globalLogger.log(INFO, format, args...)
}

func Warn(format string, args ...interface{}) {
	globalLogger.log(WARN, format, args...)
}

func Error(format string, args ...interface{}) {
	globalLogger.log(ERROR, format, args...)
}

func Fatal(format string, args ...interface{}) {
	globalLogger.log(FATAL, format, args...)
}

func GetLogFromLevel(level LogLevel) func(format string, args ...interface{}) {
	return func(format string, args ...interface{}) {
		globalLogger.log(level, format, args...)
	}
}
