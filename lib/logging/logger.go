package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

// Names of the loggers used across bdb-tool
var Names = []string{"store", "lockmgr", "env", "coord", "tool", "cli"}

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// toolLogger implements the ILogger interface with custom formatting
type toolLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *toolLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *toolLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *toolLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *toolLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *toolLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *toolLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message
func (l *toolLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-10s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	outputMu sync.Mutex
	output   io.Writer = os.Stderr
)

// currentOutput writes to the writer set by the latest Init
type currentOutput struct{}

func (currentOutput) Write(p []byte) (int, error) {
	outputMu.Lock()
	defer outputMu.Unlock()
	return output.Write(p)
}

// CreateLogger implements logger.Factory. Log lines go to stderr so they never
// mix with the command output on stdout.
func CreateLogger(pkgName string) logger.ILogger {
	return &toolLogger{
		name:   pkgName,
		level:  logger.WARNING,
		logger: log.New(currentOutput{}, "", log.Ldate|log.Ltime),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLevel converts a string level to logger.LogLevel
func ParseLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn", "":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.WARNING, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

var factoryOnce sync.Once

// Init installs the custom logger factory, directs all log lines to w and sets
// the level of all bdb-tool loggers. It may be called again to switch writer
// and level.
func Init(w io.Writer, level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	outputMu.Lock()
	output = w
	outputMu.Unlock()
	factoryOnce.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, name := range Names {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
