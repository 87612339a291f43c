package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"droplet/internal/ui"
)

// LogDirEnv overrides the directory droplet writes its log file to.
const LogDirEnv = "DROPLET_LOG_DIR"

const logFileName = "droplet.log"

type ErrorHandler struct {
	logger  *slog.Logger
	console *ui.Console
	logFile *os.File
}

// NewErrorHandler opens the droplet log file and returns a handler that
// renders errors on console and records them as JSON log lines.
func NewErrorHandler(console *ui.Console, level slog.Level) (*ErrorHandler, error) {
	var diag io.Writer = os.Stderr
	if console != nil {
		diag = console.ErrOut()
	}

	logFile, err := createLogFile(diag)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: level,
	}))

	return &ErrorHandler{
		logger:  logger,
		console: console,
		logFile: logFile,
	}, nil
}

// NewDiscardHandler returns a handler that renders errors but drops log records.
func NewDiscardHandler(console *ui.Console) *ErrorHandler {
	return &ErrorHandler{
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		console: console,
	}
}

// Logger returns the structured logger backed by the log file.
func (h *ErrorHandler) Logger() *slog.Logger {
	return h.logger
}

// Close closes the log file.
func (h *ErrorHandler) Close() error {
	if h.logFile == nil {
		return nil
	}
	return h.logFile.Close()
}

// getOSStandardLogDir returns the OS-standard log directory path
func getOSStandardLogDir() (string, error) {
	// Check for environment variable override first
	if customLogDir := os.Getenv(LogDirEnv); customLogDir != "" {
		return customLogDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		// macOS: ~/Library/Logs/Droplet/
		return filepath.Join(homeDir, "Library", "Logs", "Droplet"), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		// Linux/Unix: ~/.local/share/droplet/logs/ (XDG Base Directory)
		return filepath.Join(homeDir, ".local", "share", "droplet", "logs"), nil
	case "windows":
		appDataDir := os.Getenv("APPDATA")
		if appDataDir == "" {
			return filepath.Join(homeDir, "AppData", "Roaming", "Droplet", "logs"), nil
		}
		return filepath.Join(appDataDir, "Droplet", "logs"), nil
	default:
		return filepath.Join(homeDir, ".droplet", "logs"), nil
	}
}

// createLogDirectoryWithFallback creates the log directory with fallback to
// current directory, reporting the fallback on diag.
func createLogDirectoryWithFallback(diag io.Writer) (string, bool, error) {
	var warning string

	logDir, err := getOSStandardLogDir()
	if err == nil {
		if err = os.MkdirAll(logDir, 0750); err == nil {
			// Check if we can write to the directory
			testFile := filepath.Join(logDir, ".test_write")
			f, testErr := os.Create(testFile)
			if testErr == nil {
				if err := f.Close(); err != nil {
					slog.Warn("Failed to close test file", "path", testFile, "error", err)
				}
				if err := os.Remove(testFile); err != nil {
					slog.Warn("Failed to remove test file", "path", testFile, "error", err)
				}
				return logDir, false, nil
			}
			err = testErr
		}
		warning = fmt.Sprintf("cannot access standard log directory %s: %v", logDir, err)
	} else {
		warning = fmt.Sprintf("cannot determine standard log directory: %v", err)
	}

	// Fallback to current directory
	currentDir, err := os.Getwd()
	if err != nil {
		return "", true, fmt.Errorf("cannot determine current directory for fallback logging: %w", err)
	}

	fmt.Fprintf(diag, "warning: %s, falling back to current directory for logging\n", warning)
	return currentDir, true, nil
}

// rotateLogFile rotates log files when size limit is exceeded
func rotateLogFile(logPath string) error {
	const maxFiles = 5

	// Rotate existing files (.4 -> .5, .3 -> .4, etc.)
	for i := maxFiles - 1; i > 0; i-- {
		oldPath := fmt.Sprintf("%s.%d", logPath, i)
		newPath := fmt.Sprintf("%s.%d", logPath, i+1)

		if _, err := os.Stat(oldPath); err != nil {
			continue
		}
		if i == maxFiles-1 {
			if err := os.Remove(oldPath); err != nil {
				slog.Warn("Failed to remove old log file", "path", oldPath, "error", err)
			}
			continue
		}
		if err := os.Rename(oldPath, newPath); err != nil {
			slog.Warn("Failed to rotate log file", "old", oldPath, "new", newPath, "error", err)
		}
	}

	// Move current log to .1
	if _, err := os.Stat(logPath); err == nil {
		return os.Rename(logPath, logPath+".1")
	}

	return nil
}

// checkLogRotation checks if log rotation is needed and performs it
func checkLogRotation(logPath string) error {
	const maxSizeBytes = 10 * 1024 * 1024 // 10MB

	info, err := os.Stat(logPath)
	if err != nil {
		return nil
	}

	if info.Size() >= maxSizeBytes {
		return rotateLogFile(logPath)
	}

	return nil
}

func createLogFile(diag io.Writer) (*os.File, error) {
	logDir, _, err := createLogDirectoryWithFallback(diag)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, logFileName)

	if err := checkLogRotation(logPath); err != nil {
		fmt.Fprintf(diag, "warning: failed to rotate log file: %v\n", err)
	}

	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

// Handle renders err on the console and records it in the log.
func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		h.handleStageError(stageErr)
	} else {
		h.handleGenericError(err)
	}
}

func (h *ErrorHandler) handleStageError(err *StageError) {
	h.logStructuredError(err)
	message := h.console.FormatErrorMessage(err.Context, err.Causes(), err.Suggestion)
	h.console.PrintError(message)
}

func (h *ErrorHandler) handleGenericError(err error) {
	h.logger.Error("Unhandled error occurred",
		"error", err.Error(),
		"type", "generic",
	)
	chain := Chain(err)
	if len(chain) == 0 {
		chain = []string{err.Error()}
	}
	h.console.PrintError(h.console.FormatErrorMessage(chain[0], chain[1:], ""))
}

func (h *ErrorHandler) logStructuredError(err *StageError) {
	logAttrs := []slog.Attr{
		slog.String("error", err.Error()),
		slog.String("type", getErrorTypeName(err.Type)),
		slog.String("stage", err.Stage),
		slog.String("context", err.Context),
	}

	if err.Suggestion != "" {
		logAttrs = append(logAttrs, slog.String("suggestion", err.Suggestion))
	}

	h.logger.LogAttrs(context.TODO(), slog.LevelError, "Droplet error occurred", logAttrs...)
}

func getErrorTypeName(errType error) string {
	switch errType {
	case ErrConfigUnresolvable:
		return "config_unresolvable"
	case ErrConfigNoParent:
		return "config_no_parent"
	case ErrWorkdirFailed:
		return "workdir_failed"
	case ErrConfigLoadFailed:
		return "config_load_failed"
	case ErrDNSFailed:
		return "dns_failed"
	case ErrPullFailed:
		return "pull_failed"
	case ErrServiceStartFailed:
		return "service_start_failed"
	case ErrServiceWaitFailed:
		return "service_wait_failed"
	case ErrPushFailed:
		return "push_failed"
	default:
		return "unknown"
	}
}
