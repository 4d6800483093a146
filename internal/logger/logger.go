package logger

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"CimplrBankImport/internal/config"

	"github.com/rs/zerolog"
)

// LoggerService writes JSON logs to app_<timestamp>.log files under
// folder_path, rotating when a file exceeds max_file_mb and zipping files
// older than retention_days.
type LoggerService struct {
	Config        map[string]interface{}
	file          *os.File
	mu            sync.Mutex
	stopCh        chan struct{}
	wg            sync.WaitGroup
	currentLog    string
	seq           int
	maxFileBytes  int64
	retentionDays int
	folderPath    string
	console       bool
	log           zerolog.Logger
}

func NewLoggerService(cfg map[string]interface{}) *LoggerService {
	l := &LoggerService{
		Config:        cfg,
		stopCh:        make(chan struct{}),
		maxFileBytes:  int64(config.Int(cfg, "max_file_mb", 0)) * 1024 * 1024,
		retentionDays: config.Int(cfg, "retention_days", 0),
		folderPath:    config.String(cfg, "folder_path", "./logs"),
		console:       config.Bool(cfg, "console", false),
	}
	level, err := zerolog.ParseLevel(strings.ToLower(config.String(cfg, "level", "info")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var out io.Writer = l
	if l.console {
		out = zerolog.MultiLevelWriter(l, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	l.log = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return l
}

func (l *LoggerService) Name() string {
	return "logger"
}

// Logger returns the structured logger backed by this service.
func (l *LoggerService) Logger() zerolog.Logger {
	return l.log
}

// Write implements io.Writer for zerolog. Before Start, or after Stop,
// entries go to stderr.
func (l *LoggerService) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.Stderr.Write(p)
	}
	return l.file.Write(p)
}

func (l *LoggerService) Start() error {
	l.mu.Lock()
	if err := os.MkdirAll(l.folderPath, 0755); err != nil {
		l.mu.Unlock()
		return err
	}
	logFile := l.nextLogFileName()
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.file = file
	l.currentLog = logFile
	l.mu.Unlock()

	l.log.Info().Str("file", logFile).Msg("logger started")

	l.wg.Add(1)
	go l.backgroundWorker()
	return nil
}

func (l *LoggerService) Stop() error {
	close(l.stopCh)
	l.wg.Wait()
	l.log.Info().Msg("logger stopping")
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// CurrentFile is the path being written to.
func (l *LoggerService) CurrentFile() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLog
}

func (l *LoggerService) nextLogFileName() string {
	l.seq++
	timestamp := time.Now().Format("20060102_150405")
	return filepath.Join(l.folderPath, fmt.Sprintf("app_%s_%03d.log", timestamp, l.seq))
}

func (l *LoggerService) rotateIfNeeded() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil || l.maxFileBytes <= 0 {
		return nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < l.maxFileBytes {
		return nil
	}
	newLog := l.nextLogFileName()
	file, err := os.OpenFile(newLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file.Close()
	l.file = file
	l.currentLog = newLog
	return nil
}

func (l *LoggerService) backgroundWorker() {
	defer l.wg.Done()
	ticker := time.NewTicker(10 * time.Second)
	retentionTicker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	defer retentionTicker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := l.rotateIfNeeded(); err != nil {
				fmt.Fprintln(os.Stderr, "log rotation failed:", err)
			}
		case <-retentionTicker.C:
			l.zipAndCleanOldLogs()
		}
	}
}

// zipAndCleanOldLogs moves .log files older than the retention window into
// logs_<date>.zip. The file being written is never touched.
func (l *LoggerService) zipAndCleanOldLogs() {
	if l.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -l.retentionDays)
	files, err := os.ReadDir(l.folderPath)
	if err != nil {
		return
	}
	current := l.CurrentFile()

	var old []string
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".log" {
			continue
		}
		fullPath := filepath.Join(l.folderPath, f.Name())
		if fullPath == current {
			continue
		}
		info, err := f.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		old = append(old, fullPath)
	}
	if len(old) == 0 {
		return
	}

	zipName := filepath.Join(l.folderPath, fmt.Sprintf("logs_%s.zip", time.Now().Format("20060102_150405")))
	zipFile, err := os.Create(zipName)
	if err != nil {
		return
	}
	defer zipFile.Close()
	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	for _, fullPath := range old {
		w, err := zipWriter.Create(filepath.Base(fullPath))
		if err != nil {
			continue
		}
		src, err := os.Open(fullPath)
		if err != nil {
			continue
		}
		_, err = io.Copy(w, src)
		src.Close()
		if err == nil {
			os.Remove(fullPath)
		}
	}
}

// LogAudit records an operator-relevant event.
func (l *LoggerService) LogAudit(msg string) {
	l.log.Info().Bool("audit", true).Msg(msg)
}

var GlobalLogger *LoggerService

func SetGlobalLogger(l *LoggerService) {
	GlobalLogger = l
}

// Get returns the global service's logger, or a stderr logger before one is
// set.
func Get() zerolog.Logger {
	if GlobalLogger != nil {
		return GlobalLogger.Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

type ctxKey struct{}

// WithContext adds the logger to the context.
func WithContext(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext retrieves the logger from the context, falling back to Get.
func FromContext(ctx context.Context) zerolog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return log
	}
	return Get()
}
