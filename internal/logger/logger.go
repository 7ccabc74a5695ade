package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

func (lv Level) String() string {
	if name, ok := levelNames[lv]; ok {
		return name
	}
	return "INFO"
}

// Entry is one line of the JSON log file.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

type Logger struct {
	mu       sync.Mutex
	terminal io.Writer
	file     *os.File
	jsonOut  io.Writer
	minLevel Level
}

// NewLogger writes colored lines to stdout and JSON lines to logs/<service>-<date>.log.
func NewLogger(service string) *Logger {
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Fatal("Failed to create logs directory:", err)
	}

	path := fmt.Sprintf("logs/%s-%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal("Failed to create log file:", err)
	}

	l := &Logger{
		terminal: os.Stdout,
		file:     f,
		jsonOut:  f,
		minLevel: DEBUG,
	}
	l.Info("LOGGER", fmt.Sprintf("Logging to %s", path))
	return l
}

// NewNop returns a logger that writes JSON lines to w only. Used by tests.
func NewNop(w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{terminal: io.Discard, jsonOut: w, minLevel: DEBUG}
}

// SetLevel drops entries below lv.
func (l *Logger) SetLevel(lv Level) {
	l.mu.Lock()
	l.minLevel = lv
	l.mu.Unlock()
}

func (l *Logger) write(lv Level, category, message string) {
	if l == nil {
		return
	}
	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     lv.String(),
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lv < l.minLevel {
		return
	}
	fmt.Fprint(l.terminal, colorize(entry))
	if raw, err := json.Marshal(entry); err == nil {
		l.jsonOut.Write(append(raw, '\n'))
	}
}

func colorize(e Entry) string {
	var lvl *color.Color
	switch e.Level {
	case "DEBUG":
		lvl = color.New(color.FgCyan)
	case "WARN":
		lvl = color.New(color.FgYellow)
	case "ERROR", "FATAL":
		lvl = color.New(color.FgRed, color.Bold)
	default:
		lvl = color.New(color.FgGreen)
	}

	clock := color.New(color.FgBlue).Sprint(e.Timestamp[11:19])
	out := fmt.Sprintf("%s %s %s %s", clock, lvl.Sprintf("%-5s", e.Level), lvl.Add(color.Bold).Sprintf("[%-10s]", e.Category), e.Message)
	if e.File != "" && e.Line > 0 {
		out += color.New(color.FgMagenta).Sprintf(" (%s:%d)", e.File, e.Line)
	}
	return out + "\n"
}

func (l *Logger) Debug(category, message string) { l.write(DEBUG, category, message) }
func (l *Logger) Info(category, message string)  { l.write(INFO, category, message) }
func (l *Logger) Warn(category, message string)  { l.write(WARN, category, message) }
func (l *Logger) Error(category, message string) { l.write(ERROR, category, message) }

func (l *Logger) Fatal(category, message string) {
	l.write(FATAL, category, message)
	os.Exit(1)
}

// Component helpers

func (l *Logger) LogBooking(action, bookingID, message string) {
	l.write(INFO, "BOOKING", fmt.Sprintf("[%s] %s - %s", action, bookingID, message))
}

func (l *Logger) LogPayment(action, reference, message string) {
	l.write(INFO, "PAYMENT", fmt.Sprintf("[%s] %s - %s", action, reference, message))
}

func (l *Logger) LogInventory(action, eventID, ticketType string, qty int) {
	l.write(INFO, "INVENTORY", fmt.Sprintf("[%s] %s/%s x%d", action, eventID, ticketType, qty))
}

func (l *Logger) LogAPI(method, path string, status int, took time.Duration) {
	l.write(INFO, "API", fmt.Sprintf("%s %s - %d (%s)", method, path, status, took))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.write(INFO, "KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.write(INFO, "DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.write(WARN, "SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l.file != nil {
		l.Info("LOGGER", "Closing log file")
		l.file.Close()
	}
}
