// Package utils предоставляет простой key=value логгер для сервиса и CLI.
//
// Логгер пишет в файл (если путь задан) или в stderr.
// Thread-safe через sync.Mutex.
package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	logOut      io.Writer
	logFile     *os.File
	logMutex    sync.Mutex
	initialized bool
	debugOn     bool
)

// InitLogger настраивает вывод логов.
//
// path == "" — пишем в stderr (режим сервиса под systemd/docker).
// Иначе открываем/создаём файл в режиме append.
// debug включает строки уровня DEBUG.
func InitLogger(path string, debug bool) error {
	logMutex.Lock()
	defer logMutex.Unlock()

	if initialized {
		return nil
	}

	debugOn = debug

	if path == "" {
		logOut = os.Stderr
	} else {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		logOut = f
	}

	initialized = true

	// Пишем напрямую без Info чтобы избежать deadlock (мьютекс уже захвачен)
	target := path
	if target == "" {
		target = "stderr"
	}
	writeLine(fmt.Sprintf("[%s] INFO: Logger initialized output=%s\n", time.Now().Format("2006-01-02 15:04:05"), target))

	return nil
}

// SetOutput перенаправляет логи в w (используется в тестах и CLI).
func SetOutput(w io.Writer, debug bool) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logOut = w
	debugOn = debug
	initialized = true
}

// Info - информационное сообщение.
func Info(msg string, keyvals ...any) {
	log("INFO", msg, keyvals...)
}

// Error - сообщение об ошибке.
func Error(msg string, keyvals ...any) {
	log("ERROR", msg, keyvals...)
}

// Debug - отладочное сообщение.
func Debug(msg string, keyvals ...any) {
	if !debugOn {
		return
	}
	log("DEBUG", msg, keyvals...)
}

// Warn - предупреждение.
func Warn(msg string, keyvals ...any) {
	log("WARN", msg, keyvals...)
}

// log - внутренняя функция записи в лог.
//
// Формат: [YYYY-MM-DD HH:MM:SS] LEVEL: message key1=value1 key2=value2
func log(level, msg string, keyvals ...any) {
	logMutex.Lock()
	defer logMutex.Unlock()

	if logOut == nil {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%s] %s: %s", timestamp, level, msg)

	for i := 0; i < len(keyvals); i += 2 {
		if i+1 < len(keyvals) {
			line += fmt.Sprintf(" %v=%v", keyvals[i], keyvals[i+1])
		}
	}

	writeLine(line + "\n")
}

// writeLine пишет строку; вызывается под logMutex.
func writeLine(line string) {
	if _, err := io.WriteString(logOut, line); err != nil {
		// Fallback: если файл недоступен, пишем в stderr
		fmt.Fprintf(os.Stderr, "%s", line)
		fmt.Fprintf(os.Stderr, "[LOGGER ERROR: WriteString failed: %v]\n", err)
		return
	}

	if logFile != nil {
		if err := logFile.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "[LOGGER WARNING: Sync failed: %v]\n", err)
		}
	}
}

// Close закрывает лог-файл.
//
// Вызывается через defer в main().
func Close() {
	logMutex.Lock()
	defer logMutex.Unlock()

	if logFile != nil {
		if err := logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "[LOGGER WARNING: Close failed: %v]\n", err)
		}
		logFile = nil
	}
	logOut = nil
	initialized = false
}
