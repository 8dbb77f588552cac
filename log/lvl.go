// Package log provides the leveled, colorized diagnostic output used
// throughout the launcher: numbered verbosity levels, optional color and
// timestamps, and a Fatal/ErrFatal pair that terminate the process the
// way a fatal error during unfurl is required to.
package log

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"time"

	ct "github.com/daviddengcn/go-colortext"
)

const (
	lvlWarning = iota - 10
	lvlError
	lvlFatal
	lvlInfo
)

var (
	mut         sync.RWMutex
	debugLvl    = 1
	showTime    = false
	useColors   = false
	regexpPaths = regexp.MustCompile(".*/")
)

func init() {
	parseEnv()
}

// parseEnv reads SPAWN_DEBUG, SPAWN_DEBUG_TIME and SPAWN_DEBUG_COLOR at
// startup to set the initial debug level, timestamp, and color options.
func parseEnv() {
	if v := os.Getenv("SPAWN_DEBUG"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			SetDebugVisible(n)
		}
	}
	if v := os.Getenv("SPAWN_DEBUG_TIME"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			SetShowTime(b)
		}
	}
	if v := os.Getenv("SPAWN_DEBUG_COLOR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			SetUseColors(b)
		}
	}
}

// SetDebugVisible sets the global verbosity threshold.
func SetDebugVisible(lvl int) {
	mut.Lock()
	defer mut.Unlock()
	debugLvl = lvl
}

// DebugVisible returns the current verbosity threshold.
func DebugVisible() int {
	mut.RLock()
	defer mut.RUnlock()
	return debugLvl
}

// SetShowTime toggles timestamps on each line.
func SetShowTime(show bool) {
	mut.Lock()
	defer mut.Unlock()
	showTime = show
}

// SetUseColors toggles ANSI coloring of the level marker.
func SetUseColors(use bool) {
	mut.Lock()
	defer mut.Unlock()
	useColors = use
}

func caller(skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???"
	}
	name := regexpPaths.ReplaceAllString(runtime.FuncForPC(pc).Name(), "")
	return fmt.Sprintf("%s:%d %s", regexpPaths.ReplaceAllString(file, ""), line, name)
}

func colorFor(lvl int) (ct.Color, bool) {
	switch {
	case lvl == lvlWarning:
		return ct.Yellow, false
	case lvl == lvlError:
		return ct.Red, false
	case lvl == lvlFatal:
		return ct.Red, true
	default:
		return ct.Green, false
	}
}

func marker(lvl int) string {
	switch {
	case lvl == lvlWarning:
		return "W"
	case lvl == lvlError:
		return "E"
	case lvl == lvlFatal:
		return "F"
	case lvl < 0:
		return "I"
	default:
		return strconv.Itoa(lvl)
	}
}

func emit(lvl, skip int, args ...interface{}) {
	mut.RLock()
	visible := debugLvl
	useColor := useColors
	withTime := showTime
	mut.RUnlock()

	if lvl > 0 && lvl > visible {
		return
	}

	var prefix string
	if withTime {
		now := time.Now()
		prefix = fmt.Sprintf("%s.%09d ", now.Format("06/01/02 15:04:05"), now.Nanosecond())
	}

	if useColor {
		c, bright := colorFor(lvl)
		ct.Foreground(c, bright)
		defer ct.ResetColor()
	}

	fmt.Fprintf(os.Stderr, "%s%-2s: (%s) - %s\n", prefix, marker(lvl), caller(skip), fmt.Sprint(args...))
}

// Lvl1..Lvl5 are progressively more verbose; a level is shown when it is
// at or below DebugVisible (1 by default, so Lvl1 alone is shown).
func Lvl1(args ...interface{}) { emit(1, 3, args...) }
func Lvl2(args ...interface{}) { emit(2, 3, args...) }
func Lvl3(args ...interface{}) { emit(3, 3, args...) }
func Lvl4(args ...interface{}) { emit(4, 3, args...) }
func Lvl5(args ...interface{}) { emit(5, 3, args...) }

// Lvlf1..Lvlf5 are the format-string equivalents of Lvl1..Lvl5.
func Lvlf1(f string, args ...interface{}) { emit(1, 3, fmt.Sprintf(f, args...)) }
func Lvlf2(f string, args ...interface{}) { emit(2, 3, fmt.Sprintf(f, args...)) }
func Lvlf3(f string, args ...interface{}) { emit(3, 3, fmt.Sprintf(f, args...)) }
func Lvlf4(f string, args ...interface{}) { emit(4, 3, fmt.Sprintf(f, args...)) }
func Lvlf5(f string, args ...interface{}) { emit(5, 3, fmt.Sprintf(f, args...)) }

// Warn prints a warning; it is always shown.
func Warn(args ...interface{}) { emit(lvlWarning, 3, args...) }

// Warnf is Warn with a format string.
func Warnf(f string, args ...interface{}) { emit(lvlWarning, 3, fmt.Sprintf(f, args...)) }

// Error prints an error; it is always shown.
func Error(args ...interface{}) { emit(lvlError, 3, args...) }

// Errorf is Error with a format string.
func Errorf(f string, args ...interface{}) { emit(lvlError, 3, fmt.Sprintf(f, args...)) }

// Fatal prints a fatal diagnostic (program name, host, pid, timestamp and
// call site are all part of the message line) and exits the process with
// a non-zero status. Unfurl and launch errors are always fatal with no
// retry.
func Fatal(args ...interface{}) {
	emit(lvlFatal, 3, diagnostic(fmt.Sprint(args...)))
	os.Exit(1)
}

// Fatalf is Fatal with a format string.
func Fatalf(f string, args ...interface{}) {
	emit(lvlFatal, 3, diagnostic(fmt.Sprintf(f, args...)))
	os.Exit(1)
}

// ErrFatal calls Fatal if err is non-nil.
func ErrFatal(err error, args ...interface{}) {
	if err != nil {
		emit(lvlFatal, 3, diagnostic(err.Error()+" "+fmt.Sprint(args...)))
		os.Exit(1)
	}
}

func diagnostic(msg string) string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s host=%s pid=%d time=%s: %s", os.Args[0], host, os.Getpid(), time.Now().Format(time.RFC3339Nano), msg)
}
