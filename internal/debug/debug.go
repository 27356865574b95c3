package debug

import (
	"io"
	"log"
	"os"
	"sync"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (devices, grab summary)
	LevelLive    = 2 // Live info (frames retrieved, triggers fired)
	LevelVerbose = 3 // Verbose (parameter access, state transitions)
	LevelTrace   = 4 // Trace (boundary calls, GPIO, very low level)
)

var (
	level  int
	logger *log.Logger
	out    = &switchWriter{w: os.Stdout}
)

// switchWriter lets SetOutput redirect a logger that is already in use.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (devices found, grab summary)
// 2 = live info (frames, triggers)
// 3 = verbose (parameter reads and writes, camera state)
// 4 = trace (every SDK call, GPIO, very low level)
func Init(debugLevel int) {
	level = debugLevel
	if level > LevelOff {
		logger = log.New(out, "[PylonGo] ", log.LstdFlags|log.Lmicroseconds)
	}
}

// SetOutput redirects debug output. A nil writer restores stdout.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	out.mu.Lock()
	out.w = w
	out.mu.Unlock()
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] "+format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("═══════════════════════════════════════")
		logger.Printf("  %s", title)
		logger.Printf("═══════════════════════════════════════")
	}
}

// Device prints a discovered device (level 1).
func Device(index int, fullName string) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] Device %d: %s", index, fullName)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] "+format, args...)
	}
}

// Grab prints a retrieved frame (level 2).
func Grab(blockID uint64, width, height uint64, succeeded bool) {
	if level >= LevelLive && logger != nil {
		status := "ok"
		if !succeeded {
			status = "FAILED"
		}
		logger.Printf("[LIVE] Frame #%d %dx%d %s", blockID, width, height, status)
	}
}

// Fire prints a trigger (level 2).
func Fire(kind string, n int) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] Trigger %s #%d", kind, n)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] "+format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] %s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Printf("  %s", name)
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] Step %d: %s", num, description)
	}
}

// Node prints a parameter access (level 3).
func Node(op, name string, value interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] %s %s = %v", op, name, value)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO]   %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, SDK calls).
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[TRACE] "+format, args...)
	}
}

// Call prints a boundary call and its outcome (level 4).
func Call(name string, err error) {
	if level >= LevelTrace && logger != nil {
		if err != nil {
			logger.Printf("[CALL] %s -> %v", name, err)
			return
		}
		logger.Printf("[CALL] %s", name)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[GPIO] %s pin=%d value=%v", operation, pin, value)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[ERROR] %v", err)
	}
}

