// Package autoplay drives a scheduled game from a user-supplied JavaScript
// strategy. The script defines wager(state) and returns the next stake, or null to
// sit the round out.
package autoplay

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// LogEntry is one line written by the script through log() or console.log().
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Decision is what a script asks the bot to stake.
type Decision struct {
	Selection string `json:"selection"`
	Asset     string `json:"asset,omitempty"`
	Amount    int64  `json:"amount"`
}

var errNoWagerFunc = errors.New("wager() function is not defined")

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 250 * time.Millisecond
)

// VM is a sandboxed goja runtime.
type VM struct {
	runtime *goja.Runtime
	mu      sync.Mutex

	logs    []LogEntry
	logsMu  sync.Mutex
	maxLogs int

	stopRequested bool
	callTimeout   time.Duration
}

// NewVM creates a runtime with log, console.log and stop injected and the
// network and code-loading globals removed.
func NewVM(callTimeout time.Duration) *VM {
	if callTimeout <= 0 {
		callTimeout = scriptCallTimeout
	}
	vm := &VM{
		runtime:     goja.New(),
		maxLogs:     200,
		callTimeout: callTimeout,
	}
	vm.injectGlobals()
	return vm
}

func (vm *VM) injectGlobals() {
	vm.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		vm.appendLog(strings.Join(parts, " "))
		return goja.Undefined()
	})

	console := vm.runtime.NewObject()
	console.Set("log", vm.runtime.Get("log"))
	vm.runtime.Set("console", console)

	// Called from inside a script, which already holds vm.mu.
	vm.runtime.Set("stop", func(call goja.FunctionCall) goja.Value {
		vm.stopRequested = true
		return goja.Undefined()
	})

	vm.runtime.Set("require", goja.Undefined())
	vm.runtime.Set("fetch", goja.Undefined())
	vm.runtime.Set("XMLHttpRequest", goja.Undefined())
	vm.runtime.Set("eval", goja.Undefined())
	vm.runtime.Set("Function", goja.Undefined())
}

func (vm *VM) appendLog(msg string) {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	if len(vm.logs) >= vm.maxLogs {
		vm.logs = vm.logs[1:]
	}
	vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: msg})
}

// Execute runs the script source once to define wager().
func (vm *VM) Execute(source string) error {
	err := vm.runWithTimeout(scriptInitTimeout, func() error {
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if _, err := vm.runtime.RunString(source); err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !vm.hasFunc("wager") {
		return errNoWagerFunc
	}
	return nil
}

func (vm *VM) hasFunc(name string) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	_, ok := goja.AssertFunction(vm.runtime.Get(name))
	return ok
}

// CallWager invokes wager(state). A nil Decision means the script skips the round.
func (vm *VM) CallWager(state map[string]any) (*Decision, error) {
	var out *Decision
	err := vm.runWithTimeout(vm.callTimeout, func() error {
		vm.mu.Lock()
		defer vm.mu.Unlock()

		callable, ok := goja.AssertFunction(vm.runtime.Get("wager"))
		if !ok {
			return errNoWagerFunc
		}
		result, err := callable(goja.Undefined(), vm.runtime.ToValue(state))
		if err != nil {
			return fmt.Errorf("wager() error: %w", err)
		}
		if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
			return nil
		}
		d, err := decode(result.Export())
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

func decode(v any) (*Decision, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("wager() must return an object or null, got %T", v)
	}
	var d Decision
	if s, ok := m["selection"]; ok && s != nil {
		d.Selection = fmt.Sprint(s)
	}
	if s, ok := m["asset"]; ok && s != nil {
		d.Asset = fmt.Sprint(s)
	}
	switch a := m["amount"].(type) {
	case int64:
		d.Amount = a
	case float64:
		if a != float64(int64(a)) {
			return nil, fmt.Errorf("wager() amount must be a whole number, got %v", a)
		}
		d.Amount = int64(a)
	default:
		return nil, fmt.Errorf("wager() amount must be a number, got %T", m["amount"])
	}
	return &d, nil
}

// StopRequested reports whether the script called stop().
func (vm *VM) StopRequested() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.stopRequested
}

// Logs returns a copy of the script's log buffer.
func (vm *VM) Logs() []LogEntry {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]LogEntry, len(vm.logs))
	copy(out, vm.logs)
	return out
}

func (vm *VM) runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		// Interrupt a runaway script execution.
		vm.runtime.Interrupt("script execution timeout")
		err := <-done
		vm.runtime.ClearInterrupt()
		if err != nil {
			return fmt.Errorf("script timed out: %w", err)
		}
		return fmt.Errorf("script timed out")
	}
}
