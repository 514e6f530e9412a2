// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewsim

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/bureau-foundation/mapview/comm"
	"github.com/bureau-foundation/mapview/lib/version"
)

//go:embed view.js
var reducerSource string

// reducerProgram is compiled once and run in every View's runtime.
var (
	reducerProgram *goja.Program
	reducerErr     error
	reducerOnce    sync.Once
)

func compiledReducer() (*goja.Program, error) {
	reducerOnce.Do(func() {
		reducerProgram, reducerErr = goja.Compile("view.js", reducerSource, true)
	})
	return reducerProgram, reducerErr
}

// ErrClosed is returned by operations on a closed View.
var ErrClosed = errors.New("viewsim: view is closed")

// Config configures a View.
type Config struct {
	// CommID is the comm the view displays. Required.
	CommID string

	// Deliver sends view messages to the model, for example
	// (*comm.Hub).Deliver or (*mapview.Map).HandleMessage. Nil makes
	// the user-action methods fail.
	Deliver func(comm.Message) error

	// Timeout bounds each call into the reducer. Defaults to 5s.
	Timeout time.Duration

	Logger *slog.Logger
}

// View is a headless map view.
type View struct {
	commID  string
	deliver func(comm.Message) error
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	runtime  *goja.Runtime
	sequence uint64
	digest   string
	applied  int
	closed   bool
}

// New creates a View with an empty state. It applies nothing until it
// receives a snapshot or update.
func New(config Config) (*View, error) {
	if config.CommID == "" {
		return nil, fmt.Errorf("viewsim: CommID is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	program, err := compiledReducer()
	if err != nil {
		return nil, fmt.Errorf("viewsim: compiling reducer: %w", err)
	}
	runtime := goja.New()
	if _, err := runtime.RunProgram(program); err != nil {
		return nil, fmt.Errorf("viewsim: loading reducer: %w", err)
	}

	return &View{
		commID:  config.CommID,
		deliver: config.Deliver,
		timeout: config.Timeout,
		logger:  config.Logger.With("comm_id", config.CommID, "component", "viewsim"),
		runtime: runtime,
	}, nil
}

// CommID returns the comm the view displays.
func (v *View) CommID() string { return v.commID }

// Digest returns the digest of the last snapshot applied. Pass it in a
// hello to skip the snapshot on reattach.
func (v *View) Digest() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.digest
}

// Sequence returns the sequence number of the last message applied.
func (v *View) Sequence() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sequence
}

// Applied returns how many messages the view has applied.
func (v *View) Applied() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.applied
}

// Send applies a model message. Updates must arrive in sequence order:
// an update numbered at or below the last applied one is rejected.
// Snapshots replace the view's state and reset the sequence.
func (v *View) Send(message comm.Message) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if message.CommID != "" && message.CommID != v.commID {
		return fmt.Errorf("viewsim: message for comm %q sent to view of %q", message.CommID, v.commID)
	}

	encoded, err := json.Marshal(message.State)
	if err != nil {
		return fmt.Errorf("viewsim: encoding %s state: %w", message.Method, err)
	}

	switch message.Method {
	case comm.MethodSnapshot:
		if !version.Compatible(message.Protocol) {
			return fmt.Errorf("viewsim: snapshot uses protocol %q, view speaks %q", message.Protocol, version.Protocol)
		}
		if _, err := v.call("applySnapshot", string(encoded)); err != nil {
			return err
		}
		v.digest = message.Digest
		v.sequence = message.Sequence
	case comm.MethodUpdate:
		if message.Sequence != 0 && message.Sequence <= v.sequence {
			return fmt.Errorf("viewsim: update %d arrived after %d", message.Sequence, v.sequence)
		}
		if _, err := v.call("applyUpdate", string(encoded)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("viewsim: a view does not accept %s messages", message.Method)
	}

	if message.Sequence > v.sequence {
		v.sequence = message.Sequence
	}
	v.applied++
	v.logger.Debug("applied message",
		"method", message.Method,
		"sequence", message.Sequence,
		"fields", len(message.State),
	)
	return nil
}

// Enqueue applies message synchronously. It implements comm.Conn; a
// rejected message is logged and the view stays attached.
func (v *View) Enqueue(message comm.Message) bool {
	if err := v.Send(message); err != nil {
		if errors.Is(err, ErrClosed) {
			return false
		}
		v.logger.Warn("view rejected message", "error", err)
	}
	return true
}

// Close stops the view. Later messages are refused.
func (v *View) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// Render returns what the view currently shows.
func (v *View) Render() (Rendered, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return Rendered{}, ErrClosed
	}
	value, err := v.call("render")
	if err != nil {
		return Rendered{}, err
	}
	var rendered Rendered
	if err := json.Unmarshal([]byte(value.String()), &rendered); err != nil {
		return Rendered{}, fmt.Errorf("viewsim: decoding rendered state: %w", err)
	}
	return rendered, nil
}

// call invokes a reducer function. The caller holds v.mu.
func (v *View) call(name string, args ...string) (goja.Value, error) {
	function, ok := goja.AssertFunction(v.runtime.Get(name))
	if !ok {
		return nil, fmt.Errorf("viewsim: reducer has no function %s", name)
	}
	values := make([]goja.Value, len(args))
	for i, arg := range args {
		values[i] = v.runtime.ToValue(arg)
	}

	timer := time.AfterFunc(v.timeout, func() {
		v.runtime.Interrupt("timeout")
	})
	defer timer.Stop()

	result, err := function(goja.Undefined(), values...)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			v.runtime.ClearInterrupt()
			return nil, fmt.Errorf("viewsim: %s timed out after %s", name, v.timeout)
		}
		return nil, fmt.Errorf("viewsim: %s: %w", name, err)
	}
	return result, nil
}

var (
	_ comm.Sink = (*View)(nil)
	_ comm.Conn = (*View)(nil)
)
