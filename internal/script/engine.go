package script

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/mongopilot/mongopilot/internal/logging"
)

// defaultQueueSize bounds how many pending Lua operations can be buffered.
const defaultQueueSize = 16

// Shell is the subset of the shell session the Lua runtime drives.
type Shell interface {
	Execute(ctx context.Context, script string) (string, error)
	UseDatabase(ctx context.Context, name string) (string, error)
}

// call is one Lua operation queued for the interpreter goroutine.
type call struct {
	ctx    context.Context
	fn     func(L *lua.LState) error
	result chan error
}

// Engine runs Lua automation scripts against a shell session.
//
// gopher-lua's LState is not goroutine-safe, so all interpreter access is
// serialized through a single goroutine owned by the engine. RunFile and
// RunString may be called from any goroutine.
type Engine struct {
	shell Shell
	log   *logging.Logger

	queue     chan *call
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	mu  sync.Mutex
	ctx context.Context // context of the in-flight run, nil when idle
	db  string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithDatabase sets the database name reported by mongo.database() before
// any mongo.use call.
func WithDatabase(name string) Option {
	return func(e *Engine) {
		e.db = name
	}
}

// WithQueueSize sets how many pending operations can be buffered.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queue = make(chan *call, n)
		}
	}
}

// New creates an Engine bound to the given shell and starts its interpreter
// goroutine. Call Close to release the interpreter.
func New(sh Shell, opts ...Option) *Engine {
	e := &Engine{
		shell: sh,
		log:   logging.NullLogger,
		queue: make(chan *call, defaultQueueSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openLibraries(L)
	L.PreloadModule("mongo", e.loadModule)

	go e.run(L)
	return e
}

// openLibraries opens the Lua standard libraries scripts may use. The io and
// os libraries stay closed; scripts reach the outside world through the
// mongo module only.
func openLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// run processes queued operations until Close. Must be the only goroutine
// touching the LState.
func (e *Engine) run(L *lua.LState) {
	defer L.Close()

	for {
		select {
		case <-e.done:
			e.drain()
			return

		case c := <-e.queue:
			e.setRunContext(c.ctx)
			err := runProtected(L, c.fn)
			e.setRunContext(nil)

			select {
			case c.result <- err:
			default:
			}
			close(c.result)
		}
	}
}

// runProtected executes one operation with panic recovery, so a misbehaving
// script cannot take the whole process down.
func runProtected(L *lua.LState, fn func(L *lua.LState) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			case string:
				err = errors.New(v)
			default:
				err = errors.New("lua panic")
			}
		}
	}()
	return fn(L)
}

// drain fails all queued operations after Close.
func (e *Engine) drain() {
	for {
		select {
		case c := <-e.queue:
			select {
			case c.result <- ErrEngineClosed:
			default:
			}
			close(c.result)
		default:
			return
		}
	}
}

// do queues an operation and waits for its result.
func (e *Engine) do(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	c := &call{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineClosed
	case e.queue <- c:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-c.result:
		if !ok {
			return ErrEngineClosed
		}
		return err
	}
}

// RunFile executes a Lua script file.
func (e *Engine) RunFile(ctx context.Context, path string) error {
	e.log.Debug("running lua script %s", path)
	return e.do(ctx, func(L *lua.LState) error {
		if err := L.DoFile(path); err != nil {
			return wrapScriptError(path, err)
		}
		return nil
	})
}

// RunString executes Lua source code.
func (e *Engine) RunString(ctx context.Context, code string) error {
	return e.do(ctx, func(L *lua.LState) error {
		if err := L.DoString(code); err != nil {
			return wrapScriptError("script", err)
		}
		return nil
	})
}

// Database returns the database name scripts have switched to, or the
// initial name from WithDatabase.
func (e *Engine) Database() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db
}

// Close stops the engine. Queued operations fail with ErrEngineClosed; the
// interpreter is released once the in-flight operation finishes.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
}

// IsClosed reports whether Close has been called.
func (e *Engine) IsClosed() bool {
	return e.closed.Load()
}

func (e *Engine) setRunContext(ctx context.Context) {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()
}

// runContext returns the context of the in-flight run for shell calls made
// from inside Lua.
func (e *Engine) runContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}

func (e *Engine) setDatabase(name string) {
	e.mu.Lock()
	e.db = name
	e.mu.Unlock()
}
