// internal/browser/script/runtime.go
package script

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/dom"
)

// DefaultTimeout bounds a single entry into script.
const DefaultTimeout = 5 * time.Second

// Host is the browser side of the bridge. Window ids name frames; node
// handles are dom.NodeIDs of that frame's document. Policy failures returned
// from Host methods are thrown into script as exceptions.
//
// Host methods that mutate the document only mark cells dirty. Layout and
// paint never run inside a Host call.
type Host interface {
	// Window is the id of the frame this runtime belongs to.
	Window() int32
	// Parent is the id of the parent frame, if any.
	Parent() (int32, bool)

	QuerySelectorAll(window int32, selector string) ([]dom.NodeID, error)
	GetAttribute(window int32, node dom.NodeID, name string) (string, bool, error)
	SetAttribute(window int32, node dom.NodeID, name, value string) error
	SetInnerHTML(window int32, node dom.NodeID, html string) error
	SetStyle(window int32, node dom.NodeID, css string) error

	// XHRSend performs a request on behalf of script. Synchronous requests
	// return the response text; asynchronous ones return "" and later deliver
	// the body through Runtime.XHRLoad with the same id.
	XHRSend(method, url string, body *string, async bool, id int) (string, error)
	SetTimeout(id int, delay time.Duration)
	RequestAnimationFrame()
	PostMessage(target int32, data any, origin string) error
}

// Runtime is one goja VM bound to one frame. It is not safe for concurrent
// use; the owning tab's worker is the only caller.
type Runtime struct {
	vm      *goja.Runtime
	host    Host
	logger  *zap.Logger
	timeout time.Duration
}

// New creates a runtime and installs the DOM surface. A zero timeout uses
// DefaultTimeout.
func New(host Host, timeout time.Duration, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Runtime{
		vm:      goja.New(),
		host:    host,
		logger:  logger.Named("script"),
		timeout: timeout,
	}
	if err := r.bind(); err != nil {
		return nil, err
	}
	if _, err := r.vm.RunString(prelude); err != nil {
		return nil, fmt.Errorf("installing dom bindings: %w", err)
	}
	return r, nil
}

func (r *Runtime) bind() error {
	host := r.vm.NewObject()
	funcs := map[string]func(goja.FunctionCall) goja.Value{
		"window":                r.jsWindow,
		"parent":                r.jsParent,
		"querySelectorAll":      r.jsQuerySelectorAll,
		"getAttribute":          r.jsGetAttribute,
		"setAttribute":          r.jsSetAttribute,
		"innerHTML":             r.jsInnerHTML,
		"setStyle":              r.jsSetStyle,
		"xhrSend":               r.jsXHRSend,
		"setTimeout":            r.jsSetTimeout,
		"requestAnimationFrame": r.jsRequestAnimationFrame,
		"postMessage":           r.jsPostMessage,
		"reportError":           r.jsReportError,
	}
	for name, fn := range funcs {
		if err := host.Set(name, fn); err != nil {
			return fmt.Errorf("binding %s: %w", name, err)
		}
	}
	if err := r.vm.Set("__host", host); err != nil {
		return fmt.Errorf("binding host: %w", err)
	}

	console := r.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error"} {
		if err := console.Set(level, r.consoleFunc(level)); err != nil {
			return fmt.Errorf("binding console.%s: %w", level, err)
		}
	}
	return r.vm.Set("console", console)
}

// -- Entry points --

// Run evaluates a script. Exceptions are logged and returned.
func (r *Runtime) Run(source, code string) error {
	_, err := r.enter(source, func() (goja.Value, error) {
		return r.vm.RunScript(source, code)
	})
	return err
}

// DispatchEvent runs the listeners registered for typ on node and reports
// whether one of them called preventDefault.
func (r *Runtime) DispatchEvent(typ string, node dom.NodeID) (suppressed bool) {
	v, err := r.callGlobal("listener:"+typ, "__dispatchEvent", int64(node), typ)
	if err != nil || v == nil {
		return false
	}
	return !v.ToBoolean()
}

// RunTimeout runs the setTimeout callback registered under id.
func (r *Runtime) RunTimeout(id int) {
	_, _ = r.callGlobal("timeout", "__runTimeout", id)
}

// RunAnimationFrame runs and clears the pending requestAnimationFrame
// callbacks.
func (r *Runtime) RunAnimationFrame() {
	_, _ = r.callGlobal("raf", "__runAnimationFrame")
}

// XHRLoad completes an asynchronous request started with id.
func (r *Runtime) XHRLoad(id int, body string) {
	_, _ = r.callGlobal("xhr", "__xhrLoad", id, body)
}

// DispatchMessage delivers a postMessage payload to this window's "message"
// listeners.
func (r *Runtime) DispatchMessage(data any) {
	_, _ = r.callGlobal("message", "__dispatchMessage", data)
}

func (r *Runtime) callGlobal(source, name string, args ...any) (goja.Value, error) {
	fn, ok := goja.AssertFunction(r.vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("%s is not installed", name)
	}
	values := make([]goja.Value, len(args))
	for i, a := range args {
		values[i] = r.vm.ToValue(a)
	}
	return r.enter(source, func() (goja.Value, error) {
		return fn(goja.Undefined(), values...)
	})
}

// enter runs fn under the timeout and turns failures into logged
// ScriptErrors.
func (r *Runtime) enter(source string, fn func() (goja.Value, error)) (goja.Value, error) {
	fired := make(chan struct{})
	timer := time.AfterFunc(r.timeout, func() {
		r.vm.Interrupt(ErrTimeout)
		close(fired)
	})
	v, err := fn()
	if !timer.Stop() {
		<-fired
	}
	r.vm.ClearInterrupt()

	if err != nil {
		err = classify(source, err)
		r.logger.Warn("Script error", zap.String("source", source), zap.Error(err))
		return nil, err
	}
	return v, nil
}

func classify(source string, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return &ScriptError{Source: source, Message: "interrupted", Err: ErrTimeout}
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &ScriptError{Source: source, Message: exception.Value().String(), Err: err}
	}
	return &ScriptError{Source: source, Message: err.Error(), Err: err}
}

// -- Host functions --

func (r *Runtime) throw(err error) {
	panic(r.vm.NewGoError(err))
}

func (r *Runtime) window(call goja.FunctionCall) int32 {
	return int32(call.Argument(0).ToInteger())
}

func (r *Runtime) node(call goja.FunctionCall) dom.NodeID {
	return dom.NodeID(call.Argument(1).ToInteger())
}

func (r *Runtime) jsWindow(call goja.FunctionCall) goja.Value {
	return r.vm.ToValue(r.host.Window())
}

func (r *Runtime) jsParent(call goja.FunctionCall) goja.Value {
	id, ok := r.host.Parent()
	if !ok {
		return r.vm.ToValue(-1)
	}
	return r.vm.ToValue(id)
}

func (r *Runtime) jsQuerySelectorAll(call goja.FunctionCall) goja.Value {
	ids, err := r.host.QuerySelectorAll(r.window(call), call.Argument(1).String())
	if err != nil {
		r.throw(err)
	}
	handles := make([]any, len(ids))
	for i, id := range ids {
		handles[i] = int64(id)
	}
	return r.vm.NewArray(handles...)
}

func (r *Runtime) jsGetAttribute(call goja.FunctionCall) goja.Value {
	v, ok, err := r.host.GetAttribute(r.window(call), r.node(call), call.Argument(2).String())
	if err != nil {
		r.throw(err)
	}
	if !ok {
		return goja.Null()
	}
	return r.vm.ToValue(v)
}

func (r *Runtime) jsSetAttribute(call goja.FunctionCall) goja.Value {
	if err := r.host.SetAttribute(r.window(call), r.node(call), call.Argument(2).String(), call.Argument(3).String()); err != nil {
		r.throw(err)
	}
	return goja.Undefined()
}

func (r *Runtime) jsInnerHTML(call goja.FunctionCall) goja.Value {
	if err := r.host.SetInnerHTML(r.window(call), r.node(call), call.Argument(2).String()); err != nil {
		r.throw(err)
	}
	return goja.Undefined()
}

func (r *Runtime) jsSetStyle(call goja.FunctionCall) goja.Value {
	if err := r.host.SetStyle(r.window(call), r.node(call), call.Argument(2).String()); err != nil {
		r.throw(err)
	}
	return goja.Undefined()
}

func (r *Runtime) jsXHRSend(call goja.FunctionCall) goja.Value {
	var body *string
	if b := call.Argument(2); !goja.IsNull(b) && !goja.IsUndefined(b) {
		s := b.String()
		body = &s
	}
	async := call.Argument(3).ToBoolean()
	text, err := r.host.XHRSend(strings.ToUpper(call.Argument(0).String()), call.Argument(1).String(), body, async, int(call.Argument(4).ToInteger()))
	if err != nil {
		r.throw(err)
	}
	if async {
		return goja.Null()
	}
	return r.vm.ToValue(text)
}

func (r *Runtime) jsSetTimeout(call goja.FunctionCall) goja.Value {
	ms := call.Argument(1).ToFloat()
	if ms < 0 {
		ms = 0
	}
	r.host.SetTimeout(int(call.Argument(0).ToInteger()), time.Duration(ms*float64(time.Millisecond)))
	return goja.Undefined()
}

func (r *Runtime) jsRequestAnimationFrame(call goja.FunctionCall) goja.Value {
	r.host.RequestAnimationFrame()
	return goja.Undefined()
}

func (r *Runtime) jsPostMessage(call goja.FunctionCall) goja.Value {
	if err := r.host.PostMessage(r.window(call), call.Argument(1).Export(), call.Argument(2).String()); err != nil {
		r.throw(err)
	}
	return goja.Undefined()
}

// jsReportError logs an exception that a dispatch loop caught so the loop
// could continue with the next callback.
func (r *Runtime) jsReportError(call goja.FunctionCall) goja.Value {
	err := &ScriptError{Source: call.Argument(0).String(), Message: call.Argument(1).String()}
	r.logger.Warn("Script error", zap.String("source", err.Source), zap.Error(err))
	return goja.Undefined()
}

func (r *Runtime) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		msg := strings.Join(parts, " ")
		switch level {
		case "warn":
			r.logger.Warn("console", zap.String("message", msg))
		case "error":
			r.logger.Error("console", zap.String("message", msg))
		default:
			r.logger.Info("console", zap.String("message", msg))
		}
		return goja.Undefined()
	}
}
