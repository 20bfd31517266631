// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package internal

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"go.flowbridge.dev/sdk/internal/coresdk"
)

// Context is the workflow-code equivalent of context.Context: a carrier for
// request-scoped values only. It deliberately does not expose Deadline/Done/
// Err so that workflow code cannot reach for real wall-clock time or a real
// cancellation channel directly -- both must be routed through the
// deterministic primitives in this file (Channel, Selector, Future) so that
// replay produces identical scheduling decisions every time.
type Context interface {
	Value(key interface{}) interface{}
}

type emptyCtx int

func (emptyCtx) Value(key interface{}) interface{} { return nil }

// Background returns a non-nil, empty Context. It is the root of every
// workflow Context chain.
func Background() Context { return emptyCtx(0) }

type valueCtx struct {
	Context
	key, value interface{}
}

func (c *valueCtx) Value(key interface{}) interface{} {
	if c.key == key {
		return c.value
	}
	return c.Context.Value(key)
}

// WithValue returns a copy of parent in which key resolves to val.
func WithValue(parent Context, key, val interface{}) Context {
	if parent == nil {
		panic("cannot create context from nil parent")
	}
	return &valueCtx{Context: parent, key: key, value: val}
}

type contextKey int

const (
	coroutinesContextKey contextKey = iota
	workflowEnvironmentContextKey
	workflowEnvOptionsContextKey
	workflowResultContextKey
	cancelStateContextKey
	activityOptionsContextKey
	localActivityOptionsContextKey
	childWorkflowOptionsContextKey
)

// getState returns the coroutineState for the coroutine that owns ctx. It
// panics when called from a Context that was never handed to a coroutine
// body, which is always a programming error (blocking primitives used
// outside of workflow code).
func getState(ctx Context) *coroutineState {
	s, ok := ctx.Value(coroutinesContextKey).(*coroutineState)
	if !ok || s == nil {
		panic("getState: not called from a workflow coroutine context")
	}
	return s
}

func getDispatcher(ctx Context) *dispatcherImpl {
	return getState(ctx).dispatcher
}

// ResultHandler is the continuation registered for every suspension point:
// it is resumed exactly once with the operation's encoded result or error.
type ResultHandler func(result *Payloads, err error)

// WorkflowEnvironment is the host-side handle a running workflow coroutine
// uses to reach outside of its own deterministic sandbox: allocating
// sequence numbers, buffering commands, registering continuations, reading
// deterministic time and randomness. The drive loop that implements this
// for a live activation (workflowEnvironmentImpl) owns all of the mutable
// state; this interface is the seam between that host and the coroutine
// engine in this file.
type WorkflowEnvironment interface {
	GetRegistry() *Registry
	WorkflowInfo() *WorkflowInfo
	Now() time.Time
	IsReplaying() bool
	Random() *rand.Rand
	GetDataConverter() DataConverter
	GetContextPropagators() []ContextPropagator
	GetLogger() *zap.Logger
	GetMetricsScope() tally.Scope

	ExecuteActivity(params executeActivityParams, callback ResultHandler) uint32
	RequestCancelActivity(seq uint32)
	NewTimer(d time.Duration, summary string, callback ResultHandler) uint32
	RequestCancelTimer(seq uint32)
	ExecuteChildWorkflow(params executeChildWorkflowParams, startedCallback func(execution WorkflowExecution, err error), callback ResultHandler) uint32
	RequestCancelChildWorkflow(seq uint32)
	SignalExternalWorkflow(namespace, workflowID, runID, signalName string, input *Payloads, header map[string]*Payload, callback ResultHandler)
	RequestCancelExternalWorkflow(namespace, workflowID, runID, reason string, callback ResultHandler)

	GetSignalChannel(ctx Context, signalName string) Channel
	RegisterQueryHandler(queryType string, handler func(input *Payloads, header map[string]*Payload) (*Payloads, error)) error
	RegisterUpdateHandler(updateName string, validator func(input *Payloads) error, handler func(ctx Context, input *Payloads) (*Payloads, error)) error

	Patched(patchID string, deprecated bool) bool
	UpsertSearchAttributes(attributes map[string]*Payload) error
	UpsertMemo(memo map[string]*Payload) error
	SetCurrentDetails(details string)
	GetCurrentDetails() string
	HandlersInFlight() int

	Complete(result *Payloads, err error)
}

func getWorkflowEnvironment(ctx Context) WorkflowEnvironment {
	env, ok := ctx.Value(workflowEnvironmentContextKey).(WorkflowEnvironment)
	if !ok || env == nil {
		panic("getWorkflowEnvironment: no WorkflowEnvironment in context")
	}
	return env
}

// WorkflowOptions carries the subset of StartWorkflowOptions that a running
// workflow needs back out of its own Context, e.g. to build a
// ContinueAsNewError for the same task queue/timeouts it was started with.
type WorkflowOptions struct {
	Namespace                string
	WorkflowID               string
	TaskQueue                string
	WorkflowExecutionTimeout time.Duration
	WorkflowRunTimeout       time.Duration
	WorkflowTaskTimeout      time.Duration
	RetryPolicy              *coresdk.RetryPolicy
	CronSchedule             string
	Memo                     map[string]*Payload
	SearchAttributes         map[string]*Payload
	DataConverter            DataConverter
	ContextPropagators       []ContextPropagator
}

func getWorkflowEnvOptions(ctx Context) *WorkflowOptions {
	opts, _ := ctx.Value(workflowEnvOptionsContextKey).(*WorkflowOptions)
	return opts
}

// Header carries propagated context values (trace ids, tenant ids, ...)
// alongside a workflow or activity invocation, one payload per propagator.
type Header struct {
	Fields map[string]*Payload
}

func getWorkflowHeader(ctx Context, propagators []ContextPropagator) *Header {
	header := &Header{Fields: make(map[string]*Payload)}
	for _, p := range propagators {
		if err := p.Inject(ctx, header); err != nil {
			panic(err)
		}
	}
	return header
}

// ContextPropagator copies values between a workflow Context and the wire
// Header carried on every workflow/activity task, the same way the span
// context of a distributed tracer rides alongside a task.
type ContextPropagator interface {
	Inject(ctx Context, writer HeaderWriter) error
	Extract(ctx Context, reader HeaderReader) (Context, error)
}

// HeaderWriter and HeaderReader let a ContextPropagator set/get fields on a
// Header without depending on its concrete representation.
type HeaderWriter interface {
	Set(key string, value *Payload)
}

type HeaderReader interface {
	Get(key string) (*Payload, bool)
}

func (h *Header) Set(key string, value *Payload) {
	if h.Fields == nil {
		h.Fields = make(map[string]*Payload)
	}
	h.Fields[key] = value
}

func (h *Header) Get(key string) (*Payload, bool) {
	v, ok := h.Fields[key]
	return v, ok
}

// WorkflowType identifies a registered workflow function by name, the way a
// fully-qualified function name identifies it in the registry.
type WorkflowType struct {
	Name string
}

// ExecuteWorkflowParams is the fully-resolved set of inputs needed to start
// (or continue-as-new into) one workflow run.
type ExecuteWorkflowParams struct {
	WorkflowOptions
	WorkflowType *WorkflowType
	Input        *Payloads
	Header       *Header
}

func getValidatedWorkflowFunction(wfn interface{}, args []interface{}, dc DataConverter, r *Registry) (*WorkflowType, *Payloads, error) {
	var name string
	switch t := wfn.(type) {
	case string:
		name = t
	default:
		fnName, err := r.workflowFunctionName(wfn)
		if err != nil {
			return nil, nil, err
		}
		name = fnName
	}
	if _, ok := r.getWorkflow(name); !ok {
		return nil, nil, fmt.Errorf("unable to find workflow type: %v. Supported types: %v", name, r.getRegisteredWorkflowTypes())
	}
	input, err := encodeArgs(dc, args)
	if err != nil {
		return nil, nil, err
	}
	return &WorkflowType{Name: name}, input, nil
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// WorkflowFunc is any func(ctx Context, args...) (R, error) or
// func(ctx Context, args...) error registered as a workflow.
type WorkflowFunc = interface{}

// ActivityFunc is any func([ctx context.Context,] args...) (R, error)
// registered as an activity.
type ActivityFunc = interface{}

// Registry replaces reflection-driven global registration: workflow and
// activity functions are registered by explicit name into a Registry value
// that is carried on the WorkflowEnvironment/worker, instead of being
// discovered via a package-level init()-populated map keyed by
// reflect.Value. Tests and multiple workers in the same process can each
// hold their own Registry without stepping on one another's registrations.
type Registry struct {
	mu         sync.RWMutex
	workflows  map[string]WorkflowFunc
	activities map[string]ActivityFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		workflows:  make(map[string]WorkflowFunc),
		activities: make(map[string]ActivityFunc),
	}
}

// RegisterWorkflowOptions configures RegisterWorkflow.
type RegisterWorkflowOptions struct {
	Name string
}

// RegisterWorkflow records fn under its function name (or opts.Name, if
// given). Re-registering the same name panics: a silently shadowed
// workflow type is exactly the kind of nondeterminism this registry exists
// to prevent.
func (r *Registry) RegisterWorkflow(fn WorkflowFunc, opts RegisterWorkflowOptions) {
	name := opts.Name
	if name == "" {
		var err error
		name, err = functionName(fn)
		if err != nil {
			panic(err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[name]; ok {
		panic(fmt.Sprintf("workflow type %q is already registered", name))
	}
	r.workflows[name] = fn
}

// RegisterActivityOptions configures RegisterActivity.
type RegisterActivityOptions struct {
	Name string
}

// RegisterActivity records fn the same way RegisterWorkflow does, in the
// activities namespace.
func (r *Registry) RegisterActivity(fn ActivityFunc, opts RegisterActivityOptions) {
	name := opts.Name
	if name == "" {
		var err error
		name, err = functionName(fn)
		if err != nil {
			panic(err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.activities[name]; ok {
		panic(fmt.Sprintf("activity type %q is already registered", name))
	}
	r.activities[name] = fn
}

func (r *Registry) getWorkflow(name string) (WorkflowFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.workflows[name]
	return fn, ok
}

func (r *Registry) getActivity(name string) (ActivityFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.activities[name]
	return fn, ok
}

func (r *Registry) getRegisteredWorkflowTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workflows))
	for n := range r.workflows {
		names = append(names, n)
	}
	return names
}

func (r *Registry) workflowFunctionName(fn WorkflowFunc) (string, error) {
	return functionName(fn)
}

func functionName(fn interface{}) (string, error) {
	fnType := reflect.TypeOf(fn)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return "", fmt.Errorf("expected a function, got %T", fn)
	}
	name := getFunctionName(fn)
	if name == "" {
		return "", fmt.Errorf("unable to determine name of function %T", fn)
	}
	return name, nil
}

// getFunctionName returns the short name (no package path) of a function
// value, used as the default registration name for workflows/activities and
// for mock/log diagnostics that previously relied on a name derived via
// reflection at registration time.
func getFunctionName(fn interface{}) string {
	fullName := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	// fullName looks like "path/to/pkg.FuncName" or "...pkg.Type.Method-fm".
	if idx := lastIndexByte(fullName, '.'); idx >= 0 {
		return fullName[idx+1:]
	}
	return fullName
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Coroutine dispatcher
//
// Every workflow coroutine runs on its own goroutine, but the dispatcher
// guarantees exactly one of them is ever actually executing Go code at a
// time: a coroutine that is not the current one is parked on a private gate
// channel, and the one that is running yields back to the dispatcher
// (instead of returning) the moment it would otherwise block on a Channel,
// Selector, or Future. This turns ordinary goroutine scheduling into a
// deterministic, single-threaded cooperative scheduler, which is what makes
// workflow replay reproduce the same sequence of decisions every time.
// ---------------------------------------------------------------------------

type coroutineState struct {
	name       string
	dispatcher *dispatcherImpl
	ctx        Context

	gate    chan struct{} // dispatcher -> coroutine: proceed past the last yield point
	proceed chan struct{} // coroutine -> dispatcher: I have blocked again, or finished

	started  bool
	blocked  bool
	finished bool
	closed   bool // true once the dispatcher has abandoned (Close()'d) this coroutine

	blockedOn  string
	panicError *workflowPanicError
}

// yield parks the current coroutine's goroutine until the dispatcher
// resumes it, recording why it blocked for StackTrace() diagnostics.
func (s *coroutineState) yield(status string) {
	s.blockedOn = status
	s.proceed <- struct{}{}
	<-s.gate
	if s.closed {
		// The dispatcher is tearing down; unwind this goroutine instead of
		// resuming workflow code that will never be driven again.
		runtime.Goexit()
	}
}

func (s *coroutineState) run(fn func(ctx Context)) {
	defer func() {
		if s.closed {
			return
		}
		if r := recover(); r != nil {
			st := string(debug.Stack())
			if err, ok := r.(error); ok {
				s.panicError = newWorkflowPanicError(err.Error(), st)
			} else {
				s.panicError = newWorkflowPanicError(fmt.Sprintf("%v", r), st)
			}
		}
		s.finished = true
		s.proceed <- struct{}{}
	}()
	<-s.gate
	if s.closed {
		runtime.Goexit()
	}
	fn(s.ctx)
}

type dispatcherImpl struct {
	mutex      sync.Mutex
	coroutines []*coroutineState
	sequence   int
	version    int64 // bumped by any Channel/Future state change; used to detect whether a round made progress
	closed     bool
}

// dispatcher is the interface exposed to workflow task drive loops; it hides
// dispatcherImpl's bookkeeping fields from the rest of the package.
type dispatcher interface {
	ExecuteUntilAllBlocked() error
	IsDone() bool
	Close()
	StackTrace() string
}

// newDispatcher creates a dispatcher with a single root coroutine running
// root. Nothing runs until ExecuteUntilAllBlocked is called.
func newDispatcher(ctx Context, root func(ctx Context)) (dispatcher, Context) {
	d := &dispatcherImpl{}
	rootCtx := d.newCoroutine(ctx, "", root)
	return d, rootCtx
}

func (d *dispatcherImpl) newCoroutine(ctx Context, name string, fn func(ctx Context)) Context {
	d.mutex.Lock()
	d.sequence++
	if name == "" {
		name = fmt.Sprintf("coroutine %d", d.sequence)
	}
	state := &coroutineState{
		name:    name,
		gate:    make(chan struct{}),
		proceed: make(chan struct{}),
	}
	state.dispatcher = d
	childCtx := WithValue(ctx, coroutinesContextKey, state)
	state.ctx = childCtx
	d.coroutines = append(d.coroutines, state)
	d.mutex.Unlock()

	go state.run(fn)
	return childCtx
}

func (d *dispatcherImpl) bumpVersion() {
	d.version++
}

// ExecuteUntilAllBlocked resumes every unfinished coroutine in turn until a
// full pass produces no further progress (no state change and no new
// finishes), i.e. every live coroutine is blocked waiting on something this
// dispatcher alone cannot resolve (an external activation, a future no one
// has Set() yet).
func (d *dispatcherImpl) ExecuteUntilAllBlocked() (err error) {
	for {
		progressed := false
		// Index loop, not range: a coroutine spawned mid-pass (Go from
		// inside workflow code) is appended to the slice and must still run
		// this pass, in submission order.
		for i := 0; i < len(d.coroutines); i++ {
			c := d.coroutines[i]
			if c.finished {
				continue
			}
			lastVersion := d.version
			firstRun := !c.started
			c.started = true
			c.blocked = false
			c.gate <- struct{}{}
			<-c.proceed
			if c.panicError != nil {
				return c.panicError
			}
			// A first start, a finish, or any Channel/Future state change
			// counts as progress; a blocked coroutine that merely re-checked
			// its wait condition and yielded again does not.
			if firstRun || c.finished || d.version != lastVersion {
				progressed = true
			}
			if !c.finished {
				c.blocked = true
			}
		}
		if !progressed {
			return nil
		}
	}
}

// IsDone reports whether every coroutine registered with this dispatcher
// has returned (or panicked).
func (d *dispatcherImpl) IsDone() bool {
	for _, c := range d.coroutines {
		if !c.finished {
			return false
		}
	}
	return true
}

// Close abandons every coroutine that is still parked, waking each one just
// long enough to unwind via runtime.Goexit so its goroutine does not leak.
func (d *dispatcherImpl) Close() {
	d.mutex.Lock()
	d.closed = true
	coroutines := append([]*coroutineState(nil), d.coroutines...)
	d.mutex.Unlock()
	for _, c := range coroutines {
		if c.finished {
			continue
		}
		c.closed = true
		c.gate <- struct{}{}
	}
}

// StackTrace renders one diagnostic block per still-blocked coroutine,
// naming what it is blocked on. It is meant for humans debugging a stuck
// workflow, not for exact parsing.
func (d *dispatcherImpl) StackTrace() string {
	var sb strings.Builder
	for _, c := range d.coroutines {
		if c.finished {
			continue
		}
		status := c.blockedOn
		if status == "" {
			status = "not started"
		}
		sb.WriteString(fmt.Sprintf("coroutine %s [blocked on %s]:\n", c.name, status))
	}
	return sb.String()
}

// Go schedules a new coroutine, auto-named "coroutine N".
func Go(ctx Context, f func(ctx Context)) {
	GoNamed(ctx, "", f)
}

// GoNamed schedules a new coroutine under the given diagnostic name.
func GoNamed(ctx Context, name string, f func(ctx Context)) {
	state := getState(ctx)
	state.dispatcher.newCoroutine(ctx, name, f)
}

// ---------------------------------------------------------------------------
// Channel
// ---------------------------------------------------------------------------

// Channel is the deterministic analogue of a Go channel for use inside
// workflow code: Send/Receive rendezvous (or buffer, for buffered channels)
// exactly the way a native channel would, but block by yielding to the
// dispatcher instead of to the Go runtime scheduler.
type Channel interface {
	Receive(ctx Context, valuePtr interface{}) (more bool)
	ReceiveAsync(valuePtr interface{}) (ok bool)
	ReceiveAsyncWithMoreFlag(valuePtr interface{}) (ok bool, more bool)
	Send(ctx Context, v interface{})
	SendAsync(v interface{}) (ok bool)
	Close()
}

type pendingSend struct {
	value    interface{}
	resolved bool
}

type pendingReceive struct {
	value    interface{}
	ok       bool
	more     bool
	resolved bool
}

type channelImpl struct {
	name            string
	size            int
	buffer          []interface{}
	blockedSends    []*pendingSend
	blockedReceives []*pendingReceive
	closed          bool
	dispatcher      *dispatcherImpl
}

// NewChannel creates an unbuffered Channel: Send blocks until a matching
// Receive is ready to take the value, and vice versa.
func NewChannel(ctx Context) Channel {
	return NewNamedChannel(ctx, "")
}

// NewNamedChannel is NewChannel with a diagnostic name shown in
// the dispatcher's StackTrace.
func NewNamedChannel(ctx Context, name string) Channel {
	return &channelImpl{name: name, dispatcher: getDispatcher(ctx)}
}

// NewBufferedChannel creates a Channel that can hold up to size values
// without a waiting receiver.
func NewBufferedChannel(ctx Context, size int) Channel {
	return NewNamedBufferedChannel(ctx, "", size)
}

// NewNamedBufferedChannel is NewBufferedChannel with a diagnostic name.
func NewNamedBufferedChannel(ctx Context, name string, size int) Channel {
	return &channelImpl{name: name, size: size, dispatcher: getDispatcher(ctx)}
}

func (c *channelImpl) label() string {
	if c.name == "" {
		return "Channel"
	}
	return c.name
}

func (c *channelImpl) Send(ctx Context, v interface{}) {
	state := getState(ctx)
	if c.trySend(v) {
		return
	}
	pending := &pendingSend{value: v}
	c.blockedSends = append(c.blockedSends, pending)
	for !pending.resolved {
		state.yield(fmt.Sprintf("%s.Send", c.label()))
	}
}

func (c *channelImpl) SendAsync(v interface{}) bool {
	return c.trySend(v)
}

// trySend attempts to complete a send without blocking: directly to a
// parked receiver first (rendezvous), then into the buffer if there is
// room. It never blocks and never panics on a full/unbuffered channel; the
// caller decides whether to park.
func (c *channelImpl) trySend(v interface{}) bool {
	if c.closed {
		panic(fmt.Sprintf("Send on closed channel %s", c.label()))
	}
	if len(c.blockedReceives) > 0 {
		r := c.blockedReceives[0]
		c.blockedReceives = c.blockedReceives[1:]
		r.value, r.ok, r.more, r.resolved = v, true, true, true
		c.dispatcher.bumpVersion()
		return true
	}
	if c.size > 0 && len(c.buffer) < c.size {
		c.buffer = append(c.buffer, v)
		c.dispatcher.bumpVersion()
		return true
	}
	return false
}

func (c *channelImpl) Receive(ctx Context, valuePtr interface{}) bool {
	state := getState(ctx)
	if ok, more := c.tryReceive(valuePtr); ok || !more {
		return more
	}
	pending := &pendingReceive{}
	c.blockedReceives = append(c.blockedReceives, pending)
	for !pending.resolved {
		state.yield(fmt.Sprintf("%s.Receive", c.label()))
	}
	if pending.ok {
		assignReceived(valuePtr, pending.value)
	}
	return pending.more
}

func (c *channelImpl) ReceiveAsync(valuePtr interface{}) bool {
	ok, _ := c.tryReceive(valuePtr)
	return ok
}

func (c *channelImpl) ReceiveAsyncWithMoreFlag(valuePtr interface{}) (bool, bool) {
	return c.tryReceive(valuePtr)
}

// tryReceive attempts to complete a receive without blocking. The second
// return value is the "more" flag: false only once the channel is closed
// and drained, matching native Go channel-receive-after-close semantics.
func (c *channelImpl) tryReceive(valuePtr interface{}) (ok bool, more bool) {
	if len(c.buffer) > 0 {
		v := c.buffer[0]
		c.buffer = c.buffer[1:]
		// A buffered slot just freed up; let any parked sender claim it.
		if len(c.blockedSends) > 0 {
			s := c.blockedSends[0]
			c.blockedSends = c.blockedSends[1:]
			c.buffer = append(c.buffer, s.value)
			s.resolved = true
		}
		c.dispatcher.bumpVersion()
		assignReceived(valuePtr, v)
		return true, true
	}
	if len(c.blockedSends) > 0 {
		s := c.blockedSends[0]
		c.blockedSends = c.blockedSends[1:]
		s.resolved = true
		c.dispatcher.bumpVersion()
		assignReceived(valuePtr, s.value)
		return true, true
	}
	if c.closed {
		return false, false
	}
	return false, true
}

func (c *channelImpl) Close() {
	c.closed = true
	for _, r := range c.blockedReceives {
		r.ok, r.more, r.resolved = false, false, true
	}
	c.blockedReceives = nil
	c.dispatcher.bumpVersion()
}

func assignReceived(valuePtr interface{}, value interface{}) {
	if valuePtr == nil {
		return
	}
	// Signal payloads travel the channel still encoded; decode into the
	// receiver's typed pointer here unless the receiver asked for the raw
	// encoded form.
	if values, ok := value.(Values); ok {
		if _, wantsRaw := valuePtr.(*Values); !wantsRaw {
			if err := values.Get(valuePtr); err != nil && !errors.Is(err, ErrNoData) {
				panic(err)
			}
			return
		}
	}
	if err := setReflected(valuePtr, value); err != nil {
		panic(err)
	}
}

func setReflected(valuePtr interface{}, value interface{}) error {
	rv := reflect.ValueOf(valuePtr)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("valuePtr must be a non-nil pointer, got %T", valuePtr)
	}
	if value == nil {
		return nil
	}
	elem := rv.Elem()
	val := reflect.ValueOf(value)
	if !val.Type().AssignableTo(elem.Type()) {
		return fmt.Errorf("cannot assign value of type %s to %s", val.Type(), elem.Type())
	}
	elem.Set(val)
	return nil
}

// ---------------------------------------------------------------------------
// Future / Settable
// ---------------------------------------------------------------------------

// Future represents the result of an asynchronous operation started from
// workflow code (an activity call, a child workflow, a timer): exactly one
// value, available once and read any number of times after that.
type Future interface {
	Get(ctx Context, valuePtr interface{}) error
	IsReady() bool
}

// Settable resolves the Future half of the same pair, exactly once.
type Settable interface {
	Set(value interface{}, err error)
	SetValue(value interface{})
	SetError(err error)
	Chain(future Future)
}

type futureImpl struct {
	value   interface{}
	err     error
	ready   bool
	channel *channelImpl
	ctx     Context
}

// NewFuture returns a linked (Future, Settable) pair: workflow code hands
// the Future to callers and keeps the Settable to resolve it exactly once.
func NewFuture(ctx Context) (Future, Settable) {
	f := &futureImpl{channel: &channelImpl{dispatcher: getDispatcher(ctx)}, ctx: ctx}
	return f, f
}

func (f *futureImpl) IsReady() bool { return f.ready }

func (f *futureImpl) Get(ctx Context, valuePtr interface{}) error {
	if !f.ready {
		f.channel.Receive(ctx, nil)
	}
	if f.err != nil {
		return f.err
	}
	if valuePtr != nil && f.value != nil {
		return setReflected(valuePtr, f.value)
	}
	return nil
}

func (f *futureImpl) Set(value interface{}, err error) {
	if f.ready {
		panic("Future already set")
	}
	f.value, f.err, f.ready = value, err, true
	f.channel.Close()
}

func (f *futureImpl) SetValue(value interface{}) { f.Set(value, nil) }
func (f *futureImpl) SetError(err error)         { f.Set(nil, err) }

// Chain resolves f with whatever future resolves to, once future is ready.
// future must belong to the same dispatcher as f (workflow code can only
// ever observe futures created in its own coroutine tree).
func (f *futureImpl) Chain(future Future) {
	src, ok := future.(*futureImpl)
	if !ok {
		panic("Chain: future must have been created by NewFuture")
	}
	if src.ready {
		f.Set(src.value, src.err)
		return
	}
	GoNamed(f.ctx, "", func(ctx Context) {
		var v interface{}
		err := src.Get(ctx, &v)
		f.Set(v, err)
	})
}

// ---------------------------------------------------------------------------
// Selector
// ---------------------------------------------------------------------------

// Selector waits on the first-ready of a fixed set of channel/future cases,
// the same way a native `select` statement would, but -- like Channel --
// yields to the dispatcher instead of the Go runtime when nothing is ready
// yet.
type Selector interface {
	AddReceive(c Channel, f func(c Channel, more bool)) Selector
	AddSend(c Channel, v interface{}, f func()) Selector
	AddFuture(future Future, f func(f Future)) Selector
	AddDefault(f func())
	Select(ctx Context)
}

type selectorCase struct {
	receiveChannel *channelImpl
	receiveFn      func(c Channel, more bool)

	sendChannel *channelImpl
	sendValue   interface{}
	sendFn      func()

	future   *futureImpl
	futureFn func(f Future)
}

type selectorImpl struct {
	name       string
	cases      []*selectorCase
	defaultFn  func()
	dispatcher *dispatcherImpl
}

// NewSelector creates an empty Selector.
func NewSelector(ctx Context) Selector {
	return NewNamedSelector(ctx, "")
}

// NewNamedSelector is NewSelector with a diagnostic name.
func NewNamedSelector(ctx Context, name string) Selector {
	return &selectorImpl{name: name, dispatcher: getDispatcher(ctx)}
}

func (s *selectorImpl) label() string {
	if s.name == "" {
		return "Selector"
	}
	return s.name
}

func (s *selectorImpl) AddReceive(c Channel, f func(c Channel, more bool)) Selector {
	s.cases = append(s.cases, &selectorCase{receiveChannel: c.(*channelImpl), receiveFn: f})
	return s
}

func (s *selectorImpl) AddSend(c Channel, v interface{}, f func()) Selector {
	s.cases = append(s.cases, &selectorCase{sendChannel: c.(*channelImpl), sendValue: v, sendFn: f})
	return s
}

func (s *selectorImpl) AddFuture(future Future, f func(f Future)) Selector {
	s.cases = append(s.cases, &selectorCase{future: future.(*futureImpl), futureFn: f})
	return s
}

func (s *selectorImpl) AddDefault(f func()) {
	s.defaultFn = f
}

// Select runs the first ready case's callback, blocking (by yielding) until
// one becomes ready if none are and there is no default.
func (s *selectorImpl) Select(ctx Context) {
	state := getState(ctx)
	for {
		for _, c := range s.cases {
			switch {
			case c.receiveChannel != nil:
				if !c.receiveChannel.hasPending() {
					continue
				}
				// The callback receives the value itself; more is false only
				// once the channel is closed and drained.
				ch := c.receiveChannel
				c.receiveFn(ch, len(ch.buffer) > 0 || len(ch.blockedSends) > 0)
				return
			case c.sendChannel != nil:
				if c.sendChannel.trySend(c.sendValue) {
					c.sendFn()
					return
				}
			case c.future != nil:
				if c.future.ready {
					c.futureFn(c.future)
					return
				}
			}
		}
		if s.defaultFn != nil {
			s.defaultFn()
			return
		}
		state.yield(fmt.Sprintf("%s", s.label()))
	}
}

// hasPending reports whether a Receive on c would complete without
// blocking (including a receive-on-closed-and-drained channel, which
// completes immediately with more=false).
func (c *channelImpl) hasPending() bool {
	return len(c.buffer) > 0 || len(c.blockedSends) > 0 || c.closed
}
