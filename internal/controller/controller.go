// Package controller owns the live view of one chat session: the
// in-flight request lifecycle, incremental token accumulation, source
// capture, and reconciliation with the session store when the viewed
// session changes mid-stream.
package controller

import (
	"context"
	"strings"
	"sync"

	"retrievai-client/internal/model"
	"retrievai-client/internal/store"
	"retrievai-client/internal/stream"
	"retrievai-client/pkg/logger"
)

// Streamer opens one chat exchange as an ordered event sequence. Both
// channels close when the exchange ends or the context is cancelled.
type Streamer interface {
	Stream(ctx context.Context, message, conversationID string) (<-chan stream.Event, <-chan error)
}

// Snapshot is the visible state of the active session at one instant.
type Snapshot struct {
	Messages         []model.Message
	ConversationID   string
	IsStreaming      bool
	StreamingMessage string
	StreamingSources []model.Source
	StatusMessage    string
	Error            string
}

// request is the identity of one in-flight exchange. Its scratch state
// (token accumulator, captured sources, learned conversation id) belongs
// to the request, not the view, so it survives a session switch.
//
// done and finalized are distinct terminal states: done means the answer
// was committed, after which only a trailing saved event is still
// meaningful; finalized means the exchange was stopped, failed, or torn
// down, after which every event is dropped.
type request struct {
	sessionID      string
	cancel         context.CancelFunc
	done           bool
	finalized      bool
	tokens         strings.Builder
	sources        []model.Source
	conversationID string
}

type Controller struct {
	store    *store.Store
	streamer Streamer

	mu        sync.Mutex
	sessionID string
	req       *request

	messages         []model.Message
	conversationID   string
	isStreaming      bool
	streamingMessage string
	streamingSources []model.Source
	statusMessage    string
	errMsg           string

	listeners  map[int]func()
	nextID     int
	unsubStore func()
}

func New(st *store.Store, streamer Streamer, sessionID string) *Controller {
	c := &Controller{
		store:     st,
		streamer:  streamer,
		listeners: make(map[int]func()),
	}
	c.mu.Lock()
	c.resetToSession(sessionID)
	c.mu.Unlock()

	c.unsubStore = st.Subscribe(c.reconcile)
	return c
}

func (c *Controller) Close() {
	if c.unsubStore != nil {
		c.unsubStore()
	}
	c.Stop()
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Snapshot returns a copy of the visible state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Messages:         append([]model.Message(nil), c.messages...),
		ConversationID:   c.conversationID,
		IsStreaming:      c.isStreaming,
		StreamingMessage: c.streamingMessage,
		StreamingSources: append([]model.Source(nil), c.streamingSources...),
		StatusMessage:    c.statusMessage,
		Error:            c.errMsg,
	}
}

// Subscribe registers a listener invoked after every visible-state
// change. The returned func unsubscribes.
func (c *Controller) Subscribe(fn func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// SetSession switches the viewed session. An in-flight request is
// detached, not cancelled: it keeps running and settles its outcome
// against the store, so a completed answer is never lost to navigation.
func (c *Controller) SetSession(id string) {
	c.mu.Lock()
	if id == c.sessionID {
		c.mu.Unlock()
		return
	}
	c.resetToSession(id)
	c.mu.Unlock()

	c.notify()
}

// resetToSession loads id's durable state and clears all streaming
// scratch. Callers must hold c.mu.
func (c *Controller) resetToSession(id string) {
	c.sessionID = id
	c.messages = c.store.Load(id)
	c.conversationID, _ = c.store.ConversationID(id)
	c.isStreaming = false
	c.streamingMessage = ""
	c.streamingSources = nil
	c.statusMessage = ""
	c.errMsg = ""
}

// Send starts one chat exchange for the active session. Blank input and
// reentrant calls while a send is in flight are rejected silently.
func (c *Controller) Send(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	c.mu.Lock()
	if c.req != nil {
		c.mu.Unlock()
		return
	}

	target := c.sessionID
	conversationID := c.conversationID

	// Optimistic user message: mirrored into the view only. Nothing is
	// persisted until the exchange produces a done event.
	working := append([]model.Message(nil), c.messages...)
	working = append(working, model.Message{Role: model.RoleUser, Content: text})
	c.messages = append([]model.Message(nil), working...)

	ctx, cancel := context.WithCancel(context.Background())
	req := &request{sessionID: target, cancel: cancel, conversationID: conversationID}
	c.req = req
	c.isStreaming = true
	c.streamingMessage = ""
	c.streamingSources = nil
	c.statusMessage = ""
	c.errMsg = ""
	c.mu.Unlock()

	c.notify()

	events, errs := c.streamer.Stream(ctx, text, conversationID)
	go c.run(req, working, events, errs)
}

// Stop cancels the in-flight transport and clears streaming scratch
// state. Partial answer text is discarded, never persisted. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	req := c.req
	if req == nil {
		c.mu.Unlock()
		return
	}
	req.finalized = true
	c.req = nil
	c.isStreaming = false
	c.streamingMessage = ""
	c.streamingSources = nil
	c.statusMessage = ""
	c.mu.Unlock()

	req.cancel()
	c.notify()
}

// Clear empties the visible message list and removes the session from the
// store (an empty list is never retained, so this is a delete). An
// exchange still running for this session is torn down like Stop, so its
// eventual done cannot re-persist what was just cleared. A request
// detached to another session is left alone.
func (c *Controller) Clear() {
	c.mu.Lock()
	id := c.sessionID
	var req *request
	if c.req != nil && c.req.sessionID == id {
		req = c.req
		req.finalized = true
		c.req = nil
	}
	c.messages = []model.Message{}
	c.conversationID = ""
	c.isStreaming = false
	c.streamingMessage = ""
	c.streamingSources = nil
	c.statusMessage = ""
	c.errMsg = ""
	c.mu.Unlock()

	if req != nil {
		req.cancel()
	}
	c.store.Remove(id)
	c.notify()
}

// run consumes one exchange until both channels close.
func (c *Controller) run(req *request, working []model.Message, events <-chan stream.Event, errs <-chan error) {
	defer req.cancel()

	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			working = c.handleEvent(req, working, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				c.fail(req, err)
			}
		}
	}

	c.finish(req)
}

// handleEvent applies one stream event. Visible state is touched only
// while the view is still on the request's session; the request-local
// scratch advances either way.
func (c *Controller) handleEvent(req *request, working []model.Message, ev stream.Event) []model.Message {
	c.mu.Lock()
	// The backend emits saved after done, so a committed exchange still
	// accepts it; everything else after done, and anything at all after a
	// stop or failure, is dropped.
	if req.finalized || (req.done && ev.Type != stream.EventSaved) {
		c.mu.Unlock()
		return working
	}
	viewing := c.sessionID == req.sessionID

	switch ev.Type {
	case stream.EventStart:
		if viewing {
			c.statusMessage = "Connected"
		}

	case stream.EventRetrieving, stream.EventThinking:
		if msg := ev.StatusMessage(); viewing && msg != "" {
			c.statusMessage = msg
		}

	case stream.EventSources:
		sources, err := ev.Sources()
		if err != nil {
			logger.Debugf("chat stream: bad sources payload: %v", err)
			break
		}
		req.sources = sources
		if viewing {
			c.streamingSources = append([]model.Source(nil), sources...)
		}

	case stream.EventToken:
		token, err := ev.Token()
		if err != nil {
			logger.Debugf("chat stream: bad token payload: %v", err)
			break
		}
		req.tokens.WriteString(token)
		if viewing {
			c.streamingMessage += token
			c.statusMessage = ""
		}

	case stream.EventDone:
		return c.handleDone(req, working, ev)

	case stream.EventSaved:
		return c.handleSaved(req, working, ev, viewing)

	case stream.EventError:
		payload, err := ev.ErrorInfo()
		if err != nil {
			logger.Debugf("chat stream: bad error payload: %v", err)
			break
		}
		if viewing && payload.Message != "" {
			c.errMsg = payload.Message
		}

	default:
		logger.Debugf("chat stream: ignoring unknown event type %q", ev.Type)
	}

	c.mu.Unlock()
	c.notify()
	return working
}

// handleDone finalizes the assistant message and persists the session,
// through the view when it is still on the target session, straight to
// the store otherwise. Callers hold c.mu; it is released here.
func (c *Controller) handleDone(req *request, working []model.Message, ev stream.Event) []model.Message {
	answer := req.tokens.String()
	if payload, err := ev.Done(); err == nil && payload.Answer != "" {
		answer = payload.Answer
	}

	working = append(working, model.Message{
		Role:    model.RoleAssistant,
		Content: answer,
		Sources: req.sources,
	})
	final := append([]model.Message(nil), working...)

	req.done = true
	if c.sessionID == req.sessionID {
		c.messages = final
		c.streamingMessage = ""
		c.streamingSources = nil
		c.statusMessage = "Done"
		c.isStreaming = false
	}
	if c.req == req {
		c.req = nil
	}
	c.mu.Unlock()

	var convID *string
	if req.conversationID != "" {
		convID = &req.conversationID
	}
	c.store.Persist(req.sessionID, final, convID)

	c.notify()
	return working
}

// handleSaved records the server-assigned conversation id. The view is
// updated while still on the target session; the store is written when
// nothing later will carry the id there: before done that is the detached
// case only (done persists it for the viewed session), after done it is
// every case, since the answer is already committed without the id.
// Callers hold c.mu; it is released here.
func (c *Controller) handleSaved(req *request, working []model.Message, ev stream.Event, viewing bool) []model.Message {
	payload, err := ev.Saved()
	if err != nil || payload.ConversationID == "" {
		if err != nil {
			logger.Debugf("chat stream: bad saved payload: %v", err)
		}
		c.mu.Unlock()
		return working
	}

	changed := req.conversationID != payload.ConversationID
	req.conversationID = payload.ConversationID
	if viewing && changed {
		c.conversationID = payload.ConversationID
	}
	settled := req.done
	snapshot := append([]model.Message(nil), working...)
	c.mu.Unlock()

	if !changed {
		return working
	}
	if settled || !viewing {
		c.store.Persist(req.sessionID, snapshot, &payload.ConversationID)
	}
	if viewing {
		c.notify()
	}
	return working
}

// fail surfaces a transport failure and tears the request down. Nothing
// is persisted here; a failure after the answer was committed is ignored.
func (c *Controller) fail(req *request, err error) {
	c.mu.Lock()
	if req.finalized || req.done {
		c.mu.Unlock()
		return
	}
	req.finalized = true
	if c.req == req {
		c.req = nil
	}
	if c.sessionID == req.sessionID {
		c.errMsg = err.Error()
		c.streamingMessage = ""
		c.streamingSources = nil
		c.statusMessage = ""
		c.isStreaming = false
	}
	c.mu.Unlock()

	c.notify()
}

// finish handles normal transport completion for requests that never saw
// a terminal event.
func (c *Controller) finish(req *request) {
	c.mu.Lock()
	if req.finalized || req.done {
		c.mu.Unlock()
		return
	}
	req.finalized = true
	if c.req == req {
		c.req = nil
	}
	if c.sessionID == req.sessionID {
		c.isStreaming = false
		c.streamingMessage = ""
		c.streamingSources = nil
		c.statusMessage = ""
	}
	c.mu.Unlock()

	c.notify()
}

// reconcile runs on every store notification. The view is refreshed only
// when the reloaded data differs structurally, which keeps the
// controller's own writes from thrashing it. While a request for the
// viewed session is in flight the request owns the working list, so
// reconciliation waits.
func (c *Controller) reconcile() {
	c.mu.Lock()
	if c.req != nil && c.req.sessionID == c.sessionID {
		c.mu.Unlock()
		return
	}

	messages := c.store.Load(c.sessionID)
	conversationID, _ := c.store.ConversationID(c.sessionID)

	changed := false
	if !model.MessagesEqual(messages, c.messages) {
		c.messages = messages
		changed = true
	}
	if conversationID != c.conversationID {
		c.conversationID = conversationID
		changed = true
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// notify fans out synchronously, best-effort: a panicking listener must
// not keep the rest from running.
func (c *Controller) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("chat controller: listener panic: %v", r)
				}
			}()
			fn()
		}()
	}
}
