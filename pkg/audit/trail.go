package audit

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/sealgate/internal/logging"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/google/uuid"
)

// RequestInfo describes an inbound request at the moment it arrives.
type RequestInfo struct {
	// RequestID correlates the events of one request. Generated when empty.
	RequestID     string
	Method        string
	URI           string
	PayloadLength int64
	// Identity is set when the caller is already authenticated.
	Identity *domain.AuthenticatedIdentity
	// ServiceUUID is the claimed identifier, recorded even if authentication later fails.
	ServiceUUID string
}

// Trail opens and closes per-request audit handles.
type Trail struct {
	dispatcher *Dispatcher
	now        func() time.Time
	logger     *slog.Logger
}

// TrailOption configures a Trail.
type TrailOption func(*Trail)

// WithClock overrides the time source. The default keeps monotonic readings.
func WithClock(now func() time.Time) TrailOption {
	return func(t *Trail) {
		t.now = now
	}
}

// WithLogger configures a logger for trail diagnostics.
func WithLogger(logger *slog.Logger) TrailOption {
	return func(t *Trail) {
		t.logger = logger
	}
}

// NewTrail creates a trail that flushes through d. A nil dispatcher discards events.
func NewTrail(d *Dispatcher, opts ...TrailOption) *Trail {
	t := &Trail{
		dispatcher: d,
		now:        time.Now,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Close drains the dispatcher.
func (t *Trail) Close() {
	t.dispatcher.Close()
}

// Dropped reports events the dispatcher could not queue.
func (t *Trail) Dropped() uint64 {
	return t.dispatcher.Dropped()
}

// Handle is the request-scoped event buffer. Methods are safe for concurrent
// use by goroutines serving the same request.
type Handle struct {
	trail     *Trail
	ctx       context.Context
	requestID string
	uri       string
	started   time.Time

	mu        sync.Mutex
	identity  *domain.AuthenticatedIdentity
	claimed   string
	errorCode string
	errorMsg  string
	events    []Event

	once sync.Once
}

type handleKey struct{}

// OnRequestStart records the REQUEST start event and returns a context carrying the handle.
func (t *Trail) OnRequestStart(ctx context.Context, info RequestInfo) (context.Context, *Handle) {
	if info.RequestID == "" {
		info.RequestID = uuid.NewString()
	}
	h := &Handle{
		trail:     t,
		ctx:       context.WithoutCancel(ctx),
		requestID: info.RequestID,
		uri:       info.URI,
		started:   t.now(),
		claimed:   info.ServiceUUID,
	}
	if info.Identity != nil {
		id := *info.Identity
		h.identity = &id
	}

	start := Event{
		Name:      EventRequest,
		Type:      EventStart,
		Timestamp: h.started,
	}
	if info.Method != "" {
		start.Params.Set("request_method", info.Method)
	}
	start.Params.Set("request_uri", info.URI)
	start.Params.Set("request_length", strconv.FormatInt(info.PayloadLength, 10))
	if info.ServiceUUID != "" {
		start.Params.Set("service_uuid", info.ServiceUUID)
	}
	h.events = append(h.events, start)

	return context.WithValue(ctx, handleKey{}, h), h
}

// FromContext returns the handle stored by OnRequestStart.
func FromContext(ctx context.Context) (*Handle, bool) {
	h, ok := ctx.Value(handleKey{}).(*Handle)
	return h, ok
}

// OnRequestEnd emits the REQUEST end event and flushes the buffer. Only the
// first call per handle has an effect.
func (t *Trail) OnRequestEnd(h *Handle, statusCode int) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		end := t.now()

		h.mu.Lock()
		ev := Event{
			Name:       EventRequest,
			Type:       EventFinish,
			Timestamp:  end,
			Duration:   end.Sub(h.started),
			StatusCode: statusCode,
		}
		if statusCode >= 400 {
			ev.Type = EventException
			ev.ErrorCode = h.errorCode
			ev.ErrorMessage = h.errorMsg
		}
		ev.Params.Set("request_uri", h.uri)
		ev.Params.Set("status_code", strconv.Itoa(statusCode))
		ev.Params.Set("duration", strconv.FormatInt(ev.Duration.Milliseconds(), 10))
		h.events = append(h.events, ev)

		batch := h.events
		h.events = nil
		identity := h.identity
		claimed := h.claimed
		h.mu.Unlock()

		for i := range batch {
			batch[i].RequestID = h.requestID
			if identity != nil {
				batch[i].ClientName = identity.ClientName
				batch[i].ServiceName = identity.ServiceName
				batch[i].ServiceUUID = identity.ServiceUUID
			} else {
				batch[i].ServiceUUID = claimed
			}
			t.dispatcher.Emit(h.ctx, batch[i])
		}
		t.logger.Debug("Audit flushed", "request_id", h.requestID, "events", len(batch), "status", statusCode)
	})
}

// RequestID returns the correlation identifier.
func (h *Handle) RequestID() string {
	return h.requestID
}

// SetIdentity attaches the authenticated caller once known.
func (h *Handle) SetIdentity(id domain.AuthenticatedIdentity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.identity = &id
}

// SetClaimedService records the identifier a caller claimed before authentication.
func (h *Handle) SetClaimedService(serviceUUID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.claimed = serviceUUID
}

// SetError annotates the final REQUEST event of a failed request.
func (h *Handle) SetError(code, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorCode = code
	h.errorMsg = message
}

// Events returns a snapshot of the buffered events.
func (h *Handle) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Event, len(h.events))
	for i, e := range h.events {
		e.Params = e.Params.Clone()
		out[i] = e
	}
	return out
}

func (h *Handle) record(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

// Span is a nested start/end pair inside a request.
type Span struct {
	h       *Handle
	name    string
	started time.Time
	once    sync.Once
}

// Begin records a START event for name.
func (h *Handle) Begin(name string, params ...Params) *Span {
	s := &Span{h: h, name: name, started: h.trail.now()}
	ev := Event{Name: name, Type: EventStart, Timestamp: s.started}
	if len(params) > 0 {
		ev.Params = params[0].Clone()
	}
	h.record(ev)
	return s
}

// End records a FINISH event. Calls after the first End or Fail are ignored.
func (s *Span) End() {
	s.finish(EventFinish, "", "")
}

// Fail records an EXCEPTION event with an error code and message.
func (s *Span) Fail(code, message string) {
	s.finish(EventException, code, message)
}

func (s *Span) finish(typ EventType, code, message string) {
	if s == nil {
		return
	}
	s.once.Do(func() {
		end := s.h.trail.now()
		s.h.record(Event{
			Name:         s.name,
			Type:         typ,
			Timestamp:    end,
			Duration:     end.Sub(s.started),
			ErrorCode:    code,
			ErrorMessage: message,
		})
	})
}
