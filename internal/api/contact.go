package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ReadMessagesPermission guards the contact inbox.
const ReadMessagesPermission = "read:messages"

// ContactHandler 联系表单接口处理器
type ContactHandler struct {
	contactService ContactService
	limiter        *ClientLimiter
	inbox          func(http.Handler) http.Handler
	logger         *zap.Logger
}

// NewContactHandler 创建 ContactHandler. inbox guards GET /contact/messages;
// the route is not mounted when it is nil.
func NewContactHandler(contactService ContactService, limiter *ClientLimiter, inbox func(http.Handler) http.Handler, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{
		contactService: contactService,
		limiter:        limiter,
		inbox:          inbox,
		logger:         logger,
	}
}

// RegisterRoutes 注册路由到 mux.Router
func (h *ContactHandler) RegisterRoutes(r *mux.Router) {
	if h.inbox != nil {
		r.Handle("/contact/messages", h.inbox(http.HandlerFunc(h.listMessages))).Methods(http.MethodGet)
	}
	r.HandleFunc("/contact", h.contact)
}

// listMessages 最近的联系消息，?limit= 可选
func (h *ContactHandler) listMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	messages, err := h.contactService.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list contact messages", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Envelope{Message: "Could not load messages"})
		return
	}
	writeJSON(w, http.StatusOK, ListMessagesResponse{Success: true, Messages: messages})
}

// contact 接收表单提交（form 或 JSON）
func (h *ContactHandler) contact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, Envelope{Message: "Invalid request method"})
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		writeJSON(w, http.StatusTooManyRequests, Envelope{Message: "Too many messages, please try again later"})
		return
	}

	req, err := decodeContact(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Message: "invalid request body: " + err.Error()})
		return
	}

	if err := h.contactService.Submit(r.Context(), req); err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			writeJSON(w, http.StatusBadRequest, Envelope{Message: inputErr.Message})
			return
		}
		h.logger.Error("failed to store contact message", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Envelope{Message: "Could not send message, please try again later"})
		return
	}

	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "Message sent successfully!"})
}

func decodeContact(w http.ResponseWriter, r *http.Request) (*ContactRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req ContactRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return &ContactRequest{
		Name:    r.PostForm.Get("name"),
		Email:   r.PostForm.Get("email"),
		Message: r.PostForm.Get("message"),
	}, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientLimiter is a per-client token bucket.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows perMinute requests per client with the given burst.
func NewClientLimiter(perMinute, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		clients: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		ttl:     10 * time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether the client may make a request now.
func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, e := range l.clients {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.clients, key)
		}
	}

	e, ok := l.clients[client]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
