// Package ragtest hosts a scripted stand-in for the RAG backend so the
// stream client and controller can be tested against the real SSE
// contract.
package ragtest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Event is one scripted wire frame, serialized exactly as the backend
// would emit it.
type Event struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content"`
}

// ChatRequest mirrors the body the client sends.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Stream         bool   `json:"stream"`
}

type Server struct {
	// Events are replayed in order for every chat request.
	Events []Event
	// Delay pauses between frames, to give tests a window for
	// mid-stream cancellation.
	Delay time.Duration
	// FailStatus, when non-zero, makes the endpoint answer with that
	// status instead of a stream.
	FailStatus int
	// RawBody, when non-empty, is written verbatim instead of Events so
	// tests can feed malformed frames.
	RawBody string

	srv *httptest.Server

	mu       sync.Mutex
	requests []ChatRequest
}

func NewServer(events []Event) *Server {
	s := &Server{Events: events}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/v1/chat/", s.handleChat)

	s.srv = httptest.NewServer(router)
	return s
}

func (s *Server) URL() string {
	return s.srv.URL
}

func (s *Server) Close() {
	s.srv.Close()
}

// LastRequest returns the most recent request body seen, if any.
func (s *Server) LastRequest() (ChatRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.requests) == 0 {
		return ChatRequest{}, false
	}
	return s.requests[len(s.requests)-1], true
}

func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.FailStatus != 0 {
		c.JSON(s.FailStatus, gin.H{"error": "backend unavailable"})
		return
	}

	w := newSSEWriter(c.Writer)

	if s.RawBody != "" {
		w.writeRaw(s.RawBody)
		return
	}

	for _, ev := range s.Events {
		if s.Delay > 0 {
			time.Sleep(s.Delay)
		}
		if err := w.write(ev); err != nil {
			return
		}
	}
}
