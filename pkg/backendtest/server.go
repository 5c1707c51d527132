// Package backendtest provides an in-process stub of the conversation
// backend for tests and demos. It implements both conversation
// namespaces, the settings surface, and a flushing token stream for
// the chat endpoints, with knobs to simulate missing endpoints and
// per-conversation failures.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/odvcencio/parley/pkg/schema"
)

// Conversation is the stub's stored record.
type Conversation struct {
	ID       string
	Title    string
	Messages []schema.WireMessage
	Config   map[string]any
}

// Server is the stub backend.
type Server struct {
	mu sync.Mutex

	srv *httptest.Server

	conversations map[string][]*Conversation // keyed by namespace
	settings      schema.Settings

	// Knobs. All safe to flip between requests.
	CreateMissing bool              // 404 the create endpoint
	FailList      bool              // 500 the list endpoint
	MessagesCode  map[string]int    // per-id status override for messages
	FailGenerate  map[string]bool   // per-id generate-title failure
	TitleFor      func(id string) string
	StreamChunks  []string // chunks emitted by the chat endpoints
	ChatStatus    int      // non-zero forces a chat error status

	requests []string
}

// NewServer starts the stub.
func NewServer() *Server {
	s := &Server{
		conversations: map[string][]*Conversation{
			"conversations":       {},
			"ascii-conversations": {},
		},
		MessagesCode: make(map[string]int),
		FailGenerate: make(map[string]bool),
		StreamChunks: []string{"Hello", " there"},
	}

	r := chi.NewRouter()
	r.Use(s.record)

	for _, ns := range []string{"conversations", "ascii-conversations"} {
		ns := ns
		r.Route("/"+ns, func(r chi.Router) {
			r.Get("/list", s.handleList(ns))
			r.Post("/create", s.handleCreate(ns))
			r.Post("/config", s.handleSaveConfig(ns))
			r.Delete("/{id}", s.handleDelete(ns))
			r.Get("/{id}/messages", s.handleMessages(ns))
			r.Get("/{id}/config", s.handleGetConfig(ns))
			r.Post("/{id}/generate-title", s.handleGenerateTitle(ns))
		})
	}
	r.Get("/settings", s.handleGetSettings)
	r.Post("/settings", s.handleSaveSettings)
	r.Post("/chat", s.handleChat)
	r.Post("/ascii/chat", s.handleChat)

	s.srv = httptest.NewServer(r)
	return s
}

// URL returns the stub's origin, suitable as a client's backend origin.
func (s *Server) URL() string {
	return s.srv.URL
}

// Close shuts the stub down.
func (s *Server) Close() {
	s.srv.Close()
}

// Add stores a conversation in the normal namespace.
func (s *Server) Add(id, title string, msgs ...schema.WireMessage) {
	s.AddIn("conversations", id, title, msgs...)
}

// AddIn stores a conversation in the given namespace.
func (s *Server) AddIn(ns, id, title string, msgs ...schema.WireMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[ns] = append(s.conversations[ns], &Conversation{
		ID:       id,
		Title:    title,
		Messages: msgs,
	})
}

// Requests returns the "METHOD path" log of everything received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

// CountRequests counts logged requests whose path contains substr.
func (s *Server) CountRequests(substr string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.Contains(r, substr) {
			n++
		}
	}
	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) find(ns, id string) *Conversation {
	for _, c := range s.conversations[ns] {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Server) handleList(ns string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.FailList {
			httpError(w, http.StatusInternalServerError, "list unavailable")
			return
		}
		items := make([]map[string]any, 0, len(s.conversations[ns]))
		for _, c := range s.conversations[ns] {
			items = append(items, map[string]any{
				"id":    c.ID,
				"name":  c.ID,
				"title": c.Title,
			})
		}
		writeJSON(w, items)
	}
}

func (s *Server) handleCreate(ns string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.CreateMissing {
			httpError(w, http.StatusNotFound, "not found")
			return
		}
		id := fmt.Sprintf("%s-%04d", ns[:4], len(s.conversations[ns])+1)
		s.conversations[ns] = append(s.conversations[ns], &Conversation{ID: id, Title: ""})
		writeJSON(w, map[string]string{"conversation_id": id})
	}
}

func (s *Server) handleDelete(ns string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.conversations[ns]
		for i, c := range list {
			if c.ID == id {
				s.conversations[ns] = append(list[:i], list[i+1:]...)
				writeJSON(w, map[string]any{"success": true})
				return
			}
		}
		httpError(w, http.StatusNotFound, "conversation not found")
	}
}

func (s *Server) handleMessages(ns string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s.mu.Lock()
		defer s.mu.Unlock()
		if code, ok := s.MessagesCode[id]; ok {
			httpError(w, code, "messages unavailable")
			return
		}
		c := s.find(ns, id)
		if c == nil {
			httpError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeJSON(w, map[string]any{
			"conversation_id": id,
			"messages":        c.Messages,
		})
	}
}

func (s *Server) handleGetConfig(ns string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s.mu.Lock()
		defer s.mu.Unlock()
		c := s.find(ns, id)
		if c == nil || c.Config == nil {
			httpError(w, http.StatusNotFound, "no config")
			return
		}
		cfg := make(map[string]any, len(c.Config)+1)
		for k, v := range c.Config {
			cfg[k] = v
		}
		cfg["conversation_id"] = id
		writeJSON(w, cfg)
	}
}

func (s *Server) handleSaveConfig(ns string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var doc map[string]any
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			httpError(w, http.StatusBadRequest, "bad config body")
			return
		}
		id, _ := doc["conversation_id"].(string)
		if id == "" {
			httpError(w, http.StatusBadRequest, "missing conversation_id")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		c := s.find(ns, id)
		if c == nil {
			c = &Conversation{ID: id}
			s.conversations[ns] = append(s.conversations[ns], c)
		}
		delete(doc, "conversation_id")
		if c.Config == nil {
			c.Config = make(map[string]any)
		}
		for k, v := range doc {
			c.Config[k] = v
		}
		writeJSON(w, map[string]string{"status": "success"})
	}
}

func (s *Server) handleGenerateTitle(ns string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.FailGenerate[id] {
			httpError(w, http.StatusInternalServerError, "title generation failed")
			return
		}
		title := "Chat about " + id
		if s.TitleFor != nil {
			title = s.TitleFor(id)
		}
		if c := s.find(ns, id); c != nil {
			c.Title = title
		}
		writeJSON(w, map[string]string{"title": title})
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, map[string]any{
		"central_model":           s.settings.CentralModel,
		"title_generation_prompt": s.settings.TitleGenerationPrompt,
		"api_key_configured":      s.settings.APIKey != "",
	})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var in schema.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpError(w, http.StatusBadRequest, "bad settings body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.CentralModel != "" {
		s.settings.CentralModel = in.CentralModel
	}
	s.settings.TitleGenerationPrompt = in.TitleGenerationPrompt
	if in.APIKey != "" {
		s.settings.APIKey = in.APIKey
	}
	writeJSON(w, map[string]string{"status": "success"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.ChatStatus
	chunks := make([]string, len(s.StreamChunks))
	copy(chunks, s.StreamChunks)
	s.mu.Unlock()

	if status != 0 {
		httpError(w, status, "chat unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, chunk := range chunks {
		w.Write([]byte(chunk))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
