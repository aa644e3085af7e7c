// Package server exposes the persistence gateway and the resume coordinator
// over HTTP. It is a thin delivery layer: request decoding, status mapping,
// nothing else.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/scoutd/scout/internal/logger"
	"github.com/scoutd/scout/internal/session"
	"github.com/scoutd/scout/internal/store"
)

// Server holds the handlers' dependencies.
type Server struct {
	store       *store.Store
	coordinator *session.Coordinator
}

// New builds the route table.
func New(st *store.Store, coord *session.Coordinator) *http.ServeMux {
	s := &Server{store: st, coordinator: coord}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations", s.listConversations)
	mux.HandleFunc("POST /api/conversation", s.createConversation)
	mux.HandleFunc("GET /api/conversation/{id}", s.getConversation)
	mux.HandleFunc("DELETE /api/conversation/{id}", s.deleteConversation)
	mux.HandleFunc("PATCH /api/conversation/{id}/title", s.renameConversation)
	mux.HandleFunc("POST /api/conversation/{id}/message", s.addMessage)
	mux.HandleFunc("GET /api/conversation/{id}/messages", s.listMessages)
	mux.HandleFunc("POST /api/chat", s.chat)
	mux.HandleFunc("POST /api/resume/{id}", s.resume)
	mux.HandleFunc("POST /api/reset", s.reset)
	return mux
}

type createConversationRequest struct {
	Title    string         `json:"title"`
	Metadata store.Metadata `json:"metadata"`
}

type addMessageRequest struct {
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Metadata store.Metadata `json:"metadata"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
	Saved          bool   `json:"saved"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.Conversations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	conv, err := s.store.CreateConversation(r.Context(), req.Title, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.Conversation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "Conversation deleted"})
}

func (s *Server) renameConversation(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	if err := s.store.Rename(r.Context(), r.PathValue("id"), title); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "Title updated"})
}

func (s *Server) addMessage(w http.ResponseWriter, r *http.Request) {
	var req addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Role != store.RoleHuman && req.Role != store.RoleAI {
		http.Error(w, "role must be \"human\" or \"ai\"", http.StatusBadRequest)
		return
	}
	msg, err := s.store.AddMessage(r.Context(), r.PathValue("id"), req.Role, req.Content, req.Metadata)
	if err != nil {
		// An append to an unknown id surfaces as a constraint failure;
		// to the client that is simply a missing conversation.
		if errors.Is(err, store.ErrConstraint) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.Conversation(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	msgs, err := s.store.Messages(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	reply, err := s.coordinator.Send(r.Context(), req.Message, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	if reply.SaveErr != nil {
		logger.L.Warn("turn completed but reply not saved", "conversation_id", reply.ConversationID, "error", reply.SaveErr)
	}
	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: reply.ConversationID,
		Reply:          reply.Content,
		Saved:          reply.SaveErr == nil,
	})
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Resume(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "Conversation resumed"})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.coordinator.Reset()
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "Conversation unbound"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "conversation not found", http.StatusNotFound)
	case errors.Is(err, store.ErrConstraint):
		http.Error(w, "constraint violation", http.StatusConflict)
	case errors.Is(err, store.ErrUnavailable):
		logger.L.Error("storage unavailable", "error", err)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		logger.L.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
