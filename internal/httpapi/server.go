package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatd/internal/chat"
	"chatd/pkg/types"
)

// activeChat addresses the active chat in /chats/{name} routes.
const activeChat = "active"

// ModelService is the model lifecycle surface used by the API.
type ModelService interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
	Switch(ctx context.Context, id string) (string, error)
}

// ChatService is the conversation surface used by the API.
type ChatService interface {
	Name() string
	Snapshot() chat.Snapshot
	Subscribe() (<-chan chat.Snapshot, func())
	Send(text string) (*chat.Turn, error)
	Cancel()
	SwitchChat(name string) error
	ClearChat(name string) error
	History(name string) ([]chat.Message, bool, error)
	ListChats() ([]string, error)
	DeleteChat(name string) error
	DuplicateChat(name string) (string, error)
}

type api struct {
	models ModelService
	chats  ChatService
}

func NewMux(models ModelService, chats ChatService) http.Handler {
	a := &api{models: models, chats: chats}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsMethods(),
			AllowedHeaders: corsHeaders(),
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if models.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/status", a.status)

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models.ListModels()})
	})
	r.Post("/models/load", a.loadModel)

	r.Route("/chats", func(r chi.Router) {
		r.Get("/", a.listChats)
		r.Get("/active", a.history)
		r.Put("/active", a.switchChat)
		r.Post("/active/cancel", func(w http.ResponseWriter, r *http.Request) {
			chats.Cancel()
			w.WriteHeader(http.StatusNoContent)
		})
		r.Get("/{name}", a.history)
		r.Delete("/{name}", a.deleteChat)
		r.Post("/{name}/clear", a.clearChat)
		r.Post("/{name}/duplicate", a.duplicateChat)
		r.Post("/{name}/messages", a.send)
	})
	return r
}

// chatName resolves the {name} parameter; "active" and the bare /active
// route address the active chat.
func (a *api) chatName(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if un, err := url.PathUnescape(name); err == nil {
		name = un
	}
	if name == activeChat || name == "" {
		return a.chats.Name()
	}
	return name
}

// decodeJSON enforces the JSON content type and body limit.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	st := a.models.Status()
	snap := a.chats.Snapshot()
	st.Chat = snap.Chat
	st.InFlight = snap.InFlight
	writeJSON(w, http.StatusOK, st)
}

func (a *api) loadModel(w http.ResponseWriter, r *http.Request) {
	var req types.LoadModelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := req.Model
	if id == "" {
		id = req.Path
	}
	if strings.TrimSpace(id) == "" {
		writeJSONError(w, http.StatusBadRequest, "model or path is required")
		return
	}
	opID, err := a.models.Switch(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.LoadModelResponse{OpID: opID, Model: id, State: "loading"})
}

func (a *api) listChats(w http.ResponseWriter, r *http.Request) {
	names, err := a.chats.ListChats()
	if err != nil {
		writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, types.ChatsResponse{Chats: names, Active: a.chats.Name()})
}

func (a *api) switchChat(w http.ResponseWriter, r *http.Request) {
	var req types.SwitchChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.chats.SwitchChat(req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.chats.Snapshot())
}

func (a *api) history(w http.ResponseWriter, r *http.Request) {
	name := a.chatName(r)
	msgs, ok, err := a.chats.History(name)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok && name != a.chats.Name() {
		writeJSONError(w, http.StatusNotFound, "chat not found: "+name)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, chat.Snapshot{Chat: name, Messages: msgs})
}

func (a *api) deleteChat(w http.ResponseWriter, r *http.Request) {
	if err := a.chats.DeleteChat(a.chatName(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) clearChat(w http.ResponseWriter, r *http.Request) {
	if err := a.chats.ClearChat(a.chatName(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) duplicateChat(w http.ResponseWriter, r *http.Request) {
	dup, err := a.chats.DuplicateChat(a.chatName(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.DuplicateResponse{Name: dup})
}
