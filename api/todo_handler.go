package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/GoCodeAlone/todos/collection"
)

// Response texts. Clients match on them, so they are part of the API.
const (
	msgInsertFailed  = "Erro ao inserir dados: "
	msgListFailed    = "Erro ao buscar dados: "
	msgListEmpty     = "Nenhum dado encontrado."
	msgCountFailed   = "Erro ao buscar e contar 'todos': "
	msgCountEmpty    = "Nenhum 'todo' encontrado."
	msgUpdateFailed  = "Erro ao atualizar dados: "
	msgRemoveFailed  = "Erro ao remover dado: "
	msgRemoved       = "Dado removido com sucesso: "
	msgInvalidBody   = "Corpo da requisição inválido: "
	msgBodyTooLarge  = "Corpo da requisição excede o limite permitido."
	msgRateLimited   = "Limite de requisições excedido."
	msgHealthy       = "ok"
	headerRetryAfter = "Retry-After"
)

// TodoHandler serves the collection endpoints.
type TodoHandler struct {
	todos        *collection.Collection
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewTodoHandler creates a new TodoHandler. A non-positive maxBodyBytes uses
// DefaultMaxBodyBytes.
func NewTodoHandler(todos *collection.Collection, maxBodyBytes int64, logger *slog.Logger) *TodoHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TodoHandler{todos: todos, maxBodyBytes: maxBodyBytes, logger: logger}
}

// Create handles POST /{namespace}. It echoes the submitted record.
func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decode(w, r)
	if !ok {
		return
	}
	key, err := h.todos.Insert(r.Context(), body.Record)
	if err != nil {
		h.fail(w, r, msgInsertFailed, "insert", key, err)
		return
	}
	writeRawJSON(w, http.StatusOK, body.Echo)
}

// List handles GET /{namespace}?limit=&offset=.
func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := collection.ParsePage(q.Get("limit"), q.Get("offset"))

	entries, err := h.todos.List(r.Context(), page)
	if errors.Is(err, collection.ErrNoData) {
		WriteText(w, http.StatusNotFound, msgListEmpty)
		return
	}
	if err != nil {
		h.fail(w, r, msgListFailed, "list", "", err)
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}

// Count handles GET /{namespace}/count.
func (h *TodoHandler) Count(w http.ResponseWriter, r *http.Request) {
	n, err := h.todos.Count(r.Context())
	if errors.Is(err, collection.ErrNoData) {
		WriteText(w, http.StatusNotFound, msgCountEmpty)
		return
	}
	if err != nil {
		h.fail(w, r, msgCountFailed, "count", "", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}

// Update handles PUT /{namespace}/{id}. It echoes the submitted fields.
func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.todos.UpdateFields(r.Context(), id, body.Record); err != nil {
		h.fail(w, r, msgUpdateFailed, "update", id, err)
		return
	}
	writeRawJSON(w, http.StatusOK, body.Echo)
}

// Delete handles DELETE /{namespace}/{id}.
func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.todos.Remove(r.Context(), id); err != nil {
		h.fail(w, r, msgRemoveFailed, "remove", id, err)
		return
	}
	WriteText(w, http.StatusOK, msgRemoved+id)
}

func (h *TodoHandler) decode(w http.ResponseWriter, r *http.Request) (requestBody, bool) {
	body, err := readBody(w, r, h.maxBodyBytes)
	if err == nil {
		return body, true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteText(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
		return body, false
	}
	WriteText(w, http.StatusBadRequest, msgInvalidBody+err.Error())
	return body, false
}

func (h *TodoHandler) fail(w http.ResponseWriter, r *http.Request, prefix, op, key string, err error) {
	h.logger.Error("store operation failed",
		"op", op,
		"namespace", h.todos.Namespace(),
		"key", key,
		"request_id", RequestIDFromContext(r.Context()),
		"error", err,
	)
	WriteText(w, http.StatusInternalServerError, prefix+err.Error())
}

// Healthz handles GET /healthz.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	WriteText(w, http.StatusOK, msgHealthy)
}
