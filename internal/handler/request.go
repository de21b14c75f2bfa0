package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sevensolidarity/aidboard/internal/apperror"
	"github.com/sevensolidarity/aidboard/internal/auth"
	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/service"
)

// RequestHandler exposes help requests over HTTP.
//
// Every route except SuggestTags sits behind auth.RequireAuth, so the
// caller's user ID is always in the context here. Authorization rules
// (owner only, same state only) live in the service.
type RequestHandler struct {
	service *service.RequestService
	logger  *slog.Logger
}

// NewRequestHandler creates a RequestHandler.
func NewRequestHandler(svc *service.RequestService, logger *slog.Logger) *RequestHandler {
	return &RequestHandler{service: svc, logger: logger}
}

// createRequestBody is the JSON body of POST /api/requests.
type createRequestBody struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Tags        []string            `json:"tags"`
	Location    *model.RequestPlace `json:"location"`
}

// HandleCreate creates a request.
//
// HTTP: POST /api/requests
// BODY: {"title": "...", "description": "...", "tags": ["food"], "location": {"city": "...", "state": "WA"}}
func (h *RequestHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	req, err := h.service.Create(r.Context(), callerID(r), service.CreateRequestInput{
		Title:       body.Title,
		Description: body.Description,
		Tags:        body.Tags,
		Location:    body.Location,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, req)
}

// HandleList searches requests in the caller's state.
//
// HTTP: GET /api/requests?q=...&tags=a,b&status=open|closed&includeClosed=true
func (h *RequestHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	includeClosed := false
	if raw := query.Get("includeClosed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, h.logger, apperror.ValidationFailed("includeClosed", "includeClosed must be true or false"))
			return
		}
		includeClosed = v
	}

	list, err := h.service.List(r.Context(), callerID(r), service.ListQuery{
		Q:             query.Get("q"),
		Tags:          query.Get("tags"),
		Status:        query.Get("status"),
		IncludeClosed: includeClosed,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// HandleSuggestTags returns tag suggestions for a prefix. No auth needed.
//
// HTTP: GET /api/requests/tags?q=fo
func (h *RequestHandler) HandleSuggestTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.SuggestTags(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// HandleGet returns one request with its responses and mentioned users.
//
// HTTP: GET /api/requests/{id}
func (h *RequestHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Get(r.Context(), callerID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// updateRequestBody uses pointers so an omitted field is left unchanged.
type updateRequestBody struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
}

// HandleUpdate edits a request. Owner only.
//
// HTTP: PUT /api/requests/{id}
func (h *RequestHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var body updateRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	req, err := h.service.Update(r.Context(), callerID(r), r.PathValue("id"), service.UpdateRequestInput{
		Title:       body.Title,
		Description: body.Description,
		Tags:        body.Tags,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// HandleDelete removes a request. Owner only.
//
// HTTP: DELETE /api/requests/{id}
func (h *RequestHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Delete(r.Context(), callerID(r), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

type messageBody struct {
	Message string `json:"message"`
}

// HandleRespond appends a response from the caller.
//
// HTTP: POST /api/requests/{id}/respond
// BODY: {"message": "I can help on Saturday"}
func (h *RequestHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	var body messageBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	req, err := h.service.Respond(r.Context(), callerID(r), r.PathValue("id"), body.Message)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// HandleEditResponse edits one of the caller's responses.
//
// HTTP: PUT /api/requests/{id}/respond/{responseId}
func (h *RequestHandler) HandleEditResponse(w http.ResponseWriter, r *http.Request) {
	var body messageBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	req, err := h.service.EditResponse(r.Context(), callerID(r), r.PathValue("id"), r.PathValue("responseId"), body.Message)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type closeBody struct {
	WinnerUserID    string `json:"winnerUserId"`
	OutsidePlatform bool   `json:"outsidePlatform"`
}

// HandleClose closes (or, when nobody responded, cancels) a request.
//
// HTTP: POST /api/requests/{id}/close
// BODY: {"winnerUserId": "..."} or {"outsidePlatform": true}
//
// A cancelled request no longer exists, so the response is a marker the
// frontend uses to navigate away: {"deleted": true, "id": "..."}.
func (h *RequestHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	var body closeBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.service.Close(r.Context(), callerID(r), r.PathValue("id"), service.CloseInput{
		WinnerUserID:    body.WinnerUserID,
		OutsidePlatform: body.OutsidePlatform,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if res.Deleted {
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": res.ID})
		return
	}
	writeJSON(w, http.StatusOK, res.Request)
}

// callerID is the authenticated user's ID. RequireAuth guarantees it is
// set on every route that calls this.
func callerID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return strings.TrimSpace(id)
}
