package handler

import (
	"log/slog"
	"net/http"

	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/service"
)

// ProfileHandler serves the caller's own profile, public profiles and the
// skills/offers catalog.
type ProfileHandler struct {
	service *service.ProfileService
	logger  *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(svc *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{service: svc, logger: logger}
}

type profileResponse struct {
	Profile *model.User `json:"profile"`
}

// HandleGetMe returns the caller's profile.
//
// HTTP: GET /api/profile/me
func (h *ProfileHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetMe(r.Context(), callerID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: u})
}

// updateProfileBody mirrors service.UpdateProfileInput. Omitted fields stay
// unchanged; an explicit "" clears a text field.
type updateProfileBody struct {
	DisplayName    *string                `json:"displayName"`
	Zipcode        *string                `json:"zipcode"`
	LocationLabel  *string                `json:"locationLabel"`
	Bio            *string                `json:"bio"`
	ContactMethods *[]model.ContactMethod `json:"contactMethods"`
	Skills         *[]string              `json:"skills"`
	Offers         *[]string              `json:"offers"`
	OpenToHelp     *bool                  `json:"openToHelp"`
}

// HandleUpdateMe edits the caller's profile.
//
// HTTP: PUT /api/profile/me
// BODY: {"zipcode": "98103", "skills": ["cooking"], "contactMethods": [{"label": "Phone", "value": "..."}]}
func (h *ProfileHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var body updateProfileBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	u, err := h.service.UpdateMe(r.Context(), callerID(r), service.UpdateProfileInput{
		DisplayName:    body.DisplayName,
		Zipcode:        body.Zipcode,
		LocationLabel:  body.LocationLabel,
		Bio:            body.Bio,
		ContactMethods: body.ContactMethods,
		Skills:         body.Skills,
		Offers:         body.Offers,
		OpenToHelp:     body.OpenToHelp,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: u})
}

// HandleCatalog returns every skill and offer on the board.
//
// HTTP: GET /api/profile/catalog
func (h *ProfileHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Catalog(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleGetPublic returns another user's public profile.
//
// HTTP: GET /api/profile/{id}
func (h *ProfileHandler) HandleGetPublic(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetPublic(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: u})
}
