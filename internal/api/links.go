package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/linkorder/internal/linkservice"
	"github.com/starford/linkorder/internal/models"
)

// CreateLink handles POST /api/links.
//
//	@Summary		Create a link, shifting ordered siblings to make room
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateLinkRequest	true	"Link to create"
//	@Param			X-Actor-ID	header	string			false	"Acting user"
//	@Success		201		{object}	LinkResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	link, group, err := h.svc.CreateOrderedLink(r.Context(), linkservice.CreateLinkParams{
		SourceEntityID: req.SourceEntityID,
		LinkTypeID:     req.LinkTypeID,
		TargetEntityID: req.TargetEntityID,
		Index:          req.Index,
		OwnedByID:      req.OwnedByID,
		ActorID:        actorID(r),
		Properties:     req.Properties,
	})
	if err != nil {
		writeError(w, "create link", err)
		return
	}
	writeJSON(w, http.StatusCreated, LinkResponse{Link: link, Group: group})
}

// GetLink handles GET /api/links/{id}.
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.GetLink(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get link", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// UpdateLink handles PATCH /api/links/{id}. The move, if any, is applied
// before the properties.
//
//	@Summary		Move a link within its ordered group and/or replace its properties
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Link ID"
//	@Param			body	body		UpdateLinkRequest	true	"Changes"
//	@Success		200		{object}	LinkResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/{id} [patch]
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	var req UpdateLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UpdatedIndex == nil && req.Properties == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("updatedIndex or properties is required"))
		return
	}

	link, group, err := h.svc.UpdateLink(r.Context(), chi.URLParam(r, "id"), linkservice.LinkUpdate{
		Index:      req.UpdatedIndex,
		Properties: req.Properties,
		ActorID:    actorID(r),
	})
	if err != nil {
		writeError(w, "update link", err)
		return
	}
	writeJSON(w, http.StatusOK, LinkResponse{Link: link, Group: group})
}

// DeleteLink handles DELETE /api/links/{id}.
//
//	@Summary		Remove a link, closing the gap in its ordered group
//	@Tags			links
//	@Produce		json
//	@Param			id	path		string	true	"Link ID"
//	@Success		200	{object}	RemoveLinkResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/{id} [delete]
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	group, err := h.svc.RemoveOrderedLink(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		writeError(w, "remove link", err)
		return
	}
	writeJSON(w, http.StatusOK, RemoveLinkResponse{Group: group})
}

// ListEntityLinks handles GET /api/entities/{id}/links.
//
//	@Summary		List the outgoing links of an entity
//	@Tags			links
//	@Produce		json
//	@Param			id			path		string	true	"Source entity ID"
//	@Param			linkType	query		string	false	"Restrict to one link type"
//	@Success		200			{object}	LinkListResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{id}/links [get]
func (h *Handler) ListEntityLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.ListOutgoingLinks(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("linkType"))
	if err != nil {
		writeError(w, "list links", err)
		return
	}
	writeJSON(w, http.StatusOK, LinkListResponse{Links: links})
}

// ListIncomingLinks handles GET /api/entities/{id}/incoming.
func (h *Handler) ListIncomingLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.ListIncomingLinks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "list incoming links", err)
		return
	}
	writeJSON(w, http.StatusOK, LinkListResponse{Links: links})
}

// GetGroup handles GET /api/groups/{source}/{linkType}.
//
//	@Summary		Get the current snapshot of a sibling group
//	@Tags			links
//	@Produce		json
//	@Param			source		path		string	true	"Source entity ID"
//	@Param			linkType	path		string	true	"Link type ID"
//	@Success		200			{object}	models.Group
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/groups/{source}/{linkType} [get]
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.GetGroup(r.Context(), models.GroupKey{
		SourceEntityID: chi.URLParam(r, "source"),
		LinkTypeID:     chi.URLParam(r, "linkType"),
	})
	if err != nil {
		writeError(w, "get group", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// CheckGroups handles GET /api/groups/check.
func (h *Handler) CheckGroups(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.CheckGroups(r.Context())
	if err != nil {
		writeError(w, "check groups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": reports})
}
