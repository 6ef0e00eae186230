package api

import (
	"net/http"

	"github.com/felixgeelhaar/reformer/pkg/observability"
	"github.com/google/uuid"
)

type contentHandler struct {
	server *Server
}

// listVideos handles GET /api/videos.
func (h *contentHandler) listVideos(w http.ResponseWriter, r *http.Request, p Principal) {
	videos, err := h.server.deps.Videos.ListVideos(r.Context(), p.UserID)
	if err != nil {
		h.server.writeServiceError(w, r, err, "Failed to list videos")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

// issueToken handles POST /api/video/token.
func (h *contentHandler) issueToken(w http.ResponseWriter, r *http.Request, p Principal) {
	var req videoTokenRequest
	if err := h.server.validate.decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.id() == "" {
		writeError(w, http.StatusBadRequest, "Missing videoId")
		return
	}
	videoID, err := uuid.Parse(req.id())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid video id")
		return
	}
	h.issue(w, r, p, videoID)
}

// stream handles GET /api/videos/{id}/stream.
func (h *contentHandler) stream(w http.ResponseWriter, r *http.Request, p Principal) {
	videoID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid video id")
		return
	}
	h.issue(w, r, p, videoID)
}

func (h *contentHandler) issue(w http.ResponseWriter, r *http.Request, p Principal, videoID uuid.UUID) {
	cred, err := h.server.deps.Playback.Issue(r.Context(), p.UserID, p.Email, videoID)
	h.server.metrics.Counter(observability.MetricPlaybackTokens, 1, observability.T("outcome", outcomeOf(err)))
	if err != nil {
		h.server.writeServiceError(w, r, err, "Failed to issue playback token")
		return
	}
	writeJSON(w, http.StatusOK, cred)
}
