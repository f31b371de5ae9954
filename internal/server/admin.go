package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careconnect/data-gateway/internal/apikey"
	"github.com/careconnect/data-gateway/internal/audit"
	"github.com/careconnect/data-gateway/internal/database"
)

// keyResponse is the admin-facing view of a credential. The full secret
// is only included on issuance; listings carry the obfuscated form.
type keyResponse struct {
	ID            string              `json:"id"`
	Key           string              `json:"key,omitempty"`
	ObfuscatedKey string              `json:"obfuscated_key,omitempty"`
	Name          string              `json:"name"`
	Organization  string              `json:"organization"`
	CreatedBy     string              `json:"created_by"`
	Status        string              `json:"status"`
	Permissions   []apikey.Permission `json:"permissions"`
	Tier          string              `json:"tier"`
	TierOverride  string              `json:"tier_override,omitempty"`
	UsageCount    int64               `json:"usage_count"`
	LastUsedAt    *time.Time          `json:"last_used_at,omitempty"`
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func newKeyResponse(cred apikey.Credential, includeSecret bool) keyResponse {
	resp := keyResponse{
		ID:           cred.ID,
		Name:         cred.Name,
		Organization: cred.Organization,
		CreatedBy:    cred.CreatedBy,
		Status:       string(cred.EffectiveStatus()),
		Permissions:  cred.Permissions,
		Tier:         string(apikey.ResolveTier(&cred)),
		TierOverride: string(cred.TierOverride),
		UsageCount:   cred.UsageCount,
		LastUsedAt:   cred.LastUsedAt,
		ExpiresAt:    cred.ExpiresAt,
		CreatedAt:    cred.CreatedAt,
		UpdatedAt:    cred.UpdatedAt,
	}
	if includeSecret {
		resp.Key = cred.Key
	} else {
		resp.ObfuscatedKey = apikey.ObfuscateKey(cred.Key)
	}
	return resp
}

// handleKeys serves GET (list) and POST (issue) on /admin/keys.
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListKeys(w, r)
	case http.MethodPost:
		s.handleIssueKey(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list keys", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list keys")
		return
	}

	resp := make([]keyResponse, len(creds))
	for i, cred := range creds {
		resp[i] = newKeyResponse(cred, false)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIssueKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string   `json:"name"`
		Organization   string   `json:"organization"`
		Permissions    []string `json:"permissions"`
		TierOverride   string   `json:"tier_override"`
		ExpirationDays int      `json:"expiration_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Organization == "" {
		writeError(w, http.StatusBadRequest, "name and organization are required")
		return
	}

	permissions := make([]apikey.Permission, len(req.Permissions))
	for i, p := range req.Permissions {
		permissions[i] = apikey.Permission(p)
	}

	opts := apikey.IssueOptions{
		Name:         req.Name,
		Organization: req.Organization,
		Permissions:  permissions,
		TierOverride: apikey.Tier(req.TierOverride),
	}
	if req.ExpirationDays > 0 {
		opts.Expiration = time.Duration(req.ExpirationDays) * 24 * time.Hour
	}

	cred, err := s.manager.Issue(r.Context(), actorFromRequest(r), opts)
	if err != nil {
		s.logger.Error("failed to issue key", zap.Error(err), zap.String("organization", req.Organization))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("key issued",
		zap.String("id", cred.ID),
		zap.String("key", apikey.ObfuscateKey(cred.Key)),
		zap.String("organization", cred.Organization))
	writeJSON(w, http.StatusCreated, newKeyResponse(cred, true))
}

// handleBulkRevoke serves POST /admin/keys/bulk-revoke.
func (s *Server) handleBulkRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}

	count, err := s.manager.BulkRevoke(r.Context(), actorFromRequest(r), req.IDs)
	if err != nil {
		s.logger.Error("bulk revoke failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "bulk revoke failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"revoked": count})
}

// handleKeyByID routes /admin/keys/{id} and /admin/keys/{id}/{action}.
func (s *Server) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/keys/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleGetKey(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.handleRevokeKey(w, r, id)
	case action == "" && r.Method == http.MethodPatch:
		s.handleEditKey(w, r, id)
	case action == "pause" && r.Method == http.MethodPost:
		s.handlePauseResume(w, r, id, true)
	case action == "resume" && r.Method == http.MethodPost:
		s.handlePauseResume(w, r, id, false)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request, id string) {
	cred, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		writeKeyError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newKeyResponse(cred, false))
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request, id string) {
	cred, err := s.manager.Revoke(r.Context(), actorFromRequest(r), id)
	if err != nil {
		writeKeyError(w, s.logger, err)
		return
	}
	s.logger.Info("key revoked", zap.String("id", cred.ID))
	writeJSON(w, http.StatusOK, newKeyResponse(cred, false))
}

func (s *Server) handleEditKey(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Name         *string  `json:"name"`
		Permissions  []string `json:"permissions"`
		TierOverride *string  `json:"tier_override"`
		ExpiresAt    *string  `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := apikey.EditOptions{Name: req.Name}
	if req.Permissions != nil {
		opts.Permissions = make([]apikey.Permission, len(req.Permissions))
		for i, p := range req.Permissions {
			opts.Permissions[i] = apikey.Permission(p)
		}
	}
	if req.TierOverride != nil {
		tier := apikey.Tier(*req.TierOverride)
		opts.TierOverride = &tier
	}
	if req.ExpiresAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "expires_at must be RFC 3339")
			return
		}
		opts.ExpiresAt = &t
	}

	cred, err := s.manager.Edit(r.Context(), actorFromRequest(r), id, opts)
	if err != nil {
		writeKeyError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newKeyResponse(cred, false))
}

func (s *Server) handlePauseResume(w http.ResponseWriter, r *http.Request, id string, pause bool) {
	var cred apikey.Credential
	var err error
	if pause {
		cred, err = s.manager.Pause(r.Context(), actorFromRequest(r), id)
	} else {
		cred, err = s.manager.Resume(r.Context(), actorFromRequest(r), id)
	}
	if err != nil {
		if errors.Is(err, apikey.ErrNotActive) || errors.Is(err, apikey.ErrNotPaused) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeKeyError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newKeyResponse(cred, false))
}

func writeKeyError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if errors.Is(err, apikey.ErrKeyNotFound) {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}
	logger.Error("key operation failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "key operation failed")
}

// accessRequestResponse is the admin-facing view of an access request.
type accessRequestResponse struct {
	ID            string     `json:"id"`
	Organization  string     `json:"organization"`
	ContactPerson string     `json:"contact_person"`
	Email         string     `json:"email"`
	Purpose       string     `json:"purpose"`
	DataTypes     []string   `json:"data_types"`
	Justification string     `json:"justification,omitempty"`
	Status        string     `json:"status"`
	ReviewNotes   string     `json:"review_notes,omitempty"`
	ReviewedBy    string     `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	APIKeyID      string     `json:"api_key_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newAccessRequestResponse(req database.AccessRequest) accessRequestResponse {
	return accessRequestResponse{
		ID:            req.ID,
		Organization:  req.Organization,
		ContactPerson: req.ContactPerson,
		Email:         req.Email,
		Purpose:       req.Purpose,
		DataTypes:     req.DataTypes,
		Justification: req.Justification,
		Status:        req.Status,
		ReviewNotes:   req.ReviewNotes,
		ReviewedBy:    req.ReviewedBy,
		ReviewedAt:    req.ReviewedAt,
		APIKeyID:      req.APIKeyID,
		CreatedAt:     req.CreatedAt,
	}
}

// handleSubmitAccessRequest serves the public POST /api/access-requests.
func (s *Server) handleSubmitAccessRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Organization  string   `json:"organization"`
		ContactPerson string   `json:"contact_person"`
		Email         string   `json:"email"`
		Purpose       string   `json:"purpose"`
		DataTypes     []string `json:"data_types"`
		Justification string   `json:"justification"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Organization == "" || req.ContactPerson == "" || req.Email == "" || req.Purpose == "" {
		writeError(w, http.StatusBadRequest, "organization, contact_person, email and purpose are required")
		return
	}

	record := database.AccessRequest{
		ID:            uuid.New().String(),
		Organization:  req.Organization,
		ContactPerson: req.ContactPerson,
		Email:         req.Email,
		Purpose:       req.Purpose,
		DataTypes:     req.DataTypes,
		Justification: req.Justification,
		Status:        database.AccessRequestPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.db.CreateAccessRequest(r.Context(), record); err != nil {
		s.logger.Error("failed to create access request", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create access request")
		return
	}

	s.logger.Info("access request submitted",
		zap.String("id", record.ID),
		zap.String("organization", record.Organization))
	writeJSON(w, http.StatusCreated, newAccessRequestResponse(record))
}

// handleListAccessRequests serves GET /admin/access-requests.
func (s *Server) handleListAccessRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	requests, err := s.db.ListAccessRequests(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.logger.Error("failed to list access requests", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list access requests")
		return
	}

	resp := make([]accessRequestResponse, len(requests))
	for i, req := range requests {
		resp[i] = newAccessRequestResponse(req)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAccessRequestByID routes /admin/access-requests/{id}/{approve|reject}.
func (s *Server) handleAccessRequestByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/access-requests/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid access request id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		req, err := s.db.GetAccessRequest(r.Context(), id)
		if err != nil {
			writeAccessRequestError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newAccessRequestResponse(req))
	case action == "approve" && r.Method == http.MethodPost:
		s.handleApproveAccessRequest(w, r, id)
	case action == "reject" && r.Method == http.MethodPost:
		s.handleRejectAccessRequest(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleApproveAccessRequest approves a pending request and issues a
// credential scoped to the requested data types.
func (s *Server) handleApproveAccessRequest(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Notes          string `json:"notes"`
		ExpirationDays int    `json:"expiration_days"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	request, err := s.db.GetAccessRequest(r.Context(), id)
	if err != nil {
		writeAccessRequestError(w, s.logger, err)
		return
	}
	if request.Status != database.AccessRequestPending && request.Status != database.AccessRequestUnderReview {
		writeError(w, http.StatusConflict, "access request already reviewed")
		return
	}

	actor := actorFromRequest(r)

	permissions := make([]apikey.Permission, len(request.DataTypes))
	for i, dataType := range request.DataTypes {
		permissions[i] = apikey.ReadPermission(dataType)
	}

	opts := apikey.IssueOptions{
		Name:         request.Organization + " access",
		Organization: request.Organization,
		Permissions:  permissions,
	}
	if req.ExpirationDays > 0 {
		opts.Expiration = time.Duration(req.ExpirationDays) * 24 * time.Hour
	}

	cred, err := s.manager.Issue(r.Context(), actor, opts)
	if err != nil {
		s.logger.Error("failed to issue key for access request", zap.Error(err), zap.String("request_id", id))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.db.ReviewAccessRequest(r.Context(), id, database.AccessRequestApproved, req.Notes, actor.ID, cred.ID); err != nil {
		s.logger.Error("failed to record access request review", zap.Error(err), zap.String("request_id", id))
		writeError(w, http.StatusInternalServerError, "failed to record review")
		return
	}

	s.recorder.Record(audit.NewEntry(audit.ActionApproveRequest, actor.ID, audit.TargetAccessRequest, id, request.Organization).
		WithDetail("api_key_id", cred.ID).
		WithDetail("notes", req.Notes).
		WithClient(actor.IPAddress, actor.UserAgent))

	writeJSON(w, http.StatusOK, map[string]any{
		"request": newAccessRequestResponse(mustGetAccessRequest(r, s, id, request)),
		"key":     newKeyResponse(cred, true),
	})
}

// handleRejectAccessRequest rejects a pending request with a reason.
func (s *Server) handleRejectAccessRequest(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	request, err := s.db.GetAccessRequest(r.Context(), id)
	if err != nil {
		writeAccessRequestError(w, s.logger, err)
		return
	}
	if request.Status != database.AccessRequestPending && request.Status != database.AccessRequestUnderReview {
		writeError(w, http.StatusConflict, "access request already reviewed")
		return
	}

	actor := actorFromRequest(r)
	if err := s.db.ReviewAccessRequest(r.Context(), id, database.AccessRequestRejected, req.Reason, actor.ID, ""); err != nil {
		s.logger.Error("failed to record access request review", zap.Error(err), zap.String("request_id", id))
		writeError(w, http.StatusInternalServerError, "failed to record review")
		return
	}

	s.recorder.Record(audit.NewEntry(audit.ActionRejectRequest, actor.ID, audit.TargetAccessRequest, id, request.Organization).
		WithDetail("reason", req.Reason).
		WithClient(actor.IPAddress, actor.UserAgent))

	writeJSON(w, http.StatusOK, newAccessRequestResponse(mustGetAccessRequest(r, s, id, request)))
}

// mustGetAccessRequest re-reads a request after review, falling back to
// the pre-review record if the read fails.
func mustGetAccessRequest(r *http.Request, s *Server, id string, fallback database.AccessRequest) database.AccessRequest {
	updated, err := s.db.GetAccessRequest(r.Context(), id)
	if err != nil {
		return fallback
	}
	return updated
}

func writeAccessRequestError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if errors.Is(err, database.ErrAccessRequestNotFound) {
		writeError(w, http.StatusNotFound, "access request not found")
		return
	}
	logger.Error("access request operation failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "access request operation failed")
}

// handleListAudit serves GET /admin/audit.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 1000 {
		limit = v
	}

	entries, err := s.db.ListAuditEntries(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list audit entries", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleCacheStats serves GET /admin/cache/stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.cache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}

	size, err := s.cache.Len(r.Context())
	if err != nil {
		s.logger.Error("failed to read cache stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read cache stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "entries": size})
}

// handleCachePurge serves POST /admin/cache/purge. An optional pattern
// narrows the purge to matching keys; purges are audited.
func (s *Server) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.cache == nil {
		writeJSON(w, http.StatusOK, map[string]int{"purged": 0})
		return
	}

	var req struct {
		Pattern string `json:"pattern"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	purged, err := s.cache.Purge(r.Context(), req.Pattern)
	if err != nil {
		s.logger.Error("cache purge failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cache purge failed")
		return
	}

	actor := actorFromRequest(r)
	s.recorder.Record(audit.NewEntry(audit.ActionPurgeCache, actor.ID, audit.TargetCache, "cache", "response cache").
		WithDetail("pattern", req.Pattern).
		WithDetail("purged", purged).
		WithClient(actor.IPAddress, actor.UserAgent))

	writeJSON(w, http.StatusOK, map[string]int{"purged": purged})
}
