package gateway

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// DataHandlers serves the government data read surface.
type DataHandlers struct {
	fetcher DataFetcher
	logger  *zap.Logger
}

// NewDataHandlers creates handlers backed by the given fetcher.
func NewDataHandlers(fetcher DataFetcher, logger *zap.Logger) *DataHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataHandlers{fetcher: fetcher, logger: logger}
}

// Test confirms the presented credential is valid and returns its
// metadata without touching any data resource.
func (h *DataHandlers) Test() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, ok := CredentialFromContext(r.Context())
		if !ok {
			WriteProblem(w, NewProblem(r, http.StatusUnauthorized, CodeMissingAPIKey, "API key is required"))
			return
		}

		var lastUsed, expiresAt string
		if cred.LastUsedAt != nil {
			lastUsed = cred.LastUsedAt.UTC().Format(time.RFC3339)
		}
		if cred.ExpiresAt != nil {
			expiresAt = cred.ExpiresAt.UTC().Format(time.RFC3339)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "API key is valid and active",
			"keyInfo": map[string]any{
				"name":         cred.Name,
				"organization": cred.Organization,
				"permissions":  cred.Permissions,
				"lastUsed":     lastUsed,
				"usageCount":   cred.UsageCount,
				"expiresAt":    expiresAt,
			},
		})
	})
}

// Stats returns collection totals across all loaded resources.
func (h *DataHandlers) Stats(resources []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counts := make(map[string]int, len(resources))
		for _, resource := range resources {
			count, err := h.fetcher.Count(r.Context(), resource)
			if err != nil {
				h.logger.Error("stats count failed", zap.String("resource", resource), zap.Error(err))
				writeInternalError(w, r)
				return
			}
			counts[resource] = count
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"data":        counts,
			"generatedAt": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// Resource serves a paginated collection for one resource.
func (h *DataHandlers) Resource(resource string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := pageFromQuery(r)

		result, err := h.fetcher.Fetch(r.Context(), resource, page)
		if err != nil {
			h.logger.Error("fetch failed", zap.String("resource", resource), zap.Error(err))
			writeInternalError(w, r)
			return
		}

		pages := 0
		if result.Total > 0 {
			pages = int(math.Ceil(float64(result.Total) / float64(page.Size)))
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    result.Items,
			"pagination": map[string]any{
				"total": result.Total,
				"page":  page.Number,
				"pages": pages,
				"limit": page.Size,
			},
		})
	})
}

func pageFromQuery(r *http.Request) Page {
	page := Page{Number: 1, Size: defaultPageSize}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page.Number = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		page.Size = v
		if page.Size > maxPageSize {
			page.Size = maxPageSize
		}
	}
	return page
}
