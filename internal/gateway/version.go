package gateway

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/careconnect/data-gateway/internal/middleware"
)

// CurrentAPIVersion is the version new integrations should target.
const CurrentAPIVersion = "v1"

// SupportedVersions lists versions the gateway still serves.
var SupportedVersions = []string{"v1"}

// DeprecatedVersions maps a deprecated version to its sunset date
// (YYYY-MM-DD). Deprecated versions still work but signal migration.
var DeprecatedVersions = map[string]string{}

// RemovedVersions maps a removed version to the date it was withdrawn.
// Requests for removed versions get 410 Gone.
var RemovedVersions = map[string]string{}

var versionSegment = regexp.MustCompile(`^v\d+$`)

// goneResponse is the 410 body for withdrawn API versions.
type goneResponse struct {
	Error            string `json:"error"`
	Message          string `json:"message"`
	SuccessorVersion string `json:"successorVersion"`
	MigrationGuide   string `json:"migrationGuide"`
	RemovedAt        string `json:"removedAt,omitempty"`
}

// Versioning extracts the API version from the URL path, stamps version
// headers, signals deprecation, and rejects removed versions.
func Versioning() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			version := versionFromPath(r.URL.Path)
			if version == "" {
				next.ServeHTTP(w, r)
				return
			}

			if removedAt, removed := RemovedVersions[version]; removed {
				writeJSON(w, http.StatusGone, goneResponse{
					Error:            "API Version Removed",
					Message:          "API version " + version + " is no longer supported. Please use " + CurrentAPIVersion,
					SuccessorVersion: CurrentAPIVersion,
					MigrationGuide:   "/api/docs/migration/" + version + "-to-" + CurrentAPIVersion,
					RemovedAt:        removedAt,
				})
				return
			}

			w.Header().Set("X-API-Version", version)
			w.Header().Set("X-API-Current-Version", CurrentAPIVersion)

			if sunset, deprecated := DeprecatedVersions[version]; deprecated {
				w.Header().Set("Deprecation", "true")
				w.Header().Set("Sunset", sunset)
				w.Header().Set("Link", "</api/"+CurrentAPIVersion+`>; rel="successor-version"; type="application/json"`)
			}

			next.ServeHTTP(w, r.WithContext(WithVersion(r.Context(), version)))
		})
	}
}

func versionFromPath(path string) string {
	for _, part := range strings.Split(path, "/") {
		if versionSegment.MatchString(part) {
			return part
		}
	}
	return ""
}

// VersionInfo describes the gateway's versioning surface.
type VersionInfo struct {
	CurrentVersion     string              `json:"currentVersion"`
	SupportedVersions  []string            `json:"supportedVersions"`
	DeprecatedVersions []DeprecatedVersion `json:"deprecatedVersions"`
	VersioningStrategy string              `json:"versioningStrategy"`
	Example            string              `json:"example"`
}

// DeprecatedVersion is one deprecated version entry in VersionInfo.
type DeprecatedVersion struct {
	Version          string `json:"version"`
	DeprecatedAt     string `json:"deprecatedAt"`
	SuccessorVersion string `json:"successorVersion"`
}

// GetVersionInfo returns the current versioning surface.
func GetVersionInfo() VersionInfo {
	deprecated := make([]DeprecatedVersion, 0, len(DeprecatedVersions))
	for version, date := range DeprecatedVersions {
		deprecated = append(deprecated, DeprecatedVersion{
			Version:          version,
			DeprecatedAt:     date,
			SuccessorVersion: CurrentAPIVersion,
		})
	}
	return VersionInfo{
		CurrentVersion:     CurrentAPIVersion,
		SupportedVersions:  SupportedVersions,
		DeprecatedVersions: deprecated,
		VersioningStrategy: "URL Path Versioning",
		Example:            "/api/v1/government/volunteers",
	}
}

// VersionInfoHandler serves the version info endpoint.
func VersionInfoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, GetVersionInfo())
	})
}
