package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"ali/pkg/platform/httputil"
)

// listParams are the pagination query parameters shared by list endpoints.
type listParams struct {
	Limit  int
	Offset int
}

func parseListParams(r *http.Request) listParams {
	params := listParams{Limit: 50}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			params.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			params.Offset = n
		}
	}
	return params
}

// parseTimeRange reads optional RFC 3339 "from"/"to" query parameters.
func parseTimeRange(r *http.Request) (from, to *time.Time) {
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = &t
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = &t
		}
	}
	return from, to
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}
