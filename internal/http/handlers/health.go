package handlers

import "net/http"

// Health is the liveness endpoint. It names the service so a check
// hitting the wrong port fails loudly instead of reading a stranger's
// "ok".
func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "pulse-gateway",
		"status":  "ok",
	})
}
