package handlers

import "net/http"

func (api *API) PulseLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	snapshot, err := api.pulse.Latest(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "backend_error", "failed to load dashboard data")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
