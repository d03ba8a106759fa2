package http

import "net/http"

// HealthHandler reports process liveness. Database reachability is covered
// by the startup ping; this endpoint stays dependency-free so load balancers
// get an answer even when the pool is saturated.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
