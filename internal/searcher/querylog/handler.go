package querylog

import (
	"encoding/json"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/logger"
)

// StatsHandler serves the aggregate as JSON.
func StatsHandler(a *Aggregator) http.HandlerFunc {
	log := logger.WithComponent("query-log")
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(a.Stats()); err != nil {
			log.Error("failed to write analytics response", "error", err)
		}
	}
}
