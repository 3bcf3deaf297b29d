// Command recommender-mock stands in for the recommendation service during
// local development. The data file maps user IDs to ranked wine IDs; the "*"
// entry is the ranking served to unknown users.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"strings"
)

func main() {
	var (
		port    = flag.String("port", "8000", "port to listen on")
		data    = flag.String("data", "mock-recommendations.json", "path to mock data file")
		verbose = flag.Bool("log", false, "enable request logging")
	)
	flag.Parse()

	file, err := os.ReadFile(*data)
	if err != nil {
		log.Fatalf("read mock data: %v", err)
	}

	var rankings map[string][]string
	if err := json.Unmarshal(file, &rankings); err != nil {
		log.Fatalf("parse mock data: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /recommend/{userId}", func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.PathValue("userId"))
		ids, ok := rankings[userID]
		if !ok {
			ids, ok = rankings["*"]
		}
		if !ok {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		if *verbose {
			log.Printf("recommend %s -> %d ids", userID, len(ids))
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(ids); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	addr := ":" + *port
	log.Printf("mock recommender listening on %s (%d users)", addr, len(rankings))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
