package main

import (
	"encoding/json"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.registries.dev/core/storage"
	"go.registries.dev/core/storage/cachedstore"
)

// catalogHandler serves Storables of a namespace as JSON. Request query
// parameters become QueryParams of a Find:
//
//	GET /catalog/schema_metadata_info?name=orders
//
// The special path /catalog/_cache serves statistics of the cache.
type catalogHandler struct {
	manager  *cachedstore.Manager
	registry *storage.Registry
}

func (h *catalogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var namespace = strings.TrimPrefix(r.URL.Path, "/catalog/")

	if namespace == "_cache" {
		var c = h.manager.Cache()
		writeJSON(w, map[string]interface{}{
			"size":   c.Size(),
			"stats":  c.Stats(),
			"policy": c.ExpiryPolicy().String(),
		})
		return
	}

	// Only registered namespaces are queried.
	if _, err := h.registry.New(namespace); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	var out, err = h.manager.Find(r.Context(), namespace, storage.QueryParamsFromValues(r.URL.Query()))
	if storage.IsInvalidArgument(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if err != nil {
		log.WithFields(log.Fields{"namespace": namespace, "err": err}).Warn("failed to serve catalog request")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var rows = make([]map[string]interface{}, 0, len(out))
	for _, s := range out {
		rows = append(rows, s.ToMap())
	}
	writeJSON(w, rows)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("err", err).Warn("failed to encode response")
	}
}
