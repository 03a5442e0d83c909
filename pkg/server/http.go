package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// NewHTTPHandler routes the metrics, health and status endpoints.
func NewHTTPHandler(backend Backend, gatherer prometheus.Gatherer, metricsPath string, logger *log.Entry) http.Handler {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	h := &httpHandler{backend: backend, log: logger}
	r := mux.NewRouter()
	if gatherer != nil {
		r.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/status/dc", h.dc).Methods(http.MethodGet)
	r.HandleFunc("/hosts/{name}", h.host).Methods(http.MethodGet)
	return r
}

type httpHandler struct {
	backend Backend
	log     *log.Entry
}

// healthz fails while no host reports a cluster status.
func (h *httpHandler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.backend.Elector().AllHostsDown() {
		http.Error(w, "all hosts down", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok\n"))
}

func (h *httpHandler) status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, statusView(h.backend))
}

func (h *httpHandler) dc(w http.ResponseWriter, r *http.Request) {
	dc := dcView(h.backend)
	if dc == nil {
		http.Error(w, "no hosts configured", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, http.StatusOK, dc)
}

func (h *httpHandler) host(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, v := range hostsView(h.backend) {
		if m := v.(map[string]interface{}); m["name"] == name {
			h.writeJSON(w, http.StatusOK, m)
			return
		}
	}
	http.Error(w, "unknown host "+name, http.StatusNotFound)
}

func (h *httpHandler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && h.log != nil {
		h.log.WithError(err).Warn("writing response failed")
	}
}
