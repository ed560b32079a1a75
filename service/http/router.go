package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/sol-hydraulics/multisender/service/app"
	"github.com/sol-hydraulics/multisender/service/config"
)

func NewRouter(cfg *config.Config, logger *log.Logger, app *app.App) http.Handler {
	r := mux.NewRouter()

	// Before the version prefix, which would match it too
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Catch the api version
	rv := r.PathPrefix("/{apiVersion}").Subrouter()

	rv.HandleFunc("/health/ready", HandleHealthReady()).Methods(http.MethodGet)

	api := rv.NewRoute().Subrouter()
	api.Use(UseAuth(cfg.AuthToken))

	api.HandleFunc("/distributions", HandleCreateDistribution(logger, app)).Methods(http.MethodPost)
	api.HandleFunc("/distributions", HandleListDistributions(logger, app)).Methods(http.MethodGet)
	api.HandleFunc("/transaction/{id}", HandleGetTransaction(logger, app)).Methods(http.MethodGet)
	api.HandleFunc("/tokenOrder/{id}", HandleGetTokenOrder(logger, app)).Methods(http.MethodGet)
	api.HandleFunc("/my-tokens", HandleListMyTokens(logger, app)).Methods(http.MethodGet)

	// Use middleware
	h := UseCors(r)
	h = UseLogging(logger.Writer(), h)
	h = UseCompress(h)
	h = UseJson(h)

	return h
}
