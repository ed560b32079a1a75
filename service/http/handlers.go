package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/sol-hydraulics/multisender/service/app"
)

// Create a distribution
func HandleCreateDistribution(logger *log.Logger, app *app.App) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		// Check body is not empty
		if err := checkNonEmptyBody(r); err != nil {
			handleError(rw, logger, err)
			return
		}

		var reqDist ReqCreateDistribution

		// Decode JSON
		if err := json.NewDecoder(r.Body).Decode(&reqDist); err != nil {
			handleError(rw, logger, err)
			return
		}

		appJob, err := reqDist.ToApp()
		if err != nil {
			handleError(rw, logger, err)
			return
		}

		// Create new distribution, the poller takes it from here
		if err := app.CreateDistribution(r.Context(), &appJob); err != nil {
			handleError(rw, logger, err)
			return
		}

		res := ResCreateDistribution{
			ID:     appJob.ID,
			Status: appJob.Status,
		}

		handleJsonResponse(rw, http.StatusCreated, res)
	}
}

// List distributions
func HandleListDistributions(logger *log.Logger, app *app.App) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		limit, err := strconv.Atoi(r.FormValue("limit"))
		if err != nil {
			limit = 0
		}

		offset, err := strconv.Atoi(r.FormValue("offset"))
		if err != nil {
			offset = 0
		}

		list, err := app.ListDistributions(r.Context(), r.FormValue("sender"), limit, offset)
		if err != nil {
			handleError(rw, logger, err)
			return
		}

		res := ResDistributionListFromApp(list)

		handleJsonResponse(rw, http.StatusOK, res)
	}
}

// Get the full status of a distribution, recipients included
func HandleGetTransaction(logger *log.Logger, app *app.App) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		job, err := getDistribution(r, app)
		if err != nil {
			handleError(rw, logger, err)
			return
		}

		res := ResTransactionFromApp(job)

		handleJsonResponse(rw, http.StatusOK, res)
	}
}

// Get the progress of a distribution
func HandleGetTokenOrder(logger *log.Logger, app *app.App) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		job, err := getDistribution(r, app)
		if err != nil {
			handleError(rw, logger, err)
			return
		}

		res := ResTokenOrderFromApp(job)

		handleJsonResponse(rw, http.StatusOK, res)
	}
}

// List the tokens a wallet has distributed
func HandleListMyTokens(logger *log.Logger, app *app.App) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		list, err := app.ListTokens(r.Context(), r.FormValue("wallet"))
		if err != nil {
			handleError(rw, logger, err)
			return
		}

		res := ResTokenListFromApp(list)

		handleJsonResponse(rw, http.StatusOK, res)
	}
}

func HandleHealthReady() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}
}

func getDistribution(r *http.Request, a *app.App) (*app.DistributionJob, error) {
	vars := mux.Vars(r)

	id, err := uuid.Parse(vars["id"])
	if err != nil {
		return nil, err
	}

	return a.GetDistribution(r.Context(), id)
}
