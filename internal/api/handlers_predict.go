// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pricecast/internal/logging"
	"github.com/tomtom215/pricecast/internal/serving"
	"github.com/tomtom215/pricecast/internal/validation"
)

// maxPredictBody bounds the request body; a prediction request is four short fields.
const maxPredictBody = 4 << 10

// Predict handles POST /api/v1/predict.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req serving.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPredictBody))
	if err := dec.Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON request body")
		return
	}
	req = req.Normalize()

	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	pred, err := h.predictor.Predict(r.Context(), req)
	if err != nil {
		h.writePredictError(rw, r, req, err)
		return
	}
	rw.Success(pred)
}

func (h *Handler) writePredictError(rw *ResponseWriter, r *http.Request, req serving.Request, err error) {
	log := logging.Ctx(r.Context())
	switch {
	case errors.Is(err, serving.ErrEmptyPostcode):
		rw.BadRequest("postcode is required")
	case errors.Is(err, serving.ErrPostcodeNotFound):
		rw.BadRequest(fmt.Sprintf("Postcode '%s' not found", req.Postcode))
	case errors.Is(err, serving.ErrNoRun):
		log.Warn().Err(err).Msg("Prediction requested with no servable run")
		rw.ServiceUnavailable("No trained runs available")
	case errors.Is(err, serving.ErrRunUnavailable):
		log.Error().Err(err).Msg("Run artifacts could not be loaded")
		rw.ServiceUnavailable("Model artifacts unavailable")
	default:
		log.Error().Err(err).Str("postcode", req.Postcode).Msg("Prediction failed")
		rw.InternalError("Prediction failed")
	}
}
