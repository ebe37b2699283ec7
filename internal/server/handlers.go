package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/uma-universal-money-address/uma-settlement-go/uma"
	umaerrors "github.com/uma-universal-money-address/uma-settlement-go/uma/errors"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/generated"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/protocol"
)

type handlers struct {
	responder *uma.Responder
	prices    PriceLookup
	checks    map[string]Pinger
	log       logrus.FieldLogger
}

func (h *handlers) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/lnurlp/{username}", h.lnurlp)
	mux.HandleFunc("GET /healthz", h.health)
	if h.prices != nil {
		mux.HandleFunc("GET /api/v1/prices/{symbol}", h.price)
	}
	return mux
}

// lnurlp serves both phases on one URL. A request carrying an amount is a pay request, anything else is a lookup.
func (h *handlers) lnurlp(w http.ResponseWriter, r *http.Request) {
	requestURL := *r.URL
	requestURL.Host = r.Host

	version, err := uma.NegotiateVersion(requestURL.Query().Get("umaVersion"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	if protocol.IsPayRequestQuery(requestURL.Query()) {
		h.payRequest(w, r, requestURL)
		return
	}

	lookup, err := protocol.ParseLnurlpRequest(requestURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response, err := h.responder.GetLnurlpResponse(r.Context(), lookup.Username, lookup.Domain)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if response == nil {
		h.writeError(w, umaerrors.New(generated.UserNotFound, "user not found"))
		return
	}
	response.UmaVersion = version
	writeJSON(w, http.StatusOK, response)
}

func (h *handlers) payRequest(w http.ResponseWriter, r *http.Request, requestURL url.URL) {
	request, err := protocol.ParsePayRequest(requestURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response, err := h.responder.GetPayReqResponse(r.Context(), request)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *handlers) price(w http.ResponseWriter, r *http.Request) {
	quote, err := h.prices.GetPrice(r.Context(), r.PathValue("symbol"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	checks := make(map[string]string, len(names))
	for _, name := range names {
		checks[name] = "healthy"
		if err := h.checks[name].Ping(r.Context()); err != nil {
			checks[name] = "unhealthy"
			status = "degraded"
			h.log.WithError(err).WithField("check", name).Warn("health check failed")
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// writeError renders UMA errors with their own status and body. Anything else is logged and hidden behind a 500.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	body, status, ok := umaerrors.ErrorToJSONResponse(err)
	if !ok {
		h.log.WithError(err).Error("unhandled error")
		body, _ = umaerrors.New(generated.InternalError, "internal server error").ToJSON()
		status = generated.InternalError.HTTPStatusCode
	}
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Warn("request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
