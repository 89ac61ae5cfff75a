// Package gateway serves a Lambda proxy handler over plain HTTP for local runs.
package gateway

import (
	"context"
	"encoding/base64"
	"io/ioutil"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Invoker is a Lambda API Gateway proxy handler
type Invoker func(context.Context, *events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// NewRouter routes POST requests on any path to invoke
func NewRouter(invoke Invoker, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/*", Adapt(invoke, log))

	return r
}

// NewRequest turns an HTTP request into an API Gateway proxy request
func NewRequest(r *http.Request, body []byte) *events.APIGatewayProxyRequest {

	req := &events.APIGatewayProxyRequest{
		Resource:                        "/{proxy+}",
		Path:                            r.URL.Path,
		HTTPMethod:                      r.Method,
		Headers:                         map[string]string{},
		MultiValueHeaders:               map[string][]string{},
		QueryStringParameters:           map[string]string{},
		MultiValueQueryStringParameters: map[string][]string{},
		Body:                            string(body),
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:  uuid.NewString(),
			HTTPMethod: r.Method,
			Path:       r.URL.Path,
			Stage:      "local",
		},
	}

	for k, v := range r.Header {
		req.Headers[k] = v[0]
		req.MultiValueHeaders[k] = v
	}
	for k, v := range r.URL.Query() {
		req.QueryStringParameters[k] = v[0]
		req.MultiValueQueryStringParameters[k] = v
	}

	return req
}

// Adapt returns an http.HandlerFunc calling invoke the way API Gateway would
func Adapt(invoke Invoker, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "could not read request body", http.StatusBadRequest)
			return
		}

		req := NewRequest(r, body)
		res, err := invoke(r.Context(), req)
		if err != nil {
			log.Error("handler returned an error", "request_id", req.RequestContext.RequestID, "error", err)
		}

		// API Gateway answers 502 when a function fails without a response
		if res.StatusCode == 0 {
			http.Error(w, `{"message": "Internal server error"}`, http.StatusBadGateway)
			return
		}

		for k, v := range res.Headers {
			w.Header().Set(k, v)
		}
		for k, vs := range res.MultiValueHeaders {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}

		out := []byte(res.Body)
		if res.IsBase64Encoded {
			out, err = base64.StdEncoding.DecodeString(res.Body)
			if err != nil {
				http.Error(w, "could not decode response body", http.StatusBadGateway)
				return
			}
		}

		w.WriteHeader(res.StatusCode)
		w.Write(out)
	}
}
