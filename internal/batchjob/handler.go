package batchjob

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jrzesz33/encsys/internal/auth"
)

// JobSubmitter submits a parsed request
type JobSubmitter interface {
	Submit(ctx context.Context, req *Request) (*Result, error)
}

// Handler handles API Gateway v2 trigger requests
type Handler struct {
	submitter JobSubmitter
	verifier  *auth.Verifier
	logger    *slog.Logger
}

// NewHandler creates a trigger handler. A nil verifier disables the bearer check.
func NewHandler(submitter JobSubmitter, verifier *auth.Verifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		submitter: submitter,
		verifier:  verifier,
		logger:    logger,
	}
}

var responseHeaders = map[string]string{
	"Content-Type":                 "application/json",
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "POST, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type, Authorization",
}

// HandleRequest submits a job for a POST request
func (h *Handler) HandleRequest(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := request.RequestContext.HTTP.Method
	h.logger.DebugContext(ctx, "received trigger request",
		slog.String("method", method),
		slog.String("path", request.RawPath),
	)

	switch method {
	case http.MethodOptions:
		return h.respond(http.StatusOK, nil), nil
	case http.MethodPost:
	default:
		return h.errorResponse(http.StatusMethodNotAllowed, "method not allowed"), nil
	}

	if h.verifier != nil {
		if _, err := h.verifier.Verify(ctx, headerValue(request.Headers, "authorization")); err != nil {
			h.logger.WarnContext(ctx, "rejected trigger request", slog.String("error", err.Error()))
			if errors.Is(err, auth.ErrUnauthorized) {
				return h.errorResponse(http.StatusUnauthorized, "unauthorized"), nil
			}
			return h.errorResponse(http.StatusInternalServerError, "failed to verify token"), nil
		}
	}

	body := request.Body
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return h.errorResponse(http.StatusBadRequest, "invalid request body"), nil
		}
		body = string(decoded)
	}

	req, err := ParseRequest(body)
	if err != nil {
		h.logger.InfoContext(ctx, "invalid trigger request", slog.String("error", err.Error()))
		return h.errorResponse(http.StatusBadRequest, err.Error()), nil
	}

	result, err := h.submitter.Submit(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, ErrBadRequest):
		return h.errorResponse(http.StatusBadRequest, err.Error()), nil
	case errors.Is(err, ErrTargetNotFound):
		return h.errorResponse(http.StatusNotFound, err.Error()), nil
	default:
		h.logger.ErrorContext(ctx, "failed to submit batch job", slog.String("error", err.Error()))
		return h.errorResponse(http.StatusInternalServerError, "failed to submit batch job"), nil
	}

	return h.respond(http.StatusAccepted, result), nil
}

func (h *Handler) respond(statusCode int, v any) events.APIGatewayV2HTTPResponse {
	headers := make(map[string]string, len(responseHeaders))
	for k, val := range responseHeaders {
		headers[k] = val
	}

	resp := events.APIGatewayV2HTTPResponse{
		StatusCode: statusCode,
		Headers:    headers,
	}
	if v != nil {
		body, err := json.Marshal(v)
		if err != nil {
			resp.StatusCode = http.StatusInternalServerError
			body = []byte(`{"error":"failed to marshal response"}`)
		}
		resp.Body = string(body)
	}
	return resp
}

func (h *Handler) errorResponse(statusCode int, message string) events.APIGatewayV2HTTPResponse {
	return h.respond(statusCode, map[string]string{
		"error":  message,
		"status": strconv.Itoa(statusCode),
	})
}

// headerValue looks a header up case-insensitively
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(name) {
			return v
		}
	}
	return ""
}
