package batchjob

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jrzesz33/encsys/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSubmitter struct {
	got    *Request
	result *Result
	err    error
}

func (s *stubSubmitter) Submit(_ context.Context, req *Request) (*Result, error) {
	s.got = req
	return s.result, s.err
}

func postRequest(body string, headers map[string]string) events.APIGatewayV2HTTPRequest {
	req := events.APIGatewayV2HTTPRequest{
		RawPath: "/jobs",
		Body:    body,
		Headers: headers,
	}
	req.RequestContext.HTTP.Method = http.MethodPost
	return req
}

func TestHandler_StatusCodes(t *testing.T) {
	ok := &Result{JobID: "id-1", JobName: "Job-1", JobQueue: "JQ", JobDefinition: "JD"}

	tests := []struct {
		name       string
		body       string
		submitErr  error
		wantStatus int
	}{
		{name: "accepted", body: `{"source":"a","destination":"b",}`, wantStatus: http.StatusAccepted},
		{name: "bad body", body: `{"source":"a"}`, wantStatus: http.StatusBadRequest},
		{name: "bad prefix", body: `{"source":"a","destination":"b"}`, submitErr: fmt.Errorf("%w: prefix is required", ErrBadRequest), wantStatus: http.StatusBadRequest},
		{name: "unknown target", body: `{"source":"a","destination":"b"}`, submitErr: fmt.Errorf("%w: BatchX-EC2", ErrTargetNotFound), wantStatus: http.StatusNotFound},
		{name: "batch down", body: `{"source":"a","destination":"b"}`, submitErr: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&stubSubmitter{result: ok, err: tt.submitErr}, nil, nil)
			resp, err := h.HandleRequest(context.Background(), postRequest(tt.body, nil))
			require.NoError(t, err, "errors are reported in the response body")
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Headers["Content-Type"])

			if tt.wantStatus != http.StatusAccepted {
				var body map[string]string
				require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
				assert.Equal(t, strconv.Itoa(tt.wantStatus), body["status"])
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestHandler_AcceptedBody(t *testing.T) {
	sub := &stubSubmitter{result: &Result{JobID: "id-1", JobName: "Job-1", JobQueue: "JQ", JobDefinition: "JD"}}
	h := NewHandler(sub, nil, nil)

	encoded := base64.StdEncoding.EncodeToString([]byte(`{"source":"a","destination":"b"}`))
	req := postRequest(encoded, nil)
	req.IsBase64Encoded = true

	resp, err := h.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var got Result
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &got))
	assert.Equal(t, "Job-1", got.JobName)
	assert.Equal(t, "a", sub.got.Source)
}

func TestHandler_Methods(t *testing.T) {
	h := NewHandler(&stubSubmitter{}, nil, nil)

	for method, want := range map[string]int{
		http.MethodOptions: http.StatusOK,
		http.MethodGet:     http.StatusMethodNotAllowed,
	} {
		req := postRequest("", nil)
		req.RequestContext.HTTP.Method = method
		resp, err := h.HandleRequest(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, method)
	}
}

func TestHandler_BearerCheck(t *testing.T) {
	key := []byte("k")
	verifier := auth.NewVerifier(func(context.Context) ([]byte, error) { return key, nil }, "skt", "dev")
	sub := &stubSubmitter{result: &Result{JobID: "id"}}
	h := NewHandler(sub, verifier, nil)
	body := `{"source":"a","destination":"b"}`

	resp, err := h.HandleRequest(context.Background(), postRequest(body, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := auth.Issue(key, "ci", "skt", "dev", time.Hour)
	require.NoError(t, err)
	resp, err = h.HandleRequest(context.Background(), postRequest(body, map[string]string{"authorization": "Bearer " + token}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = h.HandleRequest(context.Background(), postRequest(body, map[string]string{"Authorization": "Bearer " + token}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}
