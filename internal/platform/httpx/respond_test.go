package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var errDomainMissing = errors.New("order missing")

func TestRespondErrorUsesMappers(t *testing.T) {
	mapper := func(err error) error {
		if errors.Is(err, errDomainMissing) {
			return ErrNotFound
		}
		return nil
	}
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("load: %w", errDomainMissing), mapper)
	require.Equal(t, http.StatusNotFound, rr.Code)

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "load: order missing", body.Detail)
}

func TestRespondErrorHidesUnknownErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("connection reset"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection reset")
}

type bindTarget struct {
	Status string `json:"status" validate:"required,oneof=pending completed"`
	Qty    int64  `json:"qty" validate:"gt=0"`
}

func TestBindReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"bogus","qty":0}`))
	rr := httptest.NewRecorder()
	var target bindTarget
	ok := Bind(rr, req, NewValidator(), &target)
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "oneof", body.Fields["status"])
	require.Equal(t, "gt", body.Fields["qty"])
}

func TestBindRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"pending","qty":1,"extra":true}`))
	rr := httptest.NewRecorder()
	var target bindTarget
	require.False(t, Bind(rr, req, NewValidator(), &target))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
