package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&domain.WriteError{Kind: domain.WriteErrorPermission}, http.StatusForbidden, "permission"},
		{&domain.WriteError{Kind: domain.WriteErrorSchema}, http.StatusConflict, "schema_mismatch"},
		{&domain.WriteError{Kind: domain.WriteErrorExhausted}, http.StatusBadGateway, "retries_exhausted"},
		{&domain.NoValidDataError{Rows: 3}, http.StatusUnprocessableEntity, "no_valid_data"},
		{&domain.MissingWorksheetError{Sheet: "x"}, http.StatusUnprocessableEntity, "missing_worksheet"},
		{fmt.Errorf("%w: .ods", domain.ErrUnsupportedFormat), http.StatusUnsupportedMediaType, "unsupported_format"},
		{domain.ErrNoSheet, http.StatusUnprocessableEntity, "extraction_error"},
		{fmt.Errorf("%w: dial", domain.ErrConnectionUnavailable), http.StatusServiceUnavailable, "connection_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, code, _ := Classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusNotFound, "unknown_table", "nope", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":{"code":"unknown_table","message":"nope"}}`, rec.Body.String())
}
