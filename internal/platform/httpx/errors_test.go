package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studioledger/studioledger/internal/shared"
)

func TestRespondErrorMapsDomainErrorsToEnvelopes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("status: %w", shared.ErrNotFound), 404},
		{shared.ErrRunInFlight, 409},
		{shared.ErrInvalidPeriodType, 400},
		{fmt.Errorf("bad payload: %w", ErrValidation), 400},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.code, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var env Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.False(t, env.Success)
		require.NotEmpty(t, env.Error)
	}
}

func TestRespondErrorFallsBackToProblemDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("connection reset by peer"))

	require.Equal(t, 500, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var pd ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	require.Equal(t, "internal error", pd.Title)
	require.Equal(t, 500, pd.Status)
	require.Equal(t, "connection reset by peer", pd.Detail)
}
