package shared

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceID(t *testing.T) {
	t.Parallel()

	id := NewTraceID()
	assert.Len(t, id, 32)
	assert.NotEqual(t, id, NewTraceID())

	ctx := WithTraceID(context.Background(), id)
	assert.Equal(t, id, GetTraceID(ctx))
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"title":"T"}`, false},
		{"trailing comma", `{"title":"T",}`, true},
		{"empty", ``, true},
		{"too large", `{"title":"` + strings.Repeat("x", MaxBodyBytes) + `"}`, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			var v struct {
				Title string `json:"title"`
			}
			err := DecodeJSON(w, r, &v)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "T", v.Title)
		})
	}
}

func TestValidateRequestUsesJSONNames(t *testing.T) {
	t.Parallel()

	type req struct {
		SummaryLength string `json:"summary_length" validate:"oneof=brief detailed"`
	}

	err := ValidateRequest(req{SummaryLength: "long"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summary_length")
	assert.NoError(t, ValidateRequest(req{SummaryLength: "brief"}))
}

func TestRespondWithError(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(WithTraceID(r.Context(), "abc"))
	w := httptest.NewRecorder()

	RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Story not found",
		errors.New("dial tcp postgres://user:secret@db:5432 failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"detail":"Story not found","trace_id":"abc"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "secret")
}
