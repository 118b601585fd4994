package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/simulate-call", r.URL.Path)
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "+15550102000", body["phone_number"])

		_, _ = w.Write([]byte(`{"conversation_id":"conv_edge"}`))
	}))
	defer srv.Close()

	var out struct {
		ConversationID string `json:"conversation_id"`
	}
	f := NewFunctions(srv.URL+"/", "service-key", srv.Client())
	require.NoError(t, f.Invoke(context.Background(), "simulate-call", map[string]string{"phone_number": "+15550102000"}, &out))
	assert.Equal(t, "conv_edge", out.ConversationID)
}

func TestInvokeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewFunctions(srv.URL, "k", srv.Client()).Invoke(context.Background(), "simulate-call", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
