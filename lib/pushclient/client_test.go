package pushclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPush(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(srv.URL, "s3cret")
	err := c.SendPush(context.Background(), Push{Title: "Danger", Body: "Flood", City: "Sofia", Category: "danger"})
	require.NoError(t, err)

	assert.Equal(t, "/push", got.URL.Path)
	assert.Equal(t, "Bearer s3cret", got.Header.Get("Authorization"))
	assert.Equal(t, "Danger", got.PostForm.Get("title"))
	assert.Equal(t, "Sofia", got.PostForm.Get("city"))
	assert.Equal(t, "danger", got.PostForm.Get("category"))
}

func TestSendPushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := New(srv.URL, "wrong").SendPush(context.Background(), Push{Title: "x"})
	assert.ErrorContains(t, err, "unauthorized")
}
