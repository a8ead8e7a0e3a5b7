package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	var title, city string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.FormValue("title")
		city = r.FormValue("city")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := run([]string{"-endpoint", srv.URL, "-token", "s3cret", "-title", "Flood", "-city", "Sofia"})
	require.NoError(t, err)
	assert.Equal(t, "Flood", title)
	assert.Equal(t, "Sofia", city)
}

func TestRunValidation(t *testing.T) {
	t.Setenv("SPASI_ADMIN_TOKEN", "")

	assert.ErrorContains(t, run([]string{"-title", "x"}), "token")
	assert.ErrorContains(t, run([]string{"-token", "t"}), "-title")
}
