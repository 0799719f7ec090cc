package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_DecodesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/bell-settings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{
			"settings": {"activeScheduleId": "winter", "backgroundExecution": true},
			"schedules": [{"id": "winter", "name": "Winter", "events": [], "enabled": true}],
			"audioAssets": [{"id": "calm-start-v1", "title": "Calm", "status": "ready"}]
		}`)
	}))
	defer srv.Close()

	snap, err := NewClient(srv.URL+"/api/", "secret", time.Second).Fetch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.NotNil(t, snap.Settings)
	assert.Equal(t, "winter", *snap.Settings.ActiveScheduleID)
	assert.True(t, *snap.Settings.BackgroundExecution)
	require.Len(t, snap.Schedules, 1)
	assert.Equal(t, "Winter", snap.Schedules[0].Name)
	assert.Equal(t, models.AssetReady, snap.AudioAssets[0].Status)
	assert.Empty(t, snap.ToneProfiles)
}

func TestFetch_NotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	snap, err := NewClient(srv.URL, "", time.Second).Fetch(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, snap)
}

func TestFetch_ServerErrorAndGarbage(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	_, err := NewClient(failing.URL, "", time.Second).Fetch(context.Background())
	assert.Error(t, err)

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}))
	defer garbage.Close()
	_, err = NewClient(garbage.URL, "", time.Second).Fetch(context.Background())
	assert.Error(t, err)
}

func TestSync_PutsFullState(t *testing.T) {
	var got models.BellManagerState
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	state := models.DefaultState()
	state.ActiveScheduleID = "winter"
	require.NoError(t, NewClient(srv.URL, "", time.Second).Sync(context.Background(), state))
	assert.Equal(t, "winter", got.ActiveScheduleID)
	assert.Len(t, got.ToneProfiles, 1)
}

func TestSync_RejectedIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	assert.Error(t, NewClient(srv.URL, "", time.Second).Sync(context.Background(), models.DefaultState()))
}
