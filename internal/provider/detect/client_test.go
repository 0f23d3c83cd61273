package detect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawscan/hexmark/internal/provider"
)

const predictionsBody = `{
	"predictions": [
		{"probability": 0.92, "tagName": "hexagon",
		 "boundingBox": {"left": 0.1, "top": 0.2, "width": 0.05, "height": 0.05}},
		{"probability": 0.41, "tagName": "hexagon",
		 "boundingBox": {"left": 0.5, "top": 0.5, "width": 0.04, "height": 0.04}}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		Endpoint:      srv.URL,
		ProjectID:     "proj-1",
		ModelName:     "iter-3",
		PredictionKey: "secret",
		Timeout:       5 * time.Second,
	})
	require.NoError(t, err)
	return client, srv
}

func TestNewClientRequiresSettings(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)

	_, err = NewClient(Config{Endpoint: "http://x", ProjectID: "p", ModelName: "m"})
	require.Error(t, err)
}

func TestDetectParsesPredictions(t *testing.T) {
	var gotPath, gotKey, gotContentType string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Prediction-Key")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(predictionsBody))
	})

	detections, err := client.Detect(context.Background(), []byte("image-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "/customvision/v3.0/Prediction/proj-1/detect/iterations/iter-3/image", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "application/octet-stream", gotContentType)

	require.Len(t, detections, 2)
	assert.Equal(t, "hexagon", detections[0].Label)
	assert.Equal(t, 0.92, detections[0].Confidence)
	assert.Equal(t, 0.1, detections[0].Box.Left)
	assert.Equal(t, 0.05, detections[0].Box.Height)
	// Provider order preserved, no filtering at the client
	assert.Equal(t, 0.41, detections[1].Confidence)
}

func TestDetectEmptyPayload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	_, err := client.Detect(context.Background(), nil)
	require.Error(t, err)
}

func TestDetectServerErrorIsRetryable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	})
	_, err := client.Detect(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.True(t, provider.IsRetryable(err))
}

func TestDetectAuthErrorIsPermanent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})
	_, err := client.Detect(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.False(t, provider.IsRetryable(err))
}

func TestDetectMalformedResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})
	_, err := client.Detect(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.False(t, provider.IsRetryable(err))
}
