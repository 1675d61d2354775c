package steamstore_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"softdex/internal/metadata"
	"softdex/internal/metadata/steamstore"
	"softdex/internal/software"
)

const baseURL = "https://store.example.test"

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func newClient(t *testing.T) *steamstore.Client {
	t.Helper()
	client, err := steamstore.New(baseURL, "softdex-test/1.0", time.Second)
	require.NoError(t, err)
	return client
}

func halfLifeRequest() metadata.Request {
	return metadata.Request{Name: "Half-Life 2", Source: "Steam", ExternalID: "220"}
}

const halfLifeResponse = `{
  "220": {
    "success": true,
    "data": {
      "type": "game",
      "name": "Half-Life 2",
      "short_description": "The Combine have taken over.",
      "header_image": "https://cdn.example.test/220/header.jpg",
      "developers": ["Valve", ""],
      "publishers": ["Valve"],
      "genres": [{"id": "1", "description": "Action"}],
      "release_date": {"coming_soon": false, "date": "16 Nov, 2004"}
    }
  }
}`

func TestFetchParsesAppDetails(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", baseURL+"/api/appdetails",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "220", req.URL.Query().Get("appids"))
			assert.Equal(t, "softdex-test/1.0", req.Header.Get("User-Agent"))
			return httpmock.NewStringResponse(http.StatusOK, halfLifeResponse), nil
		})

	attrs, found, err := newClient(t).Fetch(context.Background(), halfLifeRequest())

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Valve", attrs.Publisher)
	assert.Equal(t, []string{"Valve"}, attrs.Developers)
	assert.Equal(t, []string{"Action"}, attrs.Genres)
	assert.Equal(t, "16 Nov, 2004", attrs.ReleaseDate)
	assert.Equal(t, "The Combine have taken over.", attrs.Description)
	assert.Equal(t, software.CategoryGame, attrs.Category)
	assert.Equal(t, steamstore.Name, attrs.Provider)
	assert.Contains(t, attrs.MetadataJSON, "Half-Life 2")
}

func TestFetchUnsuccessfulIsNotFound(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", baseURL+"/api/appdetails",
		httpmock.NewStringResponder(http.StatusOK, `{"220":{"success":false}}`))

	_, found, err := newClient(t).Fetch(context.Background(), halfLifeRequest())

	require.NoError(t, err)
	assert.False(t, found)
}

func TestFetchServerErrorIsError(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", baseURL+"/api/appdetails",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))

	_, found, err := newClient(t).Fetch(context.Background(), halfLifeRequest())

	require.Error(t, err)
	assert.False(t, found)
}

func TestFetchMalformedBodyIsError(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", baseURL+"/api/appdetails",
		httpmock.NewStringResponder(http.StatusOK, `not json`))

	_, _, err := newClient(t).Fetch(context.Background(), halfLifeRequest())

	require.Error(t, err)
}

func TestSupportsOnlyNumericSteamIDs(t *testing.T) {
	client := newClient(t)
	tests := []struct {
		name string
		req  metadata.Request
		want bool
	}{
		{"steam app", metadata.Request{Source: "Steam", ExternalID: "220"}, true},
		{"case-insensitive source", metadata.Request{Source: "steam", ExternalID: "10"}, true},
		{"missing id", metadata.Request{Source: "Steam"}, false},
		{"non numeric id", metadata.Request{Source: "Steam", ExternalID: "Fortnite"}, false},
		{"other source", metadata.Request{Source: "Epic", ExternalID: "220"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, client.Supports(tt.req))
		})
	}
}

func TestFetchUnsupportedSkipsNetwork(t *testing.T) {
	setupHTTPMock(t)

	_, found, err := newClient(t).Fetch(context.Background(), metadata.Request{Name: "Notepad", Source: "Registry"})

	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}
