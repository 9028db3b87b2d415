package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/catalog"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Options{BaseURL: server.URL + "/", AccessToken: "token-1", ReviewsPageSize: 20}, logger.NewNop())
}

func TestClient_GetDetail(t *testing.T) {
	// Arrange
	var gotPath, gotPid, gotToken string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPid = r.URL.Query().Get("pid")
		gotToken = r.Header.Get(accessTokenHeader)
		_, _ = w.Write([]byte(`{"code":200,"result":true,"message":"Success","data":{"pid":"CJ-1","sellPrice":12.50}}`))
	})

	// Act
	payload, err := client.GetDetail(context.Background(), "CJ-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, detailPath, gotPath)
	assert.Equal(t, "CJ-1", gotPid)
	assert.Equal(t, "token-1", gotToken)
	assert.Equal(t, "CJ-1", payload["pid"])
	assert.Equal(t, json.Number("12.50"), payload["sellPrice"])
}

func TestClient_ListCatalog(t *testing.T) {
	var query map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`{"code":200,"result":true,"data":{"pageNum":2,"pageSize":20,"total":45,"list":[{"pid":"A"},{"pid":"B"}]}}`))
	})

	payload, err := client.ListCatalog(context.Background(), map[string]interface{}{
		"pageNum":  2,
		"pageSize": 20,
		"category": nil,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, query["pageNum"])
	assert.NotContains(t, query, "category")
	_, records := catalog.Normalize(payload)
	assert.Len(t, records, 2)
}

func TestClient_ArrayDataIsWrapped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"result":true,"data":[{"vid":"V1"},{"vid":"V2"}]}`))
	})

	payload, err := client.GetVariants(context.Background(), "CJ-1")

	require.NoError(t, err)
	_, records := catalog.Normalize(payload)
	assert.Len(t, records, 2)
}

func TestClient_GetReviewsPaging(t *testing.T) {
	var pageNum, pageSize string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		pageNum = r.URL.Query().Get("pageNum")
		pageSize = r.URL.Query().Get("pageSize")
		_, _ = w.Write([]byte(`{"code":200,"result":true,"data":null}`))
	})

	payload, err := client.GetReviews(context.Background(), "CJ-1", 3)

	require.NoError(t, err)
	assert.Empty(t, payload)
	assert.Equal(t, "3", pageNum)
	assert.Equal(t, "20", pageSize)
}

func TestClient_Errors(t *testing.T) {
	testCases := []struct {
		name         string
		status       int
		body         string
		expectedCode int
		expectedMsg  string
	}{
		{"http status", http.StatusTooManyRequests, `{"code":1600200,"result":false,"message":"Too Many Requests"}`, 1600200, "Too Many Requests"},
		{"protocol failure", http.StatusOK, `{"code":1600001,"result":false,"message":"Invalid token"}`, 1600001, "Invalid token"},
		{"bad code", http.StatusOK, `{"code":500,"message":"internal"}`, 500, "internal"},
		{"plain text", http.StatusBadGateway, `bad gateway`, 0, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := client.GetStock(context.Background(), "V1")

			var apiErr *utils.RemoteAPIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.expectedCode, apiErr.ProviderCode)
			assert.Equal(t, tc.expectedMsg, apiErr.Message)
			assert.Equal(t, tc.body, apiErr.Body)
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	client := NewClient(Options{BaseURL: server.URL}, logger.NewNop())

	_, err := client.GetDetail(context.Background(), "CJ-1")

	var apiErr *utils.RemoteAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Zero(t, apiErr.Status)
	assert.Error(t, apiErr.Err)
}

func TestClient_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,`))
	})

	_, err := client.GetDetail(context.Background(), "CJ-1")

	assert.True(t, utils.IsRemoteAPIError(err))
}
