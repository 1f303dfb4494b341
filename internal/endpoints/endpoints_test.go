package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-collector/internal/domain"
	"mysql-collector/internal/util"
)

type MockPointStore struct {
	Points []domain.MetricPoint
	Err    error
}

func (m *MockPointStore) Init() error {
	return nil
}

func (m *MockPointStore) StorePoint(ctx context.Context, point domain.MetricPoint) error {
	if m.Err != nil {
		return m.Err
	}
	m.Points = append(m.Points, point)
	return nil
}

func (m *MockPointStore) GetPoints(ctx context.Context, path string, startTime, endTime int64, limit, offset int) ([]domain.MetricPoint, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	var filtered []domain.MetricPoint
	for _, p := range m.Points {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if path != "" && p.Path != path {
			continue
		}
		if p.Timestamp >= startTime && p.Timestamp <= endTime {
			filtered = append(filtered, p)
		}
	}

	if offset >= len(filtered) {
		return []domain.MetricPoint{}, nil
	}
	filtered = filtered[offset:]
	if limit > 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (m *MockPointStore) Close() error {
	return nil
}

func newHandler(store domain.PointStore) *Points {
	h := &Points{}
	h.Init(store, &util.MetricsLogger{})
	return h
}

func doRequest(t *testing.T, h *Points, method, limit, offset string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var reader *bytes.Buffer
	switch b := body.(type) {
	case nil:
		reader = &bytes.Buffer{}
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, "/points/"+limit+"/"+offset, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req = mux.SetURLVars(req, map[string]string{"limit": limit, "offset": offset})

	rr := httptest.NewRecorder()
	h.GetPointsHandler(rr, req)

	var res APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	return rr, res
}

func decodePoints(t *testing.T, res APIResponse) []domain.MetricPoint {
	t.Helper()
	data, err := json.Marshal(res.Value)
	require.NoError(t, err)
	var points []domain.MetricPoint
	require.NoError(t, json.Unmarshal(data, &points))
	return points
}

func seededStore(now int64) *MockPointStore {
	store := &MockPointStore{}
	for i := 0; i < 10; i++ {
		path := "mysql.db1.select"
		if i%2 == 1 {
			path = "mysql.db1.Threads_connected"
		}
		store.StorePoint(context.Background(), domain.MetricPoint{
			Path:      path,
			Value:     float64(i),
			Timestamp: now - int64(9-i)*10,
		})
	}
	return store
}

func TestGetPointsHandler(t *testing.T) {
	now := time.Now().Unix()
	store := seededStore(now)
	h := newHandler(store)
	window := PointsRequest{Start: now - 100, End: now + 10}

	rr, res := doRequest(t, h, http.MethodGet, "100", "0", window)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.True(t, res.Status)
	assert.Equal(t, API_SUCCESS, res.ErrorCode)
	assert.Empty(t, res.Error)
	assert.Len(t, decodePoints(t, res), 10)

	// path filter
	rr, res = doRequest(t, h, http.MethodGet, "100", "0",
		PointsRequest{Start: now - 100, End: now + 10, Path: "mysql.db1.select"})
	assert.Equal(t, http.StatusOK, rr.Code)
	points := decodePoints(t, res)
	assert.Len(t, points, 5)
	for _, p := range points {
		assert.Equal(t, "mysql.db1.select", p.Path)
	}

	// no body defaults to the last 24 hours
	rr, res = doRequest(t, h, http.MethodGet, "100", "0", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodePoints(t, res), 10)
}

func TestGetPointsHandler_Pagination(t *testing.T) {
	now := time.Now().Unix()
	store := seededStore(now)
	h := newHandler(store)
	window := PointsRequest{Start: now - 100, End: now + 10}

	tests := []struct {
		name      string
		limit     string
		offset    string
		wantLen   int
		wantFirst int
	}{
		{"first page", "5", "0", 5, 0},
		{"second page", "5", "5", 5, 5},
		{"short page", "5", "8", 2, 8},
		{"zero limit uses default", "0", "0", 10, 0},
		{"negative offset clamps", "5", "-5", 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, res := doRequest(t, h, http.MethodGet, tt.limit, tt.offset, window)
			require.Equal(t, http.StatusOK, rr.Code)
			points := decodePoints(t, res)
			assert.Len(t, points, tt.wantLen)
			assert.Equal(t, store.Points[tt.wantFirst].Timestamp, points[0].Timestamp)
		})
	}
}

func TestGetPointsHandler_Errors(t *testing.T) {
	now := time.Now().Unix()
	h := newHandler(seededStore(now))
	window := PointsRequest{Start: now - 100, End: now + 10}

	tests := []struct {
		name     string
		method   string
		limit    string
		offset   string
		body     interface{}
		status   int
		code     int
		contains error
	}{
		{"invalid json", http.MethodGet, "100", "0", "invalid json", http.StatusBadRequest, INVALID_REQUEST_BODY, ErrInvalidRequestBody},
		{"start after end", http.MethodGet, "100", "0", PointsRequest{Start: now + 100, End: now}, http.StatusBadRequest, INVALID_TIME_RANGE, ErrInvalidTimeRange},
		{"post rejected", http.MethodPost, "10", "0", window, http.StatusMethodNotAllowed, API_FAILURE, ErrMethodNotAllowed},
		{"invalid limit", http.MethodGet, "abc", "0", window, http.StatusBadRequest, INVALID_PARAMETERS, ErrInvalidParameters},
		{"invalid offset", http.MethodGet, "10", "xyz", window, http.StatusBadRequest, INVALID_PARAMETERS, ErrInvalidParameters},
		{"offset past the end", http.MethodGet, "5", "100", window, http.StatusNotFound, POINTS_NOT_AVAILABLE, ErrNoPointsAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, res := doRequest(t, h, tt.method, tt.limit, tt.offset, tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.False(t, res.Status)
			assert.Equal(t, tt.code, res.ErrorCode)
			assert.Contains(t, res.Error, tt.contains.Error())
		})
	}
}

func TestGetPointsHandler_StoreFailures(t *testing.T) {
	now := time.Now().Unix()
	window := PointsRequest{Start: now - 20, End: now + 20}

	t.Run("cancelled", func(t *testing.T) {
		h := newHandler(&MockPointStore{Err: context.Canceled})
		rr, res := doRequest(t, h, http.MethodGet, "10", "0", window)
		assert.Equal(t, http.StatusRequestTimeout, rr.Code)
		assert.Equal(t, REQUEST_CANCELLED, res.ErrorCode)
	})

	t.Run("storage error", func(t *testing.T) {
		h := newHandler(&MockPointStore{Err: errors.New("database is locked")})
		rr, res := doRequest(t, h, http.MethodGet, "10", "0", window)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, HISTORY_UNAVAILABLE, res.ErrorCode)
		assert.False(t, strings.Contains(res.Error, "locked"))
	})

	t.Run("empty history", func(t *testing.T) {
		h := newHandler(&MockPointStore{})
		rr, res := doRequest(t, h, http.MethodGet, "10", "0", window)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, POINTS_NOT_AVAILABLE, res.ErrorCode)
	})
}
