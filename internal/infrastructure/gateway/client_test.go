package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opname/internal/core/apperror"
	"opname/internal/core/security"
	"opname/internal/domain/notification"
	"opname/pkg/retry"
)

func testConfig(url string) Config {
	return Config{BaseURL: url, Timeout: 2 * time.Second}
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2.0}
}

func TestFetchBranchStock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/branches/010/stock", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": 200,
			"message": "ok",
			"data": [
				{"itemCode":"ITM-A","itemName":"Item A","category":"dry","systemStock":50,"unit":"pcs"},
				{"itemCode":"ITM-C","itemName":"Item C","category":"frozen","systemStock":0,"unit":"box"}
			],
			"timestamp": "2026-08-29T10:00:00Z"
		}`))
	}))
	defer srv.Close()

	c := NewInventoryClient(testConfig(srv.URL), fastPolicy())

	items, err := c.FetchBranchStock(context.Background(), "010")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "ITM-A", items[0].ItemCode)
	assert.Equal(t, int64(0), items[1].SystemStock)
}

func TestFetchBranchStock_EmptyListIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":200,"message":"ok","data":[]}`))
	}))
	defer srv.Close()

	c := NewInventoryClient(testConfig(srv.URL), fastPolicy())

	items, err := c.FetchBranchStock(context.Background(), "077")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFetchBranchStock_NullDataIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":200,"message":"ok","data":null}`))
	}))
	defer srv.Close()

	c := NewInventoryClient(testConfig(srv.URL), retry.NoRetry())

	_, err := c.FetchBranchStock(context.Background(), "010")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeUpstreamUnavailable, appErr.Code)
}

func TestFetchBranchStock_ErrorStatusWithSuccessMessage(t *testing.T) {
	// The envelope status decides, not how the message reads.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":500,"message":"berhasil","data":null}`))
	}))
	defer srv.Close()

	c := NewInventoryClient(testConfig(srv.URL), retry.NoRetry())

	_, err := c.FetchBranchStock(context.Background(), "010")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeUpstreamUnavailable, appErr.Code)
}

func TestFetchBranchStock_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"message":"branch not found","data":null}`))
	}))
	defer srv.Close()

	c := NewInventoryClient(testConfig(srv.URL), fastPolicy())

	_, err := c.FetchBranchStock(context.Background(), "999")
	assert.True(t, apperror.IsNotFound(err))
}

func TestFetchBranchStock_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":500,"message":"temporary","data":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":200,"message":"ok","data":[{"itemCode":"ITM-A","systemStock":1}]}`))
	}))
	defer srv.Close()

	c := NewInventoryClient(testConfig(srv.URL), fastPolicy())

	items, err := c.FetchBranchStock(context.Background(), "010")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchBranchStock_NoRetryOnValidation(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":400,"message":"bad branch id","data":null}`))
	}))
	defer srv.Close()

	c := NewInventoryClient(testConfig(srv.URL), fastPolicy())

	_, err := c.FetchBranchStock(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, apperror.IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNotifySend(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/notifications", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":201,"message":"created","data":null}`))
	}))
	defer srv.Close()

	c := NewNotifyClient(testConfig(srv.URL))

	err := c.Send(context.Background(), notification.Event{
		SenderRole:    security.RoleBranchHead,
		RecipientRole: security.RoleInventoryAdmin,
		BranchID:      "010",
		Body:          "stock check for branch 010 is now verified",
		Timestamp:     time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNotifySend_FireOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":500,"message":"channel down","data":null}`))
	}))
	defer srv.Close()

	c := NewNotifyClient(testConfig(srv.URL))

	err := c.Send(context.Background(), notification.Event{Body: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "dispatch must not retry")
}
