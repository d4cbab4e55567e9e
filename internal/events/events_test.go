package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bank-core/internal/domain"
)

type countingEmitter struct {
	calls int
	err   error
}

func (c *countingEmitter) Emit(ctx context.Context, ev Event) error {
	c.calls++
	return c.err
}

func sampleEvent() Event {
	return Event{
		Type:          TransactionCompleted,
		TransactionID: uuid.New(),
		Status:        domain.StatusCompleted,
		FromAccount:   "1000",
		ToAccount:     "2000",
		Amount:        decimal.RequireFromString("25.00"),
		Timestamp:     time.Now().UTC(),
	}
}

func TestFromTransactionMapsStatusToType(t *testing.T) {
	cases := map[domain.TransactionStatus]string{
		domain.StatusCompleted: TransactionCompleted,
		domain.StatusFailed:    TransactionFailed,
		domain.StatusCancelled: TransactionCancelled,
	}
	for status, want := range cases {
		ev := FromTransaction(domain.Transaction{ID: uuid.New(), Status: status})
		require.Equal(t, want, ev.Type)
		require.Equal(t, status, ev.Status)
	}
}

func TestMultiSwallowsFailures(t *testing.T) {
	failing := &countingEmitter{err: errors.New("receiver down")}
	ok := &countingEmitter{}

	m := NewMulti(zap.NewNop(), failing, ok)
	require.NoError(t, m.Emit(context.Background(), sampleEvent()))
	require.Equal(t, 1, failing.calls)
	require.Equal(t, 1, ok.calls)
}

func TestWebhookDeliversJSON(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ev := sampleEvent()
	require.NoError(t, NewWebhook(srv.URL).Emit(context.Background(), ev))
	require.Equal(t, ev.TransactionID, got.TransactionID)
	require.True(t, ev.Amount.Equal(got.Amount))
}

func TestWebhookRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Emit(context.Background(), sampleEvent())
	require.Error(t, err)
}
