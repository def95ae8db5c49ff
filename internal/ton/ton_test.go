package ton

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RhizaCore/internal/logger"
)

const (
	friendly = "EQD4FPq-PRDieyQKkizFTRtSDyucUIqrj0v_zXJmqaDp6_0t"
	raw      = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"
)

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress(friendly))
	assert.NoError(t, ValidateAddress(" "+friendly+" "))
	assert.NoError(t, ValidateAddress(raw))
	assert.NoError(t, ValidateAddress("-1:"+strings.Repeat("a", 64)))

	for _, bad := range []string{"", "EQshort", friendly + "x", strings.Replace(friendly, "-", "+", 1), "0:xyz"} {
		assert.ErrorIs(t, ValidateAddress(bad), ErrInvalidAddress, bad)
	}
}

func TestParseTON(t *testing.T) {
	tests := []struct {
		in   string
		nano string
		ton  string
	}{
		{"1.5", "1500000000", "1.5"},
		{"0.000000001", "1", "0.000000001"},
		{" 2 ", "2000000000", "2"},
		{"0.35", "350000000", "0.35"},
	}
	for _, tt := range tests {
		n, err := ParseTON(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.nano, n.String(), tt.in)
		assert.Equal(t, tt.ton, n.TON(), tt.in)
	}

	for _, bad := range []string{"", "abc", "0", "-1", "1.0000000001"} {
		_, err := ParseTON(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestNanoConversions(t *testing.T) {
	assert.Equal(t, "500000000", FromTON(0.5).String())
	assert.InDelta(t, 0.5, FromTON(0.5).Float64(), 1e-12)

	n, err := ParseNano("2500000000")
	require.NoError(t, err)
	assert.Equal(t, "2.5", n.TON())
	_, err = ParseNano("1.5")
	assert.Error(t, err)

	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, `"2500000000"`, string(data))

	f, err := FormatUnits("1234500", 6)
	require.NoError(t, err)
	assert.Equal(t, "1.2345", f)
}

func TestNewTransfer_JSONShape(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	amount, err := ParseTON("1.5")
	require.NoError(t, err)

	tx, err := NewTransfer(now, 5*time.Minute, friendly, amount, nil)
	require.NoError(t, err)
	data, err := json.Marshal(tx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"validUntil":1700000300,"messages":[{"address":"`+friendly+`","amount":"1500000000"}]}`, string(data))

	tx, err = NewTransfer(now, time.Minute, friendly, amount, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "aGk=", tx.Messages[0].Payload)

	_, err = NewTransfer(now, time.Minute, "bad", amount, nil)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = NewTransfer(now, time.Minute, friendly, Nano{}, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Rejected, Classify(FromBridge(BridgeUserRejects, "User declined the transaction")))
	assert.Equal(t, Cancelled, Classify(FromBridge(BridgeUnknown, "Modal closed by user")))
	assert.Equal(t, NetworkError, Classify(FromBridge(BridgeUnknown, "Bridge timeout")))
	assert.Equal(t, Unknown, Classify(FromBridge(BridgeBadRequest, "cancelled")))
	assert.Equal(t, Unknown, Classify(errors.New("boom")))
	assert.Equal(t, Unknown, Classify(nil))
	assert.Equal(t, Cancelled, Classify(context.Canceled))
	assert.Equal(t, NetworkError, Classify(context.DeadlineExceeded))

	wrapped := errors.Join(errors.New("send"), &WalletError{Kind: Rejected})
	assert.Equal(t, Rejected, Classify(wrapped))

	assert.Equal(t, "info", NotifyLevel(Cancelled))
	assert.Equal(t, "error", NotifyLevel(Rejected))
	assert.Equal(t, "error", NotifyLevel(NetworkError))
	assert.Equal(t, "error", NotifyLevel(Unknown))
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *clockwork.FakeClock) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	clock := clockwork.NewFakeClock()
	c, err := NewClient(Options{
		BaseURL:  srv.URL,
		APIKey:   "key",
		CacheTTL: 30 * time.Second,
		Clock:    clock,
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)
	c.initialBackoff = time.Millisecond
	return c, clock
}

func TestBalance_CachesForTTL(t *testing.T) {
	var calls atomic.Int32
	c, clock := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v2/accounts/"+friendly, r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"balance":2500000000,"status":"active","last_activity":1700000000}`))
	})
	ctx := context.Background()

	acc, err := c.Balance(ctx, friendly)
	require.NoError(t, err)
	assert.Equal(t, "2500000000", acc.Balance.String())
	assert.Equal(t, "2.5", acc.BalanceTON)
	assert.False(t, acc.Cached)

	acc, err = c.Balance(ctx, friendly)
	require.NoError(t, err)
	assert.True(t, acc.Cached)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(31 * time.Second)
	_, err = c.Balance(ctx, friendly)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	c.ClearCache(friendly)
	_, err = c.Balance(ctx, friendly)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBalance_ConcurrentLookupsShareOneRequest(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"balance":"1","status":"active"}`))
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Balance(context.Background(), friendly)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestBalance_InvalidAddressMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	_, err := c.Balance(context.Background(), "not-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Equal(t, int32(0), calls.Load())
}

func TestBalance_Errors(t *testing.T) {
	var calls, status atomic.Int32
	status.Store(http.StatusNotFound)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`{"error":"account not found"}`))
	})

	_, err := c.Balance(context.Background(), friendly)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, int32(1), calls.Load(), "4xx is not retried")

	status.Store(http.StatusServiceUnavailable)
	calls.Store(0)
	_, err = c.Balance(context.Background(), raw)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, int32(3), calls.Load(), "5xx retried twice")
}

func TestJettonBalance(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/accounts/" + friendly + "/jettons/" + raw:
			w.Write([]byte(`{"balance":"1234500","jetton":{"address":"` + raw + `","name":"Tether USD","symbol":"USDT","decimals":6}}`))
		case "/v2/accounts/" + friendly + "/jettons":
			w.Write([]byte(`{"balances":[{"balance":"5000000000","jetton":{"address":"` + raw + `","symbol":"RZC","decimals":9}}]}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	jb, err := c.JettonBalance(ctx, friendly, raw)
	require.NoError(t, err)
	assert.Equal(t, "USDT", jb.Symbol)
	assert.Equal(t, "1.2345", jb.Formatted)

	all, err := c.Jettons(ctx, friendly)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "5", all[0].Formatted)

	_, err = c.JettonBalance(ctx, friendly, "bad")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
