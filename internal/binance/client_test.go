package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	return NewClient("key", "secret", srv.URL, 0), srv.Close
}

func TestClient_GetKlines(t *testing.T) {
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("Expected klines path, got %s", r.URL.Path)
		}
		if r.URL.Query().Get("interval") != "15m" {
			t.Errorf("Expected interval 15m, got %s", r.URL.Query().Get("interval"))
		}
		w.Write([]byte(`[[1700000000000,"100.0","101.5","99.5","101.0","12.5",1700000899999,"1262.5",42,"7.5","757.5","0"]]`))
	})
	defer closeFn()

	klines, err := client.GetKlines(context.Background(), "BTCUSDT", "15m", 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(klines) != 1 {
		t.Fatalf("Expected 1 kline, got %d", len(klines))
	}
	k := klines[0]
	if k.Open != 100.0 || k.Close != 101.0 || k.Volume != 12.5 || k.TakerBuyBaseAssetVolume != 7.5 {
		t.Errorf("Unexpected kline parse: %+v", k)
	}
	if !k.IsBullish() {
		t.Error("Expected bullish kline")
	}
}

func TestClient_PlaceMarketOrder(t *testing.T) {
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("type") != "MARKET" || q.Get("side") != "BUY" || q.Get("quantity") != "0.015" {
			t.Errorf("Unexpected order params: %v", q)
		}
		if q.Get("signature") == "" || q.Get("newClientOrderId") == "" {
			t.Error("Expected signature and client order id")
		}
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			t.Error("Expected api key header")
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","orderId":7,"clientOrderId":"abc","executedQty":"0.015","cummulativeQuoteQty":"1501.5","status":"FILLED"}`))
	})
	defer closeFn()

	fill, err := client.PlaceMarketOrder(context.Background(), "BTCUSDT", SideBuy, "0.015")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if fill.ExecutedQuantity != 0.015 {
		t.Errorf("Expected qty 0.015, got %v", fill.ExecutedQuantity)
	}
	if diff := fill.ExecutedPrice - 100100; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("Expected average price 100100, got %v", fill.ExecutedPrice)
	}
}

func TestClient_PlaceMarketOrder_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantNoFil bool
	}{
		{"api error", http.StatusBadRequest, `{"code":-2010,"msg":"insufficient balance"}`, false},
		{"zero fill", http.StatusOK, `{"executedQty":"0","cummulativeQuoteQty":"0"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			defer closeFn()

			_, err := client.PlaceMarketOrder(context.Background(), "BTCUSDT", SideSell, "1")
			if err == nil {
				t.Fatal("Expected error")
			}
			if errors.Is(err, ErrNoFill) != tt.wantNoFil {
				t.Errorf("errors.Is(err, ErrNoFill) = %v, want %v (%v)", !tt.wantNoFil, tt.wantNoFil, err)
			}
		})
	}
}

func TestRulesCache_Refresh(t *testing.T) {
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","filters":[{"filterType":"PRICE_FILTER","tickSize":"0.01"},{"filterType":"LOT_SIZE","minQty":"0.00001","stepSize":"0.00001000"}]},
			{"symbol":"DOGEUSDT","filters":[{"filterType":"LOT_SIZE","stepSize":"1.00000000"}]},
			{"symbol":"ODDUSDT","filters":[{"filterType":"LOT_SIZE","stepSize":"0"}]}
		]}`))
	})
	defer closeFn()

	rules := NewRulesCache(client)
	if err := rules.Refresh(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	step, ok := rules.StepSize("BTCUSDT")
	if !ok || step.String() != "0.00001" {
		t.Errorf("Expected BTCUSDT step 0.00001, got %v (%v)", step, ok)
	}
	step, ok = rules.StepSize("DOGEUSDT")
	if !ok || step.String() != "1" {
		t.Errorf("Expected DOGEUSDT step 1, got %v (%v)", step, ok)
	}
	if _, ok := rules.StepSize("ODDUSDT"); ok {
		t.Error("Expected zero step size to be ignored")
	}
	if rules.LastRefresh().IsZero() {
		t.Error("Expected refresh time to be recorded")
	}
}
