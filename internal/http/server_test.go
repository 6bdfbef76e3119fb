package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tally/internal/services"
	"tally/internal/storage/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo := memory.NewRepository()
	ledger := services.NewLedgerService(repo, nil)
	accounts := services.NewAccountService(repo)

	srv := NewServer(Options{CacheTTL: time.Minute}, ledger, accounts, repo)
	ts := httptest.NewServer(srv.Server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, userID int64, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}

	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if userID > 0 {
		req.Header.Set(userHeader, fmt.Sprint(userID))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func createAccount(t *testing.T, ts *httptest.Server, userID int64, name, kind, balance string) map[string]any {
	t.Helper()
	resp, body := doJSON(t, ts, http.MethodPost, "/accounts", userID, map[string]any{
		"name":    name,
		"type":    kind,
		"balance": balance,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create account %s: status %d, body %s", name, resp.StatusCode, body)
	}
	var account map[string]any
	if err := json.Unmarshal(body, &account); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	return account
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, ts, http.MethodGet, "/healthz", 0, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
	resp, _ = doJSON(t, ts, http.MethodGet, "/readyz", 0, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", resp.StatusCode)
	}
}

func TestMissingOwnerHeader(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, ts, http.MethodGet, "/accounts", 0, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without %s", resp.StatusCode, userHeader)
	}
}

func TestTransactionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	x := createAccount(t, ts, 1, "X", "ASSET", "100")
	y := createAccount(t, ts, 1, "Y", "ASSET", "0")
	xID := int64(x["id"].(float64))
	yID := int64(y["id"].(float64))

	// Create: X=100 -> X=0, Y=100.
	resp, body := doJSON(t, ts, http.MethodPost, "/transactions", 1, map[string]any{
		"description":     "transfer",
		"amount":          "100",
		"date":            "2024-03-10",
		"from_account_id": xID,
		"to_account_id":   yID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create transaction: status %d, body %s", resp.StatusCode, body)
	}
	var tx map[string]any
	if err := json.Unmarshal(body, &tx); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	txID := int64(tx["id"].(float64))

	assertBalance := func(id int64, want string) {
		t.Helper()
		resp, body := doJSON(t, ts, http.MethodGet, fmt.Sprintf("/accounts/%d", id), 1, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get account %d: status %d", id, resp.StatusCode)
		}
		var a map[string]any
		if err := json.Unmarshal(body, &a); err != nil {
			t.Fatalf("decode account: %v", err)
		}
		if got := fmt.Sprint(a["balance"]); got != want {
			t.Errorf("account %d balance = %s, want %s", id, got, want)
		}
	}

	assertBalance(xID, "0")
	assertBalance(yID, "100")

	// Amend to 40: X=60, Y=40.
	resp, body = doJSON(t, ts, http.MethodPut, fmt.Sprintf("/transactions/%d", txID), 1, map[string]any{
		"amount": "40",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update transaction: status %d, body %s", resp.StatusCode, body)
	}
	assertBalance(xID, "60")
	assertBalance(yID, "40")

	// Delete restores the original balances.
	resp, _ = doJSON(t, ts, http.MethodDelete, fmt.Sprintf("/transactions/%d", txID), 1, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete transaction: status %d", resp.StatusCode)
	}
	assertBalance(xID, "100")
	assertBalance(yID, "0")
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)

	x := createAccount(t, ts, 1, "X", "ASSET", "100")
	y := createAccount(t, ts, 1, "Y", "ASSET", "0")
	xID := int64(x["id"].(float64))
	yID := int64(y["id"].(float64))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{
			name:   "unknown transaction is 404",
			method: http.MethodGet,
			path:   "/transactions/999",
			want:   http.StatusNotFound,
		},
		{
			name:   "non-positive amount is 400",
			method: http.MethodPost,
			path:   "/transactions",
			body: map[string]any{
				"description": "bad", "amount": "-5",
				"from_account_id": xID, "to_account_id": yID,
			},
			want: http.StatusBadRequest,
		},
		{
			name:   "missing account is 404",
			method: http.MethodPost,
			path:   "/transactions",
			body: map[string]any{
				"description": "bad", "amount": "5",
				"from_account_id": xID, "to_account_id": 999,
			},
			want: http.StatusNotFound,
		},
		{
			name:   "malformed body is 400",
			method: http.MethodPost,
			path:   "/accounts",
			body:   map[string]any{"unknown_field": true},
			want:   http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, ts, tt.method, tt.path, 1, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestDeleteAccountConflict(t *testing.T) {
	ts := newTestServer(t)

	x := createAccount(t, ts, 1, "X", "ASSET", "100")
	y := createAccount(t, ts, 1, "Y", "ASSET", "0")
	xID := int64(x["id"].(float64))
	yID := int64(y["id"].(float64))

	resp, body := doJSON(t, ts, http.MethodPost, "/transactions", 1, map[string]any{
		"description": "transfer", "amount": "10",
		"from_account_id": xID, "to_account_id": yID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create transaction: status %d, body %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, ts, http.MethodDelete, fmt.Sprintf("/accounts/%d", xID), 1, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("delete referenced account status = %d, want 409", resp.StatusCode)
	}
}

func TestBalanceSheetReflectsWrites(t *testing.T) {
	ts := newTestServer(t)

	createAccount(t, ts, 1, "Checking", "ASSET", "1000")
	card := createAccount(t, ts, 1, "Card", "LIABILITY", "-300")
	cardID := int64(card["id"].(float64))

	fetch := func() map[string]any {
		t.Helper()
		resp, body := doJSON(t, ts, http.MethodGet, "/reports/balance-sheet", 1, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("balance sheet: status %d, body %s", resp.StatusCode, body)
		}
		var report map[string]any
		if err := json.Unmarshal(body, &report); err != nil {
			t.Fatalf("decode report: %v", err)
		}
		return report
	}

	if got := fmt.Sprint(fetch()["net_worth"]); got != "700" {
		t.Errorf("net worth = %s, want 700", got)
	}

	// Paying off debt must invalidate the cached report.
	resp, _ := doJSON(t, ts, http.MethodPut, fmt.Sprintf("/accounts/%d", cardID), 1, map[string]any{
		"balance": "0",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update account: status %d", resp.StatusCode)
	}

	if got := fmt.Sprint(fetch()["net_worth"]); got != "1000" {
		t.Errorf("net worth after payoff = %s, want 1000", got)
	}
}

func TestHistoricalBalanceSheetConsistentUnderWrites(t *testing.T) {
	ts := newTestServer(t)

	x := createAccount(t, ts, 1, "X", "ASSET", "700")
	y := createAccount(t, ts, 1, "Y", "ASSET", "300")
	xID := int64(x["id"].(float64))
	yID := int64(y["id"].(float64))

	// Transfers dated today are all reversed when reconstructing
	// yesterday's state, so every snapshot must show exactly 700/300
	// split and a 1000 total. A snapshot torn between the transaction
	// list and the balances would break that.
	payload, err := json.Marshal(map[string]any{
		"description":     "shuffle",
		"amount":          "10",
		"from_account_id": xID,
		"to_account_id":   yID,
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			req, err := http.NewRequest(http.MethodPost, ts.URL+"/transactions", bytes.NewReader(payload))
			if err != nil {
				t.Errorf("new request: %v", err)
				return
			}
			req.Header.Set(userHeader, "1")
			resp, err := ts.Client().Do(req)
			if err != nil {
				t.Errorf("create transaction: %v", err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				t.Errorf("create transaction: status %d", resp.StatusCode)
				return
			}
		}
	}()

	asOf := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	for i := 0; i < 20; i++ {
		resp, body := doJSON(t, ts, http.MethodGet, "/reports/balance-sheet?as_of="+asOf, 1, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("balance sheet: status %d, body %s", resp.StatusCode, body)
		}
		var report struct {
			Assets struct {
				Total string `json:"total"`
			} `json:"assets"`
		}
		if err := json.Unmarshal(body, &report); err != nil {
			t.Fatalf("decode report: %v", err)
		}
		if report.Assets.Total != "1000" {
			t.Fatalf("assets total as of yesterday = %s, want 1000", report.Assets.Total)
		}
	}
	<-done
}

func TestImportOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	x := createAccount(t, ts, 1, "X", "ASSET", "1000")
	y := createAccount(t, ts, 1, "Y", "ASSET", "0")
	xID := int64(x["id"].(float64))
	yID := int64(y["id"].(float64))

	resp, body := doJSON(t, ts, http.MethodPost, "/transactions/import", 1, map[string]any{
		"default_from_account_id": xID,
		"default_to_account_id":   yID,
		"transactions": []map[string]any{
			{"description": "one", "amount": "10"},
			{"description": "two", "amount": "bogus"},
			{"description": "three", "amount": "30"},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import: status %d, body %s", resp.StatusCode, body)
	}

	var result struct {
		Imported int `json:"imported"`
		Failed   int `json:"failed"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode import result: %v", err)
	}
	if result.Imported != 2 || result.Failed != 1 {
		t.Errorf("imported/failed = %d/%d, want 2/1", result.Imported, result.Failed)
	}
}

func TestNetWorthHistoryEndpoint(t *testing.T) {
	ts := newTestServer(t)

	createAccount(t, ts, 1, "Checking", "ASSET", "500")

	resp, body := doJSON(t, ts, http.MethodGet, "/reports/net-worth-history?period=month&count=3", 1, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: status %d, body %s", resp.StatusCode, body)
	}

	var report struct {
		History []json.RawMessage `json:"history"`
	}
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(report.History) != 3 {
		t.Errorf("got %d history points, want 3", len(report.History))
	}

	resp, _ = doJSON(t, ts, http.MethodGet, "/reports/net-worth-history?period=decade", 1, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid period status = %d, want 400", resp.StatusCode)
	}
}
