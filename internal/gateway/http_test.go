package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atlas-pay/atlas_pay/internal/logging"
)

func TestHTTPGatewayConfirmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Write([]byte(`{"status":200,"data":"success"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, time.Second, logging.Discard())
	outcome := g.Submit(context.Background(), 5000)
	if outcome.Result != Confirmed {
		t.Fatalf("expected confirmed, got %s", outcome.Result)
	}
	if outcome.StatusCode != 200 || outcome.Message != "success" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestHTTPGatewayRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":503,"data":"failed"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, time.Second, logging.Discard())
	outcome := g.Submit(context.Background(), 5000)
	if outcome.Result != Rejected {
		t.Fatalf("expected rejected, got %s", outcome.Result)
	}
	if outcome.StatusCode != 503 || outcome.Message != "failed" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestHTTPGatewayHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, time.Second, logging.Discard())
	outcome := g.Submit(context.Background(), 5000)
	if outcome.Result != HTTPError {
		t.Fatalf("expected http_error, got %s", outcome.Result)
	}
	if outcome.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", outcome.StatusCode)
	}
}

func TestHTTPGatewayTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"status":200,"data":"success"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, 20*time.Millisecond, logging.Discard())
	outcome := g.Submit(context.Background(), 5000)
	if outcome.Result != Timeout {
		t.Fatalf("expected timeout, got %s", outcome.Result)
	}
	if outcome.StatusCode != http.StatusRequestTimeout {
		t.Fatalf("expected 408, got %d", outcome.StatusCode)
	}
}

func TestHTTPGatewayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	g := NewHTTPGateway(endpoint, time.Second, logging.Discard())
	outcome := g.Submit(context.Background(), 5000)
	if outcome.Result != Unreachable {
		t.Fatalf("expected unreachable, got %s", outcome.Result)
	}
	if outcome.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", outcome.StatusCode)
	}
}
