package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"taskroute/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}
type markRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type failRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	body := []byte(`{"planId":"p1"}`)
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventPlanCompleted, srv.URL, "secret", body)
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotType != EventPlanCompleted {
		t.Fatalf("event type header = %q", gotType)
	}
	if !VerifyHMAC("secret", body, gotSig) {
		t.Fatalf("signature %q does not verify", gotSig)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_FailAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventPlanCompleted, srv.URL, "", []byte(`{}`))
	w.processOnce()
	if len(rs.fails) == 0 {
		t.Fatal("expected fail recorded after max attempts")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"x":1}`)
	sig := SignHMAC("s3cret", body)
	if !VerifyHMAC("s3cret", body, sig) {
		t.Fatal("signature must verify with the right secret")
	}
	if VerifyHMAC("wrong", body, sig) {
		t.Fatal("signature must not verify with the wrong secret")
	}
	if VerifyHMAC("s3cret", body, "zz") {
		t.Fatal("non-hex signature must not verify")
	}
}
