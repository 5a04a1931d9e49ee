package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/primepix/orderflow/internal/checkout"
	"github.com/primepix/orderflow/internal/gateway"
	"github.com/primepix/orderflow/internal/orders"
	"github.com/primepix/orderflow/internal/webhook"
)

const testWebhookSecret = "whsec_test"

type stubCheckout struct {
	startOrder   *orders.Order
	startCharge  *gateway.ChargeRecord
	startErr     error
	startCalls   int
	confirmOrder *orders.Order
	confirmErr   error
	confirmCalls int
	events       []*webhook.Event
	eventErr     error
}

func (s *stubCheckout) StartOrder(ctx context.Context, draft orders.Draft) (*orders.Order, *gateway.ChargeRecord, error) {
	s.startCalls++
	return s.startOrder, s.startCharge, s.startErr
}

func (s *stubCheckout) ConfirmOrder(ctx context.Context, orderID, filename string, asset io.Reader) (*orders.Order, error) {
	s.confirmCalls++
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return s.confirmOrder, nil
}

func (s *stubCheckout) HandlePaymentEvent(ctx context.Context, ev *webhook.Event) error {
	s.events = append(s.events, ev)
	return s.eventErr
}

type stubGetter struct {
	order *orders.Order
	err   error
}

func (s *stubGetter) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.order, nil
}

func newTestRouter(stub *stubCheckout, getter *stubGetter, assetMax int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterOrderRoutes(r, HandlerConfig{
		Checkout:      stub,
		Orders:        getter,
		Verifier:      webhook.NewVerifier(testWebhookSecret, 5*time.Minute),
		AssetMaxBytes: assetMax,
	})
	return r
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestPostCharges_Created(t *testing.T) {
	stub := &stubCheckout{
		startOrder:  &orders.Order{OrderID: "order-1", Status: orders.StatusAwaitingPayment},
		startCharge: &gateway.ChargeRecord{ID: "ch_1", ClientSecret: "ch_1_secret"},
	}
	r := newTestRouter(stub, &stubGetter{}, 1<<20)

	body := `{"amount":5000,"currency":"usd","package":"portrait-pro","customer_email":"jo@example.com","customer_name":"Jo","rush":true}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/charges", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["order_id"] != "order-1" || resp["client_secret"] != "ch_1_secret" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestPostCharges_ValidationFailure(t *testing.T) {
	stub := &stubCheckout{}
	r := newTestRouter(stub, &stubGetter{}, 1<<20)

	body := `{"amount":0,"currency":"usd","package":"p","customer_email":"jo@example.com","customer_name":"Jo"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/charges", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if stub.startCalls != 0 {
		t.Fatal("orchestrator must not run on invalid input")
	}
}

func TestPostCharges_GatewayFailure(t *testing.T) {
	stub := &stubCheckout{startErr: &gateway.Error{Code: gateway.CodeUnavailable, Message: "down"}}
	r := newTestRouter(stub, &stubGetter{}, 1<<20)

	body := `{"amount":5000,"currency":"usd","package":"p","customer_email":"jo@example.com","customer_name":"Jo"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/charges", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestConfirmOrder_OK(t *testing.T) {
	stub := &stubCheckout{
		confirmOrder: &orders.Order{OrderID: "order-1", Status: orders.StatusFulfilled, AssetRef: "s3://b/k"},
	}
	r := newTestRouter(stub, &stubGetter{}, 1<<20)

	buf, contentType := multipartBody(t, "photo", "photo.jpg", []byte("jpegbytes"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/order-1/confirm", buf)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestConfirmOrder_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{orders.ErrNotFound, http.StatusNotFound},
		{orders.ErrConflict, http.StatusConflict},
		{checkout.ErrPaymentNotComplete, http.StatusPaymentRequired},
		{&gateway.Error{Code: gateway.CodeUnavailable, Message: "down"}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		stub := &stubCheckout{confirmErr: tc.err}
		r := newTestRouter(stub, &stubGetter{}, 1<<20)

		buf, contentType := multipartBody(t, "photo", "photo.jpg", []byte("x"))
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/orders/order-1/confirm", buf)
		req.Header.Set("Content-Type", contentType)
		r.ServeHTTP(w, req)

		if w.Code != tc.code {
			t.Errorf("err %v: expected %d, got %d", tc.err, tc.code, w.Code)
		}
	}
}

func TestConfirmOrder_OversizedUploadRejected(t *testing.T) {
	stub := &stubCheckout{}
	r := newTestRouter(stub, &stubGetter{}, 64) // tiny ceiling

	buf, contentType := multipartBody(t, "photo", "photo.jpg", bytes.Repeat([]byte("a"), 4096))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/order-1/confirm", buf)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized upload, got %d", w.Code)
	}
	if stub.confirmCalls != 0 {
		t.Fatal("oversized upload must not reach the orchestrator")
	}
}

func webhookPayload() []byte {
	return []byte(`{"id":"evt_1","type":"charge.succeeded","created":1700000000,"data":{"object":{"id":"ch_1","status":"succeeded"}}}`)
}

func TestWebhook_ValidSignature(t *testing.T) {
	stub := &stubCheckout{}
	r := newTestRouter(stub, &stubGetter{}, 1<<20)

	payload := webhookPayload()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("Payment-Signature", webhook.SignHeader(testWebhookSecret, time.Now(), payload))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(stub.events) != 1 || stub.events[0].Data.Object.ID != "ch_1" {
		t.Fatalf("event not dispatched: %+v", stub.events)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	stub := &stubCheckout{}
	r := newTestRouter(stub, &stubGetter{}, 1<<20)

	payload := webhookPayload()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("Payment-Signature", webhook.SignHeader("whsec_wrong", time.Now(), payload))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "hmac") || strings.Contains(w.Body.String(), "sha256") {
		t.Fatalf("response leaks verification detail: %s", w.Body.String())
	}
	if len(stub.events) != 0 {
		t.Fatal("unverified event must not reach the orchestrator")
	}
}

func TestWebhook_HandlerErrorStill200(t *testing.T) {
	stub := &stubCheckout{eventErr: errors.New("store down")}
	r := newTestRouter(stub, &stubGetter{}, 1<<20)

	payload := webhookPayload()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("Payment-Signature", webhook.SignHeader(testWebhookSecret, time.Now(), payload))
	r.ServeHTTP(w, req)

	// internal faults never tell the processor delivery failed
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGetOrder(t *testing.T) {
	getter := &stubGetter{order: &orders.Order{OrderID: "order-1", Status: orders.StatusAwaitingPayment}}
	r := newTestRouter(&stubCheckout{}, getter, 1<<20)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/order-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	getter.err = orders.ErrNotFound
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
