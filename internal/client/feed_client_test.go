package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

type mockTransport struct {
	body        string
	contentType string
	err         error

	gotReq *http.Request
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.gotReq = req
	if m.err != nil {
		return nil, m.err
	}
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}
	resp.Header.Set("Content-Type", m.contentType)
	return resp, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "deadline exceeded" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func testExchanger() *model.Exchanger {
	return &model.Exchanger{
		ID:      1,
		Name:    "TestChange",
		FeedURL: "https://example.com/export.xml",
	}
}

func TestFetch(t *testing.T) {
	feed := `<rates><item><from>BTC</from></item></rates>`

	tests := []struct {
		name      string
		transport *mockTransport
		wantBody  string
		wantErr   error
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: feed, contentType: "text/xml; charset=utf-8"},
			wantBody:  feed,
		},
		{
			name:      "application xml accepted",
			transport: &mockTransport{body: feed, contentType: "application/xml"},
			wantBody:  feed,
		},
		{
			name:      "non-xml content type is a robot check",
			transport: &mockTransport{body: "<html>captcha</html>", contentType: "text/html"},
			wantErr:   ErrRobotCheck,
		},
		{
			name:      "maintenance marker in root",
			transport: &mockTransport{body: "<rates>Техническое обслуживание</rates>", contentType: "text/xml"},
			wantErr:   ErrMaintenance,
		},
		{
			name:      "timeout",
			transport: &mockTransport{err: timeoutError{}},
			wantErr:   ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewFeedClient(tt.transport, 0, zap.NewNop())
			body, err := c.Fetch(context.Background(), testExchanger())

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Fetch() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() unexpected error: %v", err)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestFetchSetsUserAgent(t *testing.T) {
	transport := &mockTransport{body: "<rates></rates>", contentType: "text/xml"}
	c := NewFeedClient(transport, 0, zap.NewNop())

	if _, err := c.Fetch(context.Background(), testExchanger()); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if got := transport.gotReq.Header.Get("User-Agent"); got != "ExchangeAggregator/1.0" {
		t.Errorf("User-Agent = %q, want %q", got, "ExchangeAggregator/1.0")
	}
}

func TestFetchGenericErrorIsNotTimeout(t *testing.T) {
	transport := &mockTransport{err: io.ErrUnexpectedEOF}
	c := NewFeedClient(transport, 0, zap.NewNop())

	_, err := c.Fetch(context.Background(), testExchanger())
	if err == nil {
		t.Fatal("Fetch() expected error")
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("generic error classified as timeout: %v", err)
	}
}
