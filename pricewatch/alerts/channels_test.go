package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookChannel_Dispatch(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("X-Message-Id", "msg-1")
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL)
	a := dropAlert()
	res := ch.Dispatch(context.Background(), a, Format(a))
	if !res.Success {
		t.Fatalf("Dispatch() = %+v, want success", res)
	}
	if res.MessageID != "msg-1" {
		t.Errorf("message id = %q", res.MessageID)
	}
	if got.Text == "" || len(got.Attachments) != 1 {
		t.Errorf("payload = %+v, want text and one attachment", got)
	}
}

func TestWebhookChannel_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL)
	a := dropAlert()
	res := ch.Dispatch(context.Background(), a, Format(a))
	if res.Success {
		t.Fatal("Dispatch() succeeded on 502")
	}
	if res.Error != "Webhook returned 502" {
		t.Errorf("error = %q, want %q", res.Error, "Webhook returned 502")
	}
}

func TestWebhookChannel_MissingURL(t *testing.T) {
	ch := NewWebhookChannel("")
	a := dropAlert()
	if res := ch.Dispatch(context.Background(), a, Format(a)); res.Success {
		t.Error("Dispatch() succeeded without a URL")
	}
}

func TestEmailChannel_Dispatch(t *testing.T) {
	sender := NewTestEmailSender()
	ch := NewEmailChannel(sender, []string{"deals@example.com"})

	a := dropAlert()
	res := ch.Dispatch(context.Background(), a, Format(a))
	if !res.Success {
		t.Fatalf("Dispatch() = %+v, want success", res)
	}

	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sent))
	}
	if sent[0].To[0] != "deals@example.com" {
		t.Errorf("recipient = %q", sent[0].To[0])
	}
	if sent[0].Subject == "" || sent[0].HTML == "" {
		t.Errorf("email missing subject or html body: %+v", sent[0])
	}
}

func TestEmailChannel_Unconfigured(t *testing.T) {
	a := dropAlert()
	m := Format(a)

	if res := NewEmailChannel(nil, []string{"x@example.com"}).Dispatch(context.Background(), a, m); res.Success {
		t.Error("Dispatch() succeeded without a sender")
	}
	if res := NewEmailChannel(NewTestEmailSender(), nil).Dispatch(context.Background(), a, m); res.Success {
		t.Error("Dispatch() succeeded without recipients")
	}
}

func TestEmailChannel_SenderFailure(t *testing.T) {
	sender := NewTestEmailSender()
	sender.SetFail(true)
	ch := NewEmailChannel(sender, []string{"deals@example.com"})

	a := dropAlert()
	res := ch.Dispatch(context.Background(), a, Format(a))
	if res.Success || res.Error == "" {
		t.Errorf("Dispatch() = %+v, want failure with error", res)
	}
}
