package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/quotedesk-backend/pkg/config"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox/registry"
)

type fakeSendgrid struct {
	status int
	err    error
	last   *mail.SGMailV3
}

func (f *fakeSendgrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.last = email
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status, Body: "body"}, nil
}

func TestSendgridSenderBuildsTemplatedMail(t *testing.T) {
	api := &fakeSendgrid{status: http.StatusAccepted}
	sender := newSendgridSender(api, "quotes@example.com", "QuoteDesk")

	err := sender.Send(context.Background(), "a@b.com", "tpl-1", map[string]any{"reference": "Q-000001"})
	require.NoError(t, err)
	require.NotNil(t, api.last)
	require.Equal(t, "tpl-1", api.last.TemplateID)
	require.Equal(t, "quotes@example.com", api.last.From.Address)
	require.Len(t, api.last.Personalizations, 1)
	require.Equal(t, "a@b.com", api.last.Personalizations[0].To[0].Address)
	require.Equal(t, "Q-000001", api.last.Personalizations[0].DynamicTemplateData["reference"])
}

func TestSendgridSenderClassifiesFailures(t *testing.T) {
	var nonRetry registry.NonRetryableError

	err := newSendgridSender(&fakeSendgrid{status: http.StatusBadRequest}, "f@x.com", "").Send(context.Background(), "a@b.com", "tpl", nil)
	require.True(t, errors.As(err, &nonRetry))

	err = newSendgridSender(&fakeSendgrid{status: http.StatusTooManyRequests}, "f@x.com", "").Send(context.Background(), "a@b.com", "tpl", nil)
	require.Error(t, err)
	require.False(t, errors.As(err, &nonRetry))

	err = newSendgridSender(&fakeSendgrid{err: errors.New("dial tcp")}, "f@x.com", "").Send(context.Background(), "a@b.com", "tpl", nil)
	require.Error(t, err)
	require.False(t, errors.As(err, &nonRetry))

	err = newSendgridSender(&fakeSendgrid{status: 202}, "f@x.com", "").Send(context.Background(), "a@b.com", "", nil)
	require.True(t, errors.As(err, &nonRetry))
}

func TestNewEmailSenderDisabledWithoutKey(t *testing.T) {
	sender := NewEmailSender(config.NotificationsConfig{})
	require.False(t, sender.Enabled())
	require.NoError(t, sender.Send(context.Background(), "a@b.com", "tpl", nil))
}

func TestWebhookSenderSignsBody(t *testing.T) {
	var (
		gotSig   string
		gotEvent string
		gotBody  []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotEvent = r.Header.Get(EventHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewWebhookSender(config.NotificationsConfig{
		WebhookURL:    server.URL,
		WebhookSecret: "s3cret",
		Timeout:       time.Second,
	}, nil)
	require.True(t, sender.Enabled())

	err := sender.Post(context.Background(), WebhookBody{Event: enums.EventQuoteCreated, EventID: "evt-1", Quote: summary()})
	require.NoError(t, err)
	require.Equal(t, string(enums.EventQuoteCreated), gotEvent)
	require.Equal(t, Sign([]byte("s3cret"), gotBody), gotSig)

	var decoded WebhookBody
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	require.Equal(t, "evt-1", decoded.EventID)
}

func TestWebhookSenderStatusHandling(t *testing.T) {
	status := http.StatusGone
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	sender := NewWebhookSender(config.NotificationsConfig{WebhookURL: server.URL}, server.Client())
	var nonRetry registry.NonRetryableError

	err := sender.Post(context.Background(), WebhookBody{Event: enums.EventQuoteRejected})
	require.True(t, errors.As(err, &nonRetry))

	status = http.StatusServiceUnavailable
	err = sender.Post(context.Background(), WebhookBody{Event: enums.EventQuoteRejected})
	require.Error(t, err)
	require.False(t, errors.As(err, &nonRetry))

	status = http.StatusRequestTimeout
	err = sender.Post(context.Background(), WebhookBody{Event: enums.EventQuoteRejected})
	require.Error(t, err)
	require.False(t, errors.As(err, &nonRetry))
}

func TestWebhookSenderHonoursContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	sender := NewWebhookSender(config.NotificationsConfig{WebhookURL: server.URL}, server.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, sender.Post(ctx, WebhookBody{Event: enums.EventQuoteCreated}))
}

func TestDisabledWebhookSender(t *testing.T) {
	sender := NewWebhookSender(config.NotificationsConfig{}, nil)
	require.False(t, sender.Enabled())
	require.NoError(t, sender.Post(context.Background(), WebhookBody{}))
}
