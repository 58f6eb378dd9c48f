package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Send_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/email/send", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"message_id":"msg-123"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("email", srv.URL, "test-key", "sendprovider", time.Second, nil)
	res, err := c.Send(context.Background(), Message{ToEmail: "a@b.com", Subject: "hi", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "sent", res.Status)
	assert.Equal(t, "msg-123", res.MessageID)
	assert.Equal(t, "sendprovider", res.Provider)
}

func TestHTTPClient_Send_MapsUpstreamErrorToFailedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient("email", srv.URL, "test-key", "sendprovider", time.Second, nil)
	res, err := c.Send(context.Background(), Message{ToEmail: "a@b.com"})
	require.NoError(t, err, "delivery failures must not propagate as errors")
	assert.Equal(t, "failed", res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestSimulateClient_Send_AlwaysSucceeds(t *testing.T) {
	c := NewSimulateClient("email")
	res, err := c.Send(context.Background(), Message{ToEmail: "a@b.com", TrackingID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, "sent", res.Status)
	assert.Equal(t, "simulate", res.Provider)
	assert.NotEmpty(t, res.MessageID)
}

func TestRegistry_Send_DispatchesByChannel(t *testing.T) {
	r := NewRegistry(NewSimulateClient("email"), NewSimulateClient("sms"))
	res, err := r.Send(context.Background(), "sms", Message{ToEmail: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, "sent", res.Status)

	_, err = r.Send(context.Background(), "slack", Message{})
	require.Error(t, err)
	var notFound ErrChannelNotFound
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, "slack", notFound.Channel)
}
