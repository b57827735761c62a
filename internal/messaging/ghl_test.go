package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/pkg/httpretry"
)

func testClient() *domain.Client {
	return &domain.Client{ID: "c1", GHLContactID: "ghl-c1", Email: "ana@example.com", ConsentStatus: domain.ConsentActive}
}

func testCampaign() *domain.ScheduledCampaign {
	return &domain.ScheduledCampaign{ID: "cmp-1", Channel: domain.ChannelSMS, Category: domain.NudgeCheckIn, Content: "Hey Ana"}
}

func TestGHLSender_StaticToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/messages", r.URL.Path)
		assert.Equal(t, "Bearer pit-123", r.Header.Get("Authorization"))
		assert.Equal(t, "2021-07-28", r.Header.Get("Version"))

		var body ghlMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SMS", body.Type)
		assert.Equal(t, "ghl-c1", body.ContactID)
		assert.Equal(t, "loc-1", body.LocationID)
		assert.Equal(t, "Hey Ana", body.Message)

		w.Write([]byte(`{"conversationId":"conv-1","messageId":"msg-1"}`))
	}))
	defer srv.Close()

	s := NewGHLSender(context.Background(), GHLOptions{
		BaseURL: srv.URL, APIVersion: "2021-07-28", LocationID: "loc-1", APIKey: "pit-123", MaxRetries: 0,
	})
	id, err := s.Send(context.Background(), testClient(), testCampaign())
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
}

func TestGHLSender_RefreshToken(t *testing.T) {
	var refreshed int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-1", r.Form.Get("refresh_token"))
		assert.Equal(t, "client-1", r.Form.Get("client_id"))
		atomic.AddInt32(&refreshed, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/conversations/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		w.Write([]byte(`{"messageId":"msg-2"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewGHLSender(context.Background(), GHLOptions{
		BaseURL: srv.URL, ClientID: "client-1", ClientSecret: "secret", RefreshToken: "rt-1",
		TokenURL: srv.URL + "/oauth/token",
	})
	for i := 0; i < 2; i++ {
		id, err := s.Send(context.Background(), testClient(), testCampaign())
		require.NoError(t, err)
		assert.Equal(t, "msg-2", id)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshed), "token is reused until expiry")
}

func TestGHLSender_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"messageId":"msg-3"}`))
	}))
	defer srv.Close()

	doer := httpretry.NewRetryClient(srv.Client(), 2,
		httpretry.WithDelays(time.Millisecond, 5*time.Millisecond), httpretry.NonIdempotent())
	s := newGHLSender(GHLOptions{BaseURL: srv.URL}, doer)

	id, err := s.Send(context.Background(), testClient(), testCampaign())
	require.NoError(t, err)
	assert.Equal(t, "msg-3", id)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGHLSender_ServerErrorIsNotResent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	doer := httpretry.NewRetryClient(srv.Client(), 3,
		httpretry.WithDelays(time.Millisecond, 5*time.Millisecond), httpretry.NonIdempotent())
	s := newGHLSender(GHLOptions{BaseURL: srv.URL}, doer)

	_, err := s.Send(context.Background(), testClient(), testCampaign())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "the message may have been accepted")
}

func TestGHLSender_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"dnd contact", http.StatusBadRequest, `{"message":"Cannot send message as DND is active for SMS"}`, ErrOptedOut},
		{"unauthorized", http.StatusUnauthorized, `{"message":"Invalid JWT"}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			s := newGHLSender(GHLOptions{BaseURL: srv.URL}, httpretry.NewRetryClient(srv.Client(), 0))
			_, err := s.Send(context.Background(), testClient(), testCampaign())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			} else {
				assert.False(t, errors.Is(err, ErrOptedOut))
			}
		})
	}
}

func TestGHLSender_MissingContact(t *testing.T) {
	s := newGHLSender(GHLOptions{BaseURL: "http://unused"}, httpretry.NewRetryClient(nil, 0))
	cl := testClient()
	cl.GHLContactID = ""
	_, err := s.Send(context.Background(), cl, testCampaign())
	assert.True(t, errors.Is(err, ErrMissingAddress))
}
