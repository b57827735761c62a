package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/pkg/httpretry"
	"github.com/ignite/coach-nudge/internal/pkg/logger"
)

// GHLOptions configures the GoHighLevel SMS sender.
type GHLOptions struct {
	BaseURL    string
	APIVersion string
	LocationID string
	// APIKey is a private integration token. Used when no OAuth refresh
	// token is configured.
	APIKey       string
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
	Timeout      time.Duration
	MaxRetries   int
}

// GHLSender sends SMS through the GoHighLevel conversations API.
type GHLSender struct {
	baseURL    string
	apiVersion string
	locationID string
	http       httpretry.HTTPDoer
}

// NewGHLSender builds a sender whose HTTP client attaches a bearer token
// from an oauth2 TokenSource and retries rate limits and connect failures.
func NewGHLSender(ctx context.Context, o GHLOptions) *GHLSender {
	var ts oauth2.TokenSource
	if o.ClientID != "" && o.RefreshToken != "" {
		conf := &oauth2.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  o.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		ts = conf.TokenSource(ctx, &oauth2.Token{RefreshToken: o.RefreshToken})
	} else {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: o.APIKey, TokenType: "Bearer"})
	}

	base := oauth2.NewClient(ctx, ts)
	if o.Timeout > 0 {
		base.Timeout = o.Timeout
	}
	// A 5xx after GHL accepted the message would resend the SMS on retry.
	return newGHLSender(o, httpretry.NewRetryClient(base, o.MaxRetries, httpretry.NonIdempotent()))
}

func newGHLSender(o GHLOptions, doer httpretry.HTTPDoer) *GHLSender {
	return &GHLSender{
		baseURL:    strings.TrimRight(o.BaseURL, "/"),
		apiVersion: o.APIVersion,
		locationID: o.LocationID,
		http:       doer,
	}
}

type ghlMessageRequest struct {
	Type       string `json:"type"`
	ContactID  string `json:"contactId"`
	LocationID string `json:"locationId,omitempty"`
	Message    string `json:"message"`
}

type ghlMessageResponse struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Message        string `json:"message"`
}

// Send posts the campaign content as an SMS to the client's GHL contact.
func (g *GHLSender) Send(ctx context.Context, client *domain.Client, c *domain.ScheduledCampaign) (string, error) {
	if client.GHLContactID == "" {
		return "", fmt.Errorf("%w: ghl contact id", ErrMissingAddress)
	}

	body, err := json.Marshal(ghlMessageRequest{
		Type:       "SMS",
		ContactID:  client.GHLContactID,
		LocationID: g.locationID,
		Message:    c.Content,
	})
	if err != nil {
		return "", fmt.Errorf("encode ghl message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/conversations/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ghl request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Version", g.apiVersion)

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ghl send: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		if isDNDResponse(resp.StatusCode, raw) {
			return "", ErrOptedOut
		}
		return "", fmt.Errorf("ghl send: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var out ghlMessageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode ghl response: %w", err)
	}
	logger.Debug("[GHL] sms sent", "campaign_id", c.ID, "message_id", out.MessageID)
	return out.MessageID, nil
}

// GHL rejects messages to contacts flagged Do Not Disturb with a 4xx whose
// body mentions DND.
func isDNDResponse(status int, body []byte) bool {
	if status < 400 || status >= 500 {
		return false
	}
	b := strings.ToLower(string(body))
	return strings.Contains(b, "dnd") || strings.Contains(b, "do not disturb") || strings.Contains(b, "opted out")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
