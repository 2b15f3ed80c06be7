package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-wa-gateway/internal/phone"
	"github.com/tbourn/go-wa-gateway/internal/ratelimit"
	"github.com/tbourn/go-wa-gateway/internal/retry"
)

// DefaultBaseURL is the provider's REST API root.
const DefaultBaseURL = "https://api.twilio.com"

// Options configures a delivery Client.
type Options struct {
	AccountSID string
	AuthToken  string
	// From is the default sender; ignored when MessagingServiceSID is set.
	From                string
	MessagingServiceSID string
	BaseURL             string        // defaults to DefaultBaseURL
	Timeout             time.Duration // per-request HTTP timeout
	TypingEnabled       bool          // feature toggle for typing indicators
}

// SendParams describes one outbound message. Body and ContentSid are
// mutually exclusive; when ContentSid is set the provider renders the
// approved template and Body is ignored.
type SendParams struct {
	To   string
	From string // optional override of the default sender
	Body string
	// ContentSid references an approved content template.
	ContentSid string
	// ContentVariables substitutes template placeholders by name.
	ContentVariables map[string]string
	// MediaURLs attaches media to the final chunk.
	MediaURLs []string
	// PersistentAction carries a location action ("geo:<lat>,<lon>|<label>").
	PersistentAction string
	// Correlation identifiers, logged with every dispatch failure.
	ProviderMessageID string
	ChatID            string
}

// SendResult is the provider's acknowledgement of a dispatched message.
type SendResult struct {
	Sid    string
	Status string
	// ChunkSids lists every provider id when the body was chunked;
	// Sid is always the last of them.
	ChunkSids []string
}

type messageResponse struct {
	Sid     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client is a thin wrapper around the provider's send API. It validates and
// formats numbers, chunks long bodies, and maps channel failures onto the
// retryable/permanent taxonomy. SendWithRetry composes it with the injected
// rate limiter and retry executor.
type Client struct {
	http    *resty.Client
	opts    Options
	limiter *ratelimit.Limiter
	retry   retry.Config
}

// NewClient builds a delivery client. limiter governs per-sender throughput;
// retryCfg wraps transient dispatch failures.
func NewClient(opts Options, limiter *ratelimit.Limiter, retryCfg retry.Config) *Client {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetBasicAuth(opts.AccountSID, opts.AuthToken).
		SetHeader("Accept", "application/json")

	retryCfg.ShouldRetry = func(err error, _ int) bool { return IsRetryable(err) }
	if retryCfg.Label == "" {
		retryCfg.Label = "twilio send"
	}

	return &Client{
		http:    httpClient,
		opts:    opts,
		limiter: limiter,
		retry:   retryCfg,
	}
}

// senderKey is the identity the rate limiter buckets on: the messaging
// service when configured, otherwise the from number.
func (c *Client) senderKey(from string) string {
	if c.opts.MessagingServiceSID != "" {
		return c.opts.MessagingServiceSID
	}
	return phone.Normalize(from)
}

// Send dispatches one message, chunking bodies beyond the channel limit.
// Numbers must be valid E.164; malformed input fails before any network
// call. Media and the persistent action ride on the final chunk.
func (c *Client) Send(ctx context.Context, p SendParams) (*SendResult, error) {
	from := p.From
	if from == "" {
		from = c.opts.From
	}
	if err := phone.ValidateE164(p.To); err != nil {
		return nil, err
	}
	if c.opts.MessagingServiceSID == "" {
		if err := phone.ValidateE164(from); err != nil {
			return nil, err
		}
	}

	if p.ContentSid != "" {
		return c.sendTemplated(ctx, p, from)
	}

	chunks := ChunkMessage(p.Body, MaxMessageChars)
	result := &SendResult{}
	for i, chunk := range chunks {
		last := i == len(chunks)-1

		form := url.Values{}
		form.Set("To", phone.Format(p.To))
		if c.opts.MessagingServiceSID != "" {
			form.Set("MessagingServiceSid", c.opts.MessagingServiceSID)
		} else {
			form.Set("From", phone.Format(from))
		}
		form.Set("Body", chunk)
		if last {
			for _, mu := range p.MediaURLs {
				form.Add("MediaUrl", mu)
			}
			if p.PersistentAction != "" {
				form.Set("PersistentAction", p.PersistentAction)
			}
		}

		resp, err := c.post(ctx, fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.opts.AccountSID), form)
		if err != nil {
			return nil, err
		}
		result.Sid = resp.Sid
		result.Status = resp.Status
		result.ChunkSids = append(result.ChunkSids, resp.Sid)
	}
	return result, nil
}

// sendTemplated dispatches a template-rendered message. Templates are a
// single provider-side unit, so no chunking applies.
func (c *Client) sendTemplated(ctx context.Context, p SendParams, from string) (*SendResult, error) {
	form := url.Values{}
	form.Set("To", phone.Format(p.To))
	if c.opts.MessagingServiceSID != "" {
		form.Set("MessagingServiceSid", c.opts.MessagingServiceSID)
	} else {
		form.Set("From", phone.Format(from))
	}
	form.Set("ContentSid", p.ContentSid)
	if len(p.ContentVariables) > 0 {
		vars, err := json.Marshal(p.ContentVariables)
		if err != nil {
			return nil, fmt.Errorf("encode content variables: %w", err)
		}
		form.Set("ContentVariables", string(vars))
	}

	resp, err := c.post(ctx, fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.opts.AccountSID), form)
	if err != nil {
		return nil, err
	}
	return &SendResult{Sid: resp.Sid, Status: resp.Status, ChunkSids: []string{resp.Sid}}, nil
}

// SendWithRetry acquires a sender-level token, then dispatches with bounded
// retries on transient failures. Rate-limit exhaustion and final dispatch
// failures are logged with correlation ids before being returned; the caller
// persists the terminal state.
func (c *Client) SendWithRetry(ctx context.Context, p SendParams) (*SendResult, error) {
	from := p.From
	if from == "" {
		from = c.opts.From
	}
	if err := c.limiter.Acquire(ctx, c.senderKey(from)); err != nil {
		log.Error().
			Err(err).
			Str("provider_message_id", p.ProviderMessageID).
			Str("chat_id", p.ChatID).
			Msg("outbound rate limit acquisition failed")
		return nil, err
	}

	var result *SendResult
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		r, sendErr := c.Send(ctx, p)
		if sendErr != nil {
			return sendErr
		}
		result = r
		return nil
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("provider_message_id", p.ProviderMessageID).
			Str("chat_id", p.ChatID).
			Str("to", phone.Normalize(p.To)).
			Msg("outbound dispatch failed")
		return nil, err
	}
	return result, nil
}

// SendTypingIndicator signals the channel that a reply is being composed.
// The call is best-effort by contract: callers log and swallow failures.
// It is a no-op when the feature toggle is off.
func (c *Client) SendTypingIndicator(ctx context.Context, conversationSid string) error {
	if !c.opts.TypingEnabled || conversationSid == "" {
		return nil
	}
	form := url.Values{}
	form.Set("ChannelSid", conversationSid)
	_, err := c.post(ctx, fmt.Sprintf("/2010-04-01/Accounts/%s/TypingIndicators.json", c.opts.AccountSID), form)
	return err
}

// post issues one form POST and maps non-2xx responses onto APIError.
func (c *Client) post(ctx context.Context, path string, form url.Values) (*messageResponse, error) {
	var body messageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(form.Encode()).
		SetResult(&body).
		SetError(&body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("twilio request: %w", err)
	}
	if resp.IsError() {
		msg := body.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, &APIError{StatusCode: resp.StatusCode(), Code: body.Code, Message: msg}
	}
	return &body, nil
}
