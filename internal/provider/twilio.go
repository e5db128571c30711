package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TwilioProvider implements VoiceProvider against the Twilio voice REST API.
// No SDK: the surface we need is four endpoints, form-encoded requests with
// basic auth.
type TwilioProvider struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

type TwilioOptions struct {
	AccountSID string
	AuthToken  string

	// BaseURL overrides the API host, for tests.
	BaseURL string

	// RequestTimeout bounds every provider HTTP call. A provider call that
	// never returns must not wedge webhook handling for other calls.
	RequestTimeout time.Duration
}

func NewTwilioProvider(opts TwilioOptions) (*TwilioProvider, error) {
	if opts.AccountSID == "" || opts.AuthToken == "" {
		return nil, errors.New("provider: twilio account sid and auth token required")
	}
	base := opts.BaseURL
	if base == "" {
		base = "https://api.twilio.com/2010-04-01"
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TwilioProvider{
		accountSID: opts.AccountSID,
		authToken:  opts.AuthToken,
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) CreateCall(ctx context.Context, req CreateCallRequest) (CallInfo, error) {
	if req.To == "" || req.From == "" || req.AnswerURL == "" {
		return CallInfo{}, errors.New("provider: to, from and answer url required")
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Url", req.AnswerURL)
	form.Set("Method", "POST")
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
		form.Set("StatusCallbackEvent", "initiated ringing answered completed")
		form.Set("StatusCallbackMethod", "POST")
	}
	if req.RingTimeoutSeconds > 0 {
		form.Set("Timeout", strconv.Itoa(req.RingTimeoutSeconds))
	}

	var resp twilioCallResponse
	err := p.do(ctx, http.MethodPost, fmt.Sprintf("/Accounts/%s/Calls.json", p.accountSID), form, &resp)
	if err != nil {
		return CallInfo{}, err
	}
	return resp.toCallInfo(), nil
}

func (p *TwilioProvider) FetchCall(ctx context.Context, providerCallID string) (CallInfo, error) {
	if providerCallID == "" {
		return CallInfo{}, errors.New("provider: call id required")
	}
	var resp twilioCallResponse
	err := p.do(ctx, http.MethodGet, fmt.Sprintf("/Accounts/%s/Calls/%s.json", p.accountSID, providerCallID), nil, &resp)
	if err != nil {
		return CallInfo{}, err
	}
	return resp.toCallInfo(), nil
}

func (p *TwilioProvider) StartRecording(ctx context.Context, providerCallID string) (RecordingInfo, error) {
	if providerCallID == "" {
		return RecordingInfo{}, errors.New("provider: call id required")
	}
	form := url.Values{}
	form.Set("RecordingChannels", "dual")

	var resp struct {
		SID string `json:"sid"`
	}
	err := p.do(ctx, http.MethodPost, fmt.Sprintf("/Accounts/%s/Calls/%s/Recordings.json", p.accountSID, providerCallID), form, &resp)
	if err != nil {
		return RecordingInfo{}, err
	}
	return RecordingInfo{RecordingID: resp.SID}, nil
}

func (p *TwilioProvider) DeleteRecording(ctx context.Context, recordingID string) error {
	if recordingID == "" {
		return errors.New("provider: recording id required")
	}
	return p.do(ctx, http.MethodDelete, fmt.Sprintf("/Accounts/%s/Recordings/%s.json", p.accountSID, recordingID), nil, nil)
}

func (p *TwilioProvider) TerminateCall(ctx context.Context, providerCallID string) error {
	if providerCallID == "" {
		return errors.New("provider: call id required")
	}
	form := url.Values{}
	form.Set("Status", "completed")
	return p.do(ctx, http.MethodPost, fmt.Sprintf("/Accounts/%s/Calls/%s.json", p.accountSID, providerCallID), form, nil)
}

func (p *TwilioProvider) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("provider: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider: api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("provider: parse response: %w", err)
	}
	return nil
}

// twilioCallResponse is the call resource shape. Duration comes back as a
// string in this API.
type twilioCallResponse struct {
	SID       string `json:"sid"`
	Status    string `json:"status"`
	To        string `json:"to"`
	From      string `json:"from"`
	Direction string `json:"direction"`
	Duration  string `json:"duration"`
	StartTime string `json:"start_time"`
}

func (r twilioCallResponse) toCallInfo() CallInfo {
	info := CallInfo{
		ProviderCallID: r.SID,
		Status:         r.Status,
		To:             r.To,
		From:           r.From,
		Direction:      r.Direction,
	}
	if r.Duration != "" {
		if n, err := strconv.Atoi(r.Duration); err == nil {
			info.DurationSeconds = n
		}
	}
	if r.StartTime != "" {
		if t, err := time.Parse(time.RFC1123Z, r.StartTime); err == nil {
			info.StartedAt = t
		}
	}
	return info
}
