package provider

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/odiadev/tts-gateway/internal/circuitbreaker"
	"github.com/odiadev/tts-gateway/internal/config"
)

// Words-per-minute baseline used to estimate audio duration from text.
// The estimate, not the audio, is the billing figure.
const wordsPerMinute = 150.0

const sampleRate = 32000

var (
	modelPattern   = regexp.MustCompile(`^speech-0[12]-(hd|turbo)`)
	controlChars   = regexp.MustCompile(`[\x00-\x1F\x7F-\x9F]`)
	allowedEmotion = map[string]bool{
		"neutral": true, "happy": true, "sad": true, "angry": true,
		"fearful": true, "disgusted": true, "surprised": true,
	}
)

type SynthesisRequest struct {
	Text    string
	VoiceID string
	Model   string
	Speed   float64
	Pitch   int
	Emotion string
}

type SynthesisResult struct {
	Audio           []byte
	DurationSeconds float64
	SampleRate      int
}

// Client wraps the single outbound call to the synthesis provider with
// input sanitization, parameter validation, bounded retry and a circuit
// breaker.
type Client struct {
	baseURL       string
	apiKey        string
	groupID       string
	httpClient    *http.Client
	maxRetries    int
	maxTextLength int
	breaker       *circuitbreaker.CircuitBreaker

	sleep func(time.Duration)
}

func NewClient(cfg config.ProviderConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("provider API key is required")
	}
	if cfg.BaseURL == "" || !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("invalid provider base URL: %q", cfg.BaseURL)
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown(),
	})

	// maxRetries counts attempts, so it can never drop below one.
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		groupID: cfg.GroupID,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxRetries:    maxRetries,
		maxTextLength: cfg.MaxTextLength,
		breaker:       breaker,
		sleep:         time.Sleep,
	}, nil
}

func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// Synthesize converts text to audio. Validation failures return before any
// network call and leave the breaker untouched; transient failures are
// retried with exponential backoff; every terminal outcome is recorded
// with the breaker exactly once.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	// Local rejection first: a validation failure never consumes the
	// half-open trial and has no breaker effect.
	req.Text = c.sanitizeText(req.Text)
	if err := validateParameters(req); err != nil {
		return nil, err
	}

	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	var lastErr error
	backoff := time.Second

	attempts := c.maxRetries
	if attempts < 1 {
		// At least one attempt must run, or the breaker trial taken
		// above would resolve as a failure without any network call.
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.sleep(backoff)
			backoff *= 2
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
		}

		result, err := c.doRequest(ctx, req)
		if err == nil {
			c.breaker.RecordSuccess()
			return result, nil
		}

		if ctx.Err() != nil {
			// Caller went away mid-call. Terminal for this attempt,
			// and it must resolve a pending half-open trial.
			c.breaker.RecordFailure()
			return nil, fmt.Errorf("synthesis aborted: %w", ctx.Err())
		}

		lastErr = err

		var perr *Error
		if errors.As(err, &perr) && !perr.Retryable() {
			break
		}

		log.Printf("provider call failed (attempt %d/%d): %v", attempt+1, attempts, err)
	}

	c.breaker.RecordFailure()
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	payload := map[string]interface{}{
		"text":  req.Text,
		"model": req.Model,
		"voice_setting": map[string]interface{}{
			"voice_id": req.VoiceID,
			"speed":    req.Speed,
			"pitch":    req.Pitch,
			"emotion":  req.Emotion,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: err.Error()}
	}

	url := c.baseURL + "/v1/t2a_v2"
	if c.groupID != "" {
		url += "?GroupId=" + c.groupID
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: err.Error()}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return nil, &Error{Kind: KindTransient, Message: fmt.Sprintf("upstream HTTP %d", resp.StatusCode)}
		}
		return nil, translateStatus(resp.StatusCode, "")
	}

	var parsed struct {
		BaseResp struct {
			StatusCode int    `json:"status_code"`
			StatusMsg  string `json:"status_msg"`
		} `json:"base_resp"`
		Data struct {
			Audio string `json:"audio"`
		} `json:"data"`
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: "failed to read upstream response"}
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &Error{Kind: KindUnknown, Message: "unparsable upstream response"}
	}

	if parsed.BaseResp.StatusCode != 0 {
		return nil, translateStatus(parsed.BaseResp.StatusCode, parsed.BaseResp.StatusMsg)
	}

	if parsed.Data.Audio == "" {
		return nil, &Error{Kind: KindUnknown, Message: "no audio in upstream response"}
	}

	audio, err := hex.DecodeString(parsed.Data.Audio)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: "invalid audio encoding in upstream response"}
	}

	return &SynthesisResult{
		Audio:           audio,
		DurationSeconds: EstimateDuration(req.Text, req.Speed),
		SampleRate:      sampleRate,
	}, nil
}

// Strips control characters, collapses whitespace and hard-truncates.
func (c *Client) sanitizeText(text string) string {
	text = controlChars.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")

	if c.maxTextLength > 0 && len(text) > c.maxTextLength {
		cut := c.maxTextLength
		// Never split a multibyte rune at the cut point.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	return strings.TrimSpace(text)
}

func validateParameters(req SynthesisRequest) error {
	if req.Text == "" {
		return &ValidationError{Reason: "text is empty"}
	}
	if req.VoiceID == "" {
		return &ValidationError{Reason: "voice id is required"}
	}
	if req.Speed < 0.5 || req.Speed > 2.0 {
		return &ValidationError{Reason: "speed must be between 0.5 and 2.0"}
	}
	if req.Pitch < -12 || req.Pitch > 12 {
		return &ValidationError{Reason: "pitch must be between -12 and 12"}
	}
	if !modelPattern.MatchString(req.Model) {
		return &ValidationError{Reason: "unrecognized model identifier"}
	}
	if req.Emotion != "" && !allowedEmotion[req.Emotion] {
		return &ValidationError{Reason: "unrecognized emotion"}
	}
	return nil
}

func classifyTransportError(err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTransient, Message: "upstream request timed out"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Message: "upstream request timed out"}
	}
	return &Error{Kind: KindTransient, Message: "could not reach upstream"}
}

// Estimates audio duration from word count and speed. This intentionally
// approximates: the estimate drives both the quota pre-check and the debit.
func EstimateDuration(text string, speed float64) float64 {
	if speed <= 0 {
		speed = 1.0
	}
	words := len(strings.Fields(text))
	return (float64(words) / wordsPerMinute) * 60.0 / speed
}
