package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroguard/agroguard/pkg/config"
	"github.com/agroguard/agroguard/pkg/prompt"
)

var fastRetry = config.RetryConfig{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxElapsed:      time.Second,
}

func newClient(t *testing.T, typ, url string, retry config.RetryConfig) *HTTPClient {
	t.Helper()
	c, err := New(config.ProviderConfig{
		Name:    "test",
		Type:    typ,
		URL:     url,
		APIKey:  "secret",
		Model:   "default-model",
		Timeout: time.Second,
	}, retry)
	require.NoError(t, err)
	return c
}

func TestGenerativeRequest(t *testing.T) {
	var gotPath, gotKey string
	var gotBody struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		GenerationConfig struct {
			ResponseMIMEType string `json:"responseMimeType"`
		} `json:"generationConfig"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := newClient(t, config.ProviderGenerative, srv.URL, fastRetry)
	resp, err := c.Call(context.Background(), Call{Model: "gemini-1.5-pro", Prompt: prompt.Prompt{User: "assess", JSON: true}})

	require.NoError(t, err)
	assert.Equal(t, "/v1beta/models/gemini-1.5-pro:generateContent", gotPath)
	assert.Equal(t, "secret", gotKey)
	require.Len(t, gotBody.Contents, 1)
	assert.Equal(t, "user", gotBody.Contents[0].Role)
	require.Len(t, gotBody.Contents[0].Parts, 1)
	assert.Equal(t, "assess", gotBody.Contents[0].Parts[0].Text)
	assert.Equal(t, "application/json", gotBody.GenerationConfig.ResponseMIMEType)
	assert.Equal(t, "gemini-1.5-pro", resp.Model)
	assert.Equal(t, `{"candidates":[]}`, string(resp.Body))
	assert.Equal(t, 1, resp.Attempts)
}

func TestChatRequest(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := New(config.ProviderConfig{
		Name: "groq", Type: config.ProviderChat, URL: srv.URL + "/", APIKey: "gsk",
		Model: "llama-3.1-8b-instant", Temperature: 0.5, MaxTokens: 300,
	}, fastRetry)
	require.NoError(t, err)

	resp, err := c.Call(context.Background(), Call{Prompt: prompt.Prompt{System: "be brief", User: "hi"}})

	require.NoError(t, err)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer gsk", gotAuth)
	assert.Equal(t, "llama-3.1-8b-instant", gotBody.Model)
	assert.Equal(t, []chatMessage{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}}, gotBody.Messages)
	assert.Equal(t, 0.5, gotBody.Temperature)
	assert.Equal(t, 300, gotBody.MaxTokens)
	assert.Equal(t, "llama-3.1-8b-instant", resp.Model)
}

func TestMissingCredential(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c, err := New(config.ProviderConfig{Name: "gemini", Type: config.ProviderGenerative, URL: srv.URL}, fastRetry)
	require.NoError(t, err)

	_, err = c.Call(context.Background(), Call{Prompt: prompt.Prompt{User: "x"}})

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, CauseCredential, terr.Cause)
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.Zero(t, calls.Load())
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	c := newClient(t, config.ProviderGenerative, srv.URL, fastRetry)
	resp, err := c.Call(context.Background(), Call{Prompt: prompt.Prompt{User: "x"}})

	require.NoError(t, err)
	assert.Equal(t, 3, resp.Attempts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetryBounded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newClient(t, config.ProviderGenerative, srv.URL, fastRetry)
	_, err := c.Call(context.Background(), Call{Prompt: prompt.Prompt{User: "x"}})

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, CauseStatus, terr.Cause)
	assert.Equal(t, http.StatusTooManyRequests, terr.StatusCode)
	assert.Equal(t, 3, terr.Attempts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
	}))
	defer srv.Close()

	c := newClient(t, config.ProviderGenerative, srv.URL, fastRetry)
	_, err := c.Call(context.Background(), Call{Prompt: prompt.Prompt{User: "x"}})

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.False(t, terr.Retryable)
	assert.Equal(t, 1, terr.Attempts)
	assert.Contains(t, string(terr.Body), "API key not valid")
	assert.EqualValues(t, 1, calls.Load())
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c, err := New(config.ProviderConfig{
		Name: "slow", Type: config.ProviderGenerative, URL: srv.URL, APIKey: "k", Timeout: 20 * time.Millisecond,
	}, config.RetryConfig{MaxAttempts: 1})
	require.NoError(t, err)

	_, err = c.Call(context.Background(), Call{Prompt: prompt.Prompt{User: "x"}})

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, CauseTimeout, terr.Cause)
	assert.Equal(t, "timeout", terr.Reason())
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newClient(t, config.ProviderChat, url, config.RetryConfig{MaxAttempts: 2, InitialInterval: time.Millisecond})
	_, err := c.Call(context.Background(), Call{Prompt: prompt.Prompt{User: "x"}})

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, CauseNetwork, terr.Cause)
	assert.Equal(t, 2, terr.Attempts)
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(config.ProviderConfig{Name: "x", Type: "anthropic", URL: "http://localhost"}, fastRetry)
	assert.Error(t, err)
}

func TestNewAll(t *testing.T) {
	clients, err := NewAll(config.Default())
	require.NoError(t, err)
	assert.Len(t, clients, 2)
	assert.Equal(t, "gemini", clients["gemini"].Name())
}
