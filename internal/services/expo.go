package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"barberq/config"
	"barberq/utils"
)

// ExpoPush posts messages to the Expo push gateway. A circuit breaker
// keeps a dead gateway from being hammered by every queue mutation.
type ExpoPush struct {
	url     string
	client  *http.Client
	breaker *utils.CircuitBreaker
}

func NewExpoPush(cfg *config.Config) *ExpoPush {
	return &ExpoPush{
		url:     cfg.ExpoPushURL,
		client:  &http.Client{Timeout: cfg.ExpoPushTimeout},
		breaker: utils.NewCircuitBreaker("expo-push"),
	}
}

func (p *ExpoPush) Send(ctx context.Context, token, title, body string, data map[string]any) error {
	return p.breaker.Execute(func() error {
		message := map[string]any{
			"to":        token,
			"sound":     "default",
			"title":     title,
			"body":      body,
			"channelId": "default",
			"priority":  "high",
			"data":      data,
		}

		payload, err := json.Marshal([]any{message})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= http.StatusMultipleChoices {
			return fmt.Errorf("expo push returned status %d", resp.StatusCode)
		}
		return nil
	})
}
