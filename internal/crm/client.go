// Package crm talks to the customer-relationship backend: contact tags,
// custom fields, and staff notifications. The orchestrator never calls it
// directly; consumers apply intents published on the bus.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"personabot/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 3
)

// Client is a thin HTTP client for the CRM API.
type Client struct {
	apiBase   string
	apiKey    string
	accountID string
	client    *http.Client
	logger    *slog.Logger
}

type ClientConfig struct {
	APIBase   string
	APIKey    string
	AccountID string
	Logger    *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{
		apiBase:   strings.TrimSuffix(cfg.APIBase, "/"),
		apiKey:    cfg.APIKey,
		accountID: cfg.AccountID,
		client:    &http.Client{Timeout: defaultTimeout},
		logger:    cfg.Logger,
	}
}

// Contact is the CRM's view of a customer.
type Contact struct {
	ID           string            `json:"id"`
	DisplayName  string            `json:"display_name"`
	Tags         []ContactTag      `json:"tags"`
	CustomFields map[string]string `json:"custom_fields"`
}

type ContactTag struct {
	Name string `json:"name"`
}

// GetContact fetches a contact. A 404 returns (nil, nil): not yet registered
// is an ordinary state, not an error.
func (c *Client) GetContact(ctx context.Context, customerID string) (*Contact, error) {
	resp, err := c.do(ctx, http.MethodGet, c.contactURL(customerID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusErr("get contact", resp)
	}
	var contact Contact
	if err := json.NewDecoder(resp.Body).Decode(&contact); err != nil {
		return nil, fmt.Errorf("crm: decode contact: %w", err)
	}
	return &contact, nil
}

// GetTags returns the contact's tag names, empty when the contact is unknown.
func (c *Client) GetTags(ctx context.Context, customerID string) ([]string, error) {
	contact, err := c.GetContact(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, nil
	}
	names := make([]string, 0, len(contact.Tags))
	for _, t := range contact.Tags {
		names = append(names, t.Name)
	}
	return names, nil
}

func (c *Client) AddTag(ctx context.Context, customerID, tag string) error {
	body := map[string]string{"tag_name": tag}
	resp, err := c.do(ctx, http.MethodPost, c.contactURL(customerID)+"/tags", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return c.statusErr("add tag", resp)
	}
	c.logger.Info("crm tag added", "customer", customerID, "tag", tag)
	return nil
}

func (c *Client) RemoveTag(ctx context.Context, customerID, tag string) error {
	resp, err := c.do(ctx, http.MethodDelete,
		c.contactURL(customerID)+"/tags/"+url.PathEscape(tag), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.statusErr("remove tag", resp)
	}
	return nil
}

// SetFields upserts custom fields on a contact. Last write wins server-side,
// so replaying an intent is harmless.
func (c *Client) SetFields(ctx context.Context, customerID string, fields map[string]string) error {
	resp, err := c.do(ctx, http.MethodPut, c.contactURL(customerID)+"/custom_fields", fields)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return c.statusErr("set fields", resp)
	}
	return nil
}

// NotifyStaff raises a handoff notification for the contact.
func (c *Client) NotifyStaff(ctx context.Context, customerID, reason, message string) error {
	body := map[string]string{
		"customer_id": customerID,
		"reason":      reason,
		"message":     message,
		"type":        "handoff",
	}
	resp, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/accounts/%s/notifications", c.apiBase, c.accountID), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return c.statusErr("notify staff", resp)
	}
	c.logger.Info("staff notified", "customer", customerID, "reason", reason)
	return nil
}

func (c *Client) contactURL(customerID string) string {
	return fmt.Sprintf("%s/accounts/%s/contacts/%s",
		c.apiBase, c.accountID, url.PathEscape(customerID))
}

// do sends one request with bearer auth, retrying transient failures
// (network errors, 5xx, 429) with exponential backoff and jitter.
func (c *Client) do(ctx context.Context, method, rawURL string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("crm: marshal body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * 200 * time.Millisecond
			jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(base + jitter):
			}
			c.logger.Warn("crm: retrying request", "method", method, "attempt", attempt+1)
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, fmt.Errorf("crm: new request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			lastErr = fmt.Errorf("crm: HTTP %d: %s", resp.StatusCode, string(respBody))
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("crm: request failed after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) statusErr(op string, resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("crm: %s: HTTP %d: %s", op, resp.StatusCode, string(respBody))
}

// personaTagPrefix marks the CRM tags that carry a persona value.
const personaTagPrefix = "persona:"

// PersonaTag maps a persona to the CRM tag the sync consumer maintains.
func PersonaTag(p domain.Persona) string {
	return personaTagPrefix + string(p)
}
