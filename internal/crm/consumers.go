package crm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"personabot/internal/domain"
)

const consumerTimeout = 30 * time.Second

// Syncer applies CRM-bound intents from the bus. Failures are logged and
// dropped: CRM sync is best-effort and must never block a customer reply.
type Syncer struct {
	client    *Client
	assistTag string
	logger    *slog.Logger
}

func NewSyncer(client *Client, assistTag string, logger *slog.Logger) *Syncer {
	return &Syncer{client: client, assistTag: assistTag, logger: logger}
}

// Register subscribes the syncer to the intent kinds it handles.
func (s *Syncer) Register(bus domain.IntentBus) {
	bus.Subscribe(domain.IntentTagSync, s.handleTagSync)
	bus.Subscribe(domain.IntentFieldSync, s.handleFieldSync)
	bus.Subscribe(domain.IntentHandoffNotify, s.handleHandoffNotify)
}

// handleTagSync replaces any previous persona tag with the new one. The tag
// set stays consistent because a customer carries at most one persona.
func (s *Syncer) handleTagSync(in domain.Intent) {
	ti, ok := in.(domain.TagSyncIntent)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	for _, p := range domain.Personas {
		if p == ti.Persona {
			continue
		}
		if err := s.client.RemoveTag(ctx, ti.CustomerID, PersonaTag(p)); err != nil {
			s.logger.Debug("persona tag removal skipped",
				"customer", ti.CustomerID, "tag", PersonaTag(p), "error", err)
		}
	}
	if err := s.client.AddTag(ctx, ti.CustomerID, PersonaTag(ti.Persona)); err != nil {
		s.logger.Error("persona tag sync failed",
			"customer", ti.CustomerID, "intent", ti.ID, "error", err)
	}
}

func (s *Syncer) handleFieldSync(in domain.Intent) {
	fi, ok := in.(domain.FieldSyncIntent)
	if !ok || len(fi.Fields) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	if err := s.client.SetFields(ctx, fi.CustomerID, fi.Fields); err != nil {
		s.logger.Error("field sync failed",
			"customer", fi.CustomerID, "intent", fi.ID, "error", err)
	}
}

func (s *Syncer) handleHandoffNotify(in domain.Intent) {
	hi, ok := in.(domain.HandoffNotifyIntent)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	if err := s.client.NotifyStaff(ctx, hi.CustomerID, hi.Reason, hi.Message); err != nil {
		s.logger.Error("handoff notification failed",
			"customer", hi.CustomerID, "intent", hi.ID, "error", err)
	}
}

// EnrichCustomer copies profile data the CRM already holds into a local
// profile: display name, a persona carried by a persona tag, and custom
// fields. Nothing already set locally is overwritten. Reports whether any
// field changed; lookup failures leave the profile untouched.
func (s *Syncer) EnrichCustomer(ctx context.Context, c *domain.Customer) bool {
	contact, err := s.client.GetContact(ctx, c.ID)
	if err != nil {
		s.logger.Warn("contact enrichment failed", "customer", c.ID, "error", err)
		return false
	}
	if contact == nil {
		return false
	}

	changed := false
	if c.DisplayName == "" && contact.DisplayName != "" {
		c.DisplayName = contact.DisplayName
		changed = true
	}
	if c.Persona == domain.PersonaUnclassified {
		for _, t := range contact.Tags {
			name := strings.TrimPrefix(t.Name, personaTagPrefix)
			if name == t.Name {
				continue
			}
			p, ok := domain.ParsePersona(name)
			if !ok || p == domain.PersonaUnclassified || p == domain.PersonaAll {
				continue
			}
			c.Persona = p
			changed = true
			break
		}
	}
	for k, v := range contact.CustomFields {
		if v == "" {
			continue
		}
		if _, taken := c.Attributes[k]; taken {
			continue
		}
		if c.Attributes == nil {
			c.Attributes = make(map[string]string)
		}
		c.Attributes[k] = v
		changed = true
	}
	return changed
}

// InAssistMode reports whether a human has tagged the customer for manual
// handling. While the tag is present the bot stays silent for that customer.
// Lookup failures err on the side of automated handling.
func (s *Syncer) InAssistMode(ctx context.Context, customerID string) bool {
	if s.assistTag == "" {
		return false
	}
	tags, err := s.client.GetTags(ctx, customerID)
	if err != nil {
		s.logger.Warn("assist-mode lookup failed", "customer", customerID, "error", err)
		return false
	}
	for _, t := range tags {
		if t == s.assistTag {
			return true
		}
	}
	return false
}
