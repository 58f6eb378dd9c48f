package domain

import "time"

// Topic names on the event log.
const (
	TopicLeadsRaw       = "leads.raw"
	TopicLeadsScored    = "leads.scored"
	TopicOutreachEvents = "outreach.events"
)

// DLQ suffix appended to a topic name for the poison-message dead-letter
// destination, e.g. "leads.raw.dlq".
const DLQSuffix = ".dlq"

// OutreachEventType enumerates the event_type values carried on
// outreach.events.
type OutreachEventType string

// Outreach event type values.
const (
	EventOutreachSent      OutreachEventType = "outreach.sent"
	EventOutreachOpened    OutreachEventType = "outreach.opened"
	EventOutreachClicked   OutreachEventType = "outreach.clicked"
	EventOutreachReplied   OutreachEventType = "outreach.replied"
	EventOutreachConverted OutreachEventType = "outreach.converted"
	EventOutreachBounced   OutreachEventType = "outreach.bounced"
)

// RawLeadEvent is the leads.raw payload shape.
type RawLeadEvent struct {
	EventType  string         `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	ExternalID string         `json:"external_id"`
	Company    CompanyInfo    `json:"company"`
	Contact    ContactInfo    `json:"contact"`
	Source     SourceInfo     `json:"source"`
	Metadata   LeadMetadata   `json:"metadata"`
}

// CompanyInfo is the company sub-document of a raw lead event.
type CompanyInfo struct {
	Name        string `json:"name"`
	Website     string `json:"website"`
	Industry    string `json:"industry"`
	Size        string `json:"size"`
	Description string `json:"description"`
}

// ContactInfo is the contact sub-document of a raw lead event.
type ContactInfo struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Title    string `json:"title"`
	LinkedIn string `json:"linkedin"`
}

// SourceInfo is the source sub-document of a raw lead event.
type SourceInfo struct {
	Channel  string `json:"channel"`
	Campaign string `json:"campaign"`
	Referrer string `json:"referrer"`
}

// LeadMetadata is the metadata sub-document of a raw lead event.
type LeadMetadata struct {
	TechStack   []string `json:"tech_stack"`
	PainPoints  []string `json:"pain_points"`
	BudgetRange string   `json:"budget_range"`
	Timeline    string   `json:"timeline"`
}

// ScoringDocument is the nested "scoring" sub-document the Scorer attaches
// to a raw lead event before republishing to leads.scored.
type ScoringDocument struct {
	Score        float64        `json:"score"`
	Persona      string         `json:"persona"`
	Reasoning    string         `json:"reasoning"`
	ModelVersion string         `json:"model_version"`
	Mock         bool           `json:"mock"`
	Confidence   float64        `json:"confidence"`
	ScoringInput map[string]any `json:"scoring_input"`
	ScoredAt     time.Time      `json:"scored_at"`
}

// ScoredLeadEvent is the leads.scored payload shape: the original raw event
// plus a scoring sub-document and the persisted row id.
type ScoredLeadEvent struct {
	RawLeadEvent
	Scoring ScoringDocument `json:"scoring"`
	DBID    string          `json:"db_id"`
}

// OutreachEvent is the outreach.events payload shape, produced both by the
// Orchestrator (outreach.sent) and by external engagement webhooks (the
// remaining event types).
type OutreachEvent struct {
	EventType        OutreachEventType `json:"event_type"`
	Timestamp        time.Time         `json:"timestamp"`
	LeadID           string            `json:"lead_id"`
	ExternalID       string            `json:"external_id"`
	ExperimentID     string            `json:"experiment_id"`
	TemplateID       string            `json:"template_id,omitempty"`
	MessageID        string            `json:"message_id,omitempty"`
	ConversionValue  *float64          `json:"conversion_value,omitempty"`
}
