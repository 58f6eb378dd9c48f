// Package domain defines core entities, ports, and domain-specific errors
// for the outbound sales pipeline.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels). Categories per the error handling design:
// validation, transient external, transient infrastructure, permanent, and
// configuration errors each map onto one or more of these.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrConfiguration     = errors.New("configuration error")
	ErrInternal          = errors.New("internal error")
)

// Context is a type alias to stdlib context.Context for convenience across
// layers; adapters and usecases pass context.Context through unchanged.
type Context = context.Context

// LeadStatus captures the lifecycle state of a lead.
type LeadStatus string

// Lead status values.
const (
	LeadRaw       LeadStatus = "raw"
	LeadScored    LeadStatus = "scored"
	LeadContacted LeadStatus = "contacted"
	LeadResponded LeadStatus = "responded"
	LeadConverted LeadStatus = "converted"
	LeadFailed    LeadStatus = "failed"
	LeadSnoozed   LeadStatus = "snoozed"
)

// leadTransitions enumerates the allowed LeadStatus edges.
var leadTransitions = map[LeadStatus]map[LeadStatus]bool{
	LeadRaw:       {LeadScored: true, LeadFailed: true},
	LeadScored:    {LeadContacted: true, LeadFailed: true, LeadSnoozed: true},
	LeadContacted: {LeadResponded: true, LeadConverted: true, LeadFailed: true, LeadSnoozed: true},
	LeadResponded: {LeadConverted: true, LeadSnoozed: true},
	LeadSnoozed:   {LeadScored: true},
	LeadConverted: {},
	LeadFailed:    {},
}

// CanTransitionLeadStatus reports whether moving a Lead from "from" to "to"
// is a legal edge in the lead state machine.
func CanTransitionLeadStatus(from, to LeadStatus) bool {
	if from == to {
		return true
	}
	edges, ok := leadTransitions[from]
	return ok && edges[to]
}

// LeadPersona buckets a lead by company profile.
type LeadPersona string

// Persona values.
const (
	PersonaEnterprise LeadPersona = "enterprise"
	PersonaSMB        LeadPersona = "smb"
	PersonaStartup    LeadPersona = "startup"
	PersonaIndividual LeadPersona = "individual"
	PersonaUnknown    LeadPersona = "unknown"
)

// Lead is the inbound sales lead tracked through scoring and outreach.
// Invariants: ExternalID is unique and non-empty; Score is in [0,1] once
// scored; Persona defaults to unknown until scoring assigns one.
type Lead struct {
	ID             string
	ExternalID     string
	CompanyName    string
	ContactName    string
	ContactEmail   string
	ContactTitle   string
	Industry       string
	CompanySize    string
	Website        string
	RawPayload     map[string]any
	Score          *float64
	Persona        LeadPersona
	ScoringMeta    map[string]any
	Status         LeadStatus
	ExperimentID   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ScoredAt       *time.Time
	ContactedAt    *time.Time
	OutreachCount  int
	ResponseCount  int
}

// Experiment is one bandit arm in the Thompson Sampling outreach selection.
// Invariants: Alpha and Beta are strictly positive; at least one active
// OutreachTemplate must exist per active experiment (enforced at selection
// time by the orchestrator, not at write time, since templates and
// experiments are created independently).
type Experiment struct {
	ID                string
	ExperimentID      string
	Name              string
	Description       string
	Variant           string
	Config            map[string]any
	LeadsAssigned     int
	OutreachSent      int
	ResponsesReceived int
	Conversions       int
	ConversionRate    float64
	ResponseRate      float64
	Alpha             float64
	Beta              float64
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	EndedAt           *time.Time
}

// RefreshRates recomputes ConversionRate and ResponseRate from the raw
// counters.
func (e *Experiment) RefreshRates() {
	if e.LeadsAssigned > 0 {
		e.ConversionRate = float64(e.Conversions) / float64(e.LeadsAssigned)
	}
	if e.OutreachSent > 0 {
		e.ResponseRate = float64(e.ResponsesReceived) / float64(e.OutreachSent)
	}
}

// OutreachTemplate holds subject/body text rendered by the personalization
// adapter before delivery.
type OutreachTemplate struct {
	ID                    string
	TemplateID            string
	Name                  string
	Description           string
	ExperimentID          string
	SubjectLine           string
	BodyTemplate          string
	PersonalizationPrompt string
	Channel               string
	Config                map[string]any
	IsActive              bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// OutreachStatus captures the lifecycle state of a single outreach attempt.
type OutreachStatus string

// Outreach status values.
const (
	OutreachPending      OutreachStatus = "pending"
	OutreachSent         OutreachStatus = "sent"
	OutreachDelivered    OutreachStatus = "delivered"
	OutreachOpened       OutreachStatus = "opened"
	OutreachClicked      OutreachStatus = "clicked"
	OutreachReplied      OutreachStatus = "replied"
	OutreachBounced      OutreachStatus = "bounced"
	OutreachUnsubscribed OutreachStatus = "unsubscribed"
	OutreachFailed       OutreachStatus = "failed"
)

// outreachTransitions enumerates the allowed OutreachStatus edges.
var outreachTransitions = map[OutreachStatus]map[OutreachStatus]bool{
	OutreachPending:   {OutreachSent: true, OutreachFailed: true},
	OutreachSent:      {OutreachDelivered: true, OutreachBounced: true, OutreachFailed: true},
	OutreachDelivered: {OutreachOpened: true, OutreachBounced: true},
	OutreachOpened:    {OutreachClicked: true, OutreachReplied: true},
	OutreachClicked:   {OutreachReplied: true},
	OutreachReplied:   {OutreachUnsubscribed: true},
	OutreachBounced:   {},
	OutreachFailed:    {},
	OutreachUnsubscribed: {},
}

// CanTransitionOutreachStatus reports whether moving an OutreachLog from
// "from" to "to" is a legal edge in the outreach state machine.
func CanTransitionOutreachStatus(from, to OutreachStatus) bool {
	if from == to {
		return true
	}
	edges, ok := outreachTransitions[from]
	return ok && edges[to]
}

// OutreachLog records one delivery attempt for a lead under an experiment.
type OutreachLog struct {
	ID                string
	LeadID            string
	ExperimentID      string
	TemplateID        string
	Subject           string
	Body              string
	Channel           string
	SentVia           string
	ExternalMessageID string
	Status            OutreachStatus
	StatusDetails     map[string]any
	OpenedAt          *time.Time
	ClickedAt         *time.Time
	RepliedAt         *time.Time
	ErrorMessage      string
	RetryCount        int
	CreatedAt         time.Time
	SentAt            *time.Time
	DeliveredAt       *time.Time
}

// Repositories (ports)

// LeadRepository manages Lead persistence.
type LeadRepository interface {
	Create(ctx Context, l Lead) (string, error)
	Update(ctx Context, l Lead) error
	Get(ctx Context, id string) (Lead, error)
	FindByExternalID(ctx Context, externalID string) (Lead, error)
	CountByStatus(ctx Context, status LeadStatus) (int, error)
	List(ctx Context, offset, limit int) ([]Lead, error)
}

// ExperimentRepository manages Experiment persistence.
type ExperimentRepository interface {
	Get(ctx Context, experimentID string) (Experiment, error)
	ListActive(ctx Context) ([]Experiment, error)
	IncrementOnAssign(ctx Context, experimentID string) error
	IncrementOnSend(ctx Context, experimentID string) error
	IncrementOnResponse(ctx Context, experimentID string) error
	IncrementOnConversion(ctx Context, experimentID string, betaIncrement float64) error
}

// TemplateRepository manages OutreachTemplate persistence.
type TemplateRepository interface {
	ListActiveByExperiment(ctx Context, experimentID string) ([]OutreachTemplate, error)
	Get(ctx Context, templateID string) (OutreachTemplate, error)
}

// OutreachLogRepository manages OutreachLog persistence.
type OutreachLogRepository interface {
	Create(ctx Context, l OutreachLog) (string, error)
	UpdateStatus(ctx Context, id string, status OutreachStatus, details map[string]any) error
	FindByExternalMessageID(ctx Context, externalMessageID string) (OutreachLog, error)
	Get(ctx Context, id string) (OutreachLog, error)
}

// EventPublisher publishes domain events to the event log (port around the
// event-log client's Publish/Flush contract).
type EventPublisher interface {
	Publish(ctx Context, topic, key string, payload any) error
	Flush(ctx Context) error
}

// UnitOfWork runs fn inside a single database transaction, committing on a
// nil return and rolling back otherwise. fn receives a ctx carrying the open
// transaction; repositories called with that ctx must participate in it
// rather than opening a transaction of their own. Used to keep the log,
// lead, and experiment counter mutations that accompany one outreach event
// from diverging when a later step in the sequence fails.
type UnitOfWork interface {
	WithinTx(ctx Context, fn func(ctx Context) error) error
}
