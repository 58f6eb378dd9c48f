package worker

import (
	"sync"

	"github.com/bishnubista/pipeline-whisperer/internal/adapter/scoring"
	"github.com/bishnubista/pipeline-whisperer/internal/domain"
	"github.com/bishnubista/pipeline-whisperer/internal/usecase"
)

// fakeLeadRepo is an in-memory domain.LeadRepository double for worker
// unit tests.
type fakeLeadRepo struct {
	mu    sync.Mutex
	byID  map[string]domain.Lead
	byExt map[string]string // external_id -> id

	createErr error
	updateErr error
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{byID: map[string]domain.Lead{}, byExt: map[string]string{}}
}

func (r *fakeLeadRepo) Create(_ domain.Context, l domain.Lead) (string, error) {
	if r.createErr != nil {
		return "", r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[l.ID] = l
	r.byExt[l.ExternalID] = l.ID
	return l.ID, nil
}

func (r *fakeLeadRepo) Update(_ domain.Context, l domain.Lead) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[l.ID] = l
	return nil
}

func (r *fakeLeadRepo) Get(_ domain.Context, id string) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byID[id]
	if !ok {
		return domain.Lead{}, domain.ErrNotFound
	}
	return l, nil
}

func (r *fakeLeadRepo) FindByExternalID(_ domain.Context, externalID string) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byExt[externalID]
	if !ok {
		return domain.Lead{}, domain.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *fakeLeadRepo) CountByStatus(_ domain.Context, status domain.LeadStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.byID {
		if l.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *fakeLeadRepo) List(_ domain.Context, _, _ int) ([]domain.Lead, error) {
	return nil, nil
}

// fakeExperimentRepo is an in-memory domain.ExperimentRepository double.
type fakeExperimentRepo struct {
	mu     sync.Mutex
	byID   map[string]domain.Experiment
	active []string

	assignCalls     []string
	sendCalls       []string
	responseCalls   []string
	conversionCalls []struct {
		ExperimentID  string
		BetaIncrement float64
	}
	notFoundOnID string
}

func newFakeExperimentRepo(experiments ...domain.Experiment) *fakeExperimentRepo {
	r := &fakeExperimentRepo{byID: map[string]domain.Experiment{}}
	for _, e := range experiments {
		r.byID[e.ExperimentID] = e
		if e.IsActive {
			r.active = append(r.active, e.ExperimentID)
		}
	}
	return r
}

func (r *fakeExperimentRepo) Get(_ domain.Context, experimentID string) (domain.Experiment, error) {
	if experimentID == r.notFoundOnID {
		return domain.Experiment{}, domain.ErrNotFound
	}
	e, ok := r.byID[experimentID]
	if !ok {
		return domain.Experiment{}, domain.ErrNotFound
	}
	return e, nil
}

func (r *fakeExperimentRepo) ListActive(_ domain.Context) ([]domain.Experiment, error) {
	out := make([]domain.Experiment, 0, len(r.active))
	for _, id := range r.active {
		out = append(out, r.byID[id])
	}
	return out, nil
}

func (r *fakeExperimentRepo) IncrementOnAssign(_ domain.Context, experimentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignCalls = append(r.assignCalls, experimentID)
	e := r.byID[experimentID]
	e.LeadsAssigned++
	e.RefreshRates()
	r.byID[experimentID] = e
	return nil
}

func (r *fakeExperimentRepo) IncrementOnSend(_ domain.Context, experimentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendCalls = append(r.sendCalls, experimentID)
	e := r.byID[experimentID]
	e.OutreachSent++
	e.RefreshRates()
	r.byID[experimentID] = e
	return nil
}

func (r *fakeExperimentRepo) IncrementOnResponse(_ domain.Context, experimentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responseCalls = append(r.responseCalls, experimentID)
	e := r.byID[experimentID]
	e.ResponsesReceived++
	e.RefreshRates()
	r.byID[experimentID] = e
	return nil
}

func (r *fakeExperimentRepo) IncrementOnConversion(_ domain.Context, experimentID string, betaIncrement float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversionCalls = append(r.conversionCalls, struct {
		ExperimentID  string
		BetaIncrement float64
	}{experimentID, betaIncrement})
	e := r.byID[experimentID]
	e.Conversions++
	e.Alpha += 1
	e.Beta += betaIncrement
	e.RefreshRates()
	r.byID[experimentID] = e
	return nil
}

// fakeTemplateRepo is an in-memory domain.TemplateRepository double.
type fakeTemplateRepo struct {
	byExperiment map[string][]domain.OutreachTemplate
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{byExperiment: map[string][]domain.OutreachTemplate{}}
}

func (r *fakeTemplateRepo) ListActiveByExperiment(_ domain.Context, experimentID string) ([]domain.OutreachTemplate, error) {
	return r.byExperiment[experimentID], nil
}

func (r *fakeTemplateRepo) Get(_ domain.Context, templateID string) (domain.OutreachTemplate, error) {
	for _, ts := range r.byExperiment {
		for _, t := range ts {
			if t.TemplateID == templateID {
				return t, nil
			}
		}
	}
	return domain.OutreachTemplate{}, domain.ErrNotFound
}

// fakeOutreachLogRepo is an in-memory domain.OutreachLogRepository double.
type fakeOutreachLogRepo struct {
	mu        sync.Mutex
	byID      map[string]domain.OutreachLog
	byMsgID   map[string]string
	nextID    int
	createErr error
}

func newFakeOutreachLogRepo() *fakeOutreachLogRepo {
	return &fakeOutreachLogRepo{byID: map[string]domain.OutreachLog{}, byMsgID: map[string]string{}}
}

func (r *fakeOutreachLogRepo) Create(_ domain.Context, l domain.OutreachLog) (string, error) {
	if r.createErr != nil {
		return "", r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := fakeLogID(r.nextID)
	l.ID = id
	r.byID[id] = l
	if l.ExternalMessageID != "" {
		r.byMsgID[l.ExternalMessageID] = id
	}
	return id, nil
}

func (r *fakeOutreachLogRepo) UpdateStatus(_ domain.Context, id string, status domain.OutreachStatus, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.Status = status
	r.byID[id] = l
	return nil
}

func (r *fakeOutreachLogRepo) FindByExternalMessageID(_ domain.Context, externalMessageID string) (domain.OutreachLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byMsgID[externalMessageID]
	if !ok {
		return domain.OutreachLog{}, domain.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *fakeOutreachLogRepo) Get(_ domain.Context, id string) (domain.OutreachLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byID[id]
	if !ok {
		return domain.OutreachLog{}, domain.ErrNotFound
	}
	return l, nil
}

func fakeLogID(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	return "log-" + string(alphabet[n%len(alphabet)]) + string(rune('0'+n))
}

// fakeUnitOfWork is a domain.UnitOfWork double that runs fn directly,
// optionally injecting a begin error before fn ever runs.
type fakeUnitOfWork struct {
	mu       sync.Mutex
	calls    int
	beginErr error
}

func (u *fakeUnitOfWork) WithinTx(ctx domain.Context, fn func(ctx domain.Context) error) error {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()
	if u.beginErr != nil {
		return u.beginErr
	}
	return fn(ctx)
}

// fakePublisher records every Publish call for assertions.
type fakePublisher struct {
	mu         sync.Mutex
	calls      []publishedRecord
	publishErr error
}

type publishedRecord struct {
	Topic   string
	Key     string
	Payload any
}

func (p *fakePublisher) Publish(_ domain.Context, topic, key string, payload any) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishedRecord{Topic: topic, Key: key, Payload: payload})
	return nil
}

func (p *fakePublisher) Flush(_ domain.Context) error { return nil }

// fakeScoringClient is a scoring.Client double.
type fakeScoringClient struct {
	result scoring.Result
	err    error

	lastCompany usecase.NormalizedCompany
}

func (c *fakeScoringClient) Score(_ domain.Context, company usecase.NormalizedCompany) (scoring.Result, error) {
	c.lastCompany = company
	return c.result, c.err
}
