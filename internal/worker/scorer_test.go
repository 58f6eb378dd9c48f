package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bishnubista/pipeline-whisperer/internal/adapter/scoring"
	"github.com/bishnubista/pipeline-whisperer/internal/domain"
)

func rawLeadFixture() domain.RawLeadEvent {
	return domain.RawLeadEvent{
		ExternalID: "ext-1",
		Company: domain.CompanyInfo{
			Name:     "Acme Corp",
			Industry: "saas",
			Size:     "51-200",
			Website:  "https://acme.example",
		},
		Contact: domain.ContactInfo{
			Name:  "Jane Doe",
			Email: "jane@acme.example",
			Title: "VP Sales",
		},
	}
}

func TestScorer_HandleRecord_PersistsAndPublishesScoredEvent(t *testing.T) {
	leads := newFakeLeadRepo()
	pub := &fakePublisher{}
	sc := &fakeScoringClient{result: scoring.Result{Score: 0.8, Persona: "enterprise", Reasoning: "good fit"}}
	s := &Scorer{Leads: leads, Scoring: sc, Publisher: pub}

	raw := rawLeadFixture()
	value, err := json.Marshal(raw)
	require.NoError(t, err)

	err = s.HandleRecord(context.Background(), "leads.raw", raw.ExternalID, value)
	require.NoError(t, err)

	lead, err := leads.FindByExternalID(context.Background(), raw.ExternalID)
	require.NoError(t, err)
	require.NotNil(t, lead.Score)
	assert.Equal(t, 0.8, *lead.Score)
	assert.Equal(t, domain.LeadScored, lead.Status)

	require.Len(t, pub.calls, 1)
	assert.Equal(t, domain.TopicLeadsScored, pub.calls[0].Topic)
	assert.Equal(t, raw.ExternalID, pub.calls[0].Key)
	scored, ok := pub.calls[0].Payload.(domain.ScoredLeadEvent)
	require.True(t, ok)
	assert.Equal(t, 0.8, scored.Scoring.Score)
	assert.Equal(t, lead.ID, scored.DBID)
}

func TestScorer_HandleRecord_SkipsAlreadyScoredLead(t *testing.T) {
	leads := newFakeLeadRepo()
	raw := rawLeadFixture()
	_, err := leads.Create(context.Background(), domain.Lead{ID: "existing", ExternalID: raw.ExternalID})
	require.NoError(t, err)

	pub := &fakePublisher{}
	sc := &fakeScoringClient{}
	s := &Scorer{Leads: leads, Scoring: sc, Publisher: pub}

	value, err := json.Marshal(raw)
	require.NoError(t, err)
	err = s.HandleRecord(context.Background(), "leads.raw", raw.ExternalID, value)
	require.NoError(t, err)

	assert.Empty(t, pub.calls)
}

func TestScorer_HandleRecord_MalformedRecordCommitsWithoutError(t *testing.T) {
	s := &Scorer{Leads: newFakeLeadRepo(), Scoring: &fakeScoringClient{}, Publisher: &fakePublisher{}}
	err := s.HandleRecord(context.Background(), "leads.raw", "", []byte("not json"))
	assert.NoError(t, err)
}

func TestScorer_HandleRecord_MissingExternalIDCommitsWithoutError(t *testing.T) {
	s := &Scorer{Leads: newFakeLeadRepo(), Scoring: &fakeScoringClient{}, Publisher: &fakePublisher{}}
	value, err := json.Marshal(domain.RawLeadEvent{})
	require.NoError(t, err)
	err = s.HandleRecord(context.Background(), "leads.raw", "", value)
	assert.NoError(t, err)
}

func TestScorer_HandleRecord_ScoringErrorPropagatesForRedelivery(t *testing.T) {
	leads := newFakeLeadRepo()
	pub := &fakePublisher{}
	sc := &fakeScoringClient{err: errors.New("scoring backend unavailable")}
	s := &Scorer{Leads: leads, Scoring: sc, Publisher: pub}

	raw := rawLeadFixture()
	value, err := json.Marshal(raw)
	require.NoError(t, err)

	err = s.HandleRecord(context.Background(), "leads.raw", raw.ExternalID, value)
	require.Error(t, err)
	assert.Empty(t, pub.calls)
	_, lookupErr := leads.FindByExternalID(context.Background(), raw.ExternalID)
	assert.ErrorIs(t, lookupErr, domain.ErrNotFound)
}

func TestScorer_HandleRecord_PublishFailureLeavesLeadUnpersisted(t *testing.T) {
	leads := newFakeLeadRepo()
	pub := &fakePublisher{publishErr: errors.New("broker unavailable")}
	sc := &fakeScoringClient{result: scoring.Result{Score: 0.9, Persona: "smb"}}
	s := &Scorer{Leads: leads, Scoring: sc, Publisher: pub}

	raw := rawLeadFixture()
	value, err := json.Marshal(raw)
	require.NoError(t, err)

	err = s.HandleRecord(context.Background(), "leads.raw", raw.ExternalID, value)
	require.Error(t, err)

	_, lookupErr := leads.FindByExternalID(context.Background(), raw.ExternalID)
	assert.ErrorIs(t, lookupErr, domain.ErrNotFound)
}
