package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdentityKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		a, b     [2]string
		wantSame bool
	}{
		{"case", [2]string{"Acme", "John Doe"}, [2]string{"ACME", "john doe"}, true},
		{"whitespace", [2]string{" Acme  Corp", "John   Doe "}, [2]string{"Acme Corp", "John Doe"}, true},
		{"fullwidth", [2]string{"Ａcme", "John Doe"}, [2]string{"acme", "john doe"}, true},
		{"different person", [2]string{"Acme", "John Doe"}, [2]string{"Acme", "Jane Doe"}, false},
		{"different company", [2]string{"Acme", "John Doe"}, [2]string{"Acme Inc", "John Doe"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ka := IdentityKey(tt.a[0], tt.a[1])
			kb := IdentityKey(tt.b[0], tt.b[1])
			assert.Equal(t, tt.wantSame, ka == kb, "%q vs %q", ka, kb)
		})
	}
}

func TestSourceValues(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "apollo", SourceApollo.String())
	assert.Equal(t, "rocketreach", string(SourceRocketReach))
}

func TestMergedContact_AddSource(t *testing.T) {
	t.Parallel()

	c := MergedContact{Sources: []Source{SourceRocketReach}}
	c.AddSource(SourceApollo)
	c.AddSource(SourceRocketReach)

	assert.Equal(t, []Source{SourceApollo, SourceRocketReach}, c.Sources)
	assert.True(t, c.HasSource(SourceApollo))
	assert.Equal(t, "apollo;rocketreach", c.SourceNames(";"))
}

func TestSearchOutcome(t *testing.T) {
	t.Parallel()

	found := Found([]RawContact{{Name: "John Doe"}})
	assert.Equal(t, OutcomeFound, found.Kind())
	assert.Len(t, found.Contacts(), 1)
	assert.NoError(t, found.Err())

	assert.Equal(t, OutcomeEmpty, Found(nil).Kind())
	assert.Equal(t, OutcomeEmpty, Empty().Kind())

	failed := TransportError(errors.New("boom"))
	assert.Equal(t, OutcomeTransportError, failed.Kind())
	assert.EqualError(t, failed.Err(), "boom")
	assert.Nil(t, failed.Contacts())
	assert.Equal(t, "transport_error", failed.Kind().String())
}

func TestEnrichmentState_Lifecycle(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewEnrichmentState("Acme", "acme.com", start)
	assert.Equal(t, StageInitializing, s.Stage)
	assert.Equal(t, StatusRunning, s.Status)

	s.Advance(StageSearching)
	assert.Equal(t, StageSearching, s.Stage)
	assert.Equal(t, StatusRunning, s.Status)

	s.SourceDone(SourceApollo, 2)
	s.SourceDone(SourceRocketReach, 0)
	assert.Equal(t, []Source{SourceApollo, SourceRocketReach}, s.SourcesCompleted)
	assert.Equal(t, map[Source]int{SourceApollo: 2, SourceRocketReach: 0}, s.RetryCounts)

	s.Advance(StageMerging)
	s.AddError("apollo: timeout")
	s.Finish(false, start.Add(time.Second))
	assert.Equal(t, StageComplete, s.Stage)
	assert.Equal(t, StatusSuccess, s.Status)
	assert.Equal(t, []string{"apollo: timeout"}, s.Errors)
	if assert.NotNil(t, s.EndTime) {
		assert.Equal(t, start.Add(time.Second), *s.EndTime)
	}
}

func TestEnrichmentState_FailedKeepsStage(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewEnrichmentState("Acme", "", start)
	s.Advance(StageSearching)
	s.Finish(true, start)
	assert.Equal(t, StageSearching, s.Stage)
	assert.Equal(t, StatusFailed, s.Status)
}

func TestEnrichmentState_Clone(t *testing.T) {
	t.Parallel()

	s := NewEnrichmentState("Acme", "", time.Now())
	s.SourceDone(SourceApollo, 1)
	s.AddError("boom")

	c := s.Clone()
	s.SourceDone(SourceRocketReach, 3)
	s.Errors[0] = "changed"

	assert.Equal(t, []Source{SourceApollo}, c.SourcesCompleted)
	assert.Equal(t, map[Source]int{SourceApollo: 1}, c.RetryCounts)
	assert.Equal(t, []string{"boom"}, c.Errors)
}

func TestEnrichmentResult_Clone(t *testing.T) {
	t.Parallel()

	r := EnrichmentResult{
		CompanyName:      "Acme",
		Contacts:         []MergedContact{{Name: "John Doe", Sources: []Source{SourceApollo}}},
		SourceMetrics:    map[Source]SourceMetrics{SourceApollo: {Attempts: 1}},
		ValidationScores: ValidationScores{ByContact: map[string]float64{"john doe": 1}},
	}

	c := r.Clone()
	r.Contacts[0].Name = "MUTATED"
	r.Contacts[0].Sources[0] = SourceRocketReach
	r.SourceMetrics[SourceApollo] = SourceMetrics{Attempts: 9}
	r.ValidationScores.ByContact["john doe"] = 0

	assert.Equal(t, "John Doe", c.Contacts[0].Name)
	assert.Equal(t, []Source{SourceApollo}, c.Contacts[0].Sources)
	assert.Equal(t, 1, c.SourceMetrics[SourceApollo].Attempts)
	assert.InDelta(t, 1.0, c.ValidationScores.ByContact["john doe"], 1e-9)
}

func TestEnrichmentResult_Failed(t *testing.T) {
	t.Parallel()
	assert.False(t, (&EnrichmentResult{}).Failed())
	assert.True(t, (&EnrichmentResult{ErrorDetails: "cache: unavailable"}).Failed())
}
