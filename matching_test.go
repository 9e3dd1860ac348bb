package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// MATCHING CORE TEST SUITE
// ============================================================================

func intPtr(n int) *int { return &n }

type fakeProfileStore struct {
	users map[int]*UserProfile
	order []int // listing order for ListActiveUsers
}

func (s *fakeProfileStore) GetUser(ctx context.Context, id int) (*UserProfile, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, notFoundf("user %d", id)
	}
	return u, nil
}

func (s *fakeProfileStore) ListActiveUsers(ctx context.Context, excluding int, f MatchFilters) ([]UserProfile, error) {
	var out []UserProfile
	for _, id := range s.order {
		u := s.users[id]
		if u.ID == excluding || !u.Active {
			continue
		}
		if f.MinAge != nil && (u.Age == nil || *u.Age < *f.MinAge) {
			continue
		}
		if f.MaxAge != nil && (u.Age == nil || *u.Age > *f.MaxAge) {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

type fakeTraitSource struct {
	vectors map[int]TraitVector
	fail    map[int]error
}

func (s *fakeTraitSource) LatestTraitVector(ctx context.Context, userID int) (TraitVector, error) {
	if err := s.fail[userID]; err != nil {
		return nil, err
	}
	if tv, ok := s.vectors[userID]; ok {
		return tv, nil
	}
	return TraitVector{}, nil
}

type fakeBatchTraitSource struct {
	fakeTraitSource
	batchCalls int
}

func (s *fakeBatchTraitSource) LatestTraitVectors(ctx context.Context, userIDs []int) (map[int]TraitVector, error) {
	s.batchCalls++
	out := make(map[int]TraitVector, len(userIDs))
	for _, id := range userIDs {
		tv, err := s.LatestTraitVector(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = tv
	}
	return out, nil
}

type fakeMatchStore struct {
	recs   []MatchRecord
	nextID int
	err    error // returned from both methods when set
}

func (s *fakeMatchStore) Insert(ctx context.Context, rec *MatchRecord) error {
	if s.err != nil {
		return s.err
	}
	s.nextID++
	rec.ID = s.nextID
	rec.CreatedAt = time.Now()
	s.recs = append(s.recs, *rec)
	return nil
}

func (s *fakeMatchStore) ByParticipant(ctx context.Context, userID, limit int) ([]MatchRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []MatchRecord
	for _, rec := range s.recs {
		if rec.UserID == userID || rec.TargetID == userID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestMatcher(profiles *fakeProfileStore, traits TraitSource) (*Matcher, *fakeMatchStore) {
	matches := &fakeMatchStore{}
	return NewMatcher(profiles, traits, matches), matches
}

// ----------------------------------------------------------------------------
// CompatibilityScore
// ----------------------------------------------------------------------------

func TestCompatibilityScoreSymmetry(t *testing.T) {
	pairs := []struct {
		a, b   UserProfile
		ta, tb TraitVector
	}{
		{
			a:  UserProfile{ID: 1, Age: intPtr(30), Gender: "f", Location: "Oslo"},
			b:  UserProfile{ID: 2, Age: intPtr(33), Gender: "F", Location: "oslo"},
			ta: TraitVector{"openness": 0.8, "warmth": 0.4},
			tb: TraitVector{"openness": 0.5, "humor": 0.9},
		},
		{
			a:  UserProfile{ID: 1},
			b:  UserProfile{ID: 2, Age: intPtr(40), Gender: "m"},
			ta: TraitVector{},
			tb: TraitVector{"openness": 1.0},
		},
		{
			a:  UserProfile{ID: 1, Age: intPtr(22), Location: "Berlin"},
			b:  UserProfile{ID: 2, Age: intPtr(31), Location: "berlin"},
			ta: TraitVector{"a": 0.1, "b": 0.2, "c": 0.3, "d": 0.4, "e": 0.5, "f": 0.6},
			tb: TraitVector{"a": 0.9, "b": 0.8, "c": 0.7, "d": 0.6, "e": 0.5, "f": 0.4},
		},
	}
	for i, p := range pairs {
		forward := CompatibilityScore(&p.a, &p.b, p.ta, p.tb)
		backward := CompatibilityScore(&p.b, &p.a, p.tb, p.ta)
		assert.InDelta(t, forward, backward, 1e-9, "pair %d", i)
	}
}

func TestCompatibilityScoreBounds(t *testing.T) {
	bigVector := TraitVector{}
	for i := 0; i < 20; i++ {
		bigVector[fmt.Sprintf("trait%d", i)] = 1.0
	}
	cases := []struct {
		a, b   UserProfile
		ta, tb TraitVector
	}{
		{UserProfile{}, UserProfile{}, nil, nil},
		{UserProfile{Age: intPtr(30), Gender: "f", Location: "x"},
			UserProfile{Age: intPtr(30), Gender: "f", Location: "x"}, bigVector, bigVector},
		{UserProfile{Age: intPtr(0)}, UserProfile{Age: intPtr(120)}, TraitVector{"a": 0}, TraitVector{"a": 1}},
	}
	for i, c := range cases {
		score := CompatibilityScore(&c.a, &c.b, c.ta, c.tb)
		assert.GreaterOrEqual(t, score, 0.0, "case %d", i)
		assert.LessOrEqual(t, score, 1.0, "case %d", i)
	}
}

func TestCompatibilityScoreFullDemographicPlusOneTrait(t *testing.T) {
	a := UserProfile{Age: intPtr(28), Gender: "f", Location: "Oslo"}
	b := UserProfile{Age: intPtr(31), Gender: "F", Location: "OSLO"}
	ta := TraitVector{"openness": 0.7}
	tb := TraitVector{"openness": 0.7}

	// 0.3 (age within 5) + 0.2 (location) + 0.1 (gender) + 0.1 (identical trait)
	assert.InDelta(t, 0.7, CompatibilityScore(&a, &b, ta, tb), 1e-9)
}

func TestCompatibilityScoreNoOverlap(t *testing.T) {
	a := UserProfile{Age: intPtr(20), Gender: "f", Location: "Oslo"}
	b := UserProfile{Age: intPtr(45), Gender: "m", Location: "Berlin"}
	ta := TraitVector{"openness": 0.9}
	tb := TraitVector{"humor": 0.9}

	assert.Equal(t, 0.0, CompatibilityScore(&a, &b, ta, tb))
}

func TestCompatibilityScoreAgeBands(t *testing.T) {
	tests := []struct {
		name string
		ageA int
		ageB int
		want float64
	}{
		{"SameAge", 30, 30, 0.3},
		{"WithinFive", 30, 35, 0.3},
		{"WithinTen", 30, 40, 0.15},
		{"Beyond", 30, 41, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := UserProfile{Age: intPtr(tt.ageA)}
			b := UserProfile{Age: intPtr(tt.ageB)}
			assert.InDelta(t, tt.want, CompatibilityScore(&a, &b, nil, nil), 1e-9)
		})
	}
}

func TestCompatibilityScoreMissingDemographics(t *testing.T) {
	a := UserProfile{Age: intPtr(30), Location: "Oslo"}
	b := UserProfile{Gender: "f", Location: "Oslo"}

	// Only the location factor can fire; age and gender are one-sided.
	assert.InDelta(t, 0.2, CompatibilityScore(&a, &b, nil, nil), 1e-9)
}

func TestTraitContributionCappedAtHalf(t *testing.T) {
	// Six identical shared traits would contribute 0.6 uncapped.
	ta := TraitVector{}
	tb := TraitVector{}
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("trait%d", i)
		ta[name] = 0.5
		tb[name] = 0.5
	}
	a := UserProfile{}
	b := UserProfile{}

	assert.InDelta(t, 0.5, CompatibilityScore(&a, &b, ta, tb), 1e-9)
}

func TestTopTraitsStableOrder(t *testing.T) {
	tv := TraitVector{
		"warmth":   0.9,
		"humor":    0.9,
		"openness": 0.7,
		"patience": 0.5,
		"candor":   0.5,
		"grit":     0.1,
	}
	// Ties break alphabetically, so the order never changes between calls.
	require.Equal(t, []string{"humor", "warmth", "openness", "candor", "patience"}, topTraits(tv, 5))
	require.Equal(t, []string{}, topTraits(TraitVector{}, 5))
}

// ----------------------------------------------------------------------------
// RankCandidates
// ----------------------------------------------------------------------------

func TestRankCandidatesStableTieOrder(t *testing.T) {
	me := &UserProfile{ID: 1, Age: intPtr(30), Gender: "f", Location: "Oslo", Active: true}
	shared := TraitVector{"warmth": 0.8, "humor": 0.6, "openness": 0.4}

	profiles := &fakeProfileStore{
		users: map[int]*UserProfile{
			1: me,
			// 0.3 + 0.2 + 0.1 demographics + 0.3 traits = 0.9
			2: {ID: 2, Age: intPtr(30), Gender: "f", Location: "Oslo", Active: true},
			// age band only = 0.3
			3: {ID: 3, Age: intPtr(30), Active: true},
			// second 0.9 candidate, listed after the 0.3 one
			4: {ID: 4, Age: intPtr(30), Gender: "f", Location: "Oslo", Active: true},
			// gender only = 0.1
			5: {ID: 5, Gender: "f", Active: true},
		},
		order: []int{2, 3, 4, 5},
	}
	traits := &fakeTraitSource{vectors: map[int]TraitVector{
		1: shared, 2: shared, 4: shared,
	}}
	m, _ := newTestMatcher(profiles, traits)

	results, err := m.RankCandidates(context.Background(), 1, MatchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 4)

	ids := []int{results[0].UserID, results[1].UserID, results[2].UserID, results[3].UserID}
	assert.Equal(t, []int{2, 4, 3, 5}, ids, "equal scores keep original relative order")

	wantScores := []float64{0.9, 0.9, 0.3, 0.1}
	for i, want := range wantScores {
		assert.InDelta(t, want, results[i].Score, 1e-9)
	}
}

func TestRankCandidatesCapsAtTwenty(t *testing.T) {
	profiles := &fakeProfileStore{users: map[int]*UserProfile{
		1: {ID: 1, Age: intPtr(30), Active: true},
	}}
	for i := 2; i <= 26; i++ {
		profiles.users[i] = &UserProfile{ID: i, Age: intPtr(30), Active: true}
		profiles.order = append(profiles.order, i)
	}
	m, _ := newTestMatcher(profiles, &fakeTraitSource{})

	results, err := m.RankCandidates(context.Background(), 1, MatchFilters{})
	require.NoError(t, err)
	assert.Len(t, results, 20)
}

func TestRankCandidatesUnknownRequester(t *testing.T) {
	m, _ := newTestMatcher(&fakeProfileStore{users: map[int]*UserProfile{}}, &fakeTraitSource{})

	_, err := m.RankCandidates(context.Background(), 999, MatchFilters{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRankCandidatesAgeFilters(t *testing.T) {
	profiles := &fakeProfileStore{
		users: map[int]*UserProfile{
			1: {ID: 1, Age: intPtr(30), Active: true},
			2: {ID: 2, Age: intPtr(22), Active: true},
			3: {ID: 3, Age: intPtr(30), Active: true},
			4: {ID: 4, Age: intPtr(50), Active: true},
		},
		order: []int{2, 3, 4},
	}
	m, _ := newTestMatcher(profiles, &fakeTraitSource{})

	results, err := m.RankCandidates(context.Background(), 1,
		MatchFilters{MinAge: intPtr(25), MaxAge: intPtr(40)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].UserID)
}

func TestRankCandidatesInterestFilterInert(t *testing.T) {
	profiles := &fakeProfileStore{
		users: map[int]*UserProfile{
			1: {ID: 1, Active: true},
			2: {ID: 2, Active: true},
		},
		order: []int{2},
	}
	m, _ := newTestMatcher(profiles, &fakeTraitSource{})

	// The interests filter is accepted but must not change the result set.
	withFilter, err := m.RankCandidates(context.Background(), 1,
		MatchFilters{Interests: []string{"hiking", "jazz"}})
	require.NoError(t, err)
	without, err := m.RankCandidates(context.Background(), 1, MatchFilters{})
	require.NoError(t, err)
	assert.Equal(t, without, withFilter)
}

func TestRankCandidatesInterestsPreview(t *testing.T) {
	profiles := &fakeProfileStore{
		users: map[int]*UserProfile{
			1: {ID: 1, Active: true},
			2: {ID: 2, Active: true},
			3: {ID: 3, Active: true},
		},
		order: []int{2, 3},
	}
	traits := &fakeTraitSource{vectors: map[int]TraitVector{
		2: {
			"warmth":   0.9,
			"humor":    0.8,
			"openness": 0.7,
			"patience": 0.6,
			"candor":   0.5,
			"grit":     0.4,
		},
	}}
	m, _ := newTestMatcher(profiles, traits)

	results, err := m.RankCandidates(context.Background(), 1, MatchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[int]CandidateMatch{}
	for _, res := range results {
		byID[res.UserID] = res
	}
	assert.Equal(t, []string{"warmth", "humor", "openness"}, byID[2].Interests)
	assert.NotNil(t, byID[3].Interests)
	assert.Empty(t, byID[3].Interests)
}

func TestRankCandidatesCollaboratorFailure(t *testing.T) {
	profiles := &fakeProfileStore{
		users: map[int]*UserProfile{
			1: {ID: 1, Active: true},
			2: {ID: 2, Active: true},
			3: {ID: 3, Active: true},
		},
		order: []int{2, 3},
	}
	traits := &fakeTraitSource{
		fail: map[int]error{3: errors.New("connection reset")},
	}
	m, _ := newTestMatcher(profiles, traits)

	// One failed candidate lookup fails the whole ranking call.
	_, err := m.RankCandidates(context.Background(), 1, MatchFilters{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCollaborator))
}

func TestRankCandidatesUsesBatchSource(t *testing.T) {
	profiles := &fakeProfileStore{
		users: map[int]*UserProfile{
			1: {ID: 1, Age: intPtr(30), Active: true},
			2: {ID: 2, Age: intPtr(30), Active: true},
			3: {ID: 3, Age: intPtr(60), Active: true},
		},
		order: []int{2, 3},
	}
	traits := &fakeBatchTraitSource{}
	m, _ := newTestMatcher(profiles, traits)

	results, err := m.RankCandidates(context.Background(), 1, MatchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, traits.batchCalls)
	assert.Equal(t, 2, results[0].UserID)
}

// ----------------------------------------------------------------------------
// RecordLike / MutualMatches
// ----------------------------------------------------------------------------

func TestRecordLikeAppendsEveryTime(t *testing.T) {
	profiles := &fakeProfileStore{users: map[int]*UserProfile{
		1: {ID: 1, Age: intPtr(30), Active: true},
		2: {ID: 2, Age: intPtr(32), Active: true},
	}}
	m, matches := newTestMatcher(profiles, &fakeTraitSource{})

	first, err := m.RecordLike(context.Background(), 1, 2)
	require.NoError(t, err)
	second, err := m.RecordLike(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.InDelta(t, 0.3, first, 1e-9)
	assert.Equal(t, first, second)
	require.Len(t, matches.recs, 2, "repeated likes append rows, never update")
	assert.NotEqual(t, matches.recs[0].ID, matches.recs[1].ID)
	assert.Equal(t, 1, matches.recs[0].UserID)
	assert.Equal(t, 2, matches.recs[0].TargetID)
}

func TestRecordLikeUnknownUsers(t *testing.T) {
	profiles := &fakeProfileStore{users: map[int]*UserProfile{
		1: {ID: 1, Active: true},
	}}
	m, matches := newTestMatcher(profiles, &fakeTraitSource{})

	_, err := m.RecordLike(context.Background(), 1, 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = m.RecordLike(context.Background(), 42, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Empty(t, matches.recs)
}

func TestMatchStoreFailureSurfaces(t *testing.T) {
	profiles := &fakeProfileStore{users: map[int]*UserProfile{
		1: {ID: 1, Active: true},
		2: {ID: 2, Active: true},
	}}
	matches := &fakeMatchStore{err: collabf(errors.New("connection reset"), "insert match record")}
	m := NewMatcher(profiles, &fakeTraitSource{}, matches)

	_, err := m.RecordLike(context.Background(), 1, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCollaborator))

	_, err = m.MutualMatches(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCollaborator))
}

func TestMutualMatchesOneDirectional(t *testing.T) {
	profiles := &fakeProfileStore{users: map[int]*UserProfile{
		1: {ID: 1, Age: intPtr(30), FullName: "Alice", Active: true},
		2: {ID: 2, Age: intPtr(31), FullName: "Bo", Active: true},
		3: {ID: 3, Age: intPtr(60), FullName: "Cleo", Active: true},
	}}
	m, _ := newTestMatcher(profiles, &fakeTraitSource{})

	_, err := m.RecordLike(context.Background(), 1, 2) // 0.3
	require.NoError(t, err)
	_, err = m.RecordLike(context.Background(), 3, 1) // 0.0, incoming like
	require.NoError(t, err)

	results, err := m.MutualMatches(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, results, 2, "one-directional likes are listed; no reciprocity check")

	assert.Equal(t, 2, results[0].UserID)
	assert.Equal(t, "Bo", results[0].Name)
	assert.InDelta(t, 0.3, results[0].Score, 1e-9)
	assert.Equal(t, 3, results[1].UserID)
}
