package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ProfileStore supplies user demographic records.
type ProfileStore interface {
	GetUser(ctx context.Context, id int) (*UserProfile, error)
	ListActiveUsers(ctx context.Context, excluding int, f MatchFilters) ([]UserProfile, error)
}

// TraitSource supplies the latest trait vector for a user. A user with no
// analysis history yields an empty vector, not an error.
type TraitSource interface {
	LatestTraitVector(ctx context.Context, userID int) (TraitVector, error)
}

// batchTraitSource is an optional TraitSource upgrade: sources that can
// fetch many vectors in one round trip implement it and the ranker will
// use it instead of one lookup per candidate.
type batchTraitSource interface {
	LatestTraitVectors(ctx context.Context, userIDs []int) (map[int]TraitVector, error)
}

// MatchStore persists like events. Implementations report their failures
// as collaborator errors.
type MatchStore interface {
	Insert(ctx context.Context, rec *MatchRecord) error
	// ByParticipant returns records where either side equals userID,
	// ordered by stored score descending.
	ByParticipant(ctx context.Context, userID, limit int) ([]MatchRecord, error)
}

const (
	maxCandidates    = 20
	mutualLimit      = 10
	traitWeight      = 0.1
	traitCap         = 0.5
	previewTraits    = 5
	displayInterests = 3
)

// CompatibilityScore combines demographic and trait similarity between two
// users into a single score in [0, 1]. Deterministic and symmetric in its
// inputs; missing demographics and empty vectors contribute zero.
func CompatibilityScore(a, b *UserProfile, ta, tb TraitVector) float64 {
	score := demographicScore(a, b) + traitScore(ta, tb)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// demographicScore contributes at most 0.6: age proximity (0.3 within 5
// years, 0.15 within 10), same location (0.2), same gender (0.1).
func demographicScore(a, b *UserProfile) float64 {
	score := 0.0
	if a.Age != nil && b.Age != nil {
		d := *a.Age - *b.Age
		if d < 0 {
			d = -d
		}
		switch {
		case d <= 5:
			score += 0.3
		case d <= 10:
			score += 0.15
		}
	}
	if a.Location != "" && b.Location != "" && strings.EqualFold(a.Location, b.Location) {
		score += 0.2
	}
	if a.Gender != "" && b.Gender != "" && strings.EqualFold(a.Gender, b.Gender) {
		score += 0.1
	}
	return score
}

// traitScore sums (1 - |Δ|) * 0.1 over the shared trait keys, capped at
// 0.5. Only the intersection matters, so disjoint vectors add nothing.
func traitScore(ta, tb TraitVector) float64 {
	sum := 0.0
	for name, av := range ta {
		bv, ok := tb[name]
		if !ok {
			continue
		}
		diff := av - bv
		if diff < 0 {
			diff = -diff
		}
		sum += (1 - diff) * traitWeight
	}
	if sum > traitCap {
		sum = traitCap
	}
	return sum
}

// topTraits returns up to n trait names ordered by score descending.
// Ties keep alphabetical order so the preview is stable between calls.
func topTraits(tv TraitVector, n int) []string {
	names := make([]string, 0, len(tv))
	for name := range tv {
		names = append(names, name)
	}
	sort.Strings(names)
	sort.SliceStable(names, func(i, j int) bool {
		return tv[names[i]] > tv[names[j]]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

// Matcher evaluates compatibility between users and records like events.
// All collaborators are injected, so the ranking logic never touches a
// concrete storage backend.
type Matcher struct {
	profiles ProfileStore
	traits   TraitSource
	matches  MatchStore
}

func NewMatcher(profiles ProfileStore, traits TraitSource, matches MatchStore) *Matcher {
	return &Matcher{profiles: profiles, traits: traits, matches: matches}
}

// RankCandidates scores every eligible candidate against the requester and
// returns the top page, best first. Equal scores keep the candidates'
// original relative order.
func (m *Matcher) RankCandidates(ctx context.Context, userID int, f MatchFilters) ([]CandidateMatch, error) {
	me, err := m.profiles.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	myTraits, err := m.traits.LatestTraitVector(ctx, userID)
	if err != nil {
		return nil, collabf(err, "trait lookup for user %d", userID)
	}

	candidates, err := m.profiles.ListActiveUsers(ctx, userID, f)
	if err != nil {
		return nil, err
	}

	vectors, err := m.candidateTraits(ctx, candidates)
	if err != nil {
		// One failed lookup fails the whole ranking call; there is no
		// partial-result degradation.
		return nil, err
	}

	results := make([]CandidateMatch, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		tv := vectors[c.ID]
		preview := topTraits(tv, previewTraits)
		if len(preview) > displayInterests {
			preview = preview[:displayInterests]
		}
		results = append(results, CandidateMatch{
			UserID:         c.ID,
			Name:           c.FullName,
			Age:            c.Age,
			Gender:         c.Gender,
			Location:       c.Location,
			Bio:            c.Bio,
			ProfilePicture: c.ProfilePicture,
			Score:          CompatibilityScore(me, c, myTraits, tv),
			Interests:      preview,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxCandidates {
		results = results[:maxCandidates]
	}
	return results, nil
}

func (m *Matcher) candidateTraits(ctx context.Context, candidates []UserProfile) (map[int]TraitVector, error) {
	ids := make([]int, len(candidates))
	for i := range candidates {
		ids[i] = candidates[i].ID
	}

	if bs, ok := m.traits.(batchTraitSource); ok {
		vectors, err := bs.LatestTraitVectors(ctx, ids)
		if err != nil {
			return nil, collabf(err, "batched trait lookup")
		}
		return vectors, nil
	}

	vectors := make(map[int]TraitVector, len(ids))
	for _, id := range ids {
		tv, err := m.traits.LatestTraitVector(ctx, id)
		if err != nil {
			return nil, collabf(err, "trait lookup for user %d", id)
		}
		vectors[id] = tv
	}
	return vectors, nil
}

// RecordLike verifies both users exist, scores the pair and persists a
// MatchRecord. Every like appends a new row; repeats are not collapsed.
func (m *Matcher) RecordLike(ctx context.Context, userID, targetID int) (float64, error) {
	me, err := m.profiles.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	target, err := m.profiles.GetUser(ctx, targetID)
	if err != nil {
		return 0, err
	}

	myTraits, err := m.traits.LatestTraitVector(ctx, userID)
	if err != nil {
		return 0, collabf(err, "trait lookup for user %d", userID)
	}
	targetTraits, err := m.traits.LatestTraitVector(ctx, targetID)
	if err != nil {
		return 0, collabf(err, "trait lookup for user %d", targetID)
	}

	score := CompatibilityScore(me, target, myTraits, targetTraits)
	rec := &MatchRecord{
		UserID:   userID,
		TargetID: targetID,
		Score:    score,
		Summary:  fmt.Sprintf("Match between user %d and %d", userID, targetID),
	}
	if err := m.matches.Insert(ctx, rec); err != nil {
		return 0, err
	}
	return score, nil
}

// MutualMatches lists stored likes involving the user, ranked by the score
// recorded at like time. A pair shows up from one side's like alone; two
// rows exist only when both users liked independently.
func (m *Matcher) MutualMatches(ctx context.Context, userID int) ([]MutualMatch, error) {
	recs, err := m.matches.ByParticipant(ctx, userID, mutualLimit)
	if err != nil {
		return nil, err
	}

	results := make([]MutualMatch, 0, len(recs))
	for _, rec := range recs {
		otherID := rec.TargetID
		if otherID == userID {
			otherID = rec.UserID
		}
		other, err := m.profiles.GetUser(ctx, otherID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		results = append(results, MutualMatch{
			UserID: other.ID,
			Name:   other.FullName,
			Score:  rec.Score,
		})
	}
	return results, nil
}
