package services

import (
	"sort"

	"wordbounty/internal/models"
)

// DetermineWinners ranks the eligible participants of a bounty and splits
// its prize. It has no side effects; an empty result means nobody qualified.
func DetermineWinners(bounty *models.Bounty, participants []*models.Participant) []models.Winner {
	eligible := eligibleParticipants(bounty.Criterion, participants)
	if len(eligible) == 0 {
		return nil
	}

	less := primaryLess(bounty.Criterion)
	if less == nil {
		return nil
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		if a.ElapsedMs != b.ElapsedMs {
			return a.ElapsedMs < b.ElapsedMs
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})

	var n int
	switch bounty.Distribution {
	case models.DistributionWinnerTakeAll:
		n = 1
	case models.DistributionSplitTopN:
		n = SPLIT_TOP_N
	default:
		return nil
	}
	if n > len(eligible) {
		n = len(eligible)
	}

	shares := splitPrize(bounty.PrizeAmount, n)
	winners := make([]models.Winner, n)
	for i := 0; i < n; i++ {
		winners[i] = models.Winner{
			ParticipantID: eligible[i].ID,
			UserID:        eligible[i].UserID,
			WalletAddress: eligible[i].WalletAddress,
			Share:         shares[i],
			Rank:          i + 1,
		}
	}
	return winners
}

func eligibleParticipants(criterion models.Criterion, participants []*models.Participant) []*models.Participant {
	var eligible []*models.Participant
	for _, p := range participants {
		if p.Status == models.ParticipantStatusCompleted && p.CompletedAt != nil {
			eligible = append(eligible, p)
		}
	}

	if criterion != models.CriterionFirstToSolve || len(eligible) == 0 {
		return eligible
	}

	// only the earliest completion qualifies; equal timestamps fall through
	// to the tie-breaks
	earliest := eligible[0].CompletedAt
	for _, p := range eligible[1:] {
		if p.CompletedAt.Before(*earliest) {
			earliest = p.CompletedAt
		}
	}
	var first []*models.Participant
	for _, p := range eligible {
		if p.CompletedAt.Equal(*earliest) {
			first = append(first, p)
		}
	}
	return first
}

func primaryLess(criterion models.Criterion) func(a, b *models.Participant) bool {
	switch criterion {
	case models.CriterionFirstToSolve:
		return func(a, b *models.Participant) bool { return a.CompletedAt.Before(*b.CompletedAt) }
	case models.CriterionFastestTime:
		return func(a, b *models.Participant) bool { return a.ElapsedMs < b.ElapsedMs }
	case models.CriterionFewestAttempts:
		return func(a, b *models.Participant) bool { return a.Attempts < b.Attempts }
	case models.CriterionMostWordsCorrect:
		return func(a, b *models.Participant) bool { return a.WordsCompleted > b.WordsCompleted }
	}
	return nil
}

// splitPrize divides amount into n equal shares; the remainder goes to the
// first share so the total is exact.
func splitPrize(amount int64, n int) []int64 {
	shares := make([]int64, n)
	if n == 0 {
		return shares
	}
	each := amount / int64(n)
	for i := range shares {
		shares[i] = each
	}
	shares[0] += amount - each*int64(n)
	return shares
}
