package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"wordbounty/internal/interfaces"
	"wordbounty/internal/models"
	"wordbounty/internal/pkg/metrics"

	"github.com/go-redis/redis_rate/v10"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
)

type ServiceAttempt struct {
	container *do.Injector
	store     interfaces.BountyStore
	progress  interfaces.ProgressStore
	validator interfaces.WordValidator
	limiter   interfaces.Limiter
	locker    interfaces.Locker
	logger    *slog.Logger
	clock     clockwork.Clock

	serviceConfig *ServiceConfig
}

func NewServiceAttempt(container *do.Injector) (*ServiceAttempt, error) {
	store, err := do.Invoke[interfaces.BountyStore](container)
	if err != nil {
		return nil, err
	}

	progress, err := do.Invoke[interfaces.ProgressStore](container)
	if err != nil {
		return nil, err
	}

	validator, err := do.Invoke[interfaces.WordValidator](container)
	if err != nil {
		return nil, err
	}

	limiter, err := do.Invoke[interfaces.Limiter](container)
	if err != nil {
		return nil, err
	}

	locker, err := do.Invoke[interfaces.Locker](container)
	if err != nil {
		return nil, err
	}

	logger, err := do.Invoke[*slog.Logger](container)
	if err != nil {
		return nil, err
	}

	clock, err := do.Invoke[clockwork.Clock](container)
	if err != nil {
		return nil, err
	}

	serviceConfig, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}

	return &ServiceAttempt{container, store, progress, validator, limiter, locker, logger.With("service", "attempt"), clock, serviceConfig}, nil
}

type AttemptResult struct {
	Correct         bool                     `json:"correct"`
	Letters         []LetterState            `json:"letters"`
	WordResolved    bool                     `json:"word_resolved"`
	AttemptsLeft    int                      `json:"attempts_left"`
	WordsCompleted  int                      `json:"words_completed"`
	BountyCompleted bool                     `json:"bounty_completed"`
	Status          models.ParticipantStatus `json:"status"`
}

// SubmitAttempt scores one guess for one word of the participant's puzzle.
// Guesses the dictionary rejects are not counted.
func (service *ServiceAttempt) SubmitAttempt(ctx context.Context, userID string, participantID string, wordIndex int, guess string) (*AttemptResult, error) {
	limit, _ := service.serviceConfig.GetIntConfig(ctx, CONFIG_ATTEMPT_LIMIT_PER_MIN, DEFAULT_ATTEMPT_LIMIT_PER_MIN)
	if err := service.limiter.Allow(ctx, LimitKeyUserAttempt(userID), redis_rate.PerMinute(limit)); err != nil {
		return nil, err
	}

	mutex := service.locker.NewMutex(LockKeyParticipant(participantID))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, ErrBountyLock
	}
	defer unlock(ctx, mutex, service.logger)

	participant, err := service.store.FindParticipantByID(ctx, participantID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && participant.UserID != userID) {
		return nil, notFound("participant not found")
	}
	if err != nil {
		return nil, err
	}
	if participant.Finished() {
		return nil, statef("participant already finished")
	}

	bounty, err := findBounty(ctx, service.store, participant.BountyID)
	if err != nil {
		return nil, err
	}
	now := service.clock.Now().UTC()
	if bounty.Status != models.BountyStatusActive {
		return nil, statef("bounty is %s", bounty.Status)
	}
	if !now.Before(bounty.Deadline) {
		return nil, statef("bounty deadline has passed")
	}
	if wordIndex < 0 || wordIndex >= len(bounty.Words) {
		return nil, validationf("word index must be between 0 and %d", len(bounty.Words)-1)
	}

	guess = strings.ToLower(strings.TrimSpace(guess))
	if len([]rune(guess)) != bounty.WordLength {
		return nil, validationf("guess must have %d letters", bounty.WordLength)
	}

	progress, err := service.progress.GetProgress(ctx, participant.ID)
	if errors.Is(err, redis.Nil) {
		progress = &models.AttemptProgress{ParticipantID: participant.ID}
	} else if err != nil {
		return nil, err
	}
	if len(progress.Words) != len(bounty.Words) {
		progress.Words = make([]models.WordProgress, len(bounty.Words))
	}

	word := &progress.Words[wordIndex]
	if word.Resolved {
		return nil, statef("word %d is already resolved", wordIndex)
	}

	valid, err := service.validator.IsValidWord(ctx, guess, bounty.WordLength)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, validationf("%q is not a known word", guess)
	}

	target := bounty.Words[wordIndex]
	correct := guess == target
	word.Guesses = append(word.Guesses, guess)
	if correct {
		word.Solved = true
		word.Resolved = true
	} else if len(word.Guesses) >= bounty.MaxAttempts {
		word.Resolved = true
	}

	participant.Attempts++
	if participant.StartedAt == nil {
		participant.StartedAt = &now
		participant.Status = models.ParticipantStatusPlaying
	}
	participant.WordsCompleted = progress.SolvedCount()

	finished := progress.AllResolved()
	if finished {
		participant.Status = models.ParticipantStatusFailed
		if participant.WordsCompleted == len(bounty.Words) || bounty.Criterion == models.CriterionMostWordsCorrect {
			participant.Status = models.ParticipantStatusCompleted
		}
		participant.CompletedAt = &now
		participant.ElapsedMs = now.Sub(*participant.StartedAt).Milliseconds()
	}

	if err := service.progress.SaveProgress(ctx, progress); err != nil {
		return nil, err
	}
	if err := service.store.UpdateParticipant(ctx, participant); err != nil {
		return nil, err
	}

	metrics.AttemptsTotal.WithLabelValues(strconv.FormatBool(correct)).Inc()
	if finished {
		service.logger.Info("participant finished", "participant_id", participant.ID, "bounty_id", bounty.ID, "status", participant.Status, "elapsed_ms", participant.ElapsedMs)
	}

	return &AttemptResult{
		Correct:         correct,
		Letters:         ScoreGuess(guess, target),
		WordResolved:    word.Resolved,
		AttemptsLeft:    bounty.MaxAttempts - len(word.Guesses),
		WordsCompleted:  participant.WordsCompleted,
		BountyCompleted: finished,
		Status:          participant.Status,
	}, nil
}

// GetProgress returns the stored guesses of a participant.
func (service *ServiceAttempt) GetProgress(ctx context.Context, userID string, participantID string) (*models.AttemptProgress, error) {
	participant, err := service.store.FindParticipantByID(ctx, participantID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && participant.UserID != userID) {
		return nil, notFound("participant not found")
	}
	if err != nil {
		return nil, err
	}

	progress, err := service.progress.GetProgress(ctx, participant.ID)
	if errors.Is(err, redis.Nil) {
		return &models.AttemptProgress{ParticipantID: participant.ID}, nil
	}
	return progress, err
}
