package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/repomanager"
)

const (
	idempotencyPollInterval = 50 * time.Millisecond
	idempotencyWait         = 5 * time.Second
	// A reservation older than this belongs to a request that died.
	idempotencyStaleAfter = 5 * time.Minute
)

// IdempotencyService stores responses of keyed mutations so a retried request
// gets the first response back instead of running again. The first request
// reserves the key before it runs, so concurrent duplicates wait for its
// response instead of running too.
type IdempotencyService struct {
	runner      dbx.TxRunner
	repomanager repomanager.RepositoryManager
	now         func() time.Time

	poll       time.Duration
	wait       time.Duration
	staleAfter time.Duration
}

func NewIdempotencyService(runner dbx.TxRunner, m repomanager.RepositoryManager) *IdempotencyService {
	return &IdempotencyService{
		runner:      runner,
		repomanager: m,
		now:         time.Now,
		poll:        idempotencyPollInterval,
		wait:        idempotencyWait,
		staleAfter:  idempotencyStaleAfter,
	}
}

// Begin reserves the key for the caller and returns nil, or returns the
// completed response of an earlier request to replay. While another request
// holds the reservation Begin waits for its response and gives up with
// common.ErrRequestInProgress.
func (s *IdempotencyService) Begin(ctx context.Context, credentialID, key, endpoint string) (*models.IdempotencyRecord, error) {
	repo := s.repomanager.Idempotency(s.runner.Conn())
	deadline := s.now().Add(s.wait)

	for {
		now := s.now().UTC()
		reserved, err := repo.Reserve(ctx, &models.IdempotencyRecord{
			CredentialID: credentialID,
			Key:          key,
			Endpoint:     endpoint,
			CreatedAt:    now,
		}, now.Add(-s.staleAfter))
		if err != nil {
			return nil, err
		}
		if reserved {
			return nil, nil
		}

		rec, err := repo.Get(ctx, credentialID, key, endpoint)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			// released in between; try to reserve again
		case err != nil:
			return nil, err
		case !rec.Pending():
			return rec, nil
		}

		if !s.now().Before(deadline) {
			return nil, fmt.Errorf("%w: key %s", common.ErrRequestInProgress, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.poll):
		}
	}
}

// Complete stores the response of the request holding the reservation.
func (s *IdempotencyService) Complete(ctx context.Context, credentialID, key, endpoint string, status int, body []byte) error {
	return s.repomanager.Idempotency(s.runner.Conn()).Complete(ctx, &models.IdempotencyRecord{
		CredentialID:   credentialID,
		Key:            key,
		Endpoint:       endpoint,
		ResponseStatus: status,
		ResponseBody:   body,
	})
}

// Release gives the key up after a response that must not be replayed.
func (s *IdempotencyService) Release(ctx context.Context, credentialID, key, endpoint string) error {
	return s.repomanager.Idempotency(s.runner.Conn()).Release(ctx, credentialID, key, endpoint)
}
