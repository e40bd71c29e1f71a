package rooms

import (
	"context"
	"errors"

	"Greenroom/models/postgres"
	"Greenroom/services/store"
)

// PreparationTracker records per-participant readiness. Updates are pure
// merges: absent fields keep their committed value, so repeating the same
// patch is idempotent and never resets the other flags.
type PreparationTracker struct {
	store store.RoomStore
}

func NewPreparationTracker(s store.RoomStore) *PreparationTracker {
	return &PreparationTracker{store: s}
}

// PreparationView is the merged status plus the derived readiness bit.
type PreparationView struct {
	ParticipantID string
	RoomID        string
	Status        postgres.PreparationStatus
	IsFullyReady  bool
}

func (t *PreparationTracker) UpdatePreparation(ctx context.Context, participantID string, patch store.PreparationPatch) (*PreparationView, *Failure) {
	if participantID == "" {
		return nil, validationFailure("participant id must not be empty")
	}

	participant, err := t.store.GetParticipant(ctx, participantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundFailure("participant not found")
		}
		return nil, internalFailure("preparation/lookup", err)
	}

	status, err := t.store.UpdatePreparation(ctx, participantID, patch)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, notFoundFailure("participant not found")
		case errors.Is(err, store.ErrNotActive):
			return nil, conflictFailure("participant already left the room")
		default:
			return nil, internalFailure("preparation/store", err)
		}
	}

	return &PreparationView{
		ParticipantID: participantID,
		RoomID:        participant.RoomID,
		Status:        *status,
		IsFullyReady:  status.IsFullyReady(),
	}, nil
}
