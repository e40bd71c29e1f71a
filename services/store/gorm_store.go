package store

import (
	"context"
	"errors"
	"time"

	"Greenroom/models/postgres"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// isDuplicateKey matches unique-constraint violations. The raw SQLSTATE
// check is required because the connection is opened through lib/pq and
// gorm's TranslateError only rewrites errors coming out of the pgx
// dialector; gorm.ErrDuplicatedKey still matches the in-memory-tested
// translated path.
func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// GormStore is the production RoomStore backed by PostgreSQL through GORM.
// Every mutating method runs in a single transaction and takes a FOR UPDATE
// lock on the room row before reading anything derived from it, so two
// writers racing on the same room always serialize at the database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// lockRoom fetches the room row under FOR UPDATE inside tx.
func lockRoom(tx *gorm.DB, roomID string) (*postgres.Room, error) {
	var room postgres.Room
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", roomID).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

func countActive(tx *gorm.DB, roomID string) (int64, error) {
	var count int64
	err := tx.Model(&postgres.Participant{}).
		Where("room_id = ? AND is_active = true", roomID).
		Count(&count).Error
	return count, err
}

func (s *GormStore) CreateRoomWithHost(ctx context.Context, room *postgres.Room, host *postgres.GuestUser, hostNickname string) (*postgres.Participant, error) {
	var created postgres.Participant

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// One room per guest, judged against committed state
		var lockedGuest postgres.GuestUser
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", host.ID).First(&lockedGuest).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if lockedGuest.CurrentRoomID != nil {
			return ErrAlreadyInRoom
		}

		if err := tx.Create(room).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrCodeTaken
			}
			return err
		}

		created = postgres.Participant{
			ID:          uuid.NewString(),
			RoomID:      room.ID,
			GuestUserID: host.ID,
			Nickname:    hostNickname,
			Role:        postgres.RoleHost,
			JoinedAt:    time.Now(),
			IsActive:    true,
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}

		// Close the loop: the room points at its host participant
		if err := tx.Model(&postgres.Room{}).Where("id = ?", room.ID).
			Update("host_participant_id", created.ID).Error; err != nil {
			return err
		}
		room.HostParticipantID = &created.ID

		return tx.Model(&postgres.GuestUser{}).Where("id = ?", host.ID).
			Updates(map[string]interface{}{
				"current_room_id": room.ID,
				"last_active_at":  time.Now(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *GormStore) AddParticipant(ctx context.Context, roomID string, guest *postgres.GuestUser, nickname string) (*postgres.Participant, error) {
	var created postgres.Participant

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}

		// Re-read the guest under the lock: its room link must be judged
		// against committed state, not the caller's snapshot
		var lockedGuest postgres.GuestUser
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", guest.ID).First(&lockedGuest).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if lockedGuest.CurrentRoomID != nil {
			return ErrAlreadyInRoom
		}

		active, err := countActive(tx, room.ID)
		if err != nil {
			return err
		}
		if active >= int64(room.MaxCapacity) {
			return ErrCapacityFull
		}

		var sameNickname int64
		if err := tx.Model(&postgres.Participant{}).
			Where("room_id = ? AND is_active = true AND nickname = ?", room.ID, nickname).
			Count(&sameNickname).Error; err != nil {
			return err
		}
		if sameNickname > 0 {
			return ErrNicknameTaken
		}

		created = postgres.Participant{
			ID:          uuid.NewString(),
			RoomID:      room.ID,
			GuestUserID: lockedGuest.ID,
			Nickname:    nickname,
			Role:        postgres.RoleParticipant,
			JoinedAt:    time.Now(),
			IsActive:    true,
		}
		if err := tx.Create(&created).Error; err != nil {
			// Partial unique index on (room_id, guest_user_id) WHERE is_active
			if isDuplicateKey(err) {
				return ErrAlreadyInRoom
			}
			return err
		}

		return tx.Model(&postgres.GuestUser{}).Where("id = ?", lockedGuest.ID).
			Updates(map[string]interface{}{
				"current_room_id": room.ID,
				"last_active_at":  time.Now(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *GormStore) DeactivateParticipant(ctx context.Context, participantID string) (*LeaveResult, error) {
	var result LeaveResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var participant postgres.Participant
		if err := tx.Where("id = ?", participantID).First(&participant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !participant.IsActive {
			return ErrNotActive
		}

		room, err := lockRoom(tx, participant.RoomID)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(&postgres.Participant{}).Where("id = ?", participant.ID).
			Updates(map[string]interface{}{
				"is_active": false,
				"left_at":   now,
			}).Error; err != nil {
			return err
		}

		if err := tx.Model(&postgres.GuestUser{}).
			Where("id = ? AND current_room_id = ?", participant.GuestUserID, room.ID).
			Update("current_room_id", nil).Error; err != nil {
			return err
		}

		if participant.Role == postgres.RoleHost {
			// Oldest remaining active participant inherits the host role
			var successor postgres.Participant
			err := tx.Where("room_id = ? AND is_active = true", room.ID).
				Order("joined_at ASC").First(&successor).Error
			switch {
			case err == nil:
				if err := tx.Model(&postgres.Participant{}).Where("id = ?", successor.ID).
					Update("role", postgres.RoleHost).Error; err != nil {
					return err
				}
				successor.Role = postgres.RoleHost
				if err := tx.Model(&postgres.Room{}).Where("id = ?", room.ID).
					Update("host_participant_id", successor.ID).Error; err != nil {
					return err
				}
				room.HostParticipantID = &successor.ID
				result.PromotedHost = &successor
			case errors.Is(err, gorm.ErrRecordNotFound):
				// Room emptied out; the sweeper owns its deletion
				if err := tx.Model(&postgres.Room{}).Where("id = ?", room.ID).
					Update("host_participant_id", nil).Error; err != nil {
					return err
				}
				room.HostParticipantID = nil
			default:
				return err
			}
		}

		remaining, err := countActive(tx, room.ID)
		if err != nil {
			return err
		}

		result.Room = *room
		result.Nickname = participant.Nickname
		result.RemainingCapacity = int(remaining)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *GormStore) DeleteRoom(ctx context.Context, roomID string) (int64, error) {
	var participants int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockRoom(tx, roomID); err != nil {
			return err
		}

		if err := tx.Model(&postgres.GuestUser{}).
			Where("current_room_id = ?", roomID).
			Update("current_room_id", nil).Error; err != nil {
			return err
		}

		res := tx.Where("room_id = ?", roomID).Delete(&postgres.Participant{})
		if res.Error != nil {
			return res.Error
		}
		participants = res.RowsAffected

		return tx.Where("id = ?", roomID).Delete(&postgres.Room{}).Error
	})
	if err != nil {
		return 0, err
	}
	return participants, nil
}

func (s *GormStore) SetRoomState(ctx context.Context, roomID string, newState string) error {
	res := s.db.WithContext(ctx).Model(&postgres.Room{}).
		Where("id = ?", roomID).Update("state", newState)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) UpdatePreparation(ctx context.Context, participantID string, patch PreparationPatch) (*postgres.PreparationStatus, error) {
	var merged postgres.PreparationStatus

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var participant postgres.Participant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", participantID).First(&participant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !participant.IsActive {
			return ErrNotActive
		}

		if patch.CharacterReady != nil {
			participant.Preparation.CharacterReady = *patch.CharacterReady
		}
		if patch.ScreenReady != nil {
			participant.Preparation.ScreenReady = *patch.ScreenReady
		}
		if patch.FinalReady != nil {
			participant.Preparation.FinalReady = *patch.FinalReady
		}

		if err := tx.Model(&postgres.Participant{}).Where("id = ?", participant.ID).
			Updates(map[string]interface{}{
				"prep_character_ready": participant.Preparation.CharacterReady,
				"prep_screen_ready":    participant.Preparation.ScreenReady,
				"prep_final_ready":     participant.Preparation.FinalReady,
			}).Error; err != nil {
			return err
		}

		merged = participant.Preparation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

func (s *GormStore) GetOrCreateGuest(ctx context.Context, sessionID, nickname string, ttl time.Duration) (*postgres.GuestUser, error) {
	var guest postgres.GuestUser

	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&guest).Error
	if err == nil {
		// Known session: refresh activity, keep identity
		if err := s.db.WithContext(ctx).Model(&postgres.GuestUser{}).
			Where("id = ?", guest.ID).
			Update("last_active_at", time.Now()).Error; err != nil {
			return nil, err
		}
		return &guest, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now()
	guest = postgres.GuestUser{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Nickname:     nickname,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(&guest).Error; err != nil {
		// Lost a creation race on the session unique index: fetch the winner
		if isDuplicateKey(err) {
			var existing postgres.GuestUser
			if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
				First(&existing).Error; err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, err
	}
	return &guest, nil
}

func (s *GormStore) roomView(ctx context.Context, room *postgres.Room) (*RoomView, error) {
	var active []postgres.Participant
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND is_active = true", room.ID).
		Order("joined_at ASC").Find(&active).Error
	if err != nil {
		return nil, err
	}
	return &RoomView{
		Room:               *room,
		CurrentCapacity:    len(active),
		ActiveParticipants: active,
	}, nil
}

func (s *GormStore) GetRoomByCode(ctx context.Context, code string) (*RoomView, error) {
	var room postgres.Room
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.roomView(ctx, &room)
}

func (s *GormStore) GetRoomByID(ctx context.Context, roomID string) (*RoomView, error) {
	var room postgres.Room
	err := s.db.WithContext(ctx).Where("id = ?", roomID).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.roomView(ctx, &room)
}

func (s *GormStore) GetParticipant(ctx context.Context, participantID string) (*postgres.Participant, error) {
	var participant postgres.Participant
	err := s.db.WithContext(ctx).Where("id = ?", participantID).First(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &participant, nil
}

func (s *GormStore) GetGuestBySession(ctx context.Context, sessionID string) (*postgres.GuestUser, error) {
	var guest postgres.GuestUser
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&guest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &guest, nil
}

func (s *GormStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&postgres.Room{}).
		Where("code = ?", code).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) DeleteExpiredRooms(ctx context.Context, now time.Time) (*SweepResult, error) {
	result := &SweepResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var expired []string
		if err := tx.Model(&postgres.Room{}).
			Where("expires_at <= ?", now).Pluck("id", &expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		if err := tx.Model(&postgres.GuestUser{}).
			Where("current_room_id IN ?", expired).
			Update("current_room_id", nil).Error; err != nil {
			return err
		}

		res := tx.Where("room_id IN ?", expired).Delete(&postgres.Participant{})
		if res.Error != nil {
			return res.Error
		}
		result.Participants = res.RowsAffected

		res = tx.Where("id IN ?", expired).Delete(&postgres.Room{})
		if res.Error != nil {
			return res.Error
		}
		result.Rooms = res.RowsAffected
		result.RoomIDs = expired
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *GormStore) DeleteExpiredGuests(ctx context.Context, now time.Time) (int64, error) {
	// Guests still linked to a live room survive even past their own TTL;
	// the room sweep clears those links first
	res := s.db.WithContext(ctx).
		Where("expires_at <= ? AND current_room_id IS NULL", now).
		Delete(&postgres.GuestUser{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
