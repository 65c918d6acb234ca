//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IRoomRepository interface {
	Create(room domain.Room) (domain.Room, error)
	Get(id domain.RoomID) (domain.Room, error)
	GetForUser(id domain.RoomID, requester string) (domain.Room, error)
	AddParticipant(id domain.RoomID, user string) (domain.Room, error)
	RemoveParticipant(id domain.RoomID, user string) (domain.Room, error)
	Delete(id domain.RoomID) error
}

// RoomRepository owns Room records and their membership invariants.
// The direct -> group kind transition is reconciled inside the same
// transaction as the membership change that triggers it.
type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) *RoomRepository {
	return &RoomRepository{db: db, log: log}
}

type diskRoom struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	Name         string   `json:"name"`
	Creator      string   `json:"creator"`
	Participants []string `json:"participants"`
	CreatedAt    int64    `json:"created_at"`
	UpdatedAt    int64    `json:"updated_at"`
}

func roomKey(id domain.RoomID) []byte {
	return []byte(fmt.Sprintf("room:%s", id))
}

// Create persists a new room, assigning an identifier when none is set.
// The kind is reconciled immediately so a "direct" room created with three
// participants is stored as a group.
func (r *RoomRepository) Create(room domain.Room) (domain.Room, error) {
	if room.ID == "" {
		room.ID = domain.RoomID(uuid.NewString())
	}
	if room.Kind == "" {
		room.Kind = domain.KindDirect
	}
	now := time.Now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now
	room.ReconcileKind()

	bytes, err := json.Marshal(fromRoom(room))
	if err != nil {
		return domain.Room{}, err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roomKey(room.ID), bytes)
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("create room %s: %w", room.ID, err)
	}
	return room, nil
}

func (r *RoomRepository) Get(id domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		found, err := getRoom(txn, id)
		if err != nil {
			return err
		}
		room = found
		return nil
	})
	return room, err
}

// GetForUser validates membership along with the lookup: a missing room is
// ErrRoomNotFound, an existing room the requester does not belong to is
// ErrForbidden. Neither error ever reaches other participants.
func (r *RoomRepository) GetForUser(id domain.RoomID, requester string) (domain.Room, error) {
	room, err := r.Get(id)
	if err != nil {
		return domain.Room{}, err
	}
	if !room.HasParticipant(requester) {
		return domain.Room{}, errors.ErrForbidden
	}
	return room, nil
}

// AddParticipant adds a user to the room and reconciles the kind in the
// same transaction, so the direct -> group transition is atomic with the
// membership change. Idempotent for existing members.
func (r *RoomRepository) AddParticipant(id domain.RoomID, user string) (domain.Room, error) {
	var room domain.Room
	err := updateWithRetry(r.db, func(txn *badger.Txn) error {
		found, err := getRoom(txn, id)
		if err != nil {
			return err
		}
		room = found
		if !room.AddParticipant(user) {
			return nil
		}
		room.UpdatedAt = time.Now().UTC()
		bytes, err := json.Marshal(fromRoom(room))
		if err != nil {
			return err
		}
		return txn.Set(roomKey(id), bytes)
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("add %s to room %s: %w", user, id, err)
	}
	return room, nil
}

// RemoveParticipant drops a user from the room. The kind stays what it
// is; shrinking a group back to two participants never makes it direct
// again. Idempotent for non-members.
func (r *RoomRepository) RemoveParticipant(id domain.RoomID, user string) (domain.Room, error) {
	var room domain.Room
	err := updateWithRetry(r.db, func(txn *badger.Txn) error {
		found, err := getRoom(txn, id)
		if err != nil {
			return err
		}
		room = found
		if !room.RemoveParticipant(user) {
			return nil
		}
		room.UpdatedAt = time.Now().UTC()
		bytes, err := json.Marshal(fromRoom(room))
		if err != nil {
			return err
		}
		return txn.Set(roomKey(id), bytes)
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("remove %s from room %s: %w", user, id, err)
	}
	return room, nil
}

// Delete removes the room record itself. The owning service runs the
// explicit cascade over messages and participants; see ChatService.DeleteRoom.
func (r *RoomRepository) Delete(id domain.RoomID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(roomKey(id))
	})
}

func getRoom(txn *badger.Txn, id domain.RoomID) (domain.Room, error) {
	item, err := txn.Get(roomKey(id))
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	var dr diskRoom
	if err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &dr)
	}); err != nil {
		return domain.Room{}, err
	}
	return toRoom(dr), nil
}

func fromRoom(room domain.Room) diskRoom {
	return diskRoom{
		ID:           string(room.ID),
		Kind:         string(room.Kind),
		Name:         room.Name,
		Creator:      room.Creator,
		Participants: room.Participants,
		CreatedAt:    room.CreatedAt.UnixNano(),
		UpdatedAt:    room.UpdatedAt.UnixNano(),
	}
}

func toRoom(dr diskRoom) domain.Room {
	return domain.Room{
		ID:           domain.RoomID(dr.ID),
		Kind:         domain.RoomKind(dr.Kind),
		Name:         dr.Name,
		Creator:      dr.Creator,
		Participants: dr.Participants,
		CreatedAt:    time.Unix(0, dr.CreatedAt).UTC(),
		UpdatedAt:    time.Unix(0, dr.UpdatedAt).UTC(),
	}
}
