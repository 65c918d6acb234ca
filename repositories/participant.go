//go:generate go run go.uber.org/mock/mockgen -source=participant.go -destination=../mocks/mock_participant_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
)

type IParticipantRepository interface {
	Touch(user string, room domain.RoomID, now time.Time) (domain.Participant, bool, error)
	Get(user string, room domain.RoomID) (domain.Participant, error)
	SetMuted(user string, room domain.RoomID, muted bool) error
	ListForRoom(room domain.RoomID) ([]domain.Participant, error)
	DeleteRoomParticipants(room domain.RoomID) error
}

// ParticipantRepository owns the (user, room) membership records and the
// per-user read cursor. The badger key doubles as the unique constraint:
// concurrent first joins race on the same key inside one transaction.
type ParticipantRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewParticipantRepository(db *badger.DB, log *slog.Logger) *ParticipantRepository {
	return &ParticipantRepository{db: db, log: log}
}

type diskParticipant struct {
	User     string `json:"user"`
	Room     string `json:"room"`
	JoinedAt int64  `json:"joined_at"`
	LastRead *int64 `json:"last_read"`
	IsMuted  bool   `json:"is_muted"`
}

func participantKey(room domain.RoomID, user string) []byte {
	return []byte(fmt.Sprintf("participant:%s:%s", room, user))
}

func participantPrefix(room domain.RoomID) []byte {
	return []byte(fmt.Sprintf("participant:%s:", room))
}

// Touch is the idempotent upsert behind the read cursor. It creates the
// participant on first contact (join timestamp = now) and advances the
// cursor if and only if now is later than the stored value. The whole
// read-modify-write runs in a single transaction, so two rapid touches by
// the same user cannot regress the cursor. Reports whether the cursor moved.
func (p *ParticipantRepository) Touch(user string, room domain.RoomID, now time.Time) (domain.Participant, bool, error) {
	var participant domain.Participant
	advanced := false
	err := updateWithRetry(p.db, func(txn *badger.Txn) error {
		key := participantKey(room, user)
		existed := true
		item, err := txn.Get(key)
		switch err {
		case nil:
			var dp diskParticipant
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &dp)
			}); err != nil {
				return err
			}
			participant = toParticipant(dp)
		case badger.ErrKeyNotFound:
			existed = false
			participant = domain.Participant{User: user, Room: room, JoinedAt: now.UTC()}
		default:
			return err
		}

		advanced = participant.AdvanceLastRead(now.UTC())
		if existed && !advanced {
			// Nothing to write, the stored cursor is already ahead.
			return nil
		}
		bytes, err := json.Marshal(fromParticipant(participant))
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("touch %s in room %s: %w", user, room, err)
	}
	return participant, advanced, nil
}

func (p *ParticipantRepository) Get(user string, room domain.RoomID) (domain.Participant, error) {
	var participant domain.Participant
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(participantKey(room, user))
		if err == badger.ErrKeyNotFound {
			return errors.ErrForbidden
		}
		if err != nil {
			return err
		}
		var dp diskParticipant
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &dp)
		}); err != nil {
			return err
		}
		participant = toParticipant(dp)
		return nil
	})
	return participant, err
}

func (p *ParticipantRepository) SetMuted(user string, room domain.RoomID, muted bool) error {
	return updateWithRetry(p.db, func(txn *badger.Txn) error {
		key := participantKey(room, user)
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return errors.ErrForbidden
		}
		if err != nil {
			return err
		}
		var dp diskParticipant
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &dp)
		}); err != nil {
			return err
		}
		dp.IsMuted = muted
		bytes, err := json.Marshal(dp)
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
}

func (p *ParticipantRepository) ListForRoom(room domain.RoomID) ([]domain.Participant, error) {
	var participants []domain.Participant
	err := p.db.View(func(txn *badger.Txn) error {
		prefix := participantPrefix(room)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var dp diskParticipant
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &dp)
			})
			if err != nil {
				return err
			}
			participants = append(participants, toParticipant(dp))
		}
		return nil
	})
	return participants, err
}

// DeleteRoomParticipants removes every membership record of a room, as
// part of the registry's explicit cascade.
func (p *ParticipantRepository) DeleteRoomParticipants(room domain.RoomID) error {
	return p.db.Update(func(txn *badger.Txn) error {
		prefix := participantPrefix(room)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func fromParticipant(participant domain.Participant) diskParticipant {
	dp := diskParticipant{
		User:     participant.User,
		Room:     string(participant.Room),
		JoinedAt: participant.JoinedAt.UnixNano(),
		IsMuted:  participant.IsMuted,
	}
	if participant.LastRead != nil {
		nano := participant.LastRead.UnixNano()
		dp.LastRead = &nano
	}
	return dp
}

func toParticipant(dp diskParticipant) domain.Participant {
	participant := domain.Participant{
		User:     dp.User,
		Room:     domain.RoomID(dp.Room),
		JoinedAt: time.Unix(0, dp.JoinedAt).UTC(),
		IsMuted:  dp.IsMuted,
	}
	if dp.LastRead != nil {
		lastRead := time.Unix(0, *dp.LastRead).UTC()
		participant.LastRead = &lastRead
	}
	return participant
}
