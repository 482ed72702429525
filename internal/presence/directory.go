package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yahabaat/voiceroom/internal/domain"
)

const roomsKey = "rooms"

// Directory implements core.RoomDirectory on the same redis instance as
// the presence subtrees.
type Directory struct {
	store *Store
}

func NewDirectory(store *Store) *Directory {
	return &Directory{store: store}
}

func (d *Directory) CreateRoom(ctx context.Context, name domain.RoomName, createdBy string) (*domain.Room, error) {
	if err := domain.ValidateRoomName(string(name)); err != nil {
		return nil, err
	}
	room := &domain.Room{
		ID:        domain.RoomID(uuid.NewString()),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(room)
	if err != nil {
		return nil, err
	}
	if err := d.store.rdb.HSet(ctx, roomsKey, string(room.ID), raw).Err(); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

func (d *Directory) ListRooms(ctx context.Context) ([]domain.RoomInfo, error) {
	raw, err := d.store.rdb.HGetAll(ctx, roomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	infos := make([]domain.RoomInfo, 0, len(raw))
	for _, val := range raw {
		var room domain.Room
		if err := json.Unmarshal([]byte(val), &room); err != nil {
			continue
		}
		count, err := d.store.rdb.HLen(ctx, participantsKey(room.ID)).Result()
		if err != nil {
			count = 0
		}
		infos = append(infos, domain.RoomInfo{Room: room, ParticipantCount: int(count)})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt < infos[j].CreatedAt })
	return infos, nil
}

// RoomIDs lists every registered room; the janitor sweeps each in turn.
func (d *Directory) RoomIDs(ctx context.Context) ([]domain.RoomID, error) {
	fields, err := d.store.rdb.HKeys(ctx, roomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("room ids: %w", err)
	}
	ids := make([]domain.RoomID, 0, len(fields))
	for _, f := range fields {
		ids = append(ids, domain.RoomID(f))
	}
	return ids, nil
}
