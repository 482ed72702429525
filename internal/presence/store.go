// Package presence keeps the best-effort room membership record in redis
// and fans out full-snapshot change notifications over pub/sub.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/yahabaat/voiceroom/internal/domain"
)

const watchBuffer = 8

// Store implements core.PresenceStore on a redis hash per room. Every
// mutation publishes the full current subtree, so watchers always receive
// replace-style snapshots, never diffs.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func participantsKey(room domain.RoomID) string {
	return fmt.Sprintf("room:%s:participants", room)
}

func channelKey(room domain.RoomID) string {
	return fmt.Sprintf("presence:%s", room)
}

func (s *Store) SetParticipant(ctx context.Context, room domain.RoomID, identity domain.Identity) error {
	now := time.Now().UnixMilli()
	entry := domain.PresenceEntry{Identity: identity, JoinedAt: now, LastSeen: now}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, participantsKey(room), string(identity), raw).Err(); err != nil {
		return fmt.Errorf("presence set: %w", err)
	}
	return s.publishSnapshot(ctx, room)
}

func (s *Store) RemoveParticipant(ctx context.Context, room domain.RoomID, identity domain.Identity) error {
	if err := s.rdb.HDel(ctx, participantsKey(room), string(identity)).Err(); err != nil {
		return fmt.Errorf("presence remove: %w", err)
	}
	return s.publishSnapshot(ctx, room)
}

// Heartbeat refreshes lastSeen so the sweep does not reap a live entry.
// Membership is unchanged, so no snapshot is published.
func (s *Store) Heartbeat(ctx context.Context, room domain.RoomID, identity domain.Identity) error {
	key := participantsKey(room)
	raw, err := s.rdb.HGet(ctx, key, string(identity)).Result()
	if err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	var entry domain.PresenceEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	entry.LastSeen = time.Now().UnixMilli()
	updated, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, key, string(identity), updated).Err()
}

func (s *Store) Snapshot(ctx context.Context, room domain.RoomID) ([]domain.PresenceEntry, error) {
	raw, err := s.rdb.HGetAll(ctx, participantsKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence snapshot: %w", err)
	}
	return decodeEntries(raw), nil
}

// Watch delivers the current subtree immediately, then one full snapshot
// per change until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, room domain.RoomID) (<-chan []domain.PresenceEntry, error) {
	sub := s.rdb.Subscribe(ctx, channelKey(room))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("presence watch: %w", err)
	}

	out := make(chan []domain.PresenceEntry, watchBuffer)
	go func() {
		defer close(out)
		defer sub.Close()

		if initial, err := s.Snapshot(ctx, room); err == nil {
			out <- initial
		}

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var entries []domain.PresenceEntry
				if err := json.Unmarshal([]byte(msg.Payload), &entries); err != nil {
					log.Warn().Str("module", "presence").Err(err).Msg("bad snapshot payload")
					continue
				}
				select {
				case out <- entries:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Sweep removes entries whose lastSeen is older than maxAge. This is the
// second-chance cleanup for sessions that never ran their leave path.
func (s *Store) Sweep(ctx context.Context, room domain.RoomID, maxAge time.Duration) (int, error) {
	raw, err := s.rdb.HGetAll(ctx, participantsKey(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("presence sweep: %w", err)
	}
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	var stale []string
	for field, val := range raw {
		var entry domain.PresenceEntry
		if err := json.Unmarshal([]byte(val), &entry); err != nil {
			stale = append(stale, field)
			continue
		}
		if entry.LastSeen < cutoff {
			stale = append(stale, field)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.rdb.HDel(ctx, participantsKey(room), stale...).Err(); err != nil {
		return 0, fmt.Errorf("presence sweep: %w", err)
	}
	log.Info().Str("module", "presence").Str("room", string(room)).Int("removed", len(stale)).Msg("swept stale entries")
	return len(stale), s.publishSnapshot(ctx, room)
}

func (s *Store) publishSnapshot(ctx context.Context, room domain.RoomID) error {
	entries, err := s.Snapshot(ctx, room)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, channelKey(room), payload).Err()
}

func decodeEntries(raw map[string]string) []domain.PresenceEntry {
	entries := make([]domain.PresenceEntry, 0, len(raw))
	for field, val := range raw {
		var entry domain.PresenceEntry
		if err := json.Unmarshal([]byte(val), &entry); err != nil {
			log.Warn().Str("module", "presence").Str("identity", field).Err(err).Msg("bad presence entry")
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].JoinedAt != entries[j].JoinedAt {
			return entries[i].JoinedAt < entries[j].JoinedAt
		}
		return entries[i].Identity < entries[j].Identity
	})
	return entries
}
