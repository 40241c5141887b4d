// Package notify bridges classroom events to the rest of the platform
// through Redis: membership mirror sets the CRUD services read, and a
// pub/sub channel the notification fan-out workers subscribe to.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/edlive/classrelay/internal/core"
	"github.com/edlive/classrelay/internal/domain"
)

const (
	liveChannelPrefix = "classlive:"
	membersKeyPrefix  = "room:"
	membersKeySuffix  = ":members"
	membersTTL        = 24 * time.Hour
)

// Redis implements core.LiveNotifier and core.Presence.
type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, addr, password string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info().Str("module", "notify.redis").Str("addr", addr).Msg("redis connected")
	return &Redis{client: client}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) ClassLive(ctx context.Context, room domain.RoomID, instructor string) error {
	payload, err := json.Marshal(struct {
		Room       domain.RoomID `json:"room"`
		Instructor string        `json:"instructor"`
		StartedAt  time.Time     `json:"startedAt"`
	}{Room: room, Instructor: instructor, StartedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, liveChannelPrefix+string(room), payload).Err(); err != nil {
		return fmt.Errorf("publish class live: %w", err)
	}
	log.Info().Str("module", "notify.redis").Str("room", string(room)).Str("instructor", instructor).Msg("class live published")
	return nil
}

func membersKey(room domain.RoomID) string {
	return membersKeyPrefix + string(room) + membersKeySuffix
}

func (r *Redis) Joined(ctx context.Context, room domain.RoomID, cid core.ConnID) error {
	key := membersKey(room)
	if err := r.client.SAdd(ctx, key, string(cid)).Err(); err != nil {
		return fmt.Errorf("mirror join: %w", err)
	}
	return r.client.Expire(ctx, key, membersTTL).Err()
}

func (r *Redis) Left(ctx context.Context, room domain.RoomID, cid core.ConnID) error {
	if err := r.client.SRem(ctx, membersKey(room), string(cid)).Err(); err != nil {
		return fmt.Errorf("mirror leave: %w", err)
	}
	return nil
}
