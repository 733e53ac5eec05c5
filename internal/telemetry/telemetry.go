// Package telemetry mirrors a running bootloader's state to Redis for fleet
// monitoring. It is a host-side collaborator, not part of the bootloader
// core: cmd/kocherga wires it in only when -redis-addr is set, using a
// pipelined hash-write-then-publish pattern per update.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sleuek/kocherga/internal/appinfo"
	"github.com/Sleuek/kocherga/internal/bootloader"
)

// Mirror publishes bootloader state transitions and progress to a Redis
// hash and pub/sub channel.
type Mirror struct {
	client *redis.Client
	ctx    context.Context
	key    string
	channel string
}

// New connects to the Redis instance at addr and returns a Mirror that
// writes under key and publishes to channel.
func New(addr, password string, db int, key, channel string) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to redis: %v", err)
	}

	return &Mirror{client: client, ctx: ctx, key: key, channel: channel}, nil
}

// ReportState writes the bootloader's current state and, if a verified
// image is resident, its descriptor fields, and publishes a "state:<name>"
// event to the channel.
func (m *Mirror) ReportState(state bootloader.State, info appinfo.AppInfo, hasInfo bool) error {
	pipe := m.client.Pipeline()
	pipe.HSet(m.ctx, m.key, "state", state.String())
	pipe.HSet(m.ctx, m.key, "updated_at", time.Now().UTC().Format(time.RFC3339))
	if hasInfo {
		pipe.HSet(m.ctx, m.key, "image_crc", fmt.Sprintf("%016x", info.ImageCRC))
		pipe.HSet(m.ctx, m.key, "image_size", info.ImageSize)
		pipe.HSet(m.ctx, m.key, "version", fmt.Sprintf("%d.%d", info.VersionMajor, info.VersionMinor))
		pipe.HSet(m.ctx, m.key, "vcs_revision", fmt.Sprintf("%08x", info.VCSRevision))
	}
	pipe.Publish(m.ctx, m.channel, fmt.Sprintf("state:%s", state.String()))
	_, err := pipe.Exec(m.ctx)
	return err
}

// ReportProgress publishes the image pull loop's running byte offset, used
// by fleet dashboards to show update progress without polling GetInfo.
func (m *Mirror) ReportProgress(bytesWritten uint64) error {
	pipe := m.client.Pipeline()
	pipe.HSet(m.ctx, m.key, "bytes_written", bytesWritten)
	pipe.Publish(m.ctx, m.channel, fmt.Sprintf("progress:%d", bytesWritten))
	_, err := pipe.Exec(m.ctx)
	return err
}

// Close closes the underlying Redis connection.
func (m *Mirror) Close() error {
	return m.client.Close()
}
