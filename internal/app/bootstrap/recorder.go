package bootstrap

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/chatrelay/internal/config"
	"github.com/wolfman30/chatrelay/internal/dispatch"
	"github.com/wolfman30/chatrelay/internal/transcript"
	"github.com/wolfman30/chatrelay/pkg/logging"
)

// RecorderDeps are the optional journal backends; nil members are skipped.
type RecorderDeps struct {
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	S3     transcript.S3API
	Memory *transcript.MemoryStore
	Config *config.Config
	Logger *logging.Logger
}

// BuildRecorder fans out to every configured journal. It returns nil when
// nothing is configured.
func BuildRecorder(deps RecorderDeps) dispatch.Recorder {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	var recorders []dispatch.Recorder
	var enabled []string

	if deps.Memory != nil {
		recorders = append(recorders, deps.Memory)
		enabled = append(enabled, "memory")
	}
	if deps.Pool != nil {
		recorders = append(recorders, transcript.NewPostgresStore(deps.Pool))
		enabled = append(enabled, "postgres")
	}
	if deps.Redis != nil {
		recorders = append(recorders, transcript.NewRedisStore(deps.Redis, deps.transcriptTTL()))
		enabled = append(enabled, "redis")
	}
	if deps.S3 != nil && deps.Config != nil && deps.Config.TranscriptBucket != "" {
		recorders = append(recorders, transcript.NewS3Archiver(deps.S3, deps.Config.TranscriptBucket, logger.Logger))
		enabled = append(enabled, "s3")
	}

	if len(enabled) > 0 {
		logger.Info("transcript journal enabled", "backends", enabled)
	}
	return transcript.NewMulti(recorders...)
}

// BuildRunReader picks the journal that answers run lookups: Postgres when
// configured, otherwise Redis. It returns nil when neither is.
func BuildRunReader(deps RecorderDeps) transcript.Reader {
	if deps.Pool != nil {
		return transcript.NewPostgresStore(deps.Pool)
	}
	if deps.Redis != nil {
		return transcript.NewRedisStore(deps.Redis, deps.transcriptTTL())
	}
	return nil
}

func (d RecorderDeps) transcriptTTL() time.Duration {
	if d.Config == nil {
		return 0
	}
	return d.Config.TranscriptTTL
}
