package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"picturecoupon/internal/config"
	"picturecoupon/internal/media/sniffer"
	"picturecoupon/internal/media/thumbnail"
	"picturecoupon/internal/models"
	"picturecoupon/internal/pictures"
	"picturecoupon/internal/queue"
	"picturecoupon/internal/repository"
)

const cleanupBatch = 100

type attachmentStore interface {
	GetByID(ctx context.Context, id int64) (models.Attachment, error)
	UpdateProcessed(ctx context.Context, id int64, status models.AttachmentStatus, width, height int) error
	ListOrphans(ctx context.Context, metaKey string, olderThan time.Time, limit int) ([]models.Attachment, error)
	Delete(ctx context.Context, id int64) error
}

type objectStore interface {
	VariantsBucket() string
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (int64, error)
	Remove(ctx context.Context, bucket, key string) error
	RemovePrefix(ctx context.Context, bucket, prefix string) error
}

type sessionPruner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type settingsReader interface {
	Get(ctx context.Context, key string) (string, error)
}

type Processor struct {
	attachments attachmentStore
	objects     objectStore
	sessions    sessionPruner
	settings    settingsReader
	cfg         config.PicturesConfig
	logger      zerolog.Logger
	now         func() time.Time
}

type TaskPayload struct {
	Type         string `mapstructure:"type"`
	AttachmentID int64  `mapstructure:"attachmentId"`
	Bucket       string `mapstructure:"bucket"`
	Object       string `mapstructure:"object"`
	Format       string `mapstructure:"format"`
}

func NewProcessor(attachments attachmentStore, objects objectStore, sessions sessionPruner, settings settingsReader, cfg config.PicturesConfig, logger zerolog.Logger) *Processor {
	return &Processor{
		attachments: attachments,
		objects:     objects,
		sessions:    sessions,
		settings:    settings,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case queue.TaskIngest:
		return p.handleIngest(ctx, payload)
	case queue.TaskCleanup:
		return p.handleCleanup(ctx)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

// Stream values arrive as strings, so numeric fields need weak typing.
func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(values)
}

func (p *Processor) handleIngest(ctx context.Context, payload TaskPayload) error {
	log := p.logger.With().Int64("attachment_id", payload.AttachmentID).Logger()

	attachment, err := p.attachments.GetByID(ctx, payload.AttachmentID)
	if errors.Is(err, repository.ErrAttachmentNotFound) {
		log.Warn().Msg("attachment gone before ingest")
		return nil
	}
	if err != nil {
		return err
	}
	if attachment.Status == models.AttachmentStatusReady {
		return nil
	}

	if attachment.Format == string(sniffer.TypeSVG) {
		return p.attachments.UpdateProcessed(ctx, attachment.ID, models.AttachmentStatusReady, 0, 0)
	}

	data, err := p.objects.Get(ctx, attachment.Bucket, attachment.ObjectKey)
	if err != nil {
		return fmt.Errorf("fetch original: %w", err)
	}

	imgCfg, _, err := thumbnail.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		log.Warn().Err(err).Msg("undecodable picture")
		return p.attachments.UpdateProcessed(ctx, attachment.ID, models.AttachmentStatusFailed, 0, 0)
	}

	variants, err := thumbnail.Generate(bytes.NewReader(data), p.cfg.ThumbnailSizes)
	if err != nil {
		log.Warn().Err(err).Msg("thumbnail generation failed")
		return p.attachments.UpdateProcessed(ctx, attachment.ID, models.AttachmentStatusFailed, imgCfg.Width, imgCfg.Height)
	}

	bucket := p.objects.VariantsBucket()
	base := variantPrefix(attachment.ObjectKey)
	for _, variant := range variants {
		key := fmt.Sprintf("%s_%d.png", base, variant.Size)
		if _, err := p.objects.Put(ctx, bucket, key, bytes.NewReader(variant.Data), int64(len(variant.Data)), "image/png"); err != nil {
			return fmt.Errorf("store variant %d: %w", variant.Size, err)
		}
	}

	if err := p.attachments.UpdateProcessed(ctx, attachment.ID, models.AttachmentStatusReady, imgCfg.Width, imgCfg.Height); err != nil {
		return err
	}

	log.Info().
		Int("width", imgCfg.Width).
		Int("height", imgCfg.Height).
		Int("variants", len(variants)).
		Msg("picture processed")
	return nil
}

// handleCleanup removes attachments no history references any more. Only the
// postgres metadata store can be joined against attachments, and the store in
// use is the one the API recorded, not the worker's own configuration.
func (p *Processor) handleCleanup(ctx context.Context) error {
	if p.sessions != nil {
		removed, err := p.sessions.DeleteExpired(ctx)
		if err != nil {
			p.logger.Error().Err(err).Msg("prune sessions failed")
		} else if removed > 0 {
			p.logger.Info().Int64("removed", removed).Msg("expired sessions pruned")
		}
	}

	metaStore, err := p.settings.Get(ctx, repository.SettingMetaStore)
	if err != nil && !errors.Is(err, repository.ErrSettingNotFound) {
		return fmt.Errorf("read metastore setting: %w", err)
	}
	if metaStore != config.MetaStorePostgres {
		p.logger.Warn().Str("metastore", metaStore).Msg("orphan cleanup skipped")
		return nil
	}

	orphans, err := p.attachments.ListOrphans(ctx, pictures.HistoryMetaKey, p.now().Add(-p.cfg.OrphanGrace), cleanupBatch)
	if err != nil {
		return fmt.Errorf("list orphans: %w", err)
	}

	for _, orphan := range orphans {
		if err := p.objects.Remove(ctx, orphan.Bucket, orphan.ObjectKey); err != nil {
			return fmt.Errorf("remove original %d: %w", orphan.ID, err)
		}
		if err := p.objects.RemovePrefix(ctx, p.objects.VariantsBucket(), variantPrefix(orphan.ObjectKey)+"_"); err != nil {
			return fmt.Errorf("remove variants %d: %w", orphan.ID, err)
		}
		if err := p.attachments.Delete(ctx, orphan.ID); err != nil {
			return fmt.Errorf("delete attachment %d: %w", orphan.ID, err)
		}
	}

	p.logger.Info().Int("removed", len(orphans)).Msg("orphan cleanup finished")
	return nil
}

func variantPrefix(objectKey string) string {
	return strings.TrimSuffix(objectKey, path.Ext(objectKey))
}
