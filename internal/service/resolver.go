package service

import (
	"context"

	"picturecoupon/internal/config"
	"picturecoupon/internal/models"
	"picturecoupon/internal/pictures"
	"picturecoupon/internal/storage"
)

type attachmentReader interface {
	GetByID(ctx context.Context, id int64) (models.Attachment, error)
}

// AttachmentResolver resolves picture handles to attachment rows and their
// public object URLs.
type AttachmentResolver struct {
	attachments attachmentReader
	storage     config.StorageConfig
}

func NewAttachmentResolver(attachments attachmentReader, storageCfg config.StorageConfig) *AttachmentResolver {
	return &AttachmentResolver{attachments: attachments, storage: storageCfg}
}

func (r *AttachmentResolver) Resolve(ctx context.Context, id int64) (pictures.Asset, error) {
	attachment, err := r.attachments.GetByID(ctx, id)
	if err != nil {
		return pictures.Asset{}, err
	}

	name := attachment.FileName
	if name == "" {
		name = attachment.ObjectKey
	}

	return pictures.Asset{
		URL:      storage.PublicURL(r.storage, attachment.Bucket, attachment.ObjectKey),
		FileName: name,
	}, nil
}
