package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"picturecoupon/internal/config"
	"picturecoupon/internal/ids"
	"picturecoupon/internal/media/sniffer"
	"picturecoupon/internal/media/svg"
	"picturecoupon/internal/models"
	"picturecoupon/internal/pictures"
	"picturecoupon/internal/queue"
	"picturecoupon/internal/repository"
	"picturecoupon/internal/security"
)

var (
	ErrHistoryFull         = errors.New("profile picture history is full")
	ErrPictureNotInHistory = errors.New("picture is not in the user's history")
	ErrNoFiles             = errors.New("no files uploaded")
	ErrFileTooLarge        = errors.New("file exceeds the upload limit")
	ErrEmptyFile           = errors.New("empty file")
)

type attachmentWriter interface {
	Create(ctx context.Context, attachment models.Attachment) (models.Attachment, error)
}

type objectWriter interface {
	OriginalsBucket() string
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (int64, error)
}

type taskQueue interface {
	Enqueue(ctx context.Context, values map[string]any) error
}

type userReader interface {
	GetByID(ctx context.Context, id int64) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
}

type UploadFile struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// UploadFailure names a file that passed validation but could not be stored.
type UploadFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type UploadResult struct {
	Accepted []pictures.PictureData
	Skipped  int
	Failed   []UploadFailure
	History  *pictures.History
}

type PictureService struct {
	loader      *pictures.Loader
	users       userReader
	attachments attachmentWriter
	objects     objectWriter
	queue       taskQueue
	cfg         *config.AppConfig
	log         zerolog.Logger
}

func NewPictureService(
	loader *pictures.Loader,
	users userReader,
	attachments attachmentWriter,
	objects objectWriter,
	tasks taskQueue,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *PictureService {
	return &PictureService{
		loader:      loader,
		users:       users,
		attachments: attachments,
		objects:     objects,
		queue:       tasks,
		cfg:         cfg,
		log:         log,
	}
}

func (s *PictureService) History(ctx context.Context, userID int64) (*pictures.History, error) {
	return s.loader.UserHistory(ctx, userID)
}

type preparedFile struct {
	name   string
	data   []byte
	result sniffer.Result
}

// Upload validates every file before storing any of them. Files arriving
// after the history fills up are skipped and never stored. A storage failure
// stops the batch: it is returned as an error only when nothing was stored,
// otherwise the stored files are kept and the rest are listed in Failed.
func (s *PictureService) Upload(ctx context.Context, userID int64, files []UploadFile) (UploadResult, error) {
	if len(files) == 0 {
		return UploadResult{}, ErrNoFiles
	}

	history, err := s.loader.UserHistory(ctx, userID)
	if err != nil {
		return UploadResult{}, err
	}
	if history.IsFull() {
		return UploadResult{History: history}, ErrHistoryFull
	}

	prepared := make([]preparedFile, 0, len(files))
	for _, file := range files {
		p, err := s.prepare(file)
		if err != nil {
			return UploadResult{History: history}, fmt.Errorf("%s: %w", file.FileName, err)
		}
		prepared = append(prepared, p)
	}

	result := UploadResult{History: history}
	var storeErr error
	for i, file := range prepared {
		if history.IsFull() {
			result.Skipped++
			continue
		}

		attachment, err := s.store(ctx, userID, file)
		if err != nil {
			storeErr = err
			for _, rest := range prepared[i:] {
				result.Failed = append(result.Failed, UploadFailure{Name: rest.name, Error: err.Error()})
			}
			break
		}

		picture := s.loader.NewPicture(attachment.ID)
		history.Add(picture, true)
		result.Accepted = append(result.Accepted, picture.Data(ctx))
	}

	if len(result.Accepted) == 0 {
		if storeErr != nil {
			return UploadResult{History: history, Skipped: result.Skipped}, storeErr
		}
		return result, nil
	}
	if err := history.Save(ctx); err != nil {
		return UploadResult{History: history}, err
	}

	event := s.log.Info()
	if storeErr != nil {
		event = s.log.Warn().Err(storeErr).Int("failed", len(result.Failed))
	}
	event.
		Int64("user_id", userID).
		Int("accepted", len(result.Accepted)).
		Int("skipped", result.Skipped).
		Msg("profile pictures uploaded")

	return result, nil
}

func (s *PictureService) prepare(file UploadFile) (preparedFile, error) {
	limit := s.cfg.Pictures.MaxUploadBytes
	if limit > 0 && file.Size > limit {
		return preparedFile{}, ErrFileTooLarge
	}
	if file.Reader == nil {
		return preparedFile{}, ErrEmptyFile
	}

	reader := file.Reader
	if limit > 0 {
		reader = io.LimitReader(reader, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return preparedFile{}, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return preparedFile{}, ErrEmptyFile
	}
	if limit > 0 && int64(len(data)) > limit {
		return preparedFile{}, ErrFileTooLarge
	}

	result, err := sniffer.DetectHead(head(data))
	if err != nil {
		return preparedFile{}, fmt.Errorf("detect type: %w", err)
	}
	if err := sniffer.CheckDeclared(strings.ToLower(file.ContentType), result); err != nil {
		return preparedFile{}, fmt.Errorf("%w: declared %s, actual %s", err, file.ContentType, result.MIME)
	}

	if result.Type == sniffer.TypeSVG {
		clean, fired, err := svg.SanitizeReport(data)
		if err != nil {
			return preparedFile{}, fmt.Errorf("sanitize svg: %w", err)
		}
		if len(fired) > 0 {
			s.log.Warn().Strs("removed", fired).Str("file", file.FileName).Msg("svg active content stripped")
		}
		data = clean
	}

	return preparedFile{
		name:   storedFileName(file.FileName, result.Extension()),
		data:   data,
		result: result,
	}, nil
}

func (s *PictureService) store(ctx context.Context, userID int64, file preparedFile) (models.Attachment, error) {
	bucket := s.objects.OriginalsBucket()
	objectKey := buildObjectKey(ids.New(), file.result.Extension())

	size, err := s.objects.Put(ctx, bucket, objectKey, bytes.NewReader(file.data), int64(len(file.data)), file.result.MIME)
	if err != nil {
		return models.Attachment{}, err
	}

	sum := sha256.Sum256(file.data)
	attachment, err := s.attachments.Create(ctx, models.Attachment{
		UserID:    userID,
		Bucket:    bucket,
		ObjectKey: objectKey,
		FileName:  file.name,
		MIME:      file.result.MIME,
		Format:    string(file.result.Type),
		SizeBytes: size,
		Status:    models.AttachmentStatusProcessing,
		Checksum:  sum[:],
		Signature: security.AttachmentSignature(s.cfg.Security.SignatureSecret, userID, objectKey),
	})
	if err != nil {
		return models.Attachment{}, fmt.Errorf("save attachment: %w", err)
	}

	if err := s.queue.Enqueue(ctx, map[string]any{
		"type":         queue.TaskIngest,
		"attachmentId": attachment.ID,
		"bucket":       attachment.Bucket,
		"object":       attachment.ObjectKey,
		"format":       attachment.Format,
	}); err != nil {
		s.log.Warn().Err(err).Int64("attachment_id", attachment.ID).Msg("enqueue processing failed")
	}

	return attachment, nil
}

// Restore makes pictureID the current picture again.
func (s *PictureService) Restore(ctx context.Context, userID, pictureID int64) (*pictures.History, error) {
	return s.mutate(ctx, userID, pictureID, (*pictures.History).Restore)
}

// Remove drops pictureID from the history. The attachment is left for the
// orphan cleanup.
func (s *PictureService) Remove(ctx context.Context, userID, pictureID int64) (*pictures.History, error) {
	return s.mutate(ctx, userID, pictureID, (*pictures.History).Remove)
}

func (s *PictureService) mutate(ctx context.Context, userID, pictureID int64, op func(*pictures.History, int64)) (*pictures.History, error) {
	history, err := s.loader.UserHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !history.Contains(pictureID) {
		return history, ErrPictureNotInHistory
	}

	op(history, pictureID)

	if err := history.Save(ctx); err != nil {
		return nil, err
	}
	return history, nil
}

// Avatar renders the current picture of userID. ok is false when the user
// has no picture and the caller should use its default avatar.
func (s *PictureService) Avatar(ctx context.Context, userID int64, size int) (avatar string, ok bool, err error) {
	history, err := s.loader.UserHistory(ctx, userID)
	if err != nil {
		return "", false, err
	}
	current := history.Current()
	if !current.IsValid() {
		return "", false, nil
	}
	return current.Avatar(ctx, size), true, nil
}

// ResolveUser accepts a numeric user id or an email address.
func (s *PictureService) ResolveUser(ctx context.Context, ref string) (models.User, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if id <= 0 {
			return models.User{}, repository.ErrUserNotFound
		}
		return s.users.GetByID(ctx, id)
	}
	if !strings.Contains(ref, "@") {
		return models.User{}, repository.ErrUserNotFound
	}
	return s.users.FindByEmail(ctx, strings.ToLower(ref))
}

// HistoryData returns the export form of one user's history.
func (s *PictureService) HistoryData(ctx context.Context, userID int64) (pictures.HistoryData, bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return pictures.HistoryData{}, false, err
	}
	history, err := s.loader.UserHistory(ctx, user.ID)
	if err != nil {
		return pictures.HistoryData{}, false, err
	}
	return history.Data(ctx, summarize(user)), history.IsEmpty(), nil
}

// AllHistories exports the histories of a page of users, empty ones included.
func (s *PictureService) AllHistories(ctx context.Context, limit, offset int) ([]pictures.HistoryData, error) {
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]pictures.HistoryData, 0, len(users))
	for _, user := range users {
		history, err := s.loader.UserHistory(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, history.Data(ctx, summarize(user)))
	}
	return out, nil
}

func summarize(user models.User) pictures.UserSummary {
	return pictures.UserSummary{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Username:    user.Email,
	}
}

func head(data []byte) []byte {
	if len(data) > 512 {
		return data[:512]
	}
	return data
}

func buildObjectKey(id string, ext string) string {
	datePrefix := time.Now().UTC().Format("2006/01/02")
	return path.Join(datePrefix, fmt.Sprintf("%s.%s", id, ext))
}

// storedFileName keeps the client's base name but forces the sniffed extension.
func storedFileName(name string, ext string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	base := strings.TrimSuffix(name, path.Ext(name))
	if base == "" || base == "." || base == "/" {
		base = "picture"
	}
	return base + "." + ext
}
