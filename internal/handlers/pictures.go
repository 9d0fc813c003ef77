package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"picturecoupon/internal/media/sniffer"
	"picturecoupon/internal/pictures"
	"picturecoupon/internal/service"
)

const (
	uploadField      = "picture"
	currentAvatarPx  = 96
	olderAvatarPx    = 64
	checkoutAvatarPx = 128
)

type pictureResponse struct {
	pictures.PictureData
	Avatar string `json:"avatar"`
}

type historyResponse struct {
	Current *pictureResponse  `json:"current"`
	Older   []pictureResponse `json:"older"`
	Count   int               `json:"count"`
	Max     int               `json:"max"`
	IsFull  bool              `json:"isFull"`
}

func toPictureResponse(ctx context.Context, p *pictures.Picture, size int) pictureResponse {
	return pictureResponse{
		PictureData: p.Data(ctx),
		Avatar:      p.Avatar(ctx, size),
	}
}

func toHistoryResponse(ctx context.Context, history *pictures.History) historyResponse {
	resp := historyResponse{
		Older:  make([]pictureResponse, 0, history.Len()),
		Count:  history.Len(),
		Max:    history.Max(),
		IsFull: history.IsFull(),
	}
	if current := history.Current(); current.IsValid() {
		p := toPictureResponse(ctx, current, currentAvatarPx)
		resp.Current = &p
	}
	for _, p := range history.OlderPictures() {
		resp.Older = append(resp.Older, toPictureResponse(ctx, p, olderAvatarPx))
	}
	return resp
}

func (h HandlerSet) ListPictures(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	history, err := h.pictures.History(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("load history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history_unavailable"})
		return
	}

	c.JSON(http.StatusOK, toHistoryResponse(c.Request.Context(), history))
}

func (h HandlerSet) UploadPictures(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart_required"})
		return
	}
	headers := append(form.File[uploadField], form.File[uploadField+"[]"]...)

	files := make([]service.UploadFile, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_file"})
			return
		}
		defer file.Close()
		files = append(files, toUploadFile(header, file))
	}

	result, err := h.pictures.Upload(c.Request.Context(), user.ID, files)
	if err != nil {
		status, code := uploadError(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Int64("user_id", user.ID).Msg("upload failed")
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	failed := result.Failed
	if failed == nil {
		failed = []service.UploadFailure{}
	}
	c.JSON(http.StatusCreated, gin.H{
		"accepted": result.Accepted,
		"skipped":  result.Skipped,
		"failed":   failed,
		"history":  toHistoryResponse(c.Request.Context(), result.History),
	})
}

func toUploadFile(header *multipart.FileHeader, file multipart.File) service.UploadFile {
	return service.UploadFile{
		FileName:    header.Filename,
		ContentType: sniffer.MimeTypeFromHTTP(http.Header(header.Header)),
		Size:        header.Size,
		Reader:      file,
	}
}

func uploadError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrHistoryFull):
		return http.StatusConflict, "history_full"
	case errors.Is(err, service.ErrNoFiles):
		return http.StatusBadRequest, "file_required"
	case errors.Is(err, service.ErrEmptyFile):
		return http.StatusBadRequest, "empty_file"
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, sniffer.ErrUnknownType), errors.Is(err, sniffer.ErrTypeMismatch):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	}
	return http.StatusInternalServerError, "upload_failed"
}

func (h HandlerSet) RestorePicture(c *gin.Context) {
	h.mutatePicture(c, h.pictures.Restore)
}

func (h HandlerSet) RemovePicture(c *gin.Context) {
	h.mutatePicture(c, h.pictures.Remove)
}

func (h HandlerSet) mutatePicture(c *gin.Context, op func(ctx context.Context, userID, pictureID int64) (*pictures.History, error)) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	pictureID, ok := positiveID(c, "pictureId")
	if !ok {
		return
	}

	history, err := op(c.Request.Context(), user.ID, pictureID)
	if err != nil {
		if errors.Is(err, service.ErrPictureNotInHistory) {
			c.JSON(http.StatusNotFound, gin.H{"error": "picture_not_found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", user.ID).Int64("picture_id", pictureID).Msg("update history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history_unavailable"})
		return
	}

	c.JSON(http.StatusOK, toHistoryResponse(c.Request.Context(), history))
}

func (h HandlerSet) CheckoutWidget(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	history, err := h.pictures.History(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("load history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history_unavailable"})
		return
	}

	resp := gin.H{
		"title":             "Your profile picture may give you a great discount!",
		"hasProfilePicture": history.HasProfilePicture(),
	}
	if history.HasProfilePicture() {
		resp["avatar"] = history.Current().Avatar(c.Request.Context(), checkoutAvatarPx)
		resp["message"] = "This is your current profile picture. If it has an article of clothing that is the same type as what you are buying, then you will receive an additional discount."
	} else {
		resp["message"] = "Did you know that if you have a profile picture with an article of clothing that is the same type as what you are buying (ex: pants, shirt, hat) then you will receive an additional discount?"
	}

	c.JSON(http.StatusOK, resp)
}
