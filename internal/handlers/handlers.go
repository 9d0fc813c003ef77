package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"picturecoupon/internal/config"
	"picturecoupon/internal/middleware"
	"picturecoupon/internal/models"
	"picturecoupon/internal/pictures"
	"picturecoupon/internal/queue"
	"picturecoupon/internal/repository"
	"picturecoupon/internal/service"
	"picturecoupon/internal/storage"
)

type attachmentLister interface {
	List(ctx context.Context, limit, offset int) ([]models.Attachment, error)
}

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	authService *service.AuthService
	pictures    *service.PictureService
	orders      *service.OrderService
	settings    *service.SettingsService
	cache       *redis.Client
	users       *repository.UserRepository
	sessions    *repository.SessionRepository
	attachments attachmentLister
	probes      []probe
}

// NewHandlerSet wires repositories and services. meta is where picture
// histories are kept; the rest lives in Postgres.
func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore, meta pictures.MetaStore, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)

	settings := service.NewSettingsService(repository.NewSettingsRepository(db), cfg.Pictures.MaxProfilePictures, log)
	resolver := service.NewAttachmentResolver(attachmentRepo, cfg.Storage)
	loader := pictures.NewLoader(meta, resolver, settings)
	producer := queue.NewProducer(cache, cfg.Queue.Stream)

	return HandlerSet{
		log:         log,
		cfg:         cfg,
		authService: service.NewAuthService(userRepo, sessionRepo, cache, cfg, log),
		pictures:    service.NewPictureService(loader, userRepo, attachmentRepo, store, producer, cfg, log),
		orders:      service.NewOrderService(repository.NewOrderRepository(db), loader, log),
		settings:    settings,
		cache:       cache,
		users:       userRepo,
		sessions:    sessionRepo,
		attachments: attachmentRepo,
		probes:      defaultProbes(db, cache, store),
	}
}

func (h HandlerSet) Routes(router *gin.RouterGroup) {
	protected := gin.HandlersChain{
		middleware.Auth(h.cfg, h.users, h.sessions),
		middleware.Signature(h.cfg, h.cache, h.log),
	}
	admin := with(protected, middleware.RequireRoles(models.AdminRoles...))

	router.GET("/healthz", h.Health)
	h.mount(router.Group("/v1"), protected, admin)
}

func (h HandlerSet) mount(v1 *gin.RouterGroup, protected, admin gin.HandlersChain) {
	auth := v1.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/logout", h.Logout)

	account := v1.Group("/auth", protected...)
	account.GET("/me", h.Me)
	account.GET("/sessions", h.ListSessions)
	account.DELETE("/sessions/:deviceId", h.RevokeSession)

	v1.GET("/avatars/:userRef", h.Avatar)

	pics := v1.Group("/pictures", protected...)
	pics.GET("", h.ListPictures)
	pics.POST("", h.UploadPictures)
	pics.POST("/:pictureId/restore", h.RestorePicture)
	pics.DELETE("/:pictureId", h.RemovePicture)

	v1.GET("/checkout/widget", with(protected, h.CheckoutWidget)...)
	v1.POST("/orders/:orderId/picture", with(protected, h.SnapshotOrderPicture)...)

	adm := v1.Group("/admin", admin...)
	adm.GET("/profile-pictures", h.AdminListHistories)
	adm.GET("/profile-pictures/:userId", h.AdminUserHistory)
	adm.GET("/orders/:orderId/picture", h.AdminOrderPicture)
	adm.GET("/settings", h.AdminGetSettings)
	adm.PUT("/settings", h.AdminUpdateSettings)
	adm.GET("/attachments", h.AdminListAttachments)
}

func with(chain gin.HandlersChain, handlers ...gin.HandlerFunc) gin.HandlersChain {
	out := make(gin.HandlersChain, 0, len(chain)+len(handlers))
	out = append(out, chain...)
	return append(out, handlers...)
}
