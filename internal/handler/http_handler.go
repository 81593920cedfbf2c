package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/conversation-service/internal/domain"
	"github.com/weiawesome/wes-io-live/conversation-service/internal/repository"
	"github.com/weiawesome/wes-io-live/conversation-service/internal/service"
	"github.com/weiawesome/wes-io-live/conversation-service/pkg/log"
	"github.com/weiawesome/wes-io-live/conversation-service/pkg/response"
)

// PageLimits bounds the page size accepted from clients.
type PageLimits struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Handler handles HTTP requests for conversation service.
type Handler struct {
	svc    service.ConversationService
	limits PageLimits
}

// NewHandler creates a new HTTP handler.
func NewHandler(svc service.ConversationService, limits PageLimits) *Handler {
	if limits.DefaultPageSize <= 0 {
		limits.DefaultPageSize = 20
	}
	if limits.MaxPageSize <= 0 {
		limits.MaxPageSize = 100
	}
	return &Handler{
		svc:    svc,
		limits: limits,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		rooms := api.Group("/rooms")
		{
			rooms.POST("", h.CreateRoom)
			rooms.GET("", h.GetRooms)
			rooms.GET("/:rid", h.GetRoom)
			rooms.PUT("/:rid", h.ReplaceRoom)
			rooms.PATCH("/:rid", h.UpdateRoom)
			rooms.POST("/:rid/unread", h.IncrementUnread)
			rooms.GET("/:rid/subscriptions", h.GetRoomSubscriptions)
		}

		api.POST("/subscriptions", h.CreateSubscriptions)

		users := api.Group("/users/:u")
		{
			users.GET("/subscriptions", h.ListSubscriptions)
			users.PATCH("/subscriptions/:rid", h.UpdateSubscription)
			users.POST("/subscriptions/:rid/read", h.MarkRead)
			users.GET("/feed", h.SubscriptionFeed)
		}
	}
}

type createSubscriptionsRequest struct {
	Subscriptions []domain.CreateSubscription `json:"subscriptions" binding:"required,min=1,dive"`
}

type incrementUnreadRequest struct {
	Uids []string `json:"uids" binding:"required"`
}

type markReadRequest struct {
	Ts int64 `json:"ts"`
}

// CreateRoom creates a new room.
func (h *Handler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var room domain.Room
	if err := c.ShouldBindJSON(&room); err != nil {
		l.Warn().Err(err).Msg("failed to bind create room request")
		response.BadRequest(c, err.Error())
		return
	}

	created, err := h.svc.CreateRoom(ctx, &room)
	if err != nil {
		h.handleError(c, err, "failed to create room")
		return
	}

	response.Created(c, created)
}

// GetRoom retrieves a room by rid, optionally restricted to a type with ?t=.
func (h *Handler) GetRoom(c *gin.Context) {
	ctx := c.Request.Context()
	rid := c.Param("rid")

	var (
		room *domain.Room
		err  error
	)
	if t := c.Query("t"); t != "" {
		room, err = h.svc.GetRoomByType(ctx, rid, domain.RoomType(t))
	} else {
		room, err = h.svc.GetRoom(ctx, rid)
	}
	if err != nil {
		h.handleError(c, err, "failed to get room")
		return
	}

	response.Success(c, room)
}

// GetRooms retrieves the rooms listed in ?rids=a,b.
func (h *Handler) GetRooms(c *gin.Context) {
	ctx := c.Request.Context()

	rids := splitList(c.Query("rids"))
	if len(rids) == 0 {
		response.BadRequest(c, "rids is required")
		return
	}

	rooms, err := h.svc.GetRooms(ctx, rids)
	if err != nil {
		h.handleError(c, err, "failed to get rooms")
		return
	}

	response.Success(c, rooms)
}

// ReplaceRoom overwrites a room.
func (h *Handler) ReplaceRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	rid := c.Param("rid")

	var room domain.Room
	if err := c.ShouldBindJSON(&room); err != nil {
		l.Warn().Err(err).Msg("failed to bind replace room request")
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.svc.ReplaceRoom(ctx, rid, &room); err != nil {
		h.handleError(c, err, "failed to replace room")
		return
	}

	response.Success(c, gin.H{"rid": rid})
}

// UpdateRoom applies a partial room update.
func (h *Handler) UpdateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	rid := c.Param("rid")

	var update domain.RoomUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		l.Warn().Err(err).Msg("failed to bind update room request")
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.svc.UpdateRoom(ctx, rid, update); err != nil {
		h.handleError(c, err, "failed to update room")
		return
	}

	response.Success(c, gin.H{"rid": rid})
}

// CreateSubscriptions creates a batch of subscriptions.
func (h *Handler) CreateSubscriptions(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req createSubscriptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create subscriptions request")
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.svc.CreateSubscriptions(ctx, req.Subscriptions); err != nil {
		h.handleError(c, err, "failed to create subscriptions")
		return
	}

	response.Created(c, gin.H{"count": len(req.Subscriptions)})
}

// IncrementUnread bumps the unread counter of the given users in a room.
func (h *Handler) IncrementUnread(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	rid := c.Param("rid")

	var req incrementUnreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind increment unread request")
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.svc.IncrementUnread(ctx, req.Uids, rid); err != nil {
		h.handleError(c, err, "failed to increment unread")
		return
	}

	response.Success(c, gin.H{"rid": rid})
}

// GetRoomSubscriptions retrieves the subscriptions of ?uids=a,b in a room.
func (h *Handler) GetRoomSubscriptions(c *gin.Context) {
	ctx := c.Request.Context()

	uids := splitList(c.Query("uids"))
	if len(uids) == 0 {
		response.BadRequest(c, "uids is required")
		return
	}

	subs, err := h.svc.GetSubscriptions(ctx, uids, c.Param("rid"))
	if err != nil {
		h.handleError(c, err, "failed to get subscriptions")
		return
	}

	response.Success(c, subs)
}

// UpdateSubscription applies a partial subscription update.
func (h *Handler) UpdateSubscription(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	u := c.Param("u")
	c.Set(log.FieldUserID, u)

	var update domain.SubscriptionUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		l.Warn().Err(err).Msg("failed to bind update subscription request")
		response.BadRequest(c, err.Error())
		return
	}

	sub, err := h.svc.UpdateSubscription(ctx, u, c.Param("rid"), update)
	if err != nil {
		h.handleError(c, err, "failed to update subscription")
		return
	}

	response.Success(c, sub)
}

// MarkRead clears a subscription's unread counter.
func (h *Handler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	u := c.Param("u")
	c.Set(log.FieldUserID, u)

	var req markReadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			l.Warn().Err(err).Msg("failed to bind mark read request")
			response.BadRequest(c, err.Error())
			return
		}
	}

	sub, err := h.svc.MarkRead(ctx, u, c.Param("rid"), req.Ts)
	if err != nil {
		h.handleError(c, err, "failed to mark subscription read")
		return
	}

	response.Success(c, sub)
}

// ListSubscriptions returns one page of a user's subscriptions.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	ctx := c.Request.Context()
	u := c.Param("u")
	c.Set(log.FieldUserID, u)

	p, ok := h.bindPagination(c)
	if !ok {
		return
	}

	subs, err := h.svc.ListSubscriptions(ctx, u, p)
	if err != nil {
		h.handleError(c, err, "failed to list subscriptions")
		return
	}

	response.Success(c, response.Page{Items: subs, Page: p.Page, PageSize: p.PageSize, Count: len(subs)})
}

// SubscriptionFeed returns one page of a user's subscriptions joined with their rooms.
func (h *Handler) SubscriptionFeed(c *gin.Context) {
	ctx := c.Request.Context()
	u := c.Param("u")
	c.Set(log.FieldUserID, u)

	var since int64
	if raw := c.Query("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "since must be an integer timestamp in milliseconds")
			return
		}
		since = v
	}

	p, ok := h.bindPagination(c)
	if !ok {
		return
	}

	items, err := h.svc.SubscriptionFeed(ctx, u, since, p)
	if err != nil {
		h.handleError(c, err, "failed to get subscription feed")
		return
	}

	response.Success(c, response.Page{Items: items, Page: p.Page, PageSize: p.PageSize, Count: len(items)})
}

// bindPagination reads the page window from the query string, applying the
// default page size and capping it at the configured maximum.
func (h *Handler) bindPagination(c *gin.Context) (domain.Pagination, bool) {
	var p domain.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.BadRequest(c, err.Error())
		return p, false
	}

	if p.PageSize == 0 {
		p.PageSize = h.limits.DefaultPageSize
	}
	if p.PageSize > h.limits.MaxPageSize {
		p.PageSize = h.limits.MaxPageSize
	}
	return p, true
}

// handleError maps service errors to HTTP responses.
func (h *Handler) handleError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidPagination):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrRoomNotFound):
		response.NotFound(c, "room not found")
	case errors.Is(err, service.ErrSubscriptionNotFound):
		response.NotFound(c, "subscription not found")
	case errors.Is(err, service.ErrRoomExists):
		response.Conflict(c, "room already exists")
	case errors.Is(err, service.ErrSubscriptionExists):
		response.Conflict(c, "subscription already exists")
	case repository.IsUnavailable(err):
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(msg)
		response.ServiceUnavailable(c, "store unavailable")
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(msg)
		response.InternalError(c, msg)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
