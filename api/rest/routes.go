package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/hangout/audit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles the REST handlers mounted under /api.
type Handlers struct {
	Auth          *AuthHandler
	Friends       *FriendHandler
	Rooms         *RoomHandler
	Messages      *MessageHandler
	Presence      *PresenceHandler
	Notifications *NotificationHandler
	Admin         *AdminHandler
}

// Guards are the middleware chains Mount places in front of each group.
type Guards struct {
	Protect []gin.HandlerFunc // authenticated routes, e.g. Auth then Touch
	Admin   []gin.HandlerFunc // admin routes, e.g. AdminAuth then IPWhitelist
	Post    []gin.HandlerFunc // extra limits on message posting
}

// Mount registers every route on api. Successful mutations are recorded in
// the audit trail.
func (h *Handlers) Mount(api *gin.RouterGroup, g Guards, a *audit.Service) {
	rec := func(action string) gin.HandlerFunc { return audit.Record(a, action) }
	limited := func(hs ...gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, g.Post...), hs...)
	}

	api.POST("/auth/login", h.Auth.Login)

	authed := api.Group("", g.Protect...)
	authed.POST("/auth/logout", h.Auth.Logout)

	friends := authed.Group("/friends")
	friends.GET("", h.Friends.List)
	friends.GET("/pending", h.Friends.Pending)
	friends.GET("/outgoing", h.Friends.Outgoing)
	friends.POST("/requests", rec("friend.request"), h.Friends.SendRequest)
	friends.POST("/requests/:id/respond", rec("friend.respond"), h.Friends.Respond)
	friends.DELETE("/requests/:id", rec("friend.cancel"), h.Friends.Cancel)
	friends.DELETE("/:user_id", rec("friend.unfriend"), h.Friends.Unfriend)

	rooms := authed.Group("/rooms")
	rooms.POST("", rec("room.create"), h.Rooms.Create)
	rooms.GET("", h.Rooms.ListPublic)
	rooms.GET("/:room_id", h.Rooms.Detail)
	rooms.POST("/:room_id/join", rec("room.join"), h.Rooms.Join)
	rooms.POST("/:room_id/leave", rec("room.leave"), h.Rooms.Leave)
	rooms.POST("/:room_id/members/:user_id/promote", rec("room.promote"), h.Rooms.Promote)
	rooms.POST("/:room_id/members/:user_id/demote", rec("room.demote"), h.Rooms.Demote)
	rooms.POST("/:room_id/members/:user_id/approve", rec("room.approve"), h.Rooms.Approve)
	rooms.GET("/:room_id/messages", h.Messages.RoomHistory)
	rooms.POST("/:room_id/messages", limited(rec("message.room"), h.Messages.PostToRoom)...)

	users := authed.Group("/users")
	users.GET("/:user_id/messages", h.Messages.Conversation)
	users.POST("/:user_id/messages", limited(rec("message.private"), h.Messages.PostToUser)...)

	authed.POST("/messages/:id/reactions", limited(h.Messages.ToggleReaction)...)

	authed.GET("/presence/:user_id", h.Presence.Online)
	live := authed.Group("/live")
	live.GET("", h.Presence.LiveNow)
	live.POST("", rec("live.start"), h.Presence.StartLive)
	live.POST("/:id/heartbeat", h.Presence.Heartbeat)
	live.POST("/:id/end", rec("live.end"), h.Presence.EndLive)

	authed.GET("/notifications", h.Notifications.Unread)
	authed.POST("/notifications/:id/read", h.Notifications.MarkRead)

	admin := api.Group("/admin", g.Admin...)
	admin.GET("/metrics", gin.WrapH(promhttp.Handler()))
	admin.GET("/rooms/:room_id/history", h.Admin.RoomHistory)
	admin.GET("/audit", h.Admin.Audit)
	admin.GET("/scheduler", h.Admin.Tasks)
	admin.POST("/users/:user_id/ban", rec("admin.ban"), h.Admin.BanUser)
}
