// Package chatserver is an in-process chat backend for end-to-end tests. It
// serves the REST API under /api/chat and the conversation sockets under
// /ws/chat/{id}/, authenticating with static tokens.
package chatserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"go-chatty-client/internal/infrastructure/realtime"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
)

const userKey = "chatserver.user"

// User is a seeded account.
type User struct {
	ID       int64
	Username string
	Token    string
}

// Server is a running test backend. Close it when done.
type Server struct {
	URL string

	http  *httptest.Server
	store *store
	hub   *hub

	mu           sync.Mutex
	rejectSocket bool
	failSends    bool
}

// New starts a server on a loopback port.
func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{store: newStore(), hub: newHub()}

	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/chat", s.authenticate(func(c *gin.Context) string {
		return strings.TrimPrefix(c.GetHeader("Authorization"), "Token ")
	}))
	api.GET("/conversations/", s.listConversations)
	api.POST("/conversations/", s.createConversation)
	api.GET("/conversations/:id/messages/", s.listMessages)
	api.POST("/messages/", s.sendMessage)
	api.GET("/users/", s.listUsers)

	r.GET("/ws/chat/:id/", s.authenticate(func(c *gin.Context) string { return c.Query("token") }), s.socket)

	s.http = httptest.NewServer(r)
	s.URL = s.http.URL
	return s
}

// Close drops every socket and stops the server.
func (s *Server) Close() {
	s.hub.close()
	s.http.Close()
}

// AddUser seeds an account that authenticates with token.
func (s *Server) AddUser(username, token string) User {
	u := s.store.addUser(username, token)
	return User{ID: u.ID, Username: u.Username, Token: token}
}

// AddConversation seeds a conversation between members.
func (s *Server) AddConversation(title string, members ...User) int64 {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	c, err := s.store.createConversation(len(members) > 2 || title != "", title, ids)
	if err != nil {
		panic(err)
	}
	return c.ID
}

// Post stores a message from sender and pushes it to the room's sockets, as if
// another client had sent it.
func (s *Server) Post(conversationID int64, sender User, content string) int64 {
	m, err := s.store.addMessage(conversationID, user{ID: sender.ID, Username: sender.Username}, content, nil)
	if err != nil {
		panic(err)
	}
	s.push(m)
	return m.ID
}

// PushError sends an error frame to the room.
func (s *Server) PushError(conversationID int64, text string) {
	b, _ := json.Marshal(map[string]string{"type": chat.FrameTypeError, "message": text})
	s.hub.broadcast(conversationID, b)
}

// DropSockets closes every socket of the room with code.
func (s *Server) DropSockets(conversationID int64, code int) {
	s.hub.closeRoom(conversationID, code)
}

// Sockets returns the number of open sockets in the room.
func (s *Server) Sockets(conversationID int64) int { return s.hub.count(conversationID) }

// Messages returns the stored history of the conversation.
func (s *Server) Messages(conversationID int64) []string {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	out := []string{}
	for _, m := range s.store.messages[conversationID] {
		out = append(out, m.Content)
	}
	return out
}

// RejectSockets makes socket handshakes fail with 503 until called with false.
func (s *Server) RejectSockets(reject bool) {
	s.mu.Lock()
	s.rejectSocket = reject
	s.mu.Unlock()
}

// FailSends makes POST /messages/ return 500 until called with false.
func (s *Server) FailSends(fail bool) {
	s.mu.Lock()
	s.failSends = fail
	s.mu.Unlock()
}

func (s *Server) authenticate(token func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := s.store.userByToken(token(c))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token."})
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

func currentUser(c *gin.Context) user {
	return c.MustGet(userKey).(user)
}

func (s *Server) push(m message) {
	b, err := json.Marshal(struct {
		Type    string  `json:"type"`
		Message message `json:"message"`
	}{chat.FrameTypeMessage, m})
	if err != nil {
		return
	}
	s.hub.broadcast(m.Conversation, b)
}

func (s *Server) listConversations(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.conversationsOf(currentUser(c).ID))
}

type createConversationRequest struct {
	UserID  *int64  `json:"user_id"`
	Title   string  `json:"title"`
	IsGroup bool    `json:"is_group"`
	Members []int64 `json:"members"`
}

func (s *Server) createConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	me := currentUser(c)
	members := []int64{me.ID}
	if req.IsGroup {
		if strings.TrimSpace(req.Title) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"title": []string{"This field is required."}})
			return
		}
		for _, id := range req.Members {
			if id != me.ID {
				members = append(members, id)
			}
		}
	} else {
		if req.UserID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"user_id": []string{"This field is required."}})
			return
		}
		members = append(members, *req.UserID)
	}

	conv, err := s.store.createConversation(req.IsGroup, req.Title, members)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (s *Server) listMessages(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid conversation id"})
		return
	}
	msgs, err := s.store.listMessages(id, currentUser(c).ID)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"detail": err.Error()})
		return
	}
	// paginated like the real backend
	c.JSON(http.StatusOK, gin.H{"count": len(msgs), "next": nil, "previous": nil, "results": msgs})
}

type sendMessageRequest struct {
	Conversation int64  `json:"conversation" binding:"required"`
	Content      string `json:"content" binding:"required"`
	ReplyTo      *int64 `json:"reply_to"`
}

func (s *Server) sendMessage(c *gin.Context) {
	s.mu.Lock()
	fail := s.failSends
	s.mu.Unlock()
	if fail {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "send failed"})
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	m, err := s.store.addMessage(req.Conversation, currentUser(c), req.Content, req.ReplyTo)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"detail": err.Error()})
		return
	}
	s.push(m)
	c.JSON(http.StatusCreated, m)
}

func (s *Server) listUsers(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.listUsers())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// socket serves one conversation socket. Every inbound send_message frame is
// stored and echoed to the whole room, sender included.
func (s *Server) socket(c *gin.Context) {
	s.mu.Lock()
	reject := s.rejectSocket
	s.mu.Unlock()
	if reject {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "unavailable"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid conversation id"})
		return
	}
	me := currentUser(c)
	if _, err := s.store.listMessages(id, me.ID); err != nil {
		c.JSON(statusOf(err), gin.H{"detail": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	var conn *realtime.Connection
	conn = realtime.NewConnection(ws, realtime.ConnectionHandlers{
		OnFrame: func(data []byte) { s.handleFrame(id, me, conn, data) },
		OnClosed: func(error) {
			s.hub.leave(id, conn)
		},
	}, realtime.ConnectionOptions{})
	s.hub.join(id, me.ID, conn)
}

func (s *Server) handleFrame(conversationID int64, sender user, conn *realtime.Connection, data []byte) {
	var frame chat.OutboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Action != chat.ActionSendMessage {
		replyError(conn, "invalid payload")
		return
	}
	if strings.TrimSpace(frame.Content) == "" {
		replyError(conn, "content is required")
		return
	}
	m, err := s.store.addMessage(conversationID, sender, frame.Content, frame.ReplyTo)
	if err != nil {
		replyError(conn, err.Error())
		return
	}
	s.push(m)
}

func replyError(conn *realtime.Connection, text string) {
	b, _ := json.Marshal(map[string]string{"type": chat.FrameTypeError, "message": text})
	_ = conn.Send(b)
}

func statusOf(err error) int {
	switch err {
	case errUnknownConversation:
		return http.StatusNotFound
	case errNotMember:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
