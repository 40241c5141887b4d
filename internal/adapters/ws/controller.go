// Package ws is the connection gateway: it owns the websocket lifecycle
// and translates the wire protocol into orchestrator calls. No room or
// negotiation state lives here.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/edlive/classrelay/internal/app"
	"github.com/edlive/classrelay/internal/core"
	"github.com/edlive/classrelay/internal/domain"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering happens in the router middleware.
		return true
	},
}

type Controller struct {
	Orch       *app.Orchestrator
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

func NewController(orch *app.Orchestrator, readLimit int64, pingPeriod time.Duration, sendBuffer int) *Controller {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Controller{
		Orch:       orch,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
		SendBuffer: sendBuffer,
	}
}

// HandleClassroom upgrades the request and registers the connection. The
// connection id is minted here, once, and announced to the client right
// away: the client needs it to run the initiator comparison against its
// peers.
func (ctl *Controller) HandleClassroom(ctx context.Context, c *gin.Context, user *domain.User) {
	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "ws").Err(err).Msg("upgrade failed")
		return
	}

	cid := core.ConnID(uuid.NewString())
	conn := newConn(socket, ctl.SendBuffer)
	sess := core.NewMemberSession(domain.NewMember(user), conn)

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(cid, user, sess, cancel)
	log.Info().Str("module", "ws").Str("cid", string(cid)).Str("user", user.Username).Msg("connection open")

	ctl.sendJSON(conn, struct {
		Type   string      `json:"type"`
		ConnID core.ConnID `json:"connectionId"`
	}{Type: "connected", ConnID: cid})

	go ctl.writePump(ctx, cid, conn)
	go ctl.readPump(ctx, cid, conn)
}

func (ctl *Controller) writePump(ctx context.Context, cid core.ConnID, c *Conn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// A canceled context (kick or shutdown) must close the
			// socket too, or the readPump sits in ReadMessage until the
			// pong deadline and the member lingers in its room.
			log.Debug().Str("module", "ws").Str("cid", string(cid)).Msg("writePump ctx done")
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Str("module", "ws").Str("cid", string(cid)).Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Str("module", "ws").Str("cid", string(cid)).Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cid core.ConnID, c *Conn) {
	defer func() {
		// Teardown runs before the id is forgotten, so nothing can be
		// relayed to or from a stale connection afterwards.
		ctl.Orch.Disconnect(context.WithoutCancel(ctx), cid)
		c.Close()
		log.Info().Str("module", "ws").Str("cid", string(cid)).Msg("connection closed")
	}()

	if ctl.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.ReadLimit)
	}
	pongWait := ctl.PingPeriod + 10*time.Second
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Str("module", "ws").Str("cid", string(cid)).Err(err).Msg("read error")
				}
				return
			}
			ctl.handle(ctx, cid, c, data)
		}
	}
}

func (ctl *Controller) sendJSON(c *Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Str("module", "ws").Err(err).Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(data); err != nil {
		log.Warn().Str("module", "ws").Err(err).Msg("sendJSON dropped")
	}
}

func (ctl *Controller) sendError(c *Conn, msg string) {
	ctl.sendJSON(c, struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{Type: "error", Error: msg})
}
