package signal

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/syncplayserver/internal/core"
	"github.com/dkeye/syncplayserver/internal/protocol"
)

func (ctl *Controller) handlePing(c *WsConn) {
	ctl.sendJSON(c, protocol.Pong{Type: protocol.TypePong})
}

func (ctl *Controller) handleReport(sess *core.Session, c *WsConn, data []byte) {
	var p protocol.Report
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad report payload")
		ctl.sendJSON(c, protocol.NewError(protocol.CodeProtocol, "malformed report"))
		return
	}
	claimed := time.UnixMilli(p.Timestamp)
	ctl.Coord.Report(sess, p.Position, p.Playing, p.Duration, claimed)
}
