package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"mortar/lib/errco"
	"mortar/lib/mcproto"
	"mortar/lib/servstats"
)

// State is the state of a client connection
type State int

const (
	STATE_AWAITING_HANDSHAKE          State = iota // nothing decoded yet
	STATE_AWAITING_STATUS_BODY                     // status handshake received, waiting for status request
	STATE_RESPONDING_STATUS                        // status response written, waiting for ping
	STATE_RESPONDING_PING                          // pong written (terminal)
	STATE_RESPONDING_LOGIN_DISCONNECT              // login disconnect written (terminal)
	STATE_REJECTED                                 // protocol violation (terminal)
)

func (s State) String() string {
	switch s {
	case STATE_AWAITING_HANDSHAKE:
		return "awaiting handshake"
	case STATE_AWAITING_STATUS_BODY:
		return "awaiting status body"
	case STATE_RESPONDING_STATUS:
		return "responding status"
	case STATE_RESPONDING_PING:
		return "responding ping"
	case STATE_RESPONDING_LOGIN_DISCONNECT:
		return "responding login disconnect"
	case STATE_REJECTED:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports if the connection must be closed in this state
func (s State) Terminal() bool {
	return s == STATE_RESPONDING_PING || s == STATE_RESPONDING_LOGIN_DISCONNECT || s == STATE_REJECTED
}

// session is the state of a single client connection
type session struct {
	socket        net.Conn
	responder     *Responder
	clientAddress string
	state         State
	buf           []byte             // framing buffer (bytes received but not decoded yet)
	handshake     *mcproto.Handshake // set after the handshake is decoded
	heldStatus    bool               // a status request arrived before the handshake
	decoded       int                // packets decoded so far
}

func newSession(socket net.Conn, responder *Responder) *session {
	return &session{
		socket:        socket,
		responder:     responder,
		clientAddress: clientIP(socket.RemoteAddr()),
		state:         STATE_AWAITING_HANDSHAKE,
		buf:           []byte{},
	}
}

// phase returns the protocol phase matching the session state
func (s *session) phase() mcproto.Phase {
	if s.state == STATE_AWAITING_HANDSHAKE {
		return mcproto.PHASE_HANDSHAKING
	}
	return mcproto.PHASE_STATUS
}

// process decodes and handles the packets in the framing buffer.
// Returns true when the session reached a terminal state.
func (s *session) process() bool {
	for !s.state.Terminal() {
		packet, ok, logMrt := mcproto.DecodePacket(s.buf, s.phase())
		if logMrt != nil {
			s.reject(logMrt)
			break
		} else if !ok {
			break
		}

		s.buf = s.buf[len(packet.Raw):]
		s.decoded++
		s.handle(packet)
	}

	return s.state.Terminal()
}

// handle applies the state transition caused by packet
func (s *session) handle(packet *mcproto.Packet) {
	switch packet.Kind {

	case mcproto.KIND_PING:
		s.state = STATE_RESPONDING_PING
		s.write(mcproto.BuildPongResponse(packet.Raw))
		servstats.Stats.Count(servstats.OUTCOME_PING)

	case mcproto.KIND_HANDSHAKE:
		s.handshake = packet.Handshake
		errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "handshake from %s (protocol %d, address %s:%d, next state %d)",
			s.clientAddress, s.handshake.ProtocolVersion, s.handshake.ServerAddress, s.handshake.ServerPort, s.handshake.NextState)

		switch s.handshake.NextState {
		case mcproto.NEXT_STATE_STATUS:
			s.state = STATE_AWAITING_STATUS_BODY
			if s.heldStatus {
				s.respondStatus()
			}
		case mcproto.NEXT_STATE_LOGIN:
			s.respondLogin()
		}

	case mcproto.KIND_STATUS_REQUEST:
		switch s.state {
		case STATE_AWAITING_HANDSHAKE:
			// answered once the handshake arrives
			errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "status request from %s received before handshake: holding", s.clientAddress)
			s.heldStatus = true
		case STATE_AWAITING_STATUS_BODY:
			s.respondStatus()
		default:
			s.reject(errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_UNKNOWN_PACKET, "status request received in %s state", s.state))
		}

	default:
		s.reject(errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_UNKNOWN_PACKET, "unexpected %s packet in %s state", packet.Kind, s.state))
	}
}

// respondStatus fetches the composite status and writes the status response
func (s *session) respondStatus() {
	s.state = STATE_RESPONDING_STATUS

	protocol := s.handshake.ProtocolVersion
	if protocol <= 0 {
		protocol = mcproto.DefaultProtocol()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.responder.ReadTimeout)
	defer cancel()

	statusJSON, logMrt := s.responder.Source.Fetch(ctx, protocol, s.clientAddress)
	if logMrt != nil {
		// the fetcher falls back to an empty composite status
		logMrt.Log(true)
		servstats.Stats.AggregateError()
	}

	s.write(mcproto.BuildStatusResponse(statusJSON))
	servstats.Stats.Count(servstats.OUTCOME_STATUS)
}

// respondLogin writes the login disconnect explaining that mortar is not a game server
func (s *session) respondLogin() {
	s.state = STATE_RESPONDING_LOGIN_DISCONNECT

	// login start is usually received together with the handshake
	if packet, ok, _ := mcproto.DecodePacket(s.buf, mcproto.PHASE_LOGIN); ok && packet.Kind == mcproto.KIND_LOGIN_START {
		errco.NewLogln(errco.TYPE_INF, errco.LVL_2, errco.ERROR_NIL, "player %s tried to join from %s", packet.LoginName, s.clientAddress)
	} else {
		errco.NewLogln(errco.TYPE_INF, errco.LVL_2, errco.ERROR_NIL, "a client tried to join from %s", s.clientAddress)
	}

	reason, err := json.Marshal(mcproto.LoginDisconnectReason(s.clientAddress, time.Now()))
	if err != nil {
		errco.NewLogln(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_JSON_MARSHAL, err.Error())
		return
	}

	s.write(mcproto.BuildLoginDisconnect(reason))
	servstats.Stats.Count(servstats.OUTCOME_LOGIN)
}

// reject moves the session to the rejected state: nothing is written to the client
func (s *session) reject(logMrt *errco.MrtLog) {
	s.state = STATE_REJECTED

	if logMrt.Is(errco.ERROR_LEGACY_PROTOCOL) {
		servstats.Stats.Count(servstats.OUTCOME_LEGACY)
	} else {
		servstats.Stats.Count(servstats.OUTCOME_REJECTED)
	}

	errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, logMrt.Cod, "client %s rejected: %s", s.clientAddress, logMrt.String())
}

// write writes mes to the client
func (s *session) write(mes []byte) {
	s.socket.SetWriteDeadline(time.Now().Add(s.responder.ReadTimeout))

	if _, err := s.socket.Write(mes); err != nil {
		errco.NewLogln(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_CLIENT_SOCKET_WRITE, "client %s: %s", s.clientAddress, err.Error())
		return
	}

	errco.NewLogln(errco.TYPE_BYT, errco.LVL_4, errco.ERROR_NIL, "%smortar --> client%s: %v", errco.COLOR_PURPLE, errco.COLOR_RESET, mes)
	servstats.Stats.Traffic(len(mes), 0)
}
