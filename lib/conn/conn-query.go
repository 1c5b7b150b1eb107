package conn

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"mortar/lib/errco"
	"mortar/lib/mcproto"
	"mortar/lib/model"
	"mortar/lib/servstats"
)

// reference:
// - wiki.vg/Query
// - github.com/dreamscached/minequery/v2

// challengeTTL is the time a query challenge stays valid
const challengeTTL = 30 * time.Second

// QueryResponder answers udp query requests with the composite status
type QueryResponder struct {
	Source   StatusSource
	Version  string // mortar version shown in the full stats plugins field
	HostIP   string // ip advertised in stats responses
	HostPort int    // port advertised in stats responses

	challenges *cache.Cache
}

// NewQueryResponder returns a query responder serving the status provided by source
func NewQueryResponder(source StatusSource, version, hostIP string, hostPort int) *QueryResponder {
	return &QueryResponder{
		Source:     source,
		Version:    version,
		HostIP:     hostIP,
		HostPort:   hostPort,
		challenges: cache.New(challengeTTL, 2*challengeTTL),
	}
}

// ListenQuery opens the udp socket for query requests
func ListenQuery(host string, port int) (net.PacketConn, *errco.MrtLog) {
	connCli, err := net.ListenPacket("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CLIENT_LISTEN, err.Error())
	}
	return connCli, nil
}

// HandlerQuery handles query stats requests received on connCli until it is closed.
// [goroutine]
func (q *QueryResponder) HandlerQuery(connCli net.PacketConn) {
	errco.NewLogln(errco.TYPE_INF, errco.LVL_1, errco.ERROR_NIL, "%-40s %s ...", "listening for new clients queries on", connCli.LocalAddr().String())

	// infinite cycle to handle new clients queries
	for {
		// handshake / stats request read
		var buf []byte = make([]byte, 1024)
		n, addrCli, err := connCli.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			errco.NewLogln(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_CONN_READ, err.Error())
			continue
		}

		logMrt := q.handleRequest(connCli, addrCli, buf[:n])
		if logMrt != nil {
			logMrt.Log(true)
		}
	}
}

// handleRequest handles handshake / stats request from client performing handshake / stats response.
func (q *QueryResponder) handleRequest(connCli net.PacketConn, addr net.Addr, reqClient []byte) *errco.MrtLog {
	// scheme:      [ magic (254 253) | type | session id | challenge (stats only) | padding (full stats only) ]
	// bytes used:  [ 2               | 1    | 4          | 4                      | 4                         ]

	if len(reqClient) < 7 || reqClient[0] != 254 || reqClient[1] != 253 {
		return errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_QUERY_REQUEST, "query request without magic bytes (%d bytes)", len(reqClient))
	}

	switch len(reqClient) {

	case 7: // handshake request from client
		errco.NewLogln(errco.TYPE_BYT, errco.LVL_4, errco.ERROR_NIL, "recv handshake req:\t%v", reqClient)

		sessionID := reqClient[3:7]

		// handshake response composition
		rsp := bytes.NewBuffer([]byte{9})                    // type: handshake
		rsp.Write(sessionID)                                 // session id
		rsp.WriteString(fmt.Sprintf("%d", q.gen()) + "\x00") // challenge (int32 written as string, null terminated)

		// handshake response send
		errco.NewLogln(errco.TYPE_BYT, errco.LVL_4, errco.ERROR_NIL, "send handshake rsp:\t%v", rsp.Bytes())
		_, err := connCli.WriteTo(rsp.Bytes(), addr)
		if err != nil {
			return errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_CONN_WRITE, err.Error())
		}

		return nil

	case 11, 15: // base / full stats request from client
		errco.NewLogln(errco.TYPE_BYT, errco.LVL_4, errco.ERROR_NIL, "recv stats req:\t%v", reqClient)

		sessionID := reqClient[3:7]
		challenge := reqClient[7:11]

		// check that received challenge is known and not expired
		if !q.inLibrary(binary.BigEndian.Uint32(challenge)) {
			return errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_QUERY_CHALLENGE, "challenge failed")
		}

		doc := q.status(clientIP(addr))

		var rsp []byte
		switch len(reqClient) {
		case 11:
			rsp = q.statsRespBase(sessionID, doc)
		case 15:
			rsp = q.statsRespFull(sessionID, doc)
		}

		errco.NewLogln(errco.TYPE_BYT, errco.LVL_4, errco.ERROR_NIL, "send stats rsp:\t%v", rsp)
		_, err := connCli.WriteTo(rsp, addr)
		if err != nil {
			return errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_CONN_WRITE, err.Error())
		}
		servstats.Stats.Count(servstats.OUTCOME_QUERY)

		return nil

	default:
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_QUERY_REQUEST, "unexpected number of bytes in stats / handshake request")
	}
}

// status returns the composite status (an empty document if not available)
func (q *QueryResponder) status(ip string) *model.StatusDocument {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := &model.StatusDocument{}

	data, logMrt := q.Source.Fetch(ctx, mcproto.DefaultProtocol(), ip)
	if logMrt != nil {
		logMrt.Log(true)
		servstats.Stats.AggregateError()
	}
	if err := json.Unmarshal(data, doc); err != nil {
		errco.NewLogln(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_JSON_UNMARSHAL, err.Error())
	}

	return doc
}

// statsRespBase returns the base stats response
func (q *QueryResponder) statsRespBase(sessionID []byte, doc *model.StatusDocument) []byte {
	hostPort := binary.LittleEndian.AppendUint16(nil, uint16(q.HostPort))

	buf := bytes.NewBuffer(nil)
	buf.WriteByte(0)                                              // type
	buf.Write(sessionID)                                          // session ID
	buf.WriteString(fmt.Sprintf("%s\x00", doc.DescriptionText())) // MOTD
	buf.WriteString("SMP\x00")                                    // gametype hardcoded (default)
	buf.WriteString("world\x00")                                  // map
	buf.WriteString(fmt.Sprintf("%d\x00", doc.Players.Online))    // numplayers
	buf.WriteString(fmt.Sprintf("%d\x00", doc.Players.Max))       // maxplayers
	buf.Write(hostPort)                                           // hostport (little endian short)
	buf.WriteString(fmt.Sprintf("%s\x00", q.HostIP))              // hostip

	return buf.Bytes()
}

// statsRespFull returns the full stats response
func (q *QueryResponder) statsRespFull(sessionID []byte, doc *model.StatusDocument) []byte {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(0)                        // type
	buf.Write(sessionID)                    // session ID
	buf.WriteString("splitnum\x00\x80\x00") // padding (default)

	// K, V section
	buf.WriteString(fmt.Sprintf("hostname\x00%s\x00", doc.DescriptionText()))
	buf.WriteString(fmt.Sprintf("gametype\x00%s\x00", "SMP"))      // hardcoded (default)
	buf.WriteString(fmt.Sprintf("game_id\x00%s\x00", "MINECRAFT")) // hardcoded (default)
	buf.WriteString(fmt.Sprintf("version\x00%s\x00", doc.Version.Name))
	buf.WriteString(fmt.Sprintf("plugins\x00%s: mortar %s\x00", doc.Version.Name, q.Version)) // example: "plugins\x00{ServerVersion}: {Name} {Version}; {Name} {Version}\x00"
	buf.WriteString("map\x00world\x00")
	buf.WriteString(fmt.Sprintf("numplayers\x00%d\x00", doc.Players.Online))
	buf.WriteString(fmt.Sprintf("maxplayers\x00%d\x00", doc.Players.Max))
	buf.WriteString(fmt.Sprintf("hostport\x00%d\x00", q.HostPort))
	buf.WriteString(fmt.Sprintf("hostip\x00%s\x00", q.HostIP))
	buf.WriteByte(0) // termination of section

	// Players
	buf.WriteString("\x01player_\x00\x00") // padding (default)
	for _, p := range doc.Players.Sample {
		buf.WriteString(p.Name + "\x00")
	}
	buf.WriteString("\x00") // termination of players list

	return buf.Bytes()
}

// gen generates a challenge and adds it to the challenge library
func (q *QueryResponder) gen() uint32 {
	cval := uint32(rand.Int31n(9_999_999-1_000_000+1) + 1_000_000)
	q.challenges.Set(strconv.FormatUint(uint64(cval), 10), struct{}{}, cache.DefaultExpiration)
	return cval
}

// inLibrary searches library for non-expired challenge value
func (q *QueryResponder) inLibrary(t uint32) bool {
	_, ok := q.challenges.Get(strconv.FormatUint(uint64(t), 10))
	return ok
}
