package servstats

import (
	"sync"
	"time"

	"mortar/lib/errco"
	"mortar/lib/model"
)

// Stats contains the client connection statistics
var Stats *mortarStats = &mortarStats{
	M:             &sync.Mutex{},
	BytesToClient: 0,
	BytesToMortar: 0,
}

type mortarStats struct {
	M             *sync.Mutex
	counts        model.Counts // connection outcomes since start
	BytesToClient float64      // tracks bytes/s mortar->clients
	BytesToMortar float64      // tracks bytes/s clients->mortar
}

// Outcome is how a client connection ended
type Outcome int

const (
	OUTCOME_STATUS   Outcome = iota // status response written
	OUTCOME_PING                    // pong written
	OUTCOME_LOGIN                   // login disconnect written
	OUTCOME_REJECTED                // closed without answering
	OUTCOME_LEGACY                  // legacy ping dropped
	OUTCOME_QUERY                   // udp query answered
)

func init() {
	go printDataUsage()
}

// printDataUsage prints each second bytes/s to clients and to mortar.
// [goroutine]
func printDataUsage() {
	ticker := time.NewTicker(time.Second)

	for {
		<-ticker.C

		Stats.M.Lock()
		if Stats.BytesToClient != 0 || Stats.BytesToMortar != 0 {
			errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "data/s: %8.3f KB/s to clients | %8.3f KB/s to mortar", Stats.BytesToClient/1024, Stats.BytesToMortar/1024)
			Stats.BytesToClient = 0
			Stats.BytesToMortar = 0
		}
		Stats.M.Unlock()
	}
}

// Connected registers a new active client connection
func (s *mortarStats) Connected() {
	s.M.Lock()
	defer s.M.Unlock()
	s.counts.Active++
}

// Disconnected registers the end of a client connection
func (s *mortarStats) Disconnected() {
	s.M.Lock()
	defer s.M.Unlock()
	s.counts.Active--
}

// Count registers a connection outcome
func (s *mortarStats) Count(o Outcome) {
	s.M.Lock()
	defer s.M.Unlock()

	switch o {
	case OUTCOME_STATUS:
		s.counts.Status++
	case OUTCOME_PING:
		s.counts.Ping++
	case OUTCOME_LOGIN:
		s.counts.Login++
	case OUTCOME_REJECTED:
		s.counts.Rejected++
	case OUTCOME_LEGACY:
		s.counts.Legacy++
	case OUTCOME_QUERY:
		s.counts.Query++
	}
}

// AggregateError registers a failed aggregation fetch
func (s *mortarStats) AggregateError() {
	s.M.Lock()
	defer s.M.Unlock()
	s.counts.Aggregate++
}

// Traffic adds bytes exchanged with a client to the data usage
func (s *mortarStats) Traffic(toClient, toMortar int) {
	s.M.Lock()
	defer s.M.Unlock()
	s.BytesToClient += float64(toClient)
	s.BytesToMortar += float64(toMortar)
}

// Snapshot returns a copy of the current counters
func (s *mortarStats) Snapshot() model.Counts {
	s.M.Lock()
	defer s.M.Unlock()
	return s.counts
}
