package worker

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pretzelio/pretzel/src/auth"
	"github.com/pretzelio/pretzel/src/comm"
	"github.com/pretzelio/pretzel/src/messages"
	"github.com/pretzelio/pretzel/src/net"
	"github.com/pretzelio/pretzel/src/peers"
	"github.com/sirupsen/logrus"
)

// Worker ties the communication state of one graph-processing task to the
// network. It owns the superstep message stores, the mutation ledger and the
// vertex staging area, terminates peer connections, runs the authentication
// handshake, and dispatches every inbound request at most once.
type Worker struct {
	conf   *Config
	logger *logrus.Entry

	identity *Identity
	peers    *peers.PeerSet

	state    *comm.ServerState
	sessions *auth.SessionRegistry
	reserved *comm.ReservedRequests
	injector *comm.FaultInjector

	trans   net.Transport
	factory messages.StoreFactory

	requestSeq uint64

	messageRequests  uint64
	mutationRequests uint64
	vertexRequests   uint64
	droppedRequests  uint64

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	start time.Time
}

// NewWorker is a factory method that returns a Worker instance. The worker
// registers itself as the transport's request handler, so the transport must
// not be listening yet.
func NewWorker(conf *Config,
	identity *Identity,
	peerSet *peers.PeerSet,
	factory messages.StoreFactory,
	trans net.Transport,
) (*Worker, error) {

	logger := conf.Logger.WithFields(logrus.Fields{
		"this_id": identity.ID(),
		"moniker": identity.Moniker,
	})

	state, err := comm.NewServerState(factory, logger)
	if err != nil {
		return nil, err
	}

	worker := &Worker{
		conf:       conf,
		logger:     logger,
		identity:   identity,
		peers:      peerSet,
		state:      state,
		sessions:   auth.NewSessionRegistry(auth.NewRegistryCredentials(peerSet), logger),
		reserved:   comm.NewReservedRequests(),
		injector:   comm.NewFaultInjector(conf.SimulateFirstRequestClosed),
		trans:      trans,
		factory:    factory,
		shutdownCh: make(chan struct{}),
		start:      time.Now(),
	}

	trans.RegisterHandler(worker)

	return worker, nil
}

// RunAsync calls Run as a separate thread
func (w *Worker) RunAsync() {
	go w.Run()
}

// Run starts serving peer connections and blocks until Shutdown is called.
func (w *Worker) Run() {
	w.logger.WithFields(logrus.Fields{
		"job_id":      w.conf.JobID,
		"task_index":  w.conf.TaskIndex,
		"addr":        w.trans.AdvertiseAddr(),
		"num_workers": w.peers.Len(),
	}).Info("Worker running")

	go w.trans.Listen()

	<-w.shutdownCh
}

// Shutdown stops the worker. The transport is closed before the store
// factory so that no connection can land a request on released stores.
func (w *Worker) Shutdown() {
	w.shutdownLock.Lock()
	defer w.shutdownLock.Unlock()

	if w.shutdown {
		return
	}

	w.logger.Debug("Shutdown")

	w.shutdown = true
	close(w.shutdownCh)

	w.trans.Close()
	w.factory.Close()
}

// PrepareSuperstep rotates the message stores at a superstep boundary: the
// messages buffered during the finishing superstep become the current ones,
// and a fresh store starts collecting for the next round. The coordinator
// must have established that no peer is still sending messages for the
// finishing superstep. If the previous store cannot be cleared the worker
// would compute on stale messages, so it aborts instead.
func (w *Worker) PrepareSuperstep() {
	if err := w.state.PrepareSuperstep(); err != nil {
		w.logger.WithError(err).Fatal("Preparing superstep")
	}

	w.logStats()
}

// State exposes the communication state for the computation phase: the
// current message store to consume, the mutation ledger and the vertex
// staging area to snapshot.
func (w *Worker) State() *comm.ServerState {
	return w.state
}

// ID returns the worker ID
func (w *Worker) ID() uint32 {
	return w.identity.ID()
}

// Moniker returns the worker's moniker
func (w *Worker) Moniker() string {
	return w.identity.Moniker
}

// AdvertiseAddr returns the address peers should dial to reach this worker
func (w *Worker) AdvertiseAddr() string {
	return w.trans.AdvertiseAddr()
}

// GetPeers returns the workers taking part in the job
func (w *Worker) GetPeers() []*peers.Peer {
	return w.peers.Peers
}

// GetStats returns stats
func (w *Worker) GetStats() map[string]string {
	timeElapsed := time.Since(w.start)

	messageRequests := atomic.LoadUint64(&w.messageRequests)
	mutationRequests := atomic.LoadUint64(&w.mutationRequests)
	vertexRequests := atomic.LoadUint64(&w.vertexRequests)

	totalRequests := messageRequests + mutationRequests + vertexRequests

	requestsPerSecond := float64(totalRequests) / timeElapsed.Seconds()

	s := map[string]string{
		"superstep":           strconv.Itoa(w.state.Superstep()),
		"current_messages":    strconv.Itoa(w.state.CurrentStore().Count()),
		"buffered_messages":   strconv.Itoa(w.state.IncomingStore().Count()),
		"pending_mutations":   strconv.Itoa(w.state.Mutations().Len()),
		"staged_partitions":   strconv.Itoa(w.state.Staging().Len()),
		"staged_vertices":     strconv.Itoa(w.state.Staging().VertexCount()),
		"message_requests":    strconv.FormatUint(messageRequests, 10),
		"mutation_requests":   strconv.FormatUint(mutationRequests, 10),
		"vertex_requests":     strconv.FormatUint(vertexRequests, 10),
		"dropped_requests":    strconv.FormatUint(atomic.LoadUint64(&w.droppedRequests), 10),
		"dedup_hits":          strconv.FormatUint(w.reserved.DedupHits(), 10),
		"reserved_requests":   strconv.Itoa(w.reserved.Len()),
		"open_sessions":       strconv.Itoa(w.sessions.Len()),
		"requests_per_second": strconv.FormatFloat(requestsPerSecond, 'f', 2, 64),
		"num_workers":         strconv.Itoa(w.peers.Len()),
		"job_id":              w.conf.JobID,
		"task_index":          strconv.Itoa(w.conf.TaskIndex),
		"id":                  fmt.Sprint(w.identity.ID()),
		"moniker":             w.identity.Moniker,
	}
	return s
}

func (w *Worker) logStats() {
	stats := w.GetStats()

	w.logger.WithFields(logrus.Fields{
		"superstep":         stats["superstep"],
		"current_messages":  stats["current_messages"],
		"buffered_messages": stats["buffered_messages"],
		"pending_mutations": stats["pending_mutations"],
		"staged_vertices":   stats["staged_vertices"],
		"message_requests":  stats["message_requests"],
		"dropped_requests":  stats["dropped_requests"],
		"dedup_hits":        stats["dedup_hits"],
		"num_workers":       stats["num_workers"],
		"id":                stats["id"],
		"moniker":           stats["moniker"],
	}).Debug("Stats")
}
