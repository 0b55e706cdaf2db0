package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/pretzelio/pretzel/src/worker"
	"github.com/sirupsen/logrus"
)

// Service exposes a worker's communication state over HTTP for monitoring.
type Service struct {
	sync.Mutex

	bindAddress string
	worker      *worker.Worker
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, w *worker.Worker, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		worker:      w,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of the
// http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers. This is usefull when pretzel is used
// in-memory and expecpted to use the same endpoint (address:port) as the
// application's API.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering pretzel API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/superstep", s.makeHandler(s.GetSuperstep))
	http.HandleFunc("/workers", s.makeHandler(s.GetWorkers))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary to
// call Serve when pretzel is used in-memory and another server has already
// been started with the DefaultServerMux and the same address:port
// combination. Indeed, pretzel API handlers have already been registered when
// the service was instantiated.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving pretzel API")

	// Use the DefaultServerMux
	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.worker.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// SuperstepInfo summarizes the communication state of the current superstep.
type SuperstepInfo struct {
	Superstep        int `json:"superstep"`
	CurrentMessages  int `json:"current_messages"`
	BufferedMessages int `json:"buffered_messages"`
	PendingMutations int `json:"pending_mutations"`
	StagedVertices   int `json:"staged_vertices"`
}

// GetSuperstep ...
func (s *Service) GetSuperstep(w http.ResponseWriter, r *http.Request) {
	state := s.worker.State()

	info := SuperstepInfo{
		Superstep:        state.Superstep(),
		CurrentMessages:  state.CurrentStore().Count(),
		BufferedMessages: state.IncomingStore().Count(),
		PendingMutations: state.Mutations().Len(),
		StagedVertices:   state.Staging().VertexCount(),
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(info)
}

// GetWorkers ...
func (s *Service) GetWorkers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)

	encoder.Encode(s.worker.GetPeers())
}
