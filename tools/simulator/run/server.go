package run

import (
	"context"
	"errors"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartcontractkit/keeper-registry/tools/simulator/simulate"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/telemetry"
)

type upkeepResponse struct {
	Name     string   `json:"name"`
	ID       string   `json:"id"`
	Expected bool     `json:"expected"`
	Performs []uint64 `json:"performs"`
	Missed   []uint64 `json:"missed"`
	Balance  *big.Int `json:"balance"`

	LastPerformedAt *time.Time `json:"lastPerformedAt,omitempty"`
}

type blockResponse struct {
	Number    uint64    `json:"number"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
}

// ResultServer exposes the outcome of a finished run over HTTP.
type ResultServer struct {
	router    *mux.Router
	collector *telemetry.PerformCollector
	upkeeps   []upkeepResponse
	blocks    []blockResponse
}

func NewResultServer(collector *telemetry.PerformCollector, report simulate.Report) *ResultServer {
	upkeeps := make([]upkeepResponse, 0, len(report.Upkeeps))
	for _, upkeep := range report.Upkeeps {
		response := upkeepResponse{
			Name:     upkeep.Name,
			ID:       upkeep.ID.String(),
			Expected: upkeep.Expected,
			Performs: upkeep.Performs,
			Missed:   upkeep.Missed,
			Balance:  upkeep.Balance,
		}

		if !upkeep.LastPerformedAt.IsZero() {
			at := upkeep.LastPerformedAt
			response.LastPerformedAt = &at
		}

		upkeeps = append(upkeeps, response)
	}

	blocks := make([]blockResponse, 0, len(report.Blocks))
	for _, block := range report.Blocks {
		blocks = append(blocks, blockResponse{
			Number:    block.Number,
			Hash:      block.Hash.Hex(),
			Timestamp: block.Timestamp,
		})
	}

	s := &ResultServer{
		router:    mux.NewRouter(),
		collector: collector,
		upkeeps:   upkeeps,
		blocks:    blocks,
	}

	s.routes()

	return s
}

func (s *ResultServer) routes() {
	s.router.HandleFunc("/", s.collector.SummaryChart()).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/summary", s.summary).Methods(http.MethodGet)
	api.HandleFunc("/upkeeps", s.listUpkeeps).Methods(http.MethodGet)
	api.HandleFunc("/upkeeps/{id}", s.getUpkeep).Methods(http.MethodGet)
	api.HandleFunc("/blocks", s.listBlocks).Methods(http.MethodGet)
}

// Serve answers requests on listener until ctx is done, then shuts down
// gracefully.
func (s *ResultServer) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)

	go func() {
		errs <- server.Serve(listener)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdown); err != nil {
		return err
	}

	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *ResultServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *ResultServer) summary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Summary())
}

func (s *ResultServer) listUpkeeps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.upkeeps)
}

func (s *ResultServer) listBlocks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.blocks)
}

func (s *ResultServer) getUpkeep(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	for _, upkeep := range s.upkeeps {
		if upkeep.ID == id {
			writeJSON(w, http.StatusOK, upkeep)

			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown upkeep " + id})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(value)
}
