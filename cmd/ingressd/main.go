// Command ingressd is a reference HTTP front door for ticket creation:
// it decodes a JSON request body into an Ingress call and maps the
// resulting sentinel errors onto status codes. It is a sample
// collaborator, not the only way to drive Ingress.CreateTicket.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/yadneshx17/matchmakingEngine/server"
)

type createTicketRequest struct {
	GameMode         string                    `json:"gameMode"`
	PlayerName       string                    `json:"playerName"`
	Skill            int                       `json:"skill"`
	RegionPreference []server.RegionPreference `json:"regionPreference"`
	LatencyData      map[string]int            `json:"latencyData"`
}

type createTicketResponse struct {
	TicketID string `json:"ticketId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func main() {
	addr := flag.String("addr", ":8080", "address to listen on")
	rulesPath := flag.String("rules", "rules.yaml", "path to the per-mode rules document")
	configPath := flag.String("config", "engine.yaml", "path to the engine configuration document")
	flag.Parse()

	cfg, err := server.LoadEngineConfig(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := server.NewLogger(cfg.LogPath, false)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rules, err := server.LoadRulesRegistry(*rulesPath)
	if err != nil {
		logger.Fatal("loading rules document", zap.Error(err))
	}

	store := server.NewMemoryStore(cfg.TicketTTL)
	bus := server.NewBus(logger)
	ing := server.NewIngress(rules, store, bus, server.SystemClock{}, defaultRegions)

	router := mux.NewRouter()
	router.HandleFunc("/tickets", ticketHandler(ing, logger)).Methods(http.MethodPost)

	logged := handlers.LoggingHandler(zapWriter{logger}, router)

	logger.Info("ingressd listening", zap.String("addr", *addr))
	srv := &http.Server{
		Addr:         *addr,
		Handler:      logged,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("ingressd stopped", zap.Error(err))
	}
}

var defaultRegions = []string{"us-east", "us-west", "eu-west", "ap-southeast"}

func ticketHandler(ing *server.Ingress, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTicketRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		player := server.PlayerPayload{
			PlayerName:       req.PlayerName,
			Skill:            req.Skill,
			RegionPreference: req.RegionPreference,
			LatencyData:      req.LatencyData,
		}

		ticketID, err := ing.CreateTicket(r.Context(), req.GameMode, player)
		if err != nil {
			switch {
			case errors.Is(err, server.ErrUnknownMode), errors.Is(err, server.ErrInvalidTicket):
				writeError(w, http.StatusBadRequest, err)
			default:
				logger.Error("create ticket failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, err)
			}
			return
		}

		writeJSON(w, http.StatusCreated, createTicketResponse{TicketID: ticketID})
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// zapWriter adapts a zap.Logger to the io.Writer gorilla/handlers wants
// for its combined log output.
type zapWriter struct{ logger *zap.Logger }

func (z zapWriter) Write(p []byte) (int, error) {
	z.logger.Info(string(p))
	return len(p), nil
}
