package api

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/klinikgo/clinic-server/cmd/utils"
	"github.com/klinikgo/clinic-server/service/pharmacy"
	"github.com/klinikgo/clinic-server/service/records"
	"github.com/klinikgo/clinic-server/service/scheduling"
	"github.com/klinikgo/clinic-server/service/user"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	public := router.PathPrefix("/api/v1").Subrouter()
	protected := router.PathPrefix("/api/v1").Subrouter()
	protected.Use(utils.AuthMiddleware)

	public.HandleFunc("/status", handleStatus).Methods("GET")

	userHandler := user.NewHandler(s.db)
	userHandler.RegisterRoutes(public)

	scheduler := scheduling.NewScheduler(s.db, scheduling.SystemClock)
	schedulingHandler := scheduling.NewHandler(scheduler)
	schedulingHandler.RegisterPublicRoutes(public)
	schedulingHandler.RegisterRoutes(protected)

	recordsHandler := records.NewHandler(s.db)
	recordsHandler.RegisterRoutes(protected)

	pharmacyHandler := pharmacy.NewHandler(s.db)
	pharmacyHandler.RegisterRoutes(protected)

	log.Info().Str("address", s.address).Msg("server listening")

	chain := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(handlers.LoggingHandler(os.Stdout, router))

	return http.ListenAndServe(s.address, chain)
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"success","message":"Clinic API is running"}`))
}
