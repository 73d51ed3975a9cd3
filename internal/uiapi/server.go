package uiapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/awaistahir/smart-run-planner/internal/engine"
	"github.com/awaistahir/smart-run-planner/internal/logger"
	"github.com/awaistahir/smart-run-planner/internal/milp"
	"github.com/awaistahir/smart-run-planner/internal/prices"
	"github.com/awaistahir/smart-run-planner/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "1.0.0"

// PriceSource produces a day's hourly price curve, e.g. *prices.OctopusClient.
type PriceSource interface {
	HourlyCurve(ctx context.Context, day time.Time) (engine.PriceCurve, error)
}

// PriceSourceFunc returns the price source for a region.
type PriceSourceFunc func(region string) PriceSource

type Server struct {
	store     *store.Store
	household string
	exact     engine.Scheduler
	observer  engine.Observer
	source    PriceSourceFunc
	gatherer  prometheus.Gatherer
	log       logger.Logger
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithExact enables the exact strategy for /api/schedule and /api/compare.
func WithExact(s engine.Scheduler) Option {
	return func(srv *Server) { srv.exact = s }
}

// WithObserver attaches a run observer to every planner the server builds.
func WithObserver(o engine.Observer) Option {
	return func(srv *Server) { srv.observer = o }
}

// WithPriceSource replaces the Octopus Agile client used by /api/tariff/fetch.
func WithPriceSource(f PriceSourceFunc) Option {
	return func(srv *Server) { srv.source = f }
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(srv *Server) { srv.gatherer = g }
}

func WithLogger(l logger.Logger) Option {
	return func(srv *Server) { srv.log = l }
}

func NewServer(st *store.Store, opts ...Option) *Server {
	srv := &Server{
		store:     st,
		household: store.DefaultHousehold,
		source: func(region string) PriceSource {
			return prices.NewOctopusClient(region)
		},
		log: logger.NopLogger{},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for local development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/tariff", s.handleGetTariff)
		r.Put("/tariff", s.handleUpdateTariff)
		r.Get("/tariff/templates", s.handleGetTemplates)
		r.Post("/tariff/fetch", s.handleFetchTariff)
		r.Get("/appliances", s.handleGetAppliances)
		r.Post("/appliances", s.handleCreateAppliance)
		r.Get("/appliances/{id}", s.handleGetAppliance)
		r.Put("/appliances/{id}", s.handleUpdateAppliance)
		r.Delete("/appliances/{id}", s.handleDeleteAppliance)
		r.Post("/schedule", s.handleSchedule)
		r.Post("/compare", s.handleCompare)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		began := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debugw("http request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(began).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	strategies := []string{engine.StrategyGreedy}
	if s.exact != nil {
		strategies = append(strategies, engine.StrategyExact)
	}

	status := map[string]any{
		"status":     "ok",
		"version":    version,
		"strategies": strategies,
		"backends":   milp.Backends(),
		"tariff":     false,
	}
	if t, err := s.store.GetTariff(s.household); err == nil {
		status["tariff"] = true
		status["region"] = t.Region
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetTariff(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTariff(s.household)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTariff(w http.ResponseWriter, r *http.Request) {
	var t store.Tariff
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.store.SaveTariff(s.household, &t); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

type templateResponse struct {
	Name   string    `json:"name"`
	Prices []float64 `json:"prices"`
}

func (s *Server) handleGetTemplates(w http.ResponseWriter, r *http.Request) {
	names := prices.Templates()
	out := make([]templateResponse, 0, len(names))
	for _, name := range names {
		curve, err := prices.Template(name)
		if err != nil {
			respondErr(w, err)
			return
		}
		out = append(out, templateResponse{Name: name, Prices: curve.Values()})
	}
	respondJSON(w, http.StatusOK, out)
}

// FetchRequest selects the live tariff to install. Empty fields fall back to the
// stored tariff, and Date defaults to today.
type FetchRequest struct {
	Region   string  `json:"region"`
	Date     string  `json:"date"`
	BudgetKW float64 `json:"budget_kw"`
}

func (s *Server) handleFetchTariff(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	current, err := s.store.GetTariff(s.household)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		respondErr(w, err)
		return
	}
	if current != nil {
		if req.Region == "" {
			req.Region = current.Region
		}
		if req.BudgetKW == 0 {
			req.BudgetKW = current.BudgetKW
		}
	}
	if req.Region == "" {
		respondError(w, http.StatusBadRequest, "region is required")
		return
	}

	day := s.now()
	if req.Date != "" {
		day, err = time.ParseInLocation("2006-01-02", req.Date, time.Local)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	curve, err := s.source(req.Region).HourlyCurve(r.Context(), day)
	if err != nil {
		s.log.Errorf("fetching tariff for region %s: %v", req.Region, err)
		respondError(w, http.StatusBadGateway, "failed to fetch prices: "+err.Error())
		return
	}

	t := store.Tariff{Prices: curve.Values(), BudgetKW: req.BudgetKW, Region: req.Region}
	if err := s.store.SaveTariff(s.household, &t); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetAppliances(w http.ResponseWriter, r *http.Request) {
	appliances, err := s.store.GetAppliances(s.household)
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, appliances)
}

func (s *Server) handleCreateAppliance(w http.ResponseWriter, r *http.Request) {
	var appliance store.Appliance
	if err := json.NewDecoder(r.Body).Decode(&appliance); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	appliance.ID = ""
	if err := s.store.SaveAppliance(&appliance, s.household); err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, appliance)
}

func (s *Server) handleGetAppliance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	appliance, err := s.store.GetAppliance(id, s.household)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, appliance)
}

func (s *Server) handleUpdateAppliance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetAppliance(id, s.household); err != nil {
		respondErr(w, err)
		return
	}

	var appliance store.Appliance
	if err := json.NewDecoder(r.Body).Decode(&appliance); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	appliance.ID = id
	if err := s.store.SaveAppliance(&appliance, s.household); err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, appliance)
}

func (s *Server) handleDeleteAppliance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteAppliance(id, s.household); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "deleted", "id": id})
}

// ScheduleRequest selects the strategy for /api/schedule. Empty means greedy.
type ScheduleRequest struct {
	Strategy string `json:"strategy"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	planner, err := s.planner()
	if err != nil {
		respondErr(w, err)
		return
	}

	res, err := planner.Run(r.Context(), req.Strategy)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, NewScheduleDocument(res))
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	planner, err := s.planner()
	if err != nil {
		respondErr(w, err)
		return
	}

	exact, err := planner.RunExact(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	greedy, err := planner.RunGreedy(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, NewComparisonDocument(greedy, exact))
}

// planner loads a fresh planner from the store for one request.
func (s *Server) planner() (*engine.Planner, error) {
	opts := []engine.Option{engine.WithLogger(s.log)}
	if s.exact != nil {
		opts = append(opts, engine.WithExact(s.exact))
	}
	if s.observer != nil {
		opts = append(opts, engine.WithObserver(s.observer))
	}
	return s.store.LoadPlanner(s.household, opts...)
}

// decodeOptional decodes a JSON body, treating an empty body as the zero value.
func decodeOptional(body io.Reader, v any) error {
	err := json.NewDecoder(body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps engine and store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case engine.IsValidation(err):
		return http.StatusBadRequest
	case engine.IsDependency(err):
		return http.StatusNotImplemented
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
