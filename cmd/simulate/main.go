package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-queue-scheduling/internal/config"
	"github.com/hackgods/clinic-queue-scheduling/internal/db"
	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
	"github.com/hackgods/clinic-queue-scheduling/pkg/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	WalkInRatio  float64
	AdvanceRatio float64
	ConfirmRatio float64
	BoardRatio   float64
	PatientLimit int
	DoctorLimit  int
	PostgresDSN  string
	Location     *time.Location
	LogLevel     string
}

// DataPool holds the ids the workers draw from. Appointments grow as
// bookings succeed.
type DataPool struct {
	Patients     []uuid.UUID
	Doctors      []string
	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeConflict
	outcomeRejected
	outcomeError
)

func classify(status int, err error) outcome {
	switch {
	case err != nil:
		return outcomeError
	case status >= 200 && status < 300:
		return outcomeOK
	case status == http.StatusConflict:
		return outcomeConflict
	case status == http.StatusUnprocessableEntity:
		return outcomeRejected
	default:
		return outcomeError
	}
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeOK:
		atomic.AddInt64(&om.Success, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case outcomeRejected:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pct(50), pct(95)
}

type Metrics struct {
	WalkIn  OperationMetrics
	Advance OperationMetrics
	Confirm OperationMetrics
	Board   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *logging.Logger
	metrics Metrics
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logging.Default().Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)
	logger.Info("simulator starting",
		"duration", cfg.Duration.String(),
		"workers", cfg.Workers,
		"walk_in", cfg.WalkInRatio,
		"advance", cfg.AdvanceRatio,
		"confirm", cfg.ConfirmRatio,
		"board", cfg.BoardRatio,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Error("load data pool", "error", err)
		os.Exit(1)
	}
	logger.Info("data pool loaded", "patients", len(dataPool.Patients), "doctors", len(dataPool.Doctors))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport(os.Stdout)
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		WalkInRatio:  getFloat("SIM_WALK_IN_RATIO", 0.4),
		AdvanceRatio: getFloat("SIM_ADVANCE_RATIO", 0.2),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.1),
		BoardRatio:   getFloat("SIM_BOARD_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 500),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 10),
		PostgresDSN:  baseCfg.PostgresDSN,
		Location:     baseCfg.Location,
		LogLevel:     baseCfg.LogLevel,
	}

	if cfg.Workers <= 0 {
		return SimConfig{}, errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, errors.New("SIM_DURATION must be > 0")
	}

	// Normalize ratios
	total := cfg.WalkInRatio + cfg.AdvanceRatio + cfg.ConfirmRatio + cfg.BoardRatio
	if total <= 0 {
		return SimConfig{}, errors.New("at least one SIM_*_RATIO must be > 0")
	}
	cfg.WalkInRatio /= total
	cfg.AdvanceRatio /= total
	cfg.ConfirmRatio /= total
	cfg.BoardRatio /= total

	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients ORDER BY created_at LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `SELECT name FROM doctors ORDER BY name LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, name)
	}
	rows.Close()

	if len(dataPool.Patients) == 0 {
		return nil, errors.New("no patients loaded")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, errors.New("no doctors loaded")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", "duration", s.config.Duration.String(), "workers", s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.WalkInRatio:
			s.doWalkIn(ctx, rng)
		case r < s.config.WalkInRatio+s.config.AdvanceRatio:
			s.doAdvance(ctx, rng)
		case r < s.config.WalkInRatio+s.config.AdvanceRatio+s.config.ConfirmRatio:
			s.doConfirm(ctx, rng)
		default:
			s.doBoard(ctx, rng)
		}
	}
}

func (s *Simulator) randomDoctor(rng *rand.Rand) string {
	return s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
}

func (s *Simulator) randomPatient(rng *rand.Rand) uuid.UUID {
	return s.pool.Patients[rng.Intn(len(s.pool.Patients))]
}

func (s *Simulator) doWalkIn(ctx context.Context, rng *rand.Rand) {
	body := map[string]string{
		"doctor":     s.randomDoctor(rng),
		"patient_id": s.randomPatient(rng).String(),
	}
	var resp struct {
		Appointment struct {
			ID uuid.UUID `json:"id"`
		} `json:"appointment"`
	}
	latency, status, err := s.send(ctx, http.MethodPost, "/walk-ins", body, &resp)
	if status == http.StatusCreated {
		s.pool.AddAppointment(resp.Appointment.ID)
	}
	s.metrics.WalkIn.Record(latency, classify(status, err))
}

// doAdvance books tomorrow on a random quarter hour. Off-grid and break
// slots come back as rejections.
func (s *Simulator) doAdvance(ctx context.Context, rng *rand.Rand) {
	tomorrow := schedule.Midnight(time.Now().In(s.config.Location), s.config.Location).AddDate(0, 0, 1)
	slot := tomorrow.Add(9*time.Hour + time.Duration(rng.Intn(40))*15*time.Minute)

	body := map[string]string{
		"doctor":     s.randomDoctor(rng),
		"patient_id": s.randomPatient(rng).String(),
		"date":       schedule.DateLabel(tomorrow),
		"time":       slot.Format(schedule.TimeLayout),
	}
	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	latency, status, err := s.send(ctx, http.MethodPost, "/appointments", body, &resp)
	if status == http.StatusCreated {
		s.pool.AddAppointment(resp.ID)
	}
	s.metrics.Advance.Record(latency, classify(status, err))
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	latency, status, err := s.send(ctx, http.MethodPost, "/appointments/"+id.String()+"/status",
		map[string]string{"status": "Confirmed"}, nil)
	s.metrics.Confirm.Record(latency, classify(status, err))
}

func (s *Simulator) doBoard(ctx context.Context, rng *rand.Rand) {
	today := schedule.DateLabel(time.Now().In(s.config.Location))
	path := "/doctors/" + url.PathEscape(s.randomDoctor(rng)) + "/days/" + url.PathEscape(today) + "/board"
	latency, status, err := s.send(ctx, http.MethodGet, path, nil, nil)
	s.metrics.Board.Record(latency, classify(status, err))
}

// send issues one API call and returns its latency and status. out is
// decoded only on 2xx.
func (s *Simulator) send(ctx context.Context, method, path string, body any, out any) (time.Duration, int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return latency, 0, nil
		}
		s.logger.Debug("request failed", "method", method, "path", path, "error", err)
		return latency, 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return latency, resp.StatusCode, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return latency, resp.StatusCode, nil
}

func (s *Simulator) PrintReport(w io.Writer) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(w, "SIMULATION REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "Duration: %s\n", s.config.Duration)
	fmt.Fprintf(w, "Workers: %d\n\n", s.config.Workers)

	printOperationReport(w, "Walk-in", &s.metrics.WalkIn)
	printOperationReport(w, "Advanced booking", &s.metrics.Advance)
	printOperationReport(w, "Confirm", &s.metrics.Confirm)
	printOperationReport(w, "Board read", &s.metrics.Board)
}

func printOperationReport(w io.Writer, name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	rejected := atomic.LoadInt64(&om.Rejected)
	failed := atomic.LoadInt64(&om.Error)
	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "  Total: %d\n", total)
	fmt.Fprintf(w, "  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Fprintf(w, "  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if rejected > 0 {
		fmt.Fprintf(w, "  Rejected: %d (%.1f%%)\n", rejected, pct(rejected))
	}
	if failed > 0 {
		fmt.Fprintf(w, "  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Fprintf(w, "  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
