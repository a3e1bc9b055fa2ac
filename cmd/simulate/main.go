package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-functions/internal/config"
	"github.com/hackgods/clinic-functions/internal/db"
	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/logging"
	"github.com/hackgods/clinic-functions/internal/records"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	Patients      int
	SignUpRatio   float64
	BookingRatio  float64
	RequestRatio  float64
	ReviewRatio   float64
	ReadRatio     float64
	ProviderLimit int
	PostgresDSN   string
}

type session struct {
	UID   string
	Token string
}

type DataPool struct {
	Professionals []string
	mu            sync.RWMutex
	sessions      []session
}

func (dp *DataPool) AddSession(s session) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.sessions = append(dp.sessions, s)
}

func (dp *DataPool) RandomSession(fake *gofakeit.Faker) (session, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.sessions) == 0 {
		return session{}, false
	}
	return dp.sessions[fake.Number(0, len(dp.sessions)-1)], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

// Record counts one call. Rejected calls are 4xx answers the functions are
// expected to give, such as a duplicate email.
func (om *OperationMetrics) Record(latency time.Duration, success, rejected bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case rejected:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, minimum, maximum, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	minimum = latencies[0]
	maximum = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, minimum, maximum, p50, p95
}

type Metrics struct {
	SignUp  OperationMetrics
	SignIn  OperationMetrics
	Booking OperationMetrics
	Request OperationMetrics
	Resolve OperationMetrics
	Review  OperationMetrics
	Read    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		boot := logging.New("prod", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}
	log := logging.Component(logging.New(baseCfg.Env, baseCfg.LogLevel), "simulate")
	log.Info().Msg("simulator starting")

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{AppName: "clinic-simulate", MaxConns: 4})
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, docstore.New(docstore.NewPgBackend(pgPool), nil), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	log.Info().Int("professionals", len(dataPool.Professionals)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	warmup := gofakeit.New(0)
	for range cfg.Patients {
		sim.doSignUp(context.Background(), warmup)
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		Patients:      getInt("SIM_PATIENTS", 20),
		SignUpRatio:   getFloat("SIM_SIGNUP_RATIO", 0.1),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.3),
		RequestRatio:  getFloat("SIM_REQUEST_RATIO", 0.2),
		ReviewRatio:   getFloat("SIM_REVIEW_RATIO", 0.1),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		ProviderLimit: getInt("SIM_PROVIDER_LIMIT", 500),
		PostgresDSN:   base.PostgresDSN,
	}

	total := cfg.SignUpRatio + cfg.BookingRatio + cfg.RequestRatio + cfg.ReviewRatio + cfg.ReadRatio
	if total > 0 {
		cfg.SignUpRatio /= total
		cfg.BookingRatio /= total
		cfg.RequestRatio /= total
		cfg.ReviewRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, store *docstore.Client, cfg SimConfig) (*DataPool, error) {
	docs, err := store.Find(ctx, docstore.From(records.Users).
		Where("role", docstore.OpIn, []string{string(records.RoleDoctor), string(records.RoleNurse)}).
		Take(cfg.ProviderLimit))
	if err != nil {
		return nil, fmt.Errorf("load professionals: %w", err)
	}

	dataPool := &DataPool{}
	for _, doc := range docs {
		dataPool.Professionals = append(dataPool.Professionals, doc.ID)
	}
	if len(dataPool.Professionals) == 0 {
		return nil, fmt.Errorf("no professionals loaded, run cmd/seed first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for range s.config.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context) {
	fake := gofakeit.New(0)
	c := s.config

	for ctx.Err() == nil {
		r := fake.Float64()
		switch {
		case r < c.SignUpRatio:
			s.doSignUp(ctx, fake)
		case r < c.SignUpRatio+c.BookingRatio:
			s.doBooking(ctx, fake)
		case r < c.SignUpRatio+c.BookingRatio+c.RequestRatio:
			s.doRequest(ctx, fake)
		case r < c.SignUpRatio+c.BookingRatio+c.RequestRatio+c.ReviewRatio:
			s.doReview(ctx, fake)
		default:
			s.doRead(ctx, fake)
		}
	}
}

// call posts body and decodes the JSON answer into out when out is not nil.
func (s *Simulator) call(ctx context.Context, method, path, token string, body, out any) (int, time.Duration, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	}
	return resp.StatusCode, latency, nil
}

func record(om *OperationMetrics, status int, latency time.Duration, err error, want int) {
	om.Record(latency, err == nil && status == want, err == nil && status >= 400 && status < 500)
}

func (s *Simulator) doSignUp(ctx context.Context, fake *gofakeit.Faker) {
	email := fake.Email()
	password := fake.Password(true, true, true, false, false, 12)

	var signUp struct {
		Result struct {
			UserID string `json:"userId"`
		} `json:"result"`
	}
	status, latency, err := s.call(ctx, http.MethodPost, "/callable/signUpUser", "", map[string]any{
		"data": map[string]any{
			"email":     email,
			"password":  password,
			"nom":       fake.LastName(),
			"prenom":    fake.FirstName(),
			"telephone": fake.Phone(),
		},
	}, &signUp)
	record(&s.metrics.SignUp, status, latency, err, http.StatusOK)
	if err != nil || status != http.StatusOK {
		return
	}

	var signIn struct {
		Result struct {
			CustomToken string `json:"customToken"`
		} `json:"result"`
	}
	status, latency, err = s.call(ctx, http.MethodPost, "/callable/signInUser", "", map[string]any{
		"data": map[string]any{"email": email, "password": password},
	}, &signIn)
	record(&s.metrics.SignIn, status, latency, err, http.StatusOK)
	if err == nil && status == http.StatusOK {
		s.pool.AddSession(session{UID: signUp.Result.UserID, Token: signIn.Result.CustomToken})
	}
}

func (s *Simulator) randomSlot(fake *gofakeit.Faker) (string, string) {
	at := time.Now().Add(time.Duration(fake.Number(30, 72*60)) * time.Minute).Truncate(5 * time.Minute)
	return at.Format(time.DateOnly), at.Format("15:04")
}

func (s *Simulator) randomProfessional(fake *gofakeit.Faker) string {
	return s.pool.Professionals[fake.Number(0, len(s.pool.Professionals)-1)]
}

func (s *Simulator) doBooking(ctx context.Context, fake *gofakeit.Faker) {
	sess, ok := s.pool.RandomSession(fake)
	if !ok {
		return
	}

	date, heure := s.randomSlot(fake)
	appt := map[string]any{
		"idpat":  sess.UID,
		"idpro":  s.randomProfessional(fake),
		"date":   date,
		"heure":  heure,
		"status": fake.RandomString([]string{records.StatusPending, records.StatusConfirmed}),
	}
	if fake.Bool() {
		appt["note"] = fake.RandomString([]string{"Consultation de suivi", "Douleurs dorsales", "Renouvellement d'ordonnance"})
	}

	status, latency, err := s.call(ctx, http.MethodPost, "/v1/documents/"+records.Appointments, sess.Token, appt, nil)
	record(&s.metrics.Booking, status, latency, err, http.StatusCreated)
}

// doRequest files an appointment request and resolves about half of them,
// which cancels their scheduled deletion.
func (s *Simulator) doRequest(ctx context.Context, fake *gofakeit.Faker) {
	sess, ok := s.pool.RandomSession(fake)
	if !ok {
		return
	}

	date, heure := s.randomSlot(fake)
	var created struct {
		ID string `json:"id"`
	}
	status, latency, err := s.call(ctx, http.MethodPost, "/v1/documents/"+records.AppointmentRequests, sess.Token, map[string]any{
		"idpat":           sess.UID,
		"idpro":           s.randomProfessional(fake),
		"patientName":     fake.Name(),
		"service":         fake.RandomString([]string{"consultation", "vaccination", "bilan"}),
		"appointmentDate": date,
		"appointmentTime": heure,
		"status":          records.StatusPending,
	}, &created)
	record(&s.metrics.Request, status, latency, err, http.StatusCreated)
	if err != nil || status != http.StatusCreated || !fake.Bool() {
		return
	}

	resolution := fake.RandomString([]string{records.StatusAccepted, records.StatusRejected})
	status, latency, err = s.call(ctx, http.MethodPatch, "/v1/documents/"+records.AppointmentRequests+"/"+created.ID, sess.Token,
		map[string]any{"status": resolution}, nil)
	record(&s.metrics.Resolve, status, latency, err, http.StatusOK)
}

// doReview posts a review. Most of them have no backing appointment and are
// removed by the review gatekeeper.
func (s *Simulator) doReview(ctx context.Context, fake *gofakeit.Faker) {
	sess, ok := s.pool.RandomSession(fake)
	if !ok {
		return
	}

	status, latency, err := s.call(ctx, http.MethodPost, "/v1/documents/"+records.Reviews, sess.Token, map[string]any{
		"idpat":       sess.UID,
		"idpro":       s.randomProfessional(fake),
		"note":        fake.Number(1, 5),
		"commentaire": fake.RandomString([]string{"Très à l'écoute", "Ponctuel", "Attente un peu longue"}),
	}, nil)
	record(&s.metrics.Review, status, latency, err, http.StatusCreated)
}

func (s *Simulator) doRead(ctx context.Context, fake *gofakeit.Faker) {
	sess, ok := s.pool.RandomSession(fake)
	if !ok {
		return
	}

	status, latency, err := s.call(ctx, http.MethodPost, "/callable/getUserRole", sess.Token, map[string]any{"data": nil}, nil)
	record(&s.metrics.Read, status, latency, err, http.StatusOK)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Sign up", &s.metrics.SignUp)
	printOperationReport("Sign in", &s.metrics.SignIn)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Appointment request", &s.metrics.Request)
	printOperationReport("Request resolution", &s.metrics.Resolve)
	printOperationReport("Review", &s.metrics.Review)
	printOperationReport("Get user role", &s.metrics.Read)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	errs := atomic.LoadInt64(&om.Error)

	avg, minimum, maximum, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, float64(rejected)/float64(total)*100)
	}
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, float64(errs)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), minimum.Round(time.Millisecond), maximum.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

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
