// Package api implements the beacon's HTTP surface: a plain REST mux (no
// JSON-RPC batching — the spec's surface is plain REST) with a small
// middleware chain borrowed in shape from the daemon's JSON-RPC handler:
// request logging and per-IP rate limiting. Every response is
// encoding/json; the spec's MessagePack wire codec has no available
// library in this stack and is replaced end-to-end by JSON (see DESIGN.md).
package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/csienslab/headstart/beacon"
	"github.com/csienslab/headstart/log"
	"github.com/csienslab/headstart/stage"
)

// Server serves the beacon's HTTP API.
type Server struct {
	b       *beacon.Beacon
	logger  *log.Logger
	limiter *rateLimiter
	mux     *http.ServeMux
}

// NewServer builds a Server wired to b. rate/burst of 0 disables limiting.
func NewServer(b *beacon.Beacon, logger *log.Logger, rate, burst int) *Server {
	s := &Server{
		b:       b,
		logger:  logger.Module(log.ModuleAPI),
		limiter: newRateLimiter(rate, burst),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ip := extractIP(r)
	if !s.limiter.Allow(ip) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", ip, "elapsed", time.Since(start))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/pubkey", s.handlePubkey)
	s.mux.HandleFunc("GET /api/beacon_config", s.handleBeaconConfig)
	s.mux.HandleFunc("GET /api/info", s.handleInfo)
	s.mux.HandleFunc("POST /api/contribute", s.handleContribute)
	s.mux.HandleFunc("GET /api/stage", s.handleStageRange)
	s.mux.HandleFunc("GET /api/stage/{i}", s.handleStageByIndex)
	s.mux.HandleFunc("GET /api/stage/{i}/accproof/{j}", s.handleAccProof)
}

func (s *Server) handlePubkey(w http.ResponseWriter, r *http.Request) {
	pem, err := beacon.PublicKeyPEM(s.b.PublicKey())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(pem)
}

func (s *Server) handleBeaconConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.b.ConfigSummary()
	writeJSON(w, http.StatusOK, map[string]any{
		"interval_seconds": cfg.IntervalSeconds,
		"window_size":      cfg.WindowSize,
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := s.b.CurrentInfo()
	writeJSON(w, http.StatusOK, map[string]any{
		"stage":         info.Stage,
		"phase":         info.Phase,
		"contributions": info.Contributions,
	})
}

type contributeRequest struct {
	Randomness string `json:"randomness"`
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req contributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	x, err := base64.StdEncoding.DecodeString(req.Randomness)
	if err != nil {
		writeError(w, http.StatusBadRequest, "randomness is not valid base64")
		return
	}

	receipt, err := s.b.Contribute(x)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stage":      receipt.StageIndex,
		"data_index": receipt.DataIndex,
		"signature":  base64.StdEncoding.EncodeToString(receipt.Signature),
	})
}

// stageSnapshotJSON mirrors §6's stage snapshot shape: optional fields
// appear only once their phase is reached.
func stageSnapshotJSON(st *stage.Stage) map[string]any {
	out := map[string]any{
		"stage":         st.Index(),
		"phase":         st.Phase().String(),
		"contributions": st.ContributionCount(),
	}
	if accval, err := st.GetAccVal(); err == nil {
		out["accval"] = base64.StdEncoding.EncodeToString(accval)
	}
	if proof, err := st.GetVDFProof(); err == nil {
		out["vdfy"] = base64.StdEncoding.EncodeToString(proof.Y)
		out["vdfproof"] = map[string]any{
			"discriminant": proof.DiscriminantString,
			"y":            base64.StdEncoding.EncodeToString(proof.Y),
			"pi":           base64.StdEncoding.EncodeToString(proof.Pi),
		}
	}
	return out
}

// sentinelSnapshotJSON is the empty-bytes stage −1 sentinel, simplifying
// chaining lookups at stage 0.
func sentinelSnapshotJSON() map[string]any {
	return map[string]any{
		"stage":         -1,
		"phase":         "done",
		"contributions": 0,
		"accval":        "",
		"vdfy":          "",
	}
}

func (s *Server) handleStageByIndex(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(r.PathValue("i"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stage index")
		return
	}
	if i == -1 {
		writeJSON(w, http.StatusOK, sentinelSnapshotJSON())
		return
	}
	st, err := s.b.Stage(i)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stageSnapshotJSON(st))
}

func (s *Server) handleStageRange(w http.ResponseWriter, r *http.Request) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	start, err1 := strconv.Atoi(startStr)
	end, err2 := strconv.Atoi(endStr)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "start and end must be integers")
		return
	}
	stages, err := s.b.StagesInRange(start, end)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out := make([]map[string]any, len(stages))
	for idx, st := range stages {
		out[idx] = stageSnapshotJSON(st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAccProof(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(r.PathValue("i"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stage index")
		return
	}
	j, err := strconv.Atoi(r.PathValue("j"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid data index")
		return
	}
	st, err := s.b.Stage(i)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	witness, err := st.GetAccProof(j)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, witness)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func extractIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// rateLimiter is a simple per-IP token bucket, adapted from the daemon's
// JSON-RPC rate limiter.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	rate    int
	burst   int
}

type tokenBucket struct {
	tokens     float64
	lastTime   time.Time
	ratePerSec float64
	burst      float64
}

func newRateLimiter(rate, burst int) *rateLimiter {
	return &rateLimiter{buckets: make(map[string]*tokenBucket), rate: rate, burst: burst}
}

func (rl *rateLimiter) Allow(ip string) bool {
	if rl.rate <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &tokenBucket{tokens: float64(rl.burst), lastTime: time.Now(), ratePerSec: float64(rl.rate), burst: float64(rl.burst)}
		rl.buckets[ip] = b
	}

	now := time.Now()
	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * b.ratePerSec
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastTime = now

	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}
