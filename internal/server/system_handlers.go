package server

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/aristath/ledger/internal/auth"
	"github.com/aristath/ledger/internal/database"
	"github.com/aristath/ledger/internal/events"
	"github.com/aristath/ledger/internal/scheduler"
	"github.com/aristath/ledger/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// DBInfo represents database statistics
type DBInfo struct {
	Name string `json:"name"`
	database.Stats
}

// DiskInfo represents free space on the data directory's filesystem
type DiskInfo struct {
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status           string   `json:"status"`
	StartedAt        string   `json:"started_at"`
	UptimeSeconds    int64    `json:"uptime_seconds"`
	GoVersion        string   `json:"go_version"`
	Goroutines       int      `json:"goroutines"`
	CPUPercent       float64  `json:"cpu_percent"`
	MemoryPercent    float64  `json:"memory_percent"`
	Disk             DiskInfo `json:"disk"`
	Databases        []DBInfo `json:"databases"`
	EventSubscribers int      `json:"event_subscribers"`
}

// SystemHandlers serves host and database status plus manual job triggers
type SystemHandlers struct {
	dataDir   string
	databases map[string]*database.DB
	bus       *events.Bus
	jobs      map[string]scheduler.Job
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(dataDir string, databases map[string]*database.DB, bus *events.Bus, jobs []scheduler.Job, log zerolog.Logger) *SystemHandlers {
	byName := make(map[string]scheduler.Job, len(jobs))
	for _, job := range jobs {
		byName[job.Name()] = job
	}
	return &SystemHandlers{
		dataDir:   dataDir,
		databases: databases,
		bus:       bus,
		jobs:      byName,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HandleSystemStatus returns host, process and database status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats(r.Context())

	resp := SystemStatusResponse{
		Status:        "ok",
		StartedAt:     h.startedAt.Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Databases:     []DBInfo{},
	}

	if usage, err := disk.UsageWithContext(r.Context(), h.dataDir); err == nil {
		resp.Disk = DiskInfo{TotalBytes: usage.Total, FreeBytes: usage.Free, UsedPercent: usage.UsedPercent}
	} else {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
	}

	for name, db := range h.databases {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			resp.Status = "degraded"
			continue
		}
		resp.Databases = append(resp.Databases, DBInfo{Name: name, Stats: *stats})
	}
	sort.Slice(resp.Databases, func(i, j int) bool { return resp.Databases[i].Name < resp.Databases[j].Name })

	if h.bus != nil {
		resp.EventSubscribers = h.bus.SubscriberCount()
	}

	utils.WriteJSON(w, http.StatusOK, resp, h.log)
}

// HandleListJobs lists the jobs that can be triggered manually
// GET /api/system/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"jobs": names}, h.log)
}

// HandleTriggerJob starts a job immediately in the background
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown job: "+name, h.log)
		return
	}

	actor := auth.ActorID(r.Context())
	go func() {
		h.log.Info().Str("job", name).Str("actor_id", actor).Msg("Manually triggered job started")
		if err := job.Run(); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	utils.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started", "job": name}, h.log)
}

// getSystemStats samples CPU over a short interval and reads memory usage
func (h *SystemHandlers) getSystemStats(ctx context.Context) (float64, float64) {
	cpuAvg := 0.0
	if cpuPercent, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuAvg, 0
	}

	return cpuAvg, memStat.UsedPercent
}
