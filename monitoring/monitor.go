// Package monitoring turns a simulation into a web server that can step,
// run, abort and inspect the kernel while it is running.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/sarchlab/cyclesim/monitoring/web"
	"github.com/sarchlab/cyclesim/sim/naming"
	"github.com/sarchlab/cyclesim/sim/timing"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// RunChunk is the number of cycles a background run executes before it lets
// queries in.
const RunChunk = 1000

// A Leveled storage reports how full it is.
type Leveled interface {
	Size() int
	Capacity() int
}

// A busyArbitrator reports in how many cycles it had a winner.
type busyArbitrator interface {
	naming.Named
	BusyCycles() uint64
}

// Monitor can turn a simulation into a server and allows external monitoring
// and controlling of the simulation.
type Monitor struct {
	kernel     *timing.Kernel
	portNumber int

	// stepLock serializes every access to the kernel except Abort.
	stepLock  sync.Mutex
	runLock   sync.Mutex
	runID     string
	lastState timing.RunState

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{lastState: timing.Idle}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterKernel sets the kernel to monitor.
func (m *Monitor) RegisterKernel(k *timing.Kernel) {
	m.kernel = k
}

// Step runs n cycles while holding the step lock. Use it instead of calling
// the kernel directly when the monitor is serving.
func (m *Monitor) Step(n uint64) timing.RunState {
	m.stepLock.Lock()
	defer m.stepLock.Unlock()

	m.lastState = m.kernel.Step(n)

	return m.lastState
}

// Router returns the HTTP handler of the monitor.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.now).Methods(http.MethodGet)
	r.HandleFunc("/api/step/{n:[0-9]+}", m.step).Methods(http.MethodPost)
	r.HandleFunc("/api/run", m.run).Methods(http.MethodPost)
	r.HandleFunc("/api/abort", m.abort).Methods(http.MethodPost)
	r.HandleFunc("/api/processes", m.listProcesses).Methods(http.MethodGet)
	r.HandleFunc("/api/storages", m.listStorages).Methods(http.MethodGet)
	r.HandleFunc("/api/arbitrators", m.listArbitrators).
		Methods(http.MethodGet)
	r.HandleFunc("/api/component/{name}", m.componentDetails).
		Methods(http.MethodGet)
	r.HandleFunc("/api/progress", m.listProgressBars).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts serving in the background and returns the port it
// listens on.
func (m *Monitor) StartServer() (int, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return 0, err
	}

	port := listener.Addr().(*net.TCPAddr).Port

	fmt.Fprintf(os.Stderr,
		"Monitoring simulation with http://localhost:%d\n", port)

	server := &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Panic(err)
		}
	}()

	return port, nil
}

type nowRsp struct {
	Cycle    uint64 `json:"cycle"`
	Executed uint64 `json:"executed"`
	Phase    string `json:"phase"`
	State    string `json:"state"`
	Running  bool   `json:"running"`
	RunID    string `json:"run_id,omitempty"`
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	m.runLock.Lock()
	runID := m.runID
	m.runLock.Unlock()

	m.stepLock.Lock()
	rsp := nowRsp{
		Cycle:    m.kernel.CycleNumber(),
		Executed: m.kernel.ExecutedCycles(),
		Phase:    m.kernel.Phase().String(),
		State:    m.lastState.String(),
		Running:  runID != "",
		RunID:    runID,
	}
	m.stepLock.Unlock()

	writeJSON(w, rsp)
}

type stepRsp struct {
	State string `json:"state"`
	Cycle uint64 `json:"cycle"`
}

func (m *Monitor) step(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(mux.Vars(r)["n"], 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if m.isRunning() {
		http.Error(w, "simulation is running", http.StatusConflict)
		return
	}

	state := m.Step(n)

	m.stepLock.Lock()
	cycle := m.kernel.CycleNumber()
	m.stepLock.Unlock()

	writeJSON(w, stepRsp{State: state.String(), Cycle: cycle})
}

func (m *Monitor) isRunning() bool {
	m.runLock.Lock()
	defer m.runLock.Unlock()

	return m.runID != ""
}

type runRsp struct {
	RunID string `json:"run_id"`
}

func (m *Monitor) run(w http.ResponseWriter, _ *http.Request) {
	m.runLock.Lock()
	if m.runID != "" {
		m.runLock.Unlock()
		http.Error(w, "simulation is already running", http.StatusConflict)

		return
	}

	m.runID = xid.New().String()
	runID := m.runID
	m.runLock.Unlock()

	go m.runInBackground()

	writeJSON(w, runRsp{RunID: runID})
}

func (m *Monitor) runInBackground() {
	state := timing.Running
	for state == timing.Running {
		state = m.Step(RunChunk)
	}

	m.runLock.Lock()
	m.runID = ""
	m.runLock.Unlock()
}

func (m *Monitor) abort(w http.ResponseWriter, _ *http.Request) {
	m.kernel.Abort()
	w.WriteHeader(http.StatusOK)
}

type processRsp struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	State       string `json:"state"`
	Scheduled   bool   `json:"scheduled"`
	Activations uint   `json:"activations"`
	Commits     uint64 `json:"commits"`
	Stalls      uint64 `json:"stalls"`
}

func (m *Monitor) listProcesses(w http.ResponseWriter, _ *http.Request) {
	m.stepLock.Lock()

	rsp := make([]processRsp, 0, len(m.kernel.Processes()))
	for _, p := range m.kernel.Processes() {
		rsp = append(rsp, processRsp{
			ID:          int(p.ID()),
			Name:        p.Name(),
			State:       p.State().String(),
			Scheduled:   m.kernel.IsScheduled(p.ID()),
			Activations: p.Activations(),
			Commits:     p.Commits(),
			Stalls:      p.Stalls(),
		})
	}

	m.stepLock.Unlock()

	writeJSON(w, rsp)
}

type storageRsp struct {
	Name    string  `json:"name"`
	Level   int     `json:"level"`
	Cap     int     `json:"cap"`
	Percent float64 `json:"percent"`
}

// listStorages returns the storages, fullest first. Storages that do not
// report a level come last. The query accepts sort (percent or level),
// limit and offset.
func (m *Monitor) listStorages(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := parseListParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.stepLock.Lock()

	rsp := make([]storageRsp, 0, len(m.kernel.Storages()))
	for _, s := range m.kernel.Storages() {
		rsp = append(rsp, describeStorage(s))
	}

	m.stepLock.Unlock()

	sortStorages(rsp, sortMethod)

	writeJSON(w, paginate(rsp, limit, offset))
}

func describeStorage(s timing.Storage) storageRsp {
	rsp := storageRsp{Cap: -1}

	if n, ok := s.(naming.Named); ok {
		rsp.Name = n.Name()
	}

	if l, ok := s.(Leveled); ok {
		rsp.Level = l.Size()
		rsp.Cap = l.Capacity()

		if rsp.Cap > 0 {
			rsp.Percent = float64(rsp.Level) / float64(rsp.Cap)
		}
	}

	return rsp
}

func sortStorages(s []storageRsp, method string) {
	sort.SliceStable(s, func(i, j int) bool {
		if method == "level" {
			if s[i].Level != s[j].Level {
				return s[i].Level > s[j].Level
			}

			return s[i].Percent > s[j].Percent
		}

		if s[i].Percent != s[j].Percent {
			return s[i].Percent > s[j].Percent
		}

		return s[i].Level > s[j].Level
	})
}

func parseListParams(
	r *http.Request,
) (sortMethod string, limit, offset int, err error) {
	sortMethod = r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}

	if sortMethod != "level" && sortMethod != "percent" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `level` and `percent`",
			sortMethod)
	}

	limit, err = intParam(r, "limit")
	if err != nil {
		return "", 0, 0, err
	}

	offset, err = intParam(r, "offset")
	if err != nil {
		return "", 0, 0, err
	}

	return sortMethod, limit, offset, nil
}

func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}

	if v < 0 {
		return 0, fmt.Errorf("invalid %s: %d", name, v)
	}

	return v, nil
}

func paginate[T any](s []T, limit, offset int) []T {
	if offset >= len(s) {
		return []T{}
	}

	s = s[offset:]

	if limit > 0 && limit < len(s) {
		s = s[:limit]
	}

	return s
}

type arbitratorRsp struct {
	Name       string `json:"name"`
	BusyCycles uint64 `json:"busy_cycles"`
}

func (m *Monitor) listArbitrators(w http.ResponseWriter, _ *http.Request) {
	m.stepLock.Lock()

	rsp := make([]arbitratorRsp, 0, len(m.kernel.Arbitrators()))
	for _, a := range m.kernel.Arbitrators() {
		if b, ok := a.(busyArbitrator); ok {
			rsp = append(rsp, arbitratorRsp{
				Name:       b.Name(),
				BusyCycles: b.BusyCycles(),
			})
		}
	}

	m.stepLock.Unlock()

	writeJSON(w, rsp)
}

func (m *Monitor) componentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	m.stepLock.Lock()
	defer m.stepLock.Unlock()

	id, ok := m.kernel.Objects().Lookup(name)
	if !ok {
		http.Error(w, "Component not found", http.StatusNotFound)
		return
	}

	component, ok := m.kernel.Component(id)
	if !ok {
		http.Error(w, "Component not found", http.StatusNotFound)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)

	buf := bytes.NewBuffer(nil)

	err := serializer.Serialize(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(buf.Bytes())
	dieOnErr(err)
}

type progressRsp struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()

	rsp := make([]progressRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		b.Lock()
		rsp = append(rsp, progressRsp{
			ID:         b.ID,
			Name:       b.Name,
			StartTime:  b.StartTime,
			Total:      b.Total,
			Finished:   b.Finished,
			InProgress: b.InProgress,
		})
		b.Unlock()
	}

	m.progressBarsLock.Unlock()

	writeJSON(w, rsp)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
