// Package offline implements the backend service over a static image, so the
// front-end can be used to browse and patch a binary without a live
// debugger. Execution is simulated one instruction at a time.
package offline

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	restful "github.com/emicklei/go-restful/v3"

	"github.com/cpuview/cpuview/pkg/address"
	"github.com/cpuview/cpuview/pkg/logflags"
	"github.com/cpuview/cpuview/pkg/settings"
	"github.com/cpuview/cpuview/pkg/version"
	"github.com/cpuview/cpuview/service/api"
)

const (
	// APIRoot is the path every endpoint is relative to.
	APIRoot = "/api"
	// PushPath is the path of the push channel.
	PushPath = "/ws"

	defaultCount = 100
	maxCount     = 2000
)

// Config provides the configuration to start a Server.
type Config struct {
	// Listener is used to serve HTTP.
	Listener net.Listener
	// Target is loaded by session loads that do not name a file.
	Target string
	// TargetDir is listed by targets/list and resolves relative target
	// paths. Defaults to the directory of Target.
	TargetDir string
	// Base is the load address of flat images, DefaultBase if zero.
	Base uint64
	// Mode is the decoding mode of flat images, 32 or 64.
	Mode int
	// DBDir holds the comment and patch database and the settings.
	DBDir string
	// PushDisassembly makes disassemble requests answer "requested" and
	// deliver the window on the push channel.
	PushDisassembly bool
}

// Server exposes a simulated target via the HTTP API and the push channel.
type Server struct {
	// config is all the information necessary to start the server.
	config *Config
	// listener is used to serve HTTP.
	listener net.Listener
	log      logflags.Logger
	db       *Database
	hub      *hub
	handler  http.Handler
	srv      *http.Server

	// mu protects everything below.
	mu       sync.Mutex
	img      *Image
	machine  *machine
	record   *Record
	settings settings.Settings
	pid      int
}

// NewServer creates a new Server. Saved settings are loaded from the
// database directory.
func NewServer(config *Config) (*Server, error) {
	if config.Base == 0 {
		config.Base = DefaultBase
	}
	if config.TargetDir == "" && config.Target != "" {
		config.TargetDir = filepath.Dir(config.Target)
	}
	db, err := OpenDatabase(config.DBDir)
	if err != nil {
		return nil, err
	}
	s := &Server{
		config:   config,
		listener: config.Listener,
		log:      logflags.OfflineLogger(),
		db:       db,
		settings: settings.Default(),
		pid:      1000,
	}
	s.hub = newHub(s.log)
	saved, err := db.LoadSettings()
	if err != nil {
		return nil, err
	}
	var errs []error
	s.settings, errs = s.settings.Merge(saved)
	for _, err := range errs {
		s.log.Warnf("ignoring saved setting: %v", err)
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	container := restful.NewContainer()

	ws := new(restful.WebService)
	ws.
		Path(APIRoot).
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON).
		Route(ws.POST("/session/load").To(s.loadSession)).
		Route(ws.POST("/session/stop").To(s.stopSession)).
		Route(ws.POST("/session/comment").To(s.saveComment)).
		Route(ws.POST("/memory/disassemble").To(s.disassemble)).
		Route(ws.POST("/memory/write").To(s.writeMemory)).
		Route(ws.POST("/memory/revert").To(s.revertMemory)).
		Route(ws.POST("/database/reset").To(s.resetDatabase)).
		Route(ws.POST("/database/reset_all").To(s.resetAllDatabases)).
		Route(ws.GET("/settings").To(s.getSettings)).
		Route(ws.POST("/settings").To(s.saveSetting)).
		Route(ws.POST("/control/{command}").To(s.control)).
		Route(ws.GET("/targets/list").To(s.listTargets)).
		Route(ws.GET("/version").To(s.getVersion))
	container.Add(ws)
	container.Handle(PushPath, http.HandlerFunc(s.servePush))
	return container
}

// Handler returns the HTTP handler serving the API and the push channel.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP on the configured listener. Run blocks until the server
// stops.
func (s *Server) Run() error {
	s.mu.Lock()
	s.srv = &http.Server{Handler: s.handler}
	s.mu.Unlock()
	s.log.Infof("offline backend listening on %s", s.listener.Addr())
	err := s.srv.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop disconnects every push client and stops serving.
func (s *Server) Stop() error {
	s.hub.close()
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		if s.listener == nil {
			return nil
		}
		return s.listener.Close()
	}
	return srv.Close()
}

// writeError writes a simple error response.
func writeError(response *restful.Response, statusCode int, message string) {
	response.AddHeader("Content-Type", "text/plain")
	response.WriteErrorString(statusCode, message)
}

// readEntity decodes the request body, answering 400 on failure.
func readEntity(request *restful.Request, response *restful.Response, v interface{}) bool {
	if err := request.ReadEntity(v); err != nil {
		writeError(response, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) push(typ string, payload interface{}) {
	ev, err := api.NewEvent(typ, payload)
	if err != nil {
		s.log.Errorf("%v", err)
		return
	}
	s.hub.broadcast(ev)
}

// stateEvents returns the events describing the target, for new push
// clients and after every change. Must be called with mu held.
func (s *Server) stateEvents(withNames bool) []api.Event {
	if s.machine == nil {
		ev, _ := api.NewEvent(api.EventStatus, statusIdle)
		return []api.Event{ev}
	}
	var evs []api.Event
	add := func(typ string, payload interface{}) {
		if ev, err := api.NewEvent(typ, payload); err == nil {
			evs = append(evs, ev)
		}
	}
	if withNames {
		add(api.EventRegisterNames, s.machine.registerNames())
	}
	add(api.EventThreadUpdate, s.machine.thread)
	add(api.EventRegisters, s.machine.registers())
	add(api.EventStatus, s.machine.status)
	return evs
}

func (s *Server) pushState(withNames bool) {
	for _, ev := range s.stateEvents(withNames) {
		s.hub.broadcast(ev)
	}
}

func (s *Server) servePush(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	hello := s.stateEvents(true)
	s.mu.Unlock()
	s.hub.serve(w, r, hello)
}

// resolveTarget returns the file a load request refers to. An empty path
// is the last loaded target. Must be called with mu held.
func (s *Server) resolveTarget(path string) string {
	if path == "" {
		if s.record != nil {
			return s.record.Target
		}
		return s.config.Target
	}
	if !filepath.IsAbs(path) && s.config.TargetDir != "" {
		if _, err := os.Stat(path); err != nil {
			return filepath.Join(s.config.TargetDir, path)
		}
	}
	return path
}

func (s *Server) loadSession(request *restful.Request, response *restful.Response) {
	var in api.LoadSessionIn
	if !readEntity(request, response, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.resolveTarget(in.Path)
	if path == "" {
		response.WriteEntity(api.LoadSessionOut{Error: "no target specified"})
		return
	}

	s.push(api.EventProgress, api.Progress{Message: "Loading " + filepath.Base(path), Percent: 0, Show: true})
	img, err := LoadImage(path, s.config.Base, s.config.Mode)
	if err != nil {
		s.push(api.EventProgress, api.Progress{Show: false})
		response.WriteEntity(api.LoadSessionOut{Error: "unable to load target", Details: err.Error()})
		return
	}
	rec, err := s.db.Load(path)
	if err != nil {
		s.log.Errorf("%v", err)
		rec = &Record{Target: path}
	}
	for a, p := range rec.Patches {
		addr, err := address.Normalize(a)
		v, ok := addr.Uint64()
		if err != nil || !ok {
			s.log.Warnf("%s: dropping patch at %q", path, a)
			delete(rec.Patches, a)
			continue
		}
		if err := img.Write(v, []byte{p.Value}); err != nil {
			s.log.Warnf("%s: dropping patch: %v", path, err)
			delete(rec.Patches, a)
		}
	}

	s.img = img
	s.record = rec
	s.machine = newMachine(img)
	s.pid++

	s.push(api.EventProgress, api.Progress{Message: "Loaded " + filepath.Base(path), Percent: 100, Show: false})
	s.push(api.EventSystemLog, fmt.Sprintf("loaded %s at %#x (%d bytes)", path, img.Base, img.End()-img.Base))
	s.pushState(true)

	comments := rec.Comments
	if comments == nil {
		comments = map[string]string{}
	}
	response.WriteEntity(api.LoadSessionOut{
		Status:   api.StatusOK,
		Message:  "Session loaded",
		Path:     path,
		Comments: comments,
		Patches:  rec.PatchAddresses(),
		Metadata: api.Metadata{
			PID:       s.pid,
			Arch:      s.machine.arch(),
			ImageBase: fmt.Sprintf("%#x", img.Base),
		},
	})
}

func (s *Server) stopSession(request *restful.Request, response *restful.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		response.WriteEntity(api.StatusOut{Error: "no target loaded"})
		return
	}
	s.machine.status = statusExited
	s.push(api.EventStatus, statusExited)
	response.WriteEntity(api.StatusOut{Status: api.StatusOK})
}

// parseAddress parses an address of the loaded image. Must be called with
// mu held.
func (s *Server) parseAddress(in string) (uint64, error) {
	if s.img == nil {
		return 0, errors.New("no target loaded")
	}
	a, err := address.Normalize(in)
	if err != nil {
		return 0, err
	}
	v, ok := a.Uint64()
	if !ok || !s.img.Contains(v) {
		return 0, fmt.Errorf("Cannot access memory at address %s", a)
	}
	return v, nil
}

func (s *Server) disassemble(request *restful.Request, response *restful.Response) {
	var in api.DisassembleIn
	if !readEntity(request, response, &in) {
		return
	}
	if in.Count <= 0 {
		in.Count = defaultCount
	}
	if in.Count > maxCount {
		in.Count = maxCount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		response.WriteEntity(api.DisassembleOut{Error: "no target loaded"})
		return
	}
	// a window starting before the image is moved to its start
	if a, err := address.Normalize(in.Start); err == nil {
		if v, ok := a.Uint64(); ok && v < s.img.Base {
			in.Start = fmt.Sprintf("%#x", s.img.Base)
		}
	}
	start, err := s.parseAddress(in.Start)
	if err != nil {
		response.WriteEntity(api.DisassembleOut{Error: err.Error()})
		return
	}
	insns := Disassemble(s.img, start, in.Count, s.settings.DisassemblyFlavor)
	if s.config.PushDisassembly {
		s.push(api.EventDisassembly, api.Window{Seq: in.Seq, Instructions: insns})
		response.WriteEntity(api.DisassembleOut{
			Status: api.StatusRequested,
			Cmd:    fmt.Sprintf("x/%di %#x", in.Count, start),
			Seq:    in.Seq,
		})
		return
	}
	response.WriteEntity(api.DisassembleOut{Status: api.StatusOK, Seq: in.Seq, Instructions: insns})
}

func (s *Server) writeMemory(request *restful.Request, response *restful.Response) {
	var in api.WriteMemoryIn
	if !readEntity(request, response, &in) {
		return
	}
	data := make([]byte, len(in.Bytes))
	for i, b := range in.Bytes {
		if b < 0 || b > 0xff {
			response.WriteEntity(api.WriteMemoryOut{Error: fmt.Sprintf("invalid byte value %d", b)})
			return
		}
		data[i] = byte(b)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	start, err := s.parseAddress(in.Address)
	if err == nil {
		err = s.img.Write(start, data)
	}
	if err != nil {
		response.WriteEntity(api.WriteMemoryOut{Error: err.Error()})
		return
	}
	if s.record.Patches == nil {
		s.record.Patches = make(map[string]Patch)
	}
	for i, b := range data {
		a := start + uint64(i)
		key := string(address.FromUint64(a))
		p, ok := s.record.Patches[key]
		if !ok {
			p.Original, _ = s.img.Original(a)
		}
		p.Value = b
		s.record.Patches[key] = p
	}
	if err := s.db.Save(s.record); err != nil {
		s.log.Errorf("saving patches: %v", err)
	}
	if logflags.Offline() {
		s.log.Debugf("wrote %d bytes at %#x", len(data), start)
	}
	response.WriteEntity(api.WriteMemoryOut{Status: api.StatusWritten})
}

func (s *Server) revertMemory(request *restful.Request, response *restful.Response) {
	var in api.RevertMemoryIn
	if !readEntity(request, response, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.parseAddress(in.Address)
	if err != nil {
		response.WriteEntity(api.RevertMemoryOut{Error: err.Error()})
		return
	}
	key := string(address.FromUint64(a))
	p, ok := s.record.Patches[key]
	if !ok {
		response.WriteEntity(api.RevertMemoryOut{Error: "no patch at " + key})
		return
	}
	if err := s.img.Write(a, []byte{p.Original}); err != nil {
		response.WriteEntity(api.RevertMemoryOut{Error: err.Error()})
		return
	}
	delete(s.record.Patches, key)
	if err := s.db.Save(s.record); err != nil {
		s.log.Errorf("saving patches: %v", err)
	}
	response.WriteEntity(api.RevertMemoryOut{Status: api.StatusReverted})
}

func (s *Server) saveComment(request *restful.Request, response *restful.Response) {
	var in api.CommentIn
	if !readEntity(request, response, &in) {
		return
	}
	a, err := address.Normalize(in.Address)
	if err != nil {
		response.WriteEntity(api.StatusOut{Error: err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		response.WriteEntity(api.StatusOut{Error: "no target loaded"})
		return
	}
	if in.Comment == "" {
		delete(s.record.Comments, string(a))
	} else {
		if s.record.Comments == nil {
			s.record.Comments = make(map[string]string)
		}
		s.record.Comments[string(a)] = in.Comment
	}
	if err := s.db.Save(s.record); err != nil {
		response.WriteEntity(api.StatusOut{Error: err.Error()})
		return
	}
	response.WriteEntity(api.StatusOut{Status: api.StatusSaved})
}

// forgetRecord restores the original bytes of every patch and empties the
// current record. Must be called with mu held.
func (s *Server) forgetRecord() {
	if s.record == nil {
		return
	}
	for key, p := range s.record.Patches {
		if v, ok := address.Address(key).Uint64(); ok {
			s.img.Write(v, []byte{p.Original})
		}
	}
	s.record = &Record{Target: s.record.Target}
}

func (s *Server) resetDatabase(request *restful.Request, response *restful.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		response.WriteEntity(api.StatusOut{Error: "no target loaded"})
		return
	}
	if err := s.db.Reset(s.record.Target); err != nil {
		response.WriteEntity(api.StatusOut{Error: err.Error()})
		return
	}
	s.forgetRecord()
	response.WriteEntity(api.StatusOut{Status: api.StatusOK})
}

func (s *Server) resetAllDatabases(request *restful.Request, response *restful.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.db.ResetAll()
	if err != nil {
		response.WriteEntity(api.StatusOut{Error: err.Error(), DeletedCount: n})
		return
	}
	s.forgetRecord()
	response.WriteEntity(api.StatusOut{Status: api.StatusOK, DeletedCount: n})
}

func (s *Server) getSettings(request *restful.Request, response *restful.Response) {
	s.mu.Lock()
	m := s.settings.Map()
	s.mu.Unlock()
	response.WriteEntity(m)
}

func (s *Server) saveSetting(request *restful.Request, response *restful.Response) {
	var in api.SettingIn
	if !readEntity(request, response, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, err := s.settings.Set(in.Key, in.Value)
	if err != nil {
		response.WriteEntity(api.StatusOut{Error: err.Error()})
		return
	}
	if err := s.db.SaveSettings(ns.Map()); err != nil {
		response.WriteEntity(api.StatusOut{Error: err.Error()})
		return
	}
	s.settings = ns
	response.WriteEntity(api.StatusOut{Status: api.StatusSaved})
}

func (s *Server) control(request *restful.Request, response *restful.Response) {
	cmd := request.PathParameter("command")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		response.WriteEntity(api.StatusOut{Error: "no target loaded"})
		return
	}
	if s.machine.status == statusExited {
		response.WriteEntity(api.StatusOut{Error: "the target is not running"})
		return
	}
	status := api.StatusOK
	switch cmd {
	case "run":
		s.push(api.EventStatus, statusRunning)
		n := s.machine.run()
		s.push(api.EventSystemLog, fmt.Sprintf("executed %d instructions", n))
	case "pause":
		s.machine.status = statusPaused
	case "step_into", "step_over":
		s.machine.step(cmd == "step_over")
		status = api.StatusStepping
	default:
		writeError(response, http.StatusNotFound, "unknown command "+cmd)
		return
	}
	if s.machine.status == statusExited {
		s.push(api.EventTargetLog, "process exited")
	}
	s.pushState(false)
	response.WriteEntity(api.StatusOut{Status: status})
}

func (s *Server) listTargets(request *restful.Request, response *restful.Response) {
	out := api.TargetsOut{Files: []api.TargetFile{}}
	if s.config.TargetDir == "" {
		response.WriteEntity(out)
		return
	}
	entries, err := ioutil.ReadDir(s.config.TargetDir)
	if err != nil {
		out.Error = err.Error()
		response.WriteEntity(out)
		return
	}
	for _, e := range entries {
		if !e.Mode().IsRegular() {
			continue
		}
		out.Files = append(out.Files, api.TargetFile{
			Name:       e.Name(),
			Size:       e.Size(),
			Executable: e.Mode().Perm()&0111 != 0,
		})
	}
	response.WriteEntity(out)
}

func (s *Server) getVersion(request *restful.Request, response *restful.Response) {
	response.WriteEntity(api.VersionOut{Version: version.CPUViewVersion.Short()})
}
