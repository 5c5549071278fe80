package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	configpkg "github.com/drblury/ethermesh/internal/runtime/config"
	"github.com/drblury/ethermesh/internal/runtime/envelope"
	errspkg "github.com/drblury/ethermesh/internal/runtime/errors"
	loggingpkg "github.com/drblury/ethermesh/internal/runtime/logging"
	transportpkg "github.com/drblury/ethermesh/internal/runtime/transport"
	"github.com/drblury/ethermesh/transport"
)

// ServiceDependencies holds the optional collaborators that the Service can use.
type ServiceDependencies struct {
	// TransportFactory opens the connection used by Connect. Defaults to the
	// transport registry.
	TransportFactory transportpkg.Factory
	// Observers receive lifecycle events after the built-in logging observer.
	Observers []Observer
	// Exit is notified when the service stops.
	Exit *ExitHandler
	// MetricsRegisterer receives the Prometheus collectors when metrics are
	// enabled. Defaults to the global registry.
	MetricsRegisterer prometheus.Registerer
}

// Service owns the controller registry, the transport binding and the
// metrics window.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	factory     transportpkg.Factory
	observer    Observer
	exit        *ExitHandler
	taskMetrics *TaskMetrics
	resources   *resourceTracker
	startedAt   time.Time
	window      metricsWindow

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	controllers  []*Controller
	conn         transport.Conn
	ownsConn     bool
	root         *Ether
	rotationStop chan struct{}
	closed       bool

	httpServersMu sync.Mutex
	httpMuxes     map[int]*http.ServeMux
	httpServers   []*http.Server
}

// NewService validates conf and constructs a Service with the built-in
// instance controller registered. Register controllers with Use before
// calling Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	resolved := conf.WithDefaults()
	if err := resolved.Validate(); err != nil {
		return nil, errspkg.ConfigValidationError{Err: err}
	}

	log = log.With(loggingpkg.LogFields{"service": resolved.ServiceName})
	log.Info("Creating service", loggingpkg.LogFields{
		"pubsub_system": resolved.PubSubSystem,
		"config":        resolved,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		Conf:      &resolved,
		Logger:    log,
		factory:   deps.TransportFactory,
		exit:      deps.Exit,
		resources: newResourceTracker(),
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	if s.factory == nil {
		s.factory = transportpkg.DefaultFactory()
	}

	s.observer = LoggingObserver(log)
	for _, o := range deps.Observers {
		s.observer = s.observer.Merge(o)
	}

	if resolved.MetricsEnabled {
		if err := s.setupMetrics(deps.MetricsRegisterer); err != nil {
			cancel()
			return nil, err
		}
	}
	if resolved.WebUIEnabled {
		s.RegisterHTTPHandler(resolved.WebUIPort, "/api/controllers", http.HandlerFunc(s.handleGetControllers))
	}

	if !resolved.InstanceDisabled {
		if _, err := s.Use(ControllerSpec{Subject: InstanceSubject, Handler: HandlerFunc(s.handleInstance)}); err != nil {
			cancel()
			return nil, err
		}
	}
	return s, nil
}

// MustNewService is like NewService but panics on error.
func MustNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) *Service {
	s, err := NewService(conf, log, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the service name, which is also the root of every chain.
func (s *Service) Name() string { return s.Conf.ServiceName }

// Use registers a controller. It does not touch the transport; the
// controller is subscribed by the next Start.
func (s *Service) Use(spec ControllerSpec) (*Service, error) {
	if spec.Subject == "" {
		return s, errspkg.ErrSubjectRequired
	}
	if spec.Handler == nil {
		return s, errspkg.ErrHandlerRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ordinal := 0
	for _, c := range s.controllers {
		if c.subject == spec.Subject {
			ordinal++
		}
	}
	s.controllers = append(s.controllers, newController(spec, ordinal))
	return s, nil
}

// MustUse is like Use but panics on error, so registrations can be chained.
func (s *Service) MustUse(spec ControllerSpec) *Service {
	if _, err := s.Use(spec); err != nil {
		panic(err)
	}
	return s
}

// Start binds conn on the first call, then subscribes every controller that
// is not subscribed yet. Later calls ignore conn. It returns the root Ether,
// the entry point for requests into the mesh. A cancelled ctx stops the
// remaining subscriptions; a later Start picks them up.
func (s *Service) Start(ctx context.Context, conn transport.Conn) (*Ether, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, transport.ErrClosed
	}
	if s.conn == nil {
		if conn == nil {
			s.mu.Unlock()
			return nil, errspkg.ErrTransportRequired
		}
		s.conn = conn
		conn.SetDefaultRequestTimeout(s.Conf.DefaultRequestTimeout)
		s.root = newRootEther(s, conn)
	}
	if s.rotationStop == nil {
		s.rotationStop = make(chan struct{})
		go runRotation(&s.window, s.Conf.MetricsInterval, s.rotationStop)
	}
	controllers := append([]*Controller(nil), s.controllers...)
	bound, root := s.conn, s.root
	s.mu.Unlock()

	for _, c := range controllers {
		if err := ctx.Err(); err != nil {
			return root, err
		}
		subscribed, err := c.subscribe(bound, s.deliver(c))
		if err != nil {
			return root, fmt.Errorf("subscribe %s: %w", c.subject, err)
		}
		if subscribed {
			s.Logger.Debug("Controller subscribed", loggingpkg.LogFields{
				"subject": c.subject,
				"group":   c.group,
				"id":      c.sequentialID,
			})
		}
	}

	s.startHTTPServers()
	s.observer.listening(s.Controllers())
	return root, nil
}

// Connect opens a connection through the transport factory and starts the
// service on it. The service owns that connection and closes it on Close.
func (s *Service) Connect(ctx context.Context) (*Ether, error) {
	s.mu.Lock()
	started := s.conn != nil
	s.mu.Unlock()
	if started {
		return s.Start(ctx, nil)
	}

	conn, err := s.factory.Build(ctx, s.Conf, loggingpkg.NewWatermillAdapter(s.Logger))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.ownsConn = true
	s.mu.Unlock()
	return s.Start(ctx, conn)
}

// deliver hands every inbound message to its own dispatch goroutine.
func (s *Service) deliver(c *Controller) transport.MsgHandler {
	return func(msg *transport.Msg) {
		go s.dispatch(c, msg)
	}
}

func (s *Service) dispatch(c *Controller, msg *transport.Msg) {
	root := s.Ether()
	if root == nil {
		return
	}
	ctx := s.ctx

	request, err := envelope.Decode(msg.Data)
	if err != nil {
		s.Logger.Error("Rejecting undecodable request", err, loggingpkg.LogFields{"subject": msg.Subject})
		if msg.Reply != "" {
			body, encErr := envelope.Encode(envelope.NewError(msg.Reply, root.Chain(), errspkg.NewRemoteError(err)))
			if encErr == nil {
				encErr = root.conn.Publish(ctx, &transport.Msg{Subject: msg.Reply, Data: body})
			}
			if encErr != nil {
				s.Logger.Error("Failed to publish error reply", encErr, loggingpkg.LogFields{"subject": msg.Subject})
			}
		}
		return
	}
	request.Normalize(msg.Subject, msg.Reply)

	task := newTask(c, request, msg.Subject)
	s.observer.task(task)

	ether := root.Child(task)
	result := task.run(ctx, ether)

	s.window.record(result.Took)
	s.observer.taskEnd(result)

	if reply := task.Reply(); reply != "" {
		if err := ether.reply(ctx, reply, result); err != nil {
			s.Logger.Error("Failed to publish reply", err, loggingpkg.LogFields{
				"subject": task.Subject,
				"task_id": task.ID,
				"reply":   reply,
			})
		}
	}
}

// Stop unsubscribes every controller and stops metrics rotation. In-flight
// tasks keep running. The reason is passed to observers and the exit handler.
func (s *Service) Stop(reason string) {
	s.mu.Lock()
	controllers := append([]*Controller(nil), s.controllers...)
	if s.rotationStop != nil {
		close(s.rotationStop)
		s.rotationStop = nil
	}
	s.mu.Unlock()

	for _, c := range controllers {
		if err := c.unsubscribe(); err != nil {
			s.Logger.Error("Failed to unsubscribe controller", err, loggingpkg.LogFields{"subject": c.subject})
		}
	}

	s.observer.stopped(reason)
	if s.exit != nil {
		s.exit.Stop(reason)
	}
}

// Close stops the service, shuts down its HTTP servers and closes the
// connection when the service opened it.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Stop("close")
	s.stopHTTPServers()
	s.cancel()

	s.mu.Lock()
	conn, owns := s.conn, s.ownsConn
	s.mu.Unlock()
	if owns && conn != nil {
		return conn.Close()
	}
	return nil
}

// Ether returns the root Ether, or nil before Start.
func (s *Service) Ether() *Ether {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Controllers snapshots the registered controllers in registration order.
func (s *Service) Controllers() []ControllerInfo {
	s.mu.Lock()
	controllers := append([]*Controller(nil), s.controllers...)
	s.mu.Unlock()

	infos := make([]ControllerInfo, len(controllers))
	for i, c := range controllers {
		infos[i] = c.Info()
	}
	return infos
}

// Metrics returns the values published by the last metrics rotation.
func (s *Service) Metrics() MetricsSnapshot {
	return s.window.snapshot()
}

func (s *Service) recordSinkReply(outcome string) {
	if s.taskMetrics != nil {
		s.taskMetrics.RecordSinkReply(outcome)
	}
}

func (s *Service) setupMetrics(registerer prometheus.Registerer) error {
	s.taskMetrics = NewTaskMetrics(registerer)
	if err := s.taskMetrics.Register(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	s.observer = s.observer.Merge(MetricsObserver(nil, s.taskMetrics.RecordTask))

	if s.Conf.MetricsPort > 0 {
		handler := promhttp.Handler()
		if gatherer, ok := registerer.(prometheus.Gatherer); ok {
			handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
		}
		s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", handler)
	}
	return nil
}

// RegisterHTTPHandler mounts handler on the HTTP server listening on port.
// Servers are started by Start and shut down by Close.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpMuxes == nil {
		s.httpMuxes = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpMuxes[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpMuxes[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if len(s.httpServers) > 0 {
		return
	}
	for port, mux := range s.httpMuxes {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.httpServers = append(s.httpServers, server)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": server.Addr})
		go func(server *http.Server) {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": server.Addr})
			}
		}(server)
	}
}

func (s *Service) stopHTTPServers() {
	s.httpServersMu.Lock()
	servers := s.httpServers
	s.httpServers = nil
	s.httpServersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shut down HTTP server", err, loggingpkg.LogFields{"address": server.Addr})
		}
	}
}
