package ethermesh

import (
	"context"

	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/ethermesh/internal/runtime"
	configpkg "github.com/drblury/ethermesh/internal/runtime/config"
	envelopepkg "github.com/drblury/ethermesh/internal/runtime/envelope"
	errspkg "github.com/drblury/ethermesh/internal/runtime/errors"
	idspkg "github.com/drblury/ethermesh/internal/runtime/ids"
	jsoncodec "github.com/drblury/ethermesh/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/ethermesh/internal/runtime/logging"
	metadatapkg "github.com/drblury/ethermesh/internal/runtime/metadata"
	transportpkg "github.com/drblury/ethermesh/internal/runtime/transport"
	newtransport "github.com/drblury/ethermesh/transport"
)

type (
	Config               = configpkg.Config
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	ControllerSpec = runtimepkg.ControllerSpec
	ControllerInfo = runtimepkg.ControllerInfo
	Controller     = runtimepkg.Controller
	Handler        = runtimepkg.Handler
	HandlerFunc    = runtimepkg.HandlerFunc
	Task           = runtimepkg.Task
	TaskResult     = runtimepkg.TaskResult

	JSONHandlerFunc[T any, O any]                      = runtimepkg.JSONHandlerFunc[T, O]
	ProtoHandlerFunc[T proto.Message, O proto.Message] = runtimepkg.ProtoHandlerFunc[T, O]

	Ether         = runtimepkg.Ether
	RequestOption = runtimepkg.RequestOption
	RequestError  = runtimepkg.RequestError
	SinkResult    = runtimepkg.SinkResult

	MetricsSnapshot = runtimepkg.MetricsSnapshot
	InstanceInfo    = runtimepkg.InstanceInfo
	ResourceUsage   = runtimepkg.ResourceUsage
	MemoryUsage     = runtimepkg.MemoryUsage
	TaskMetrics     = runtimepkg.TaskMetrics

	Observer    = runtimepkg.Observer
	ExitHandler = runtimepkg.ExitHandler
	PanicError  = runtimepkg.PanicError

	Envelope     = envelopepkg.Envelope
	EnvelopeMeta = envelopepkg.Meta
	Method       = envelopepkg.Method

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError
	RemoteError           = errspkg.RemoteError

	// Modular transport types
	Msg                   = newtransport.Msg
	MsgHandler            = newtransport.MsgHandler
	Subscription          = newtransport.Subscription
	Conn                  = newtransport.Conn
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

var (
	NewService     = runtimepkg.NewService
	MustNewService = runtimepkg.MustNewService
	ValidateConfig = configpkg.ValidateConfig
	LoadConfig     = configpkg.LoadFile

	ControllersFromMap = runtimepkg.ControllersFromMap

	WithTimeout = runtimepkg.WithTimeout
	WithHeader  = runtimepkg.WithHeader
	IsTimeout   = runtimepkg.IsTimeout

	LoggingObserver = runtimepkg.LoggingObserver
	MetricsObserver = runtimepkg.MetricsObserver
	NewTaskMetrics  = runtimepkg.NewTaskMetrics

	DefaultTransportFactory  = transportpkg.DefaultFactory
	RegistryTransportFactory = transportpkg.RegistryFactory

	// Modular transport registry.
	// Import individual transports via: _ "github.com/drblury/ethermesh/transport/nats"
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	GetCapabilities          = newtransport.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrServiceRequired     = errspkg.ErrServiceRequired
	ErrServiceNameRequired = errspkg.ErrServiceNameRequired
	ErrSubjectRequired     = errspkg.ErrSubjectRequired
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrTransportRequired   = errspkg.ErrTransportRequired
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrMaxTimeRequired     = errspkg.ErrMaxTimeRequired
	ErrEmptyReply          = errspkg.ErrEmptyReply

	ErrTimeout      = newtransport.ErrTimeout
	ErrNoResponders = newtransport.ErrNoResponders
	ErrClosed       = newtransport.ErrClosed
	ErrStatusReply  = newtransport.ErrStatusReply

	NewRemoteError = errspkg.NewRemoteError

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopLogger              = loggingpkg.NewNopLogger

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

const (
	InstanceSubject = runtimepkg.InstanceSubject

	MethodTell  = envelopepkg.MethodTell
	MethodAsk   = envelopepkg.MethodAsk
	MethodSink  = envelopepkg.MethodSink
	MethodError = envelopepkg.MethodError
)

func JSONHandler[T any, O any](fn func(ctx context.Context, ether *Ether, req T, subject string) (O, error)) Handler {
	return runtimepkg.JSONHandler[T, O](fn)
}

func ProtoHandler[T proto.Message, O proto.Message](fn func(ctx context.Context, ether *Ether, req T, subject string) (O, error)) Handler {
	return runtimepkg.ProtoHandler[T, O](fn)
}
