package framing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// Default configuration values.
const (
	// defaultReadBufferSize is the initial capacity of a reader's buffer.
	defaultReadBufferSize = 8 * 1024
	// defaultMaxMessageSize is the default maximum size of a single message (8MB).
	defaultMaxMessageSize = 8 * 1024 * 1024
	// defaultBufferSize is the default size of a Conn's send queue.
	defaultBufferSize = 1
	// defaultIdleTimeout bounds how long a Conn waits for the next message.
	defaultIdleTimeout = 30 * time.Second
)

// options holds the configuration shared by readers, writers, streams and
// connections.
type options struct {
	logger  Logger
	metrics *metrics

	// onError is called when a Conn fails to decode or encode a message, or times out.
	// Returns Disconnect to close the connection, Continue to skip the message.
	onError func(error) ErrorAction

	mode           Mode
	readBufferSize int           // initial read buffer capacity
	maxMessageSize int           // maximum size of a single message
	bufferSize     int           // size of a Conn's send queue
	idleTimeout    time.Duration // read/write deadline used by Conn loops
}

// Option is a function that configures options.
type Option func(*options)

// newOptions applies opt over the zero options and fills in defaults.
func newOptions(opt ...Option) (options, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	return opts, checkOptions(&opts)
}

// checkOptions validates and sets default values for options.
func checkOptions(opts *options) error {
	if !opts.mode.valid() {
		return ErrInvalidMode
	}

	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}

	if opts.maxMessageSize <= 0 {
		opts.maxMessageSize = defaultMaxMessageSize
	}

	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.idleTimeout <= 0 {
		opts.idleTimeout = defaultIdleTimeout
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// ModeOption returns an Option that sets the wire mode. The default is
// ModeAsync.
func ModeOption(mode Mode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

// ReadBufferSizeOption returns an Option that sets the initial capacity of the
// read buffer. The buffer grows past it on demand.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// MessageMaxSize returns an Option that sets the maximum message size.
// A length prefix above it fails the read with ErrMessageTooLarge.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}

// BufferSizeOption returns an Option that sets the size of a Conn's send queue.
// A larger queue allows more messages to be queued before Write reports
// ErrBufferFull.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// IdleTimeoutOption returns an Option that bounds how long a Conn waits for
// the next message or for a flush to complete.
func IdleTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = timeout
	}
}

// OnErrorOption returns an Option that sets the error callback of a Conn. It
// sees decode errors, encode errors and idle timeouts. Return Disconnect to
// close the connection, or Continue to drop the message and keep going.
// Other transport errors always disconnect.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// PrometheusOption returns an Option that records transport metrics. The
// collectors are created and registered with registerer when PrometheusOption
// is called, so pass the same Option to every reader, writer and stream that
// should report into them. A nil registerer skips registration.
func PrometheusOption(registerer prometheus.Registerer, namespace, subsystem string) Option {
	m := newMetrics(registerer, namespace, subsystem)
	return func(o *options) {
		o.metrics = m
	}
}
