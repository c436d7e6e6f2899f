package services

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/benmeehan/workpool/pkg/file"
	http_utils "github.com/benmeehan/workpool/pkg/httpUtils"
	"github.com/benmeehan/workpool/pkg/threadpool"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// Request lines the static responder understands.
const (
	requestIndex = "GET / HTTP/1.1"
	requestSleep = "GET /sleep HTTP/1.1"

	indexPage    = "hello.html"
	notFoundPage = "404.html"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Executor runs jobs. *threadpool.ThreadPool satisfies it.
type Executor interface {
	Execute(job threadpool.Job) error
}

// WebService accepts TCP connections and answers each one on the thread pool.
type WebService struct {
	address        string
	staticDir      string
	maxConnections int
	sleepDelay     time.Duration
	readTimeout    time.Duration
	pool           Executor
	fileClient     file.FileOperations
	logger         zerolog.Logger
	listen         func(network, address string) (net.Listener, error)

	mu          sync.Mutex
	listener    net.Listener
	done        chan struct{}
	connections cmap.ConcurrentMap[string, net.Conn]
}

// NewWebService initializes a new WebService. maxConnections of zero means no limit.
func NewWebService(
	address, staticDir string,
	maxConnections int,
	sleepDelay, readTimeout time.Duration,
	pool Executor,
	fileClient file.FileOperations,
	logger zerolog.Logger,
) *WebService {
	return &WebService{
		address:        address,
		staticDir:      staticDir,
		maxConnections: maxConnections,
		sleepDelay:     sleepDelay,
		readTimeout:    readTimeout,
		pool:           pool,
		fileClient:     fileClient,
		logger:         logger.With().Str("service", "web").Logger(),
		connections:    cmap.New[net.Conn](),
		listen:         net.Listen,
	}
}

// Start binds the listener and launches the accept loop.
func (w *WebService) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.listener != nil {
		w.logger.Warn().Msg("WebService is already running")
		return errors.New("web service is already running")
	}

	listener, err := w.listen("tcp", w.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", w.address, err)
	}
	w.listener = listener
	w.done = make(chan struct{})

	go w.acceptLoop(listener, w.done)

	w.logger.Info().Str("address", listener.Addr().String()).Msg("WebService started successfully")
	return nil
}

// Stop closes the listener and waits for the accept loop to exit. Connections
// already handed to the pool are left to finish there.
func (w *WebService) Stop() error {
	w.mu.Lock()
	listener, done := w.listener, w.done
	w.listener = nil
	w.mu.Unlock()

	if listener == nil {
		w.logger.Warn().Msg("WebService is not running")
		return errors.New("web service is not running")
	}

	if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		w.logger.Warn().Err(err).Msg("Failed to close listener")
	}
	<-done

	w.logger.Info().Int("active_connections", w.ActiveConnections()).Msg("WebService stopped successfully")
	return nil
}

// Addr returns the bound address, or nil when the service is not running.
func (w *WebService) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.listener == nil {
		return nil
	}
	return w.listener.Addr()
}

// Done is closed when the accept loop exits, either on Stop or once the
// connection budget is spent. It is nil before Start.
func (w *WebService) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// ActiveConnections returns the number of connections accepted but not yet closed.
func (w *WebService) ActiveConnections() int {
	return w.connections.Count()
}

func (w *WebService) acceptLoop(listener net.Listener, done chan struct{}) {
	defer close(done)

	var backoff time.Duration
	accepted := 0
	for w.maxConnections == 0 || accepted < w.maxConnections {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if !isTemporary(err) {
				w.logger.Error().Err(err).Msg("Failed to accept connection, no longer accepting")
				return
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			w.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Failed to accept connection")
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		accepted++

		id := uuid.NewString()
		w.connections.Set(id, conn)
		w.logger.Debug().
			Str("connection_id", id).
			Str("remote_addr", conn.RemoteAddr().String()).
			Msg("Connection established")

		if err := w.pool.Execute(func() { w.serve(id, conn) }); err != nil {
			w.logger.Error().Err(err).Str("connection_id", id).Msg("Failed to submit connection to pool")
			w.closeConnection(id, conn)
		}
	}

	w.logger.Info().Int("max_connections", w.maxConnections).Msg("Connection limit reached, no longer accepting")
}

// isTemporary reports whether an Accept error is worth retrying, such as running
// out of file descriptors.
func isTemporary(err error) bool {
	var ne interface{ Temporary() bool }
	return errors.As(err, &ne) && ne.Temporary()
}

func (w *WebService) serve(id string, conn net.Conn) {
	defer w.closeConnection(id, conn)
	logger := w.logger.With().Str("connection_id", id).Logger()

	if w.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(w.readTimeout))
	}

	head, err := http_utils.ReadRequestHead(bufio.NewReader(conn))
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read request")
		return
	}
	requestLine := http_utils.RequestLine(head)
	if requestLine == "" {
		logger.Debug().Msg("Empty request, closing connection")
		return
	}

	response := w.respond(requestLine, logger)
	if _, err := conn.Write(response); err != nil {
		logger.Warn().Err(err).Msg("Failed to write response")
		return
	}
	logger.Debug().Str("request", requestLine).Msg("Request served")
}

// respond maps a request line to a full response.
func (w *WebService) respond(requestLine string, logger zerolog.Logger) []byte {
	status, page := http_utils.StatusNotFound, notFoundPage
	switch requestLine {
	case requestIndex:
		status, page = http_utils.StatusOK, indexPage
	case requestSleep:
		time.Sleep(w.sleepDelay)
		status, page = http_utils.StatusOK, indexPage
	}

	body, err := w.fileClient.ReadFileRaw(filepath.Join(w.staticDir, page))
	if err != nil {
		logger.Error().Err(err).Str("page", page).Msg("Failed to read page")
		return http_utils.BuildResponse(http_utils.StatusInternalServerError, nil)
	}
	return http_utils.BuildResponse(status, body)
}

func (w *WebService) closeConnection(id string, conn net.Conn) {
	w.connections.Remove(id)
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		w.logger.Debug().Err(err).Str("connection_id", id).Msg("Failed to close connection")
	}
}
