package services_test

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/workpool/internal/mocks"
	"github.com/benmeehan/workpool/internal/services"
	"github.com/benmeehan/workpool/pkg/file"
	"github.com/benmeehan/workpool/pkg/threadpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	helloBody    = "<h1>Hello!</h1>"
	notFoundBody = "<h1>Oops!</h1>"
)

func staticDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.html"), []byte(helloBody), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "404.html"), []byte(notFoundBody), 0o600))
	return dir
}

func startWebService(t *testing.T, pool services.Executor, dir string, maxConnections int,
	sleepDelay time.Duration) *services.WebService {
	t.Helper()

	web := services.NewWebService("127.0.0.1:0", dir, maxConnections, sleepDelay, time.Second,
		pool, file.NewFileService(), zerolog.Nop())
	require.NoError(t, web.Start())
	return web
}

func request(t *testing.T, addr net.Addr, requestLine string) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = fmt.Fprintf(conn, "%s\r\nHost: localhost\r\n\r\n", requestLine)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	response, err := io.ReadAll(bufio.NewReader(conn))
	require.NoError(t, err)
	return string(response)
}

func TestWebService_Routes(t *testing.T) {
	pool, err := threadpool.New(2)
	require.NoError(t, err)
	defer pool.Shutdown()

	web := startWebService(t, pool, staticDir(t), 0, 10*time.Millisecond)
	defer web.Stop()

	tests := []struct {
		requestLine string
		want        string
	}{
		{"GET / HTTP/1.1", "HTTP/1.1 200 OK\r\nContent-Length: 15\r\n\r\n" + helloBody},
		{"GET /sleep HTTP/1.1", "HTTP/1.1 200 OK\r\nContent-Length: 15\r\n\r\n" + helloBody},
		{"GET /missing HTTP/1.1", "HTTP/1.1 404 NOT FOUND\r\nContent-Length: 14\r\n\r\n" + notFoundBody},
		{"POST / HTTP/1.1", "HTTP/1.1 404 NOT FOUND\r\nContent-Length: 14\r\n\r\n" + notFoundBody},
	}
	for _, tt := range tests {
		t.Run(tt.requestLine, func(t *testing.T) {
			assert.Equal(t, tt.want, request(t, web.Addr(), tt.requestLine))
		})
	}
}

func TestWebService_MissingPageIsServerError(t *testing.T) {
	pool, err := threadpool.New(1)
	require.NoError(t, err)
	defer pool.Shutdown()

	web := startWebService(t, pool, t.TempDir(), 0, 0)
	defer web.Stop()

	response := request(t, web.Addr(), "GET / HTTP/1.1")
	assert.Equal(t, "HTTP/1.1 500 INTERNAL SERVER ERROR\r\nContent-Length: 0\r\n\r\n", response)
}

func TestWebService_SlowRequestDoesNotBlockOthers(t *testing.T) {
	pool, err := threadpool.New(2)
	require.NoError(t, err)
	defer pool.Shutdown()

	web := startWebService(t, pool, staticDir(t), 0, 500*time.Millisecond)
	defer web.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.Contains(t, request(t, web.Addr(), "GET /sleep HTTP/1.1"), "200 OK")
	}()

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	assert.Contains(t, request(t, web.Addr(), "GET / HTTP/1.1"), "200 OK")
	assert.Less(t, time.Since(start), 400*time.Millisecond, "index request waited behind /sleep")

	wg.Wait()
}

func TestWebService_ConnectionLimit(t *testing.T) {
	pool, err := threadpool.New(3)
	require.NoError(t, err)

	web := startWebService(t, pool, staticDir(t), 2, 0)
	addr := web.Addr()

	assert.Contains(t, request(t, addr, "GET / HTTP/1.1"), "200 OK")
	assert.Contains(t, request(t, addr, "GET / HTTP/1.1"), "200 OK")

	select {
	case <-web.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not finish after the connection limit")
	}

	require.NoError(t, web.Stop())
	pool.Shutdown()

	assert.Equal(t, 0, web.ActiveConnections())
	assert.Equal(t, uint64(2), pool.Stats().Completed)
}

func TestWebService_ShutdownDrainsInFlightConnections(t *testing.T) {
	pool, err := threadpool.New(1)
	require.NoError(t, err)

	web := startWebService(t, pool, staticDir(t), 0, 200*time.Millisecond)

	responses := make(chan string, 1)
	go func() {
		responses <- request(t, web.Addr(), "GET /sleep HTTP/1.1")
	}()

	require.Eventually(t, func() bool { return pool.Stats().Busy == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, web.Stop())
	pool.Shutdown()

	select {
	case response := <-responses:
		assert.Contains(t, response, "200 OK")
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request was not answered")
	}
}

func TestWebService_RejectedSubmissionClosesConnection(t *testing.T) {
	executor := new(mockExecutor)
	executor.On("Execute", mock.Anything).Return(threadpool.ErrPoolShutdown)

	web := startWebService(t, executor, staticDir(t), 0, 0)
	defer web.Stop()

	conn, err := net.Dial("tcp", web.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	data, err := io.ReadAll(conn)
	assert.Empty(t, data)
	var netErr net.Error
	assert.False(t, errors.As(err, &netErr) && netErr.Timeout(), "connection should be closed, not left open")

	executor.AssertCalled(t, "Execute", mock.Anything)
	assert.Eventually(t, func() bool { return web.ActiveConnections() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebService_StartStop(t *testing.T) {
	pool, err := threadpool.New(1)
	require.NoError(t, err)
	defer pool.Shutdown()

	web := services.NewWebService("127.0.0.1:0", t.TempDir(), 0, 0, time.Second,
		pool, new(mocks.MockFileOperations), zerolog.Nop())

	err = web.Stop()
	assert.EqualError(t, err, "web service is not running")

	require.NoError(t, web.Start())
	err = web.Start()
	assert.EqualError(t, err, "web service is already running")

	require.NoError(t, web.Stop())
	assert.Nil(t, web.Addr())
}

func TestWebService_EmptyRequestGetsNoResponse(t *testing.T) {
	pool, err := threadpool.New(1)
	require.NoError(t, err)
	defer pool.Shutdown()

	web := startWebService(t, pool, staticDir(t), 0, 0)
	defer web.Stop()

	conn, err := net.Dial("tcp", web.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, "\r\n")
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	data, _ := io.ReadAll(conn)
	assert.Empty(t, strings.TrimSpace(string(data)))
}

type temporaryError struct{}

func (temporaryError) Error() string   { return "accept: too many open files" }
func (temporaryError) Timeout() bool   { return false }
func (temporaryError) Temporary() bool { return true }

// flakyListener fails the first failures calls to Accept before delegating.
type flakyListener struct {
	net.Listener
	mu       sync.Mutex
	failures int
	err      error
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return nil, l.err
	}
	l.mu.Unlock()
	return l.Listener.Accept()
}

func newFlakyWebService(t *testing.T, pool services.Executor, failures int, acceptErr error) *services.WebService {
	t.Helper()

	web := services.NewWebService("127.0.0.1:0", staticDir(t), 0, 0, time.Second,
		pool, file.NewFileService(), zerolog.Nop())
	web.SetListen(func(network, address string) (net.Listener, error) {
		inner, err := net.Listen(network, address)
		if err != nil {
			return nil, err
		}
		return &flakyListener{Listener: inner, failures: failures, err: acceptErr}, nil
	})
	require.NoError(t, web.Start())
	return web
}

func TestWebService_TemporaryAcceptErrorKeepsServing(t *testing.T) {
	pool, err := threadpool.New(1)
	require.NoError(t, err)
	defer pool.Shutdown()

	web := newFlakyWebService(t, pool, 3, temporaryError{})
	defer web.Stop()

	assert.Contains(t, request(t, web.Addr(), "GET / HTTP/1.1"), "200 OK")

	select {
	case <-web.Done():
		t.Fatal("accept loop exited on a temporary error")
	default:
	}
}

func TestWebService_PermanentAcceptErrorStopsAccepting(t *testing.T) {
	pool, err := threadpool.New(1)
	require.NoError(t, err)
	defer pool.Shutdown()

	web := newFlakyWebService(t, pool, 1, errors.New("listener broken"))
	defer web.Stop()

	select {
	case <-web.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop kept running after a permanent error")
	}
}

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(job threadpool.Job) error {
	args := m.Called(job)
	return args.Error(0)
}
