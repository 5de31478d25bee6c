package nats

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abgdnv/product-catalog/internal/service"
	"github.com/abgdnv/product-catalog/internal/store"
	pnats "github.com/abgdnv/product-catalog/pkg/nats"
	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/nats"
	"golang.org/x/sync/errgroup"
)

const (
	skipIntegrationTests = "PRODUCTS_SKIP_INTEGRATION_TESTS"
	natsImg              = "nats:2.11.6-alpine"
)

// ServerSuite runs the RPC server against a real NATS broker.
type ServerSuite struct {
	suite.Suite
	ctx           context.Context
	logger        *slog.Logger
	natsContainer *nats.NATSContainer
	natsURL       string
	client        *natsgo.Conn
}

func (s *ServerSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.natsContainer, err = nats.Run(s.ctx, natsImg)
	require.NoError(s.T(), err, "Failed to run NATS container")

	s.natsURL, err = s.natsContainer.ConnectionString(s.ctx)
	require.NoError(s.T(), err)
	s.client, err = natsgo.Connect(s.natsURL)
	require.NoError(s.T(), err, "Failed to connect to NATS")
}

func (s *ServerSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
	if err := testcontainers.TerminateContainer(s.natsContainer); err != nil {
		s.logger.Error("Failed to terminate NATS container", "error", err)
	}
}

func TestServerIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(ServerSuite))
}

// startServer runs a server backed by an in-memory store until the test ends.
func (s *ServerSuite) startServer(t *testing.T) {
	memStore := store.NewMemStore()
	require.NoError(t, memStore.EnsureUniqueFields(s.ctx, []string{"name"}))
	s.startServerWith(t, service.NewService(memStore, s.logger), 2)
}

// startServerWith runs a server over svc and returns the function that stops it.
func (s *ServerSuite) startServerWith(t *testing.T, svc service.ProductService, workers int) func() error {
	nc, err := pnats.NewClient([]string{s.natsURL}, "product-catalog-test", 5*time.Second, s.logger)
	require.NoError(t, err)
	server := NewServer(nc, svc, Config{Queue: "products", Workers: workers}, s.logger)

	ctx, cancel := context.WithCancel(s.ctx)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gCtx)
	})
	var (
		once    sync.Once
		stopErr error
	)
	stop := func() error {
		once.Do(func() {
			cancel()
			stopErr = g.Wait()
			_ = nc.FlushTimeout(time.Second)
			nc.Close()
		})
		return stopErr
	}
	t.Cleanup(func() {
		require.ErrorIs(t, stop(), context.Canceled)
	})

	// wait until the subscriptions are live
	require.Eventually(t, func() bool {
		_, err := s.client.Request(PatternFindAll, []byte(`{}`), 200*time.Millisecond)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)
	return stop
}

// slowService answers find-one after a delay and counts the calls it has started.
type slowService struct {
	service.ProductService
	delay   time.Duration
	started atomic.Int32
}

func (s *slowService) FindOne(_ context.Context, id int64) (*service.ProductDto, error) {
	s.started.Add(1)
	time.Sleep(s.delay)
	return &service.ProductDto{ID: id, Name: "Widget"}, nil
}

func (s *ServerSuite) request(t *testing.T, pattern string, data string) replyPacket {
	body := `{"id":"` + pattern + `","pattern":"` + pattern + `","data":` + data + `}`
	msg, err := s.client.Request(pattern, []byte(body), 2*time.Second)
	require.NoError(t, err)
	return decodeReply(t, msg.Data)
}

func (s *ServerSuite) TestCatalogLifecycle() {
	t := s.T()
	s.startServer(t)

	created := s.request(t, PatternCreate, `{"name":"Widget","price":9.99}`)
	require.NotNil(t, created.Response)
	require.Equal(t, 201, created.Response.StatusCode)
	require.Equal(t, PatternCreate, created.ID)
	require.JSONEq(t, `{"id":1,"name":"Widget","description":null,"price":9.99,"stock":null,"deleted":false}`,
		string(created.Response.Response))

	duplicate := s.request(t, PatternCreate, `{"name":"Widget","price":1}`)
	require.NotNil(t, duplicate.Err)
	require.Equal(t, 409, duplicate.Err.Status)

	updated := s.request(t, PatternUpdate, `{"id":1,"price":3.00}`)
	require.NotNil(t, updated.Response)
	require.Equal(t, "Updated", updated.Response.Message)

	found := s.request(t, PatternFindOne, `{"id":1}`)
	require.NotNil(t, found.Response)
	var product service.ProductDto
	require.NoError(t, json.Unmarshal(found.Response.Response, &product))
	require.Equal(t, "3", product.Price.String())

	validated := s.request(t, PatternValidate, `[1,1]`)
	require.NotNil(t, validated.Response)

	removed := s.request(t, PatternRemove, `{"id":1}`)
	require.NotNil(t, removed.Response)
	require.Equal(t, "Deleted", removed.Response.Message)

	gone := s.request(t, PatternFindOne, `{"id":1}`)
	require.NotNil(t, gone.Err)
	require.Equal(t, 404, gone.Err.Status)

	page := s.request(t, PatternFindAll, `{"page":1}`)
	require.NotNil(t, page.Err)
	require.Equal(t, 404, page.Err.Status)
}

func (s *ServerSuite) TestBadRequestDoesNotStopServer() {
	t := s.T()
	s.startServer(t)

	msg, err := s.client.Request(PatternCreate, []byte(`not json at all`), 2*time.Second)
	require.NoError(t, err)
	bad := decodeReply(t, msg.Data)
	require.NotNil(t, bad.Err)
	require.Equal(t, 400, bad.Err.Status)

	ok := s.request(t, PatternCreate, `{"name":"Gadget","price":1}`)
	require.NotNil(t, ok.Response)
}

func (s *ServerSuite) TestShutdownAnswersQueuedRequests() {
	t := s.T()
	memStore := store.NewMemStore()
	slow := &slowService{ProductService: service.NewService(memStore, s.logger), delay: 100 * time.Millisecond}
	stop := s.startServerWith(t, slow, 1)

	const requests = 10
	inbox := natsgo.NewInbox()
	replies := make(chan *natsgo.Msg, requests)
	sub, err := s.client.ChanSubscribe(inbox, replies)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	for i := 1; i <= requests; i++ {
		body := `{"id":"` + strconv.Itoa(i) + `","pattern":"find-one-product","data":{"id":` + strconv.Itoa(i) + `}}`
		require.NoError(t, s.client.PublishRequest(PatternFindOne, inbox, []byte(body)))
	}
	require.NoError(t, s.client.Flush())
	// the single worker is busy with the first request, the rest are queued
	require.Eventually(t, func() bool { return slow.started.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	require.ErrorIs(t, stop(), context.Canceled)

	seen := make(map[string]bool)
	timeout := time.After(5 * time.Second)
	for len(seen) < requests {
		select {
		case msg := <-replies:
			out := decodeReply(t, msg.Data)
			require.NotNil(t, out.Response, "request %s was not answered with a success", out.ID)
			seen[out.ID] = true
		case <-timeout:
			t.Fatalf("only %d of %d queued requests were answered", len(seen), requests)
		}
	}
	require.EqualValues(t, requests, slow.started.Load())
}
