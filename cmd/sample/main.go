// Command sample demonstrates the github.com/bjaus/relay request lifecycle
// with a small API covering the major features.
//
// Run:
//
//	go run ./cmd/sample
//	go run ./cmd/sample -config relay.yaml
//
// Print the route table:
//
//	go run ./cmd/sample -routes
//
// Then explore:
//
//	GET    http://localhost:8080/routes             route overview (JSON, ?format=yaml)
//	GET    http://localhost:8080/metrics            Prometheus metrics
//	GET    http://localhost:8080/v1/users           list users
//	POST   http://localhost:8080/v1/users           create user (admin role)
//	GET    http://localhost:8080/v1/users/{id}      get user
//	DELETE http://localhost:8080/v1/users/{id}      delete user (admin role)
//	GET    http://localhost:8080/v1/report          slow report computed asynchronously
//	WS     ws://localhost:8080/v1/echo/{room}       echo WebSocket
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bjaus/relay"
)

func main() {
	configFlag := flag.String("config", "", "Path to a YAML config file")
	routesFlag := flag.Bool("routes", false, "Print the route table as YAML and exit")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))

	cfg, err := relay.LoadConfig(*configFlag)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics, err := relay.NewMetrics(registry, "sample")
	if err != nil {
		slog.Error("register metrics", "err", err)
		os.Exit(1)
	}

	r := newRouter(cfg, metrics, registry)

	if *routesFlag {
		if err := r.WriteRoutesYAML(os.Stdout); err != nil {
			slog.Error("print routes", "err", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := r.ListenAndServe(ctx, ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "err", err)
	}

	slog.Info("server stopped")
}

const roleAdmin relay.Role = "admin"

func newRouter(cfg relay.Config, metrics *relay.Metrics, gatherer prometheus.Gatherer) *relay.Router {
	r := relay.New(
		relay.WithConfig(cfg),
		relay.WithMetrics(metrics),
		relay.WithRequestLogger(relay.SlogRequestLogger(slog.Default())),
	)

	r.Before("*", relay.RequestID())
	r.Before("*", relay.SecureHeaders())
	r.Before("*", relay.CORS())
	r.BeforeMatched("*", relay.RequireRoles(rolesFromHeader))

	r.Get("/routes", relay.RouteOverview(r))
	r.Get("/metrics", relay.FromHTTP(relay.MetricsHandler(gatherer)))

	relay.Exception(r, func(err *notFoundError, c *relay.Context) {
		c.SetStatus(http.StatusNotFound)
		c.ResultString("no user " + err.id)
	})
	if err := r.Error(http.StatusNotFound, func(c *relay.Context) error {
		if !c.HasResult() {
			c.ResultString("nothing here")
		}
		return nil
	}); err != nil {
		panic(err)
	}

	v1 := r.Group("/v1")
	v1.Get("/users", handleListUsers)
	v1.Post("/users", handleCreateUser, relay.WithRoles(roleAdmin), relay.WithBodyLimit(4<<10))
	v1.Get("/users/{id}", handleGetUser)
	v1.Delete("/users/{id}", handleDeleteUser, relay.WithRoles(roleAdmin))
	v1.Get("/report", handleReport)
	v1.WS("/echo/{room}", handleEcho)

	return r
}

func rolesFromHeader(c *relay.Context) ([]relay.Role, error) {
	var roles []relay.Role
	for _, r := range strings.Split(c.Header("X-Roles"), ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, relay.Role(r))
		}
	}
	return roles, nil
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// User is a user resource.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUserRequest is the body of POST /v1/users.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Validate implements relay.SelfValidator.
func (r *CreateUserRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if !strings.Contains(r.Email, "@") {
		return errors.New("email is invalid")
	}
	return nil
}

type notFoundError struct{ id string }

func (e *notFoundError) Error() string { return "user " + e.id + " not found" }

func handleListUsers(c *relay.Context) error {
	return c.JSON(store.list())
}

func handleGetUser(c *relay.Context) error {
	u, ok := store.get(c.PathParam("id"))
	if !ok {
		return &notFoundError{id: c.PathParam("id")}
	}
	return c.JSON(u)
}

func handleCreateUser(c *relay.Context) error {
	var req CreateUserRequest
	if err := c.BodyAs(&req); err != nil {
		return err
	}
	c.SetStatus(http.StatusCreated)
	return c.JSON(store.create(req.Name, req.Email))
}

func handleDeleteUser(c *relay.Context) error {
	if !store.delete(c.PathParam("id")) {
		return &notFoundError{id: c.PathParam("id")}
	}
	c.SetStatus(http.StatusNoContent)
	return nil
}

func handleReport(c *relay.Context) error {
	return c.Future(func() *relay.Future {
		return relay.Async(c.Context(), func(ctx context.Context) (any, error) {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return map[string]int{"users": len(store.list())}, nil
		})
	})
}

func handleEcho(ws *relay.WSConfig) {
	ws.OnConnect = func(s *relay.WSSession) error {
		return s.Send("joined " + s.PathParam("room"))
	}
	ws.OnMessage = func(s *relay.WSSession, msg string) error {
		return s.Send(msg)
	}
	ws.OnClose = func(s *relay.WSSession, code int, _ string) {
		slog.Info("echo session closed", "session", s.ID(), "code", code)
	}
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

var store = &userStore{
	users: map[string]*User{
		"1": {ID: "1", Name: "Alice", Email: "alice@example.com", CreatedAt: time.Now()},
		"2": {ID: "2", Name: "Bob", Email: "bob@example.com", CreatedAt: time.Now()},
	},
	nextID: 3,
}

type userStore struct {
	mu     sync.RWMutex
	users  map[string]*User
	nextID int
}

func (s *userStore) list() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *userStore) get(id string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func (s *userStore) create(name, email string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &User{
		ID:        strconv.Itoa(s.nextID),
		Name:      name,
		Email:     email,
		CreatedAt: time.Now(),
	}
	s.users[u.ID] = u
	s.nextID++
	cp := *u
	return &cp
}

func (s *userStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false
	}
	delete(s.users, id)
	return true
}
