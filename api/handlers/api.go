package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/darkconsole/console-chat/api"
	"github.com/darkconsole/console-chat/api/scheduler"
	"github.com/darkconsole/console-chat/config"
	"github.com/darkconsole/console-chat/databases"
	"github.com/darkconsole/console-chat/models"
)

// RequestTimeout bounds REST requests
const RequestTimeout = 30 * time.Second

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Relay     *Relay
	Metrics   *api.Metrics
	SocketIO  *SocketIO
	Auth      *api.Authenticator
	Scheduler *scheduler.Scheduler
	client    databases.ClientHelper
	dbHelper  databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	c := Chat{Relay: a.Relay}
	ws := ChatSocket{Relay: a.Relay, Auth: a.Auth}

	r := mux.NewRouter()
	r.Use(a.Metrics.MetricsMiddleware)

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)
	r.Handle("/metrics", a.Metrics.Handler())

	r.HandleFunc("/ws/chat", ws.HandleChatWebSocket)
	if a.SocketIO != nil {
		r.PathPrefix("/socket.io/").Handler(a.SocketIO.Handler())
	}

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(RequestTimeout), api.Middleware(a.Auth))

	apiCreate.HandleFunc("/chats/{roomId}", c.ChatHistoryHandler).Methods("GET")
	apiCreate.HandleFunc("/chats/{roomId}/messages/{messageId}", c.DeleteChatMessageHandler).Methods("DELETE")
	apiCreate.HandleFunc("/orders/{orderId}/messages", c.OrderMessagesHandler).Methods("GET")

	// swagger docs hosted at "/docs/"
	r.PathPrefix("/docs/").Handler(http.StripPrefix("/docs/", http.FileServer(http.Dir("./docs/"))))

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {
	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().Errorw("failed to create new client", "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().Errorw("failed to connect to database", "error", err)
		return err
	}
	a.client = client
	a.dbHelper = databases.NewDatabase(&a.Config, client)
	zap.S().Info("console-chat has connected to the database")

	a.Wire(databases.NewChatMessageDatabase(a.dbHelper))

	a.SocketIO.Serve()
	if err := a.Scheduler.Start(); err != nil {
		return err
	}
	return nil
}

// Wire builds the relay, its transports and the router on top of db
func (a *App) Wire(db databases.ChatMessageDatabase) {
	a.Metrics = api.NewMetrics()
	hub := NewHub(a.Metrics)
	a.Relay = NewRelay(db, hub, a.Metrics, a.Config)
	a.Auth = api.NewAuthenticator(context.Background(), api.Identity{Secret: []byte(a.Config.JWTSecret)})
	a.SocketIO = NewSocketIO(a.Relay, a.Auth)

	a.Scheduler = scheduler.NewScheduler(db, a.Config.CommunityRetentionDays)
	a.Scheduler.OnDeleted = func(n int64) { a.Metrics.RetentionDeleted.Add(float64(n)) }

	a.initializeRoutes()
}

// Shutdown stops background work and disconnects from the database
func (a *App) Shutdown(ctx context.Context) {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.SocketIO != nil {
		if err := a.SocketIO.Close(); err != nil {
			zap.S().Warnw("failed to close Socket.IO server", "error", err)
		}
	}
	if a.client != nil {
		if err := a.client.Disconnect(ctx); err != nil {
			zap.S().Warnw("failed to disconnect from database", "error", err)
		}
	}
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
