package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"BlitzCup/bracket"
	"BlitzCup/cache"
	"BlitzCup/events"
	"BlitzCup/middlewares"
	"BlitzCup/models"
	"BlitzCup/realtime"
	"BlitzCup/verify"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Server struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Engine   *bracket.Engine
	Hub      *realtime.Hub
	Worker   *WorkerClient
	Verifier bracket.Checker

	publisher  message.Publisher
	subscriber message.Subscriber
}

//
// ===============================
// SERVER INITIALIZATION
// ===============================
//

func (server *Server) Initialize(DbUser, DbPassword, DbPort, DbHost, DbName string) {
	var dsn string

	if strings.EqualFold(os.Getenv("APP_ENV"), "production") {
		dsn = os.Getenv("DATABASE_URL")
		if dsn != "" && !strings.Contains(dsn, "sslmode=") {
			if strings.Contains(dsn, "?") {
				dsn += "&sslmode=require"
			} else {
				dsn += "?sslmode=require"
			}
		}
	} else {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			DbHost, DbUser, DbPassword, DbName, DbPort,
		)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Cannot connect to Postgres: %v", err)
	}
	server.DB = db

	// Auto Migrations
	if err := server.DB.AutoMigrate(
		&models.Participant{},
		&models.Match{},
		&models.Problem{},
		&models.TournamentState{},
		&models.OutboxEvent{},
	); err != nil {
		log.Fatalf("Error migrating database: %v", err)
	}

	// Redis init (safe failure)
	if err := cache.InitFromEnv(); err != nil {
		log.Printf("warning: could not connect to redis: %v", err)
	}

	server.initializeBroker()
	server.initializeEngine()

	server.Hub = realtime.NewHub()
	server.Worker = NewWorkerClient(os.Getenv("WORKER_URL"))

	server.Router = gin.Default()
	server.Router.Use(middlewares.CORSMiddleware())
	server.Router.Use(middlewares.RateLimitMiddleware())
	server.initializeRoutes()
}

// initializeBroker connects the durable queues. Without a broker URL the
// server falls back to an in-process channel pubsub, which keeps local
// development working end to end.
func (server *Server) initializeBroker() {
	amqpURL := strings.TrimSpace(os.Getenv("CLOUDAMQP_URL"))
	if amqpURL != "" {
		pub, err := events.NewAMQPPublisher(amqpURL + "?heartbeat=60")
		if err != nil {
			log.Fatalf("Cannot connect AMQP publisher: %v", err)
		}
		sub, err := events.NewAMQPSubscriber(amqpURL + "?heartbeat=60")
		if err != nil {
			log.Fatalf("Cannot connect AMQP subscriber: %v", err)
		}
		server.publisher = pub
		server.subscriber = sub
		return
	}

	log.Println("warning: CLOUDAMQP_URL not set, using in-process pubsub")
	channel := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	server.publisher = channel
	server.subscriber = channel
}

func (server *Server) initializeEngine() {
	config := bracket.DefaultConfig()
	if v := envInt("PROVISION_MAX_ATTEMPTS"); v > 0 {
		config.MaxAttempts = v
	}
	if v := envInt("PROVISION_RETRY_DELAY_MS"); v > 0 {
		config.RetryDelay = time.Duration(v) * time.Millisecond
	}
	if v := strings.TrimSpace(os.Getenv("PROVISION_FALLBACK")); v != "" {
		config.FallbackOnExhaustion = v != "false" && v != "0"
	}

	server.Verifier = verify.NewClient()
	provisioner := bracket.NewProvisioner(server.DB, server.Verifier, config)
	server.Engine = bracket.NewEngine(server.DB, provisioner, events.NewPublisher(server.publisher), server.hubNotifier())
}

// hubNotifier defers the hub lookup so Initialize can build the engine
// before the hub exists.
func (server *Server) hubNotifier() bracket.WinnerNotifier {
	return notifierFunc(func(matchID string, winnerID uint) {
		if server.Hub != nil {
			server.Hub.NotifyNewWinner(matchID, winnerID)
		}
	})
}

type notifierFunc func(matchID string, winnerID uint)

func (f notifierFunc) NotifyNewWinner(matchID string, winnerID uint) {
	f(matchID, winnerID)
}

// StartEventLoop runs the winners consumer and the outbox sweeper until the
// context is cancelled.
func (server *Server) StartEventLoop(ctx context.Context) {
	consumer := events.NewConsumer(server.subscriber, server.Engine)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Printf("winners consumer stopped: %v", err)
		}
	}()

	sweeper := events.NewOutboxSweeper(server.DB, server.publisher)
	go sweeper.Run(ctx)
}

func (server *Server) Run(addr string) {
	log.Fatal(http.ListenAndServe(addr, server.Router))
}

func envInt(key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return 0
	}
	return v
}
