package main

import (
	"log"
	"os"
	"time"

	v1 "proxyman/api/v1"
	"proxyman/internal/acme"
	"proxyman/internal/auth"
	"proxyman/internal/cache"
	"proxyman/internal/certstore"
	"proxyman/internal/certsvc"
	"proxyman/internal/challenge"
	"proxyman/internal/command"
	"proxyman/internal/config"
	"proxyman/internal/db"
	"proxyman/internal/nginx"
	"proxyman/internal/scheduler"
	"proxyman/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. Load configuration (INI file when given, env otherwise)
	var cfg *config.Config
	var err error
	if iniPath := os.Getenv("CONFIG_FILE"); iniPath != "" {
		cfg, err = config.LoadFromINI(iniPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("✓ Configuration loaded")

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.GetDB()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	// 3. Initialize Redis
	if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer cache.Close()

	// 4. Initialize JWT signing
	auth.InitJWT(cfg.JWT.Secret)

	// 5. Initialize the WebSocket server
	if err := ws.InitServer(); err != nil {
		log.Fatalf("Failed to initialize WebSocket server: %v", err)
	}

	// 6. Wire the certificate lifecycle
	runner := command.NewExecRunner()
	renderer := nginx.NewRenderer(cfg.ACME.CertDir)
	sync := nginx.NewSync(cfg.Nginx, renderer, runner)
	reloader := nginx.Reloader{Sync: sync}

	challengeAdapter := challenge.NewAdapter(
		cfg.Nginx.ChallengeDir, cfg.ACME.WebrootDir, reloader,
		logrus.WithField("component", "challenge"))

	acmeClient := acme.NewClient(acme.ClientConfig{
		Bin:        cfg.ACME.Bin,
		CertDir:    cfg.ACME.CertDir,
		WebrootDir: cfg.ACME.WebrootDir,
		Email:      cfg.ACME.Email,
	}, runner, challengeAdapter, reloader, logrus.WithField("component", "acme"))

	var prober certsvc.Prober
	if cfg.ACME.ProbeEnabled {
		prober = acme.NewProber(time.Duration(cfg.ACME.ProbeTimeoutSec) * time.Second)
	}

	store := certstore.NewStore(db.GetDB())
	svc := certsvc.NewService(store, acmeClient, prober, sync, ws.Publisher{}, cfg.Scheduler.RenewBeforeDays)

	sched := scheduler.New(svc, cfg.Scheduler)
	sched.Start()
	defer sched.Stop()

	// 7. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	v1.SetupRouter(r, db.GetDB(), cfg, svc, sched, sync, store)

	// Socket.IO endpoint with JWT handshake
	socketHandler := ws.WrapWithAuth(ws.Server)
	r.GET("/socket.io/*any", gin.WrapH(socketHandler))
	r.POST("/socket.io/*any", gin.WrapH(socketHandler))

	log.Printf("✓ Server starting on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
