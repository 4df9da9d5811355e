package main

import (
	"log"
	"os"
	"time"

	"voxassist/internal/api"
	"voxassist/internal/auth"
	"voxassist/internal/config"
	"voxassist/internal/redis"
	"voxassist/internal/service/ai"
	"voxassist/internal/service/assistant"
	"voxassist/internal/storage"
	"voxassist/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; config.json and the environment still apply.
	_ = godotenv.Load()

	cfgPath := os.Getenv("VOXASSIST_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("VOXASSIST_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create necessary tables: users, user_tokens, turns
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
	}

	assistantService := assistant.NewService(db)
	authService := auth.NewService(db, rdb, 7*24*time.Hour)
	oracleService := ai.NewService(cfg.Oracle)
	workers := worker.NewManager(assistantService, oracleService, 0)

	fileBase := cfg.BasicConfig.FileBaseDir
	if fileBase == "" {
		fileBase = "./data/uploads"
	}
	handlers := api.NewHandler(assistantService, authService, workers, fileBase)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
