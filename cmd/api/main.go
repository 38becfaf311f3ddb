package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/thomasmilici/domux-backend/internal/handlers"
	"github.com/thomasmilici/domux-backend/internal/middleware"
	"github.com/thomasmilici/domux-backend/internal/platform/gcp"
	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/repos"
	"github.com/thomasmilici/domux-backend/internal/server"
	"github.com/thomasmilici/domux-backend/internal/services"
	"github.com/thomasmilici/domux-backend/internal/utils"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Firebase (auth + Firestore)
	log.Info("Setting up Firebase from main...")
	firebase, err := gcp.NewFirebase(ctx)
	if err != nil {
		log.Error("Could not init Firebase", "error", err)
		os.Exit(1)
	}
	defer firebase.Close()

	// Object storage
	bucketService, err := gcp.NewBucketService(ctx, log)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}

	// Repos
	log.Info("Setting up repos from main...")
	userRepo := repos.NewUserRepo(firebase.Firestore, log)
	sessionRepo := repos.NewSessionRepo(firebase.Firestore, log)
	projectRepo := repos.NewProjectRepo(firebase.Firestore, log)

	// Services
	log.Info("Setting up services from main...")
	geminiClient, err := services.NewGeminiClient(log)
	if err != nil {
		log.Error("Could not init GeminiClient", "error", err)
		os.Exit(1)
	}
	imageService := services.NewImageService(log)
	letterhead := services.NewLetterheadRenderer(log)
	artifactBuilder := services.NewArtifactBuilder(log, letterhead, time.Now)
	sessionService := services.NewSessionService(log, sessionRepo)
	generateService := services.NewGenerateService(log, geminiClient)
	finalizeService := services.NewFinalizeService(log, geminiClient, artifactBuilder, bucketService, sessionRepo, projectRepo)

	// Handlers
	log.Info("Setting up handlers from main...")
	userHandler := handlers.NewUserHandler(log, userRepo)
	sessionHandler := handlers.NewSessionHandler(log, sessionService, imageService)
	generateHandler := handlers.NewGenerateHandler(log, sessionService, generateService)
	finalizeHandler := handlers.NewFinalizeHandler(log, finalizeService)
	projectHandler := handlers.NewProjectHandler(log, projectRepo, sessionService, finalizeService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, firebase.Auth)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:  authMiddleware,
		UserHandler:     userHandler,
		SessionHandler:  sessionHandler,
		GenerateHandler: generateHandler,
		FinalizeHandler: finalizeHandler,
		ProjectHandler:  projectHandler,
		AllowedOrigins:  os.Getenv("CORS_ALLOWED_ORIGINS"),
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
