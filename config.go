package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds runtime settings sourced from the environment.
type Config struct {
	DatabaseURL string
	JWTSecret   []byte
	HiveAPIKey  string
	Port        string
	Env         string
}

func loadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		HiveAPIKey:  os.Getenv("HIVE_API_KEY"),
		Port:        os.Getenv("PORT"),
		Env:         os.Getenv("GO_ENV"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "user=admin password=password dbname=kindreddb sslmode=disable"
		log.Println("Warning: DATABASE_URL not set, using default connection string")
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = []byte(secret)
	} else {
		cfg.JWTSecret = []byte("your_secret_key_please_change_in_production")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	return cfg
}
