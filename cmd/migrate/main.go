package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"tradedash/internal/config"
	"tradedash/internal/database"
)

func main() {
	var (
		configPath     = flag.String("config", "configs/config.yaml", "path to config file")
		migrationsPath = flag.String("path", "migrations", "path to migration files")
		up             = flag.Bool("up", false, "apply all pending migrations")
		down           = flag.Bool("down", false, "roll back the most recent migration")
		version        = flag.Bool("version", false, "print the current migration version")
		force          = flag.Int("force", -1, "force the schema version without running migrations")
		help           = flag.Bool("help", false, "show usage")
	)
	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewConnection(&database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxOpen:  cfg.Database.MaxOpen,
		MaxIdle:  cfg.Database.MaxIdle,
		Timeout:  cfg.Database.Timeout,
	}, nil)
	if err != nil {
		logrus.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, *migrationsPath)
	if err != nil {
		logrus.Fatalf("failed to create migrator: %v", err)
	}

	switch {
	case *up:
		if err := migrator.Up(); err != nil {
			logrus.Fatalf("migration up failed: %v", err)
		}
		fmt.Println("migrations applied")
	case *down:
		if err := migrator.Down(); err != nil {
			logrus.Fatalf("migration down failed: %v", err)
		}
		fmt.Println("rolled back one migration")
	case *force >= 0:
		if err := migrator.Force(*force); err != nil {
			logrus.Fatalf("force version failed: %v", err)
		}
		fmt.Printf("schema version forced to %d\n", *force)
	case *version:
		v, err := migrator.Version()
		if err != nil {
			logrus.Fatalf("failed to read version: %v", err)
		}
		fmt.Printf("version: %d\n", v)
	default:
		flag.Usage()
		os.Exit(1)
	}
}
