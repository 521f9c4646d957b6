package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ayo6706/campus-courier/internal/db"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func main() {
	command := flag.String("cmd", "up", "goose command: up, down, status, redo, reset, version")
	target := flag.String("to", "", "migrate up or down to this version instead of running -cmd")
	validate := flag.Bool("validate", false, "parse embedded migrations and exit")
	flag.Parse()

	if *validate {
		if err := db.ValidateMigrations(); err != nil {
			fail(err)
		}
		fmt.Println("migrations ok")
		return
	}

	_ = godotenv.Load()
	v := viper.New()
	_ = v.BindEnv("database_url", "DATABASE_URL", "CAMPUS_DATABASE_URL")
	dbURL := v.GetString("database_url")
	if dbURL == "" {
		fail(fmt.Errorf("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, dbURL)
	if err != nil {
		fail(err)
	}
	defer pool.Close()

	sqlDB := db.OpenSQL(pool)
	defer sqlDB.Close()

	if *target != "" {
		err = db.MigrateToVersion(ctx, sqlDB, *target)
	} else {
		err = db.Migrate(ctx, sqlDB, *command, flag.Args()...)
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
	os.Exit(1)
}
