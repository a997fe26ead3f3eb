package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"supermarket/config"
	"supermarket/internal/service"
	"supermarket/internal/store"
	"supermarket/internal/util"
)

func main() {
	addAdminCmd := flag.NewFlagSet("add-admin", flag.ExitOnError)
	email := addAdminCmd.String("email", "", "Email of the administrator")
	password := addAdminCmd.String("password", "", "Password of the administrator")
	firstName := addAdminCmd.String("first-name", "Store", "First name of the administrator")
	lastName := addAdminCmd.String("last-name", "Admin", "Last name of the administrator")

	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)

	if len(os.Args) < 2 {
		fmt.Println("expected 'migrate' or 'add-admin' subcommand")
		os.Exit(1)
	}

	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env, cfg.Log.File); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	switch os.Args[1] {
	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		db := openStore(cfg)
		defer db.Close()
		fmt.Println("Database migrated.")
	case "add-admin":
		addAdminCmd.Parse(os.Args[2:])
		if *email == "" || *password == "" {
			fmt.Println("email and password are required")
			addAdminCmd.PrintDefaults()
			os.Exit(1)
		}
		db := openStore(cfg)
		defer db.Close()

		accounts := service.NewAccountService(db, nil)
		user, err := accounts.EnsureAdmin(context.Background(), *firstName, *lastName, *email, *password)
		if err != nil {
			log.Fatalf("Failed to create administrator: %v", err)
		}
		fmt.Printf("Administrator '%s' ready (id %d).\n", user.Email, user.ID)
	default:
		fmt.Println("expected 'migrate' or 'add-admin' subcommand")
		os.Exit(1)
	}
}

// openStore connects and applies pending migrations so the CLI can run before the server
func openStore(cfg *config.Config) *store.Store {
	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Migrate(context.Background(), util.GetLogger()); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	return db
}
