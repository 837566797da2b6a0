// Package main is an operator CLI for merchant account management.
// Account creation and dashboard token minting are operator actions;
// there is no public signup endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stylemirror/tryon-api/internal/auth"
	"github.com/stylemirror/tryon-api/internal/config"
	"github.com/stylemirror/tryon-api/internal/crypto"
	"github.com/stylemirror/tryon-api/internal/database"
	"github.com/stylemirror/tryon-api/internal/logging"
	"github.com/stylemirror/tryon-api/internal/repository"
	"github.com/stylemirror/tryon-api/internal/service"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: tryon-admin <command> [flags]

commands:
  create-account -email <email>              create a merchant account
  issue-token    -account <id> -email <email> [-ttl 24h]
                                             mint a dashboard JWT`)
	os.Exit(2)
}

func main() {
	logger := logging.SetDefault()

	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create-account":
		fs := flag.NewFlagSet("create-account", flag.ExitOnError)
		email := fs.String("email", "", "merchant email")
		_ = fs.Parse(os.Args[2:])
		createAccount(cfg, *email)
	case "issue-token":
		fs := flag.NewFlagSet("issue-token", flag.ExitOnError)
		accountID := fs.String("account", "", "account ID")
		email := fs.String("email", "", "merchant email")
		ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
		_ = fs.Parse(os.Args[2:])
		issueToken(cfg, *accountID, *email, *ttl)
	default:
		usage()
	}
}

func createAccount(cfg *config.Config, email string) {
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		fatal("failed to connect to database", err)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, nil); err != nil {
		fatal("failed to run migrations", err)
	}

	repos := repository.NewRepositories(db)
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		fatal("failed to create encryptor", err)
	}
	storage, err := service.NewStorageService(cfg, nil)
	if err != nil {
		fatal("failed to create storage service", err)
	}
	accounts := service.NewAccountService(repos, encryptor, storage, nil)

	account, err := accounts.Register(context.Background(), email)
	if err != nil {
		fatal("failed to create account", err)
	}

	fmt.Printf("account_id: %s\n", account.ID)
	fmt.Printf("live_key:   %s\n", account.LiveKey)
	fmt.Printf("test_key:   %s\n", account.TestKey)
	fmt.Println("store the keys now; they are not shown again")
}

func issueToken(cfg *config.Config, accountID, email string, ttl time.Duration) {
	if accountID == "" {
		fatal("issue-token requires -account", nil)
	}
	token, err := auth.NewVerifier(cfg.JWTSecret).IssueToken(accountID, email, ttl)
	if err != nil {
		fatal("failed to issue token", err)
	}
	fmt.Println(token)
}

func fatal(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}
