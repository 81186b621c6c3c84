// sessionctl is the operator tool for the session manager: it validates the
// account configuration, inspects the token cache, and prints guard codes.
// The session pool itself is a library embedded by the host process.
package main

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/jrsteele09/go-steam-sessions/accounts"
	"github.com/jrsteele09/go-steam-sessions/guard"
	"github.com/jrsteele09/go-steam-sessions/internal/config"
	"github.com/jrsteele09/go-steam-sessions/internal/logging"
	"github.com/jrsteele09/go-steam-sessions/tokencache"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("Error: %s\n", err)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log)

	if len(args) == 0 {
		displayAppname(cfg.AppName)
		usage()
		return nil
	}

	switch args[0] {
	case "validate":
		return validateAccounts(cfg, logger)
	case "tokens":
		return showTokens(cfg, logger)
	case "code":
		if len(args) < 2 {
			return errors.New("usage: sessionctl code <steam_username>")
		}
		return showGuardCode(cfg, logger, args[1])
	default:
		usage()
		return errors.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Println("Commands:")
	fmt.Println("  validate            Load and validate the account configuration")
	fmt.Println("  tokens              Show cached token status for every account")
	fmt.Println("  code <username>     Print the current guard code for an account")
}

func validateAccounts(cfg *config.Config, logger zerolog.Logger) error {
	registry, err := accounts.LoadFile(afero.NewOsFs(), cfg.AccountFile, cfg.MaxAccounts, logger)
	if err != nil {
		return err
	}

	for _, account := range registry.List() {
		status := "enabled"
		if !account.Enabled {
			status = "disabled"
		}
		identity := account.SteamID
		if identity == "" {
			identity = "(assigned after first login)"
		}
		fmt.Printf("%-20s %-20s %-35s %s\n", account.Name, account.SteamUsername, identity, status)
	}
	fmt.Printf("\nConfiguration OK: %d account(s)\n", len(registry.List()))
	return nil
}

func showTokens(cfg *config.Config, logger zerolog.Logger) error {
	registry, err := accounts.LoadFile(afero.NewOsFs(), cfg.AccountFile, cfg.MaxAccounts, logger)
	if err != nil {
		return err
	}

	cache, err := newTokenCache(cfg, logger)
	if err != nil {
		return err
	}

	for _, account := range registry.List() {
		record, err := cache.Load(account.SteamUsername)
		if err != nil {
			fmt.Printf("%-20s no cached tokens\n", account.SteamUsername)
			continue
		}
		fmt.Printf("%-20s access %s, refresh %s\n",
			account.SteamUsername,
			describeExpiry(record.AccessTokenExp),
			describeExpiry(record.RefreshTokenExp))
	}
	return nil
}

func showGuardCode(cfg *config.Config, logger zerolog.Logger, username string) error {
	registry, err := accounts.LoadFile(afero.NewOsFs(), cfg.AccountFile, cfg.MaxAccounts, logger)
	if err != nil {
		return err
	}

	account, err := registry.GetByUsername(username)
	if err != nil {
		return err
	}

	code, err := guard.Code(account.SharedSecret)
	if err != nil {
		return err
	}
	fmt.Println(code)
	return nil
}

func newTokenCache(cfg *config.Config, logger zerolog.Logger) (tokencache.Repo, error) {
	if cfg.CacheBackend == config.CacheBackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return tokencache.NewRedisRepo(client, logger), nil
	}
	return tokencache.NewFileRepo(afero.NewOsFs(), cfg.SessionFolder(), logger)
}

func describeExpiry(exp time.Time) string {
	if exp.IsZero() {
		return "expiry unknown"
	}
	remaining := time.Until(exp)
	if remaining <= 0 {
		return fmt.Sprintf("expired %s", exp.Format(time.DateTime))
	}
	return fmt.Sprintf("valid until %s (%s left)", exp.Format(time.DateTime), remaining.Round(time.Minute))
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
