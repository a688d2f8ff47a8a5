// Command authdemo wires the full session client against a backend and
// exposes a small command surface for manual testing:
//
//	authdemo login <email> <password>
//	authdemo profile
//	authdemo logout
//	authdemo social-url <provider>
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/notify"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/jrsteele09/go-auth-client/social"
	"github.com/jrsteele09/go-auth-client/social/attemptrepo"
	"github.com/jrsteele09/go-auth-client/transport"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("authdemo failed")
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	displayAppname("Auth Client")

	ctx := context.Background()
	notifier := notify.New(notify.WithLogger(log.Logger))
	service, broker, err := wire(ctx, cfg, notifier)
	if err != nil {
		return err
	}

	unsubscribe := notifier.Subscribe(func() {
		log.Info().Msg("session changed")
	})
	defer unsubscribe()

	return dispatch(ctx, service, broker, os.Args[1:])
}

// wire builds the dependency graph: store (redis or memory) behind the
// notifier, plain and bearer-authenticated backend clients, the single-flight
// refresh coordinator, the gateway and the social broker.
func wire(ctx context.Context, cfg config.Config, notifier *notify.Notifier) (*auth.Service, *social.Broker, error) {

	var inner credentials.Store = credentials.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		inner = credentials.NewRedisStore(rdb, cfg.RedisKeyPrefix)
	}
	store := credentials.NewNotifyingStore(inner, notifier)

	api := backend.New(cfg.BackendURL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		backend.WithLogger(log.Logger),
	)

	coordinator, err := refresh.NewCoordinator(store, api, refresh.WithLogger(log.Logger))
	if err != nil {
		return nil, nil, err
	}

	bearer, err := transport.New(store, coordinator, transport.WithRefreshSkew(cfg.RefreshSkew))
	if err != nil {
		return nil, nil, err
	}
	authedAPI := backend.New(cfg.BackendURL,
		backend.WithHTTPClient(&http.Client{Transport: bearer, Timeout: cfg.RequestTimeout}),
		backend.WithLogger(log.Logger),
	)

	service, err := auth.NewService(auth.Deps{
		Store:   store,
		API:     api,
		Profile: authedAPI,
	}, auth.WithLogger(log.Logger))
	if err != nil {
		return nil, nil, err
	}

	providers, err := social.DefaultProviders(ctx,
		social.Credentials(cfg.Google),
		social.Credentials(cfg.GitHub),
		social.Credentials(cfg.VK),
	)
	if err != nil {
		return nil, nil, err
	}

	broker, err := social.NewBroker(providers, attemptrepo.NewInMemoryRepo(), service,
		social.WithAttemptTTL(cfg.AttemptTTL),
		social.WithLogger(log.Logger),
	)
	if err != nil {
		return nil, nil, err
	}

	return service, broker, nil
}

func dispatch(ctx context.Context, service *auth.Service, broker *social.Broker, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: authdemo <login|profile|logout|social-url> [args]")
	}

	switch args[0] {
	case "login":
		if len(args) != 3 {
			return errors.New("usage: authdemo login <email> <password>")
		}
		session, err := service.Login(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s (%s)\n", session.Identity.Username, session.Identity.Email)
	case "profile":
		identity, err := service.Profile(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s <%s> admin=%v\n", identity.Username, identity.Email, identity.IsAdmin)
	case "logout":
		if err := service.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("logged out")
	case "social-url":
		if len(args) != 2 {
			return errors.New("usage: authdemo social-url <google|github|vk>")
		}
		url, err := broker.Start(ctx, social.ProviderID(args[1]))
		if err != nil {
			return err
		}
		fmt.Println(url)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
