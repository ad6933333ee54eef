// Command server runs the launchkit HTTP service: the auth gate, the OAuth
// callback, the account flows and the checkout API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/launchkit/modules/account"
	"github.com/dmitrymomot/launchkit/modules/callback"
	"github.com/dmitrymomot/launchkit/modules/checkout"
	"github.com/dmitrymomot/launchkit/pkg/authstatus"
	"github.com/dmitrymomot/launchkit/pkg/billing"
	"github.com/dmitrymomot/launchkit/pkg/clientip"
	"github.com/dmitrymomot/launchkit/pkg/config"
	"github.com/dmitrymomot/launchkit/pkg/cookie"
	"github.com/dmitrymomot/launchkit/pkg/gate"
	"github.com/dmitrymomot/launchkit/pkg/httpserver"
	"github.com/dmitrymomot/launchkit/pkg/identity"
	"github.com/dmitrymomot/launchkit/pkg/linking"
	"github.com/dmitrymomot/launchkit/pkg/logger"
	"github.com/dmitrymomot/launchkit/pkg/pg"
	"github.com/dmitrymomot/launchkit/pkg/profile"
	"github.com/dmitrymomot/launchkit/pkg/provision"
	"github.com/dmitrymomot/launchkit/pkg/ratelimiter"
	"github.com/dmitrymomot/launchkit/pkg/redirect"
	"github.com/dmitrymomot/launchkit/pkg/redis"
	"github.com/dmitrymomot/launchkit/pkg/requestid"
	"github.com/dmitrymomot/launchkit/pkg/routes"
	"github.com/dmitrymomot/launchkit/pkg/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var app appConfig
	if err := config.Load(&app); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(app.Env, app.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor(), clientip.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	var (
		httpCfg      httpserver.Config
		idCfg        identity.Config
		cookieCfg    cookie.Config
		billingCfg   billing.Config
		linkingCfg   linking.Config
		limitCfg     ratelimiter.Config
		provisionCfg provision.Config
		pgCfg        pg.Config
		redisCfg     redis.Config
	)
	if err := errors.Join(
		config.Load(&httpCfg),
		config.Load(&idCfg),
		config.Load(&cookieCfg),
		config.Load(&billingCfg),
		config.Load(&linkingCfg),
		config.Load(&limitCfg),
		config.Load(&provisionCfg),
		config.Load(&pgCfg),
		config.Load(&redisCfg),
	); err != nil {
		return err
	}

	keys, err := secrets.NewKeyring(app.Secret)
	if err != nil {
		return err
	}
	cookies, err := cookie.NewFromConfig(cookieCfg, keys)
	if err != nil {
		return err
	}
	sessions := identity.NewSessionStore(cookies)

	idp, err := identity.NewGoTrue(idCfg)
	if err != nil {
		return err
	}

	redirects, err := redirect.New(
		redirect.WithBaseURL(app.BaseURL),
		redirect.WithLandingPath(app.LandingPath),
	)
	if err != nil {
		return err
	}

	var routeOpts []routes.Option
	if app.RoutesFile != "" {
		if routeOpts, err = routes.LoadFile(app.RoutesFile); err != nil {
			return err
		}
	}
	classifier, err := routes.New(routeOpts...)
	if err != nil {
		return err
	}

	checks := []httpserver.Check{{Name: "identity", Fn: idp.Ping}}
	var stopHooks []httpserver.StopHook

	// Redis is optional; without it linking tokens are single-use and rate
	// limits are counted per process.
	var (
		tokenStore linking.TokenStore
		limitStore ratelimiter.Store = ratelimiter.NewMemoryStore(0)
	)
	if redisCfg.ConnectionURL != "" {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		tokenStore = linking.NewRedisStore(client)
		limitStore = ratelimiter.NewRedisStore(client)
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
		stopHooks = append(stopHooks, closeRedis(client))
	}

	tokens, err := linking.NewTokens(keys.LinkingToken, tokenStore, linking.WithTTL(linkingCfg.TokenTTL))
	if err != nil {
		return err
	}
	linker := linking.NewResolver(idp, linking.WithResolverLogger(log))

	limiter, err := ratelimiter.NewBucket(limitStore, limitCfg)
	if err != nil {
		return err
	}

	// Billing is optional; checkout answers 503 and provisioning skips
	// customers when it is not configured.
	var payments billing.Provider
	if p, err := billing.New(billingCfg); err != nil {
		log.WarnContext(ctx, "billing disabled", logger.Component("billing"), logger.Error(err))
	} else {
		payments = p
	}

	runner := provision.NewRunner(
		provision.WithTimeout(provisionCfg.Timeout),
		provision.WithRunnerLogger(log),
	)
	provisionOpts := []provision.ServiceOption{provision.WithLogger(log)}

	// Postgres is optional; without it only the billing customer is provisioned.
	if pgCfg.ConnectionString != "" {
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return err
		}
		if err := profile.Migrate(ctx, pool, pgCfg.MigrationsTable, log); err != nil {
			pool.Close()
			return err
		}
		provisionOpts = append(provisionOpts, provision.WithProfiles(profile.NewStore(pool)))
		checks = append(checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
		stopHooks = append(stopHooks, func(context.Context) error {
			pool.Close()
			return nil
		})
	}
	provisioner := provision.NewService(payments, runner, provisionOpts...)

	resolver := authstatus.NewResolver(idp, sessions,
		authstatus.WithTimeout(idCfg.Timeout),
		authstatus.WithLogger(log),
	)
	dispatcher := gate.New(classifier, redirects, gate.Static(resolver), gate.WithLogger(log))

	upstream, err := newUpstream(app.UpstreamURL, log)
	if err != nil {
		return err
	}

	r := newRouter(routerConfig{
		log:    log,
		gate:   dispatcher.Middleware,
		checks: checks,
		limit: ratelimiter.Middleware(limiter,
			ratelimiter.Composite(ratelimiter.ByIP, ratelimiter.ByPath),
			ratelimiter.WithLimitHandler(tooManyAttempts(redirects)),
			ratelimiter.WithLogger(log),
		),
		throttled: []module{
			account.New(idp, idp, sessions, tokens, redirects,
				account.WithLogger(log),
				account.WithProvisioner(provisioner),
			),
		},
		modules: []module{
			callback.New(idp, sessions, linker, tokens, redirects,
				callback.WithLogger(log),
				callback.WithProvisioner(provisioner),
			),
			checkout.New(payments, idp, redirects,
				checkout.WithLogger(log),
				checkout.WithDefaultPrice(billingCfg.DefaultPriceID()),
				checkout.WithStatusResolver(resolver),
				checkout.WithCustomers(provisioner),
			),
		},
		upstream: upstream,
	})

	serverOpts := []httpserver.Option{
		httpserver.WithLogger(log),
		// Drain provisioning before closing the stores it writes to.
		httpserver.WithStopHook(runner.Wait),
	}
	for _, h := range stopHooks {
		serverOpts = append(serverOpts, httpserver.WithStopHook(h))
	}

	log.InfoContext(ctx, "starting server",
		logger.Component("server"),
		slog.String("addr", httpCfg.Addr),
		slog.Int("readiness_checks", len(checks)),
	)
	return httpserver.NewFromConfig(httpCfg, serverOpts...).Run(ctx, r)
}

// tooManyAttempts sends throttled form posts back to the login page.
func tooManyAttempts(redirects *redirect.Builder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := redirect.WithError(redirects.Login(redirects.CurrentURL(r)), account.MsgTooManyAttempts)
		http.Redirect(w, r, target.String(), http.StatusSeeOther)
	})
}

func closeRedis(client *goredis.Client) httpserver.StopHook {
	return func(context.Context) error {
		if err := client.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
		return nil
	}
}
