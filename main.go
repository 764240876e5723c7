package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/config"
	"github.com/mmfshirokan/PriceCompare/internal/consumer"
	"github.com/mmfshirokan/PriceCompare/internal/dates"
	"github.com/mmfshirokan/PriceCompare/internal/exchange"
	"github.com/mmfshirokan/PriceCompare/internal/handler"
	"github.com/mmfshirokan/PriceCompare/internal/llm"
	"github.com/mmfshirokan/PriceCompare/internal/repository"
	"github.com/mmfshirokan/PriceCompare/internal/rpc"
	"github.com/mmfshirokan/PriceCompare/internal/service"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

func main() {
	conf := config.New()
	conf.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, limiter, closeStore := storage(ctx, conf)
	defer closeStore()

	// one pooled client for the whole process
	httpClient := exchange.NewHTTPClient(conf.ConnectTimeout, conf.ReadTimeout, conf.RequestTimeout)
	okx := exchange.New(httpClient, conf.OkxBase)

	resolver := dates.NewResolver()
	registry := service.NewSymbolRegistry(cache, okx, conf.SymbolsTTL)
	fetcher := service.NewPriceFetcher(registry, okx, cache, resolver, service.FetcherOptions{
		CurrentTTL: conf.CurrentPriceTTL,
		HistoryTTL: conf.HistoryTTL,
		Retry: service.RetryPolicy{
			MaxAttempts:      conf.MaxAttempts,
			RateLimitBackoff: conf.RateLimitBackoff,
			RetryBackoff:     conf.RetryBackoff,
		},
	})
	comparator := service.NewComparator(fetcher, resolver, conf.PercentPrecision, time.Now)

	parser, responder := languageModel(conf, resolver)

	h := handler.New(comparator, parser, responder, cache)
	srv := &http.Server{
		Addr:              conf.HTTPAddr,
		Handler:           h.Router(conf.APIKeys, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go rpcServerStart(ctx, conf.RpcAddr, comparator)

	if conf.KafkaEnabled {
		cons := consumer.New(conf.KafkaURL, conf.KafkaRequestTopic, conf.KafkaResultTopic, conf.KafkaGroupID, conf.KafkaWorkers, comparator)
		go cons.Read(ctx)
	}

	go func() {
		log.Infof("http server listening on %s", conf.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("http server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http shutdown: %v", err)
	}
	httpClient.CloseIdleConnections()
}

// storage picks Redis when configured and reachable, otherwise the in-process
// cache with a per-process limiter.
func storage(ctx context.Context, conf config.Config) (repository.Cache, handler.Limiter, func()) {
	local := func() (repository.Cache, handler.Limiter, func()) {
		limiter := handler.NewLocalLimiter(conf.RateLimit, conf.RateWindow)
		limiter.StartCleanup(ctx, conf.RateWindow)

		return repository.NewMemory(time.Now), limiter, func() {}
	}

	if conf.RedisURL == "" {
		log.Info("REDIS_URL not set, using in-process cache")
		return local()
	}

	client, err := repository.NewClient(conf.RedisURL)
	if err != nil {
		log.Errorf("redis config: %v; using in-process cache", err)
		return local()
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warnf("redis unreachable: %v; using in-process cache", err)
		client.Close()
		return local()
	}

	cache := repository.NewRedis(client, conf.CachePrefix)
	limiter := handler.NewWindowLimiter(repository.NewRedisCounter(client, conf.CachePrefix), conf.RateLimit, conf.RateWindow)

	return cache, limiter, func() {
		if err := client.Close(); err != nil {
			log.Errorf("closing redis: %v", err)
		}
	}
}

func languageModel(conf config.Config, resolver dates.Resolver) (llm.Parser, llm.Responder) {
	if conf.LlmAPIToken == "" {
		log.Info("LLM_API_TOKEN not set, using the built-in parser and responder")
		return llm.NewStaticParser(resolver, time.Now), llm.NewStaticResponder()
	}

	client := llm.NewClient(conf.LlmBaseURL, conf.LlmAPIToken)

	return llm.NewParser(client, conf.LlmModel, resolver, time.Now), llm.NewResponder(client, conf.LlmModel)
}

func rpcServerStart(ctx context.Context, addr string, comparator service.Comparator) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Errorf("failed to listen: %v", err)
		return
	}

	rpcServer := grpc.NewServer()
	rpc.RegisterComparatorServer(rpcServer, rpc.NewComparatorServer(comparator))

	go func() {
		<-ctx.Done()
		rpcServer.GracefulStop()
	}()

	log.Infof("rpc server listening on %s", addr)
	if err := rpcServer.Serve(lis); err != nil {
		log.Errorf("rpc error: server stopped: %v", err)
	}
}
