package main

import (
	"context"
	"net/http"
	"time"

	"relove-be/internal/address"
	"relove-be/internal/api"
	"relove-be/internal/auth"
	"relove-be/internal/cache"
	"relove-be/internal/catalog"
	"relove-be/internal/config"
	"relove-be/internal/db"
	"relove-be/internal/logger"
	"relove-be/internal/notify"
	"relove-be/internal/order"
	"relove-be/internal/payment"
	"relove-be/internal/pricing"
	"relove-be/internal/tax"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := db.InitDB(cfg)
	defer database.Close()

	redis := cache.NewClient(cfg.RedisAddr)
	defer redis.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redis.Ping(ctx); err != nil {
			logger.L().Warn("redis unreachable, cache tasks will fail", zap.Error(err))
		}
		cancel()
	}

	catalogRepo := catalog.NewRepository(database)
	addressRepo := address.NewRepository(database)
	orderRepo := order.NewRepository(database)
	notifyRepo := notify.NewRepository(database)

	taxCalc := tax.NewStripeTax(cfg.StripeSecretKey)
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey)
	pricer := pricing.NewResolver(catalogRepo, taxCalc)

	orderTokens := auth.NewOrderTokenIssuer(cfg.OrderTokenKey)
	sessions := auth.NewSessionVerifier(cfg.OrderTokenKey)

	emailSender := notify.NewResendSender(cfg.EmailAPIKey, cfg.EmailFrom)

	tasks := []order.PostPaidTask{
		order.PaidEventTask(orderRepo),
		notify.AddressSnapshotTask(addressRepo),
		notify.ConfirmationEmailTask(orderRepo, emailSender, cfg.SiteURL, orderTokens),
		notify.AdminNotifyTask(notifyRepo, orderRepo),
		notify.PickupChatTask(notifyRepo, orderRepo),
		cache.InvalidateProductsTask(redis),
	}

	orderSvc := order.NewService(
		orderRepo,
		catalogRepo,
		pricer,
		gateway,
		orderTokens,
		tasks,
		notify.NewRefundEmailNotifier(emailSender),
	)

	handler := api.NewHandler(orderSvc)
	router := api.NewRouter(handler, sessions, database)

	addr := ":" + cfg.AppPort
	logger.L().Info("checkout server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, router); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}
