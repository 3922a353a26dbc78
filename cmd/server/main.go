package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"

	"github.com/grovia/settlement/cmd/routes"
	"github.com/grovia/settlement/internal/cart"
	"github.com/grovia/settlement/internal/checkout"
	"github.com/grovia/settlement/internal/notification"
	"github.com/grovia/settlement/internal/referral"
	"github.com/grovia/settlement/internal/user"
	"github.com/grovia/settlement/internal/wallet"
	"github.com/grovia/settlement/pkg/config"
	"github.com/grovia/settlement/pkg/database"
	"github.com/grovia/settlement/pkg/events"
	"github.com/grovia/settlement/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	database.Connect(cfg.DBUrl)
	database.Migrate(
		&user.User{},
		&cart.CartItem{},
		&checkout.Order{},
		&checkout.OrderItem{},
		&checkout.PaymentTransaction{},
		&wallet.WalletTransaction{},
		&wallet.WalletPaymentTransaction{},
		&referral.ReferralPayout{},
		&notification.UserNotification{},
	)

	redisClient := events.NewRedisClient(cfg)

	notificationRepo := notification.NewRepository(database.DB)
	worker := notification.NewWorker(notificationRepo, redisClient)
	worker.Start()

	r := mux.NewRouter()
	handler := routes.RegisterRoutes(r, cfg, redisClient)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Server starting", logger.Fields{"port": cfg.Port, "env": cfg.Env})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", logger.Fields{"port": cfg.Port, "error": err.Error()})
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	logger.Info("Server gracefully shut down")
}
