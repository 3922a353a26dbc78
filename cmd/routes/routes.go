package routes

import (
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/grovia/settlement/internal/auth"
	"github.com/grovia/settlement/internal/cart"
	"github.com/grovia/settlement/internal/checkout"
	"github.com/grovia/settlement/internal/middleware"
	"github.com/grovia/settlement/internal/notification"
	"github.com/grovia/settlement/internal/paystack"
	"github.com/grovia/settlement/internal/referral"
	"github.com/grovia/settlement/internal/user"
	"github.com/grovia/settlement/internal/wallet"
	"github.com/grovia/settlement/internal/webhook"
	"github.com/grovia/settlement/pkg/config"
	"github.com/grovia/settlement/pkg/database"
	"github.com/grovia/settlement/pkg/events"
	"github.com/grovia/settlement/pkg/id"
	"github.com/grovia/settlement/pkg/logger"
)

func RegisterRoutes(r *mux.Router, cfg config.Config, redisClient *events.RedisClient) http.Handler {
	userRepo := user.NewRepository(database.DB)
	cartRepo := cart.NewRepository(database.DB)
	walletRepo := wallet.NewRepository(database.DB)
	checkoutRepo := checkout.NewRepository(database.DB)
	referralRepo := referral.NewRepository(database.DB)
	notificationRepo := notification.NewRepository(database.DB)

	gateway := paystack.NewClient(cfg)
	notifier := notification.NewNotifier(redisClient)
	refs := id.NewGenerator()

	walletService := wallet.NewService(cfg, walletRepo, gateway, notifier, refs)
	referralService := referral.NewService(cfg, referralRepo, userRepo, checkoutRepo, notifier, refs)
	checkoutService := checkout.NewService(cfg, checkoutRepo, cartRepo, gateway, referralService, notifier, refs)

	cartHandler := cart.NewHandler(cartRepo)
	walletHandler := wallet.NewHandler(walletService)
	checkoutHandler := checkout.NewHandler(checkoutService)
	referralHandler := referral.NewHandler(referralService)
	notificationHandler := notification.NewHandler(notificationRepo)
	webhookHandler := webhook.NewHandler(gateway, checkoutService, walletService, checkoutRepo, walletRepo)

	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.NewRateLimiterFromConfig(cfg).Limit)

	// webhooks are authenticated by signature, not by JWT
	r.HandleFunc("/api/webhooks/paystack", webhookHandler.HandlePaystack).Methods("POST")

	authed := r.PathPrefix("/api").Subrouter()
	authed.Use(auth.JWTMiddleware(cfg, userRepo))

	authed.HandleFunc("/cart", cartHandler.GetCart).Methods("GET")
	authed.HandleFunc("/cart", cartHandler.ClearCart).Methods("DELETE")
	authed.HandleFunc("/cart/items", cartHandler.UpsertItem).Methods("POST")

	authed.HandleFunc("/checkout", checkoutHandler.Checkout).Methods("POST")
	authed.HandleFunc("/checkout/verify/{reference}", checkoutHandler.VerifyPayment).Methods("GET")

	authed.HandleFunc("/wallet/balance", walletHandler.GetBalance).Methods("GET")
	authed.HandleFunc("/wallet/deposit", walletHandler.InitializeDeposit).Methods("POST")
	authed.HandleFunc("/wallet/deposit/verify/{reference}", walletHandler.VerifyDeposit).Methods("GET")
	authed.HandleFunc("/wallet/banks", walletHandler.ListBanks).Methods("GET")
	authed.HandleFunc("/wallet/banks/resolve", walletHandler.ResolveAccount).Methods("POST")
	authed.HandleFunc("/wallet/withdraw", walletHandler.Withdraw).Methods("POST")
	authed.HandleFunc("/wallet/transactions", walletHandler.GetTransactions).Methods("GET")

	authed.HandleFunc("/referrals/summary", referralHandler.GetSummary).Methods("GET")
	authed.HandleFunc("/referrals/code", referralHandler.GetReferralCode).Methods("GET")
	authed.HandleFunc("/referrals/lookup/{code}", referralHandler.LookupCode).Methods("GET")

	authed.HandleFunc("/notifications", notificationHandler.ListNotifications).Methods("GET")

	if cfg.Env != "production" {
		r.HandleFunc("/swagger.yaml", func(w http.ResponseWriter, r *http.Request) {
			content, err := os.ReadFile("docs/swagger.yaml")
			if err != nil {
				logger.Error("Failed to read swagger.yaml", logger.Fields{"error": err.Error()})
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			modifiedContent := strings.Replace(string(content), "{{BASE_URL}}", "/", -1)

			w.Header().Set("Content-Type", "application/yaml")
			w.Write([]byte(modifiedContent))
		})

		r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
			httpSwagger.URL("/swagger.yaml"),
		))
		logger.Info("Swagger documentation enabled at /swagger/index.html")
	}

	corsObj := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Idempotency-Key"}),
	)

	return corsObj(r)
}
