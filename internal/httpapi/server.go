package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/zaytech/snapstore/internal/auth"
	"github.com/zaytech/snapstore/internal/commerce"
	"github.com/zaytech/snapstore/pkg/ledger"
)

const (
	claimsContextKey = "session_claims"

	messageExpiredToken       = "Invalid JWT token"
	messageInvalidSession     = "Invalid session"
	messageInvalidCredentials = "Invalid credentials"
	messageInvalidRefresh     = "Invalid refresh token"
)

// Run boots the dashboard API and blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context, cfg Config, service *commerce.Service, sessions *auth.Manager, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	router := NewRouter(cfg, service, sessions, logger)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("snapstore api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter assembles the gin engine with every dashboard route mounted.
func NewRouter(cfg Config, service *commerce.Service, sessions *auth.Manager, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		logger:   logger,
		service:  service,
		sessions: sessions,
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/sessions", handler.handleSignIn)
	router.POST("/sessions/refresh-token", handler.handleRefreshToken)

	authorized := router.Group("/")
	authorized.Use(handler.requireSession)

	authorized.GET("/sellers/me", handler.handleSellerProfile)

	authorized.GET("/clients", handler.handleListClients)
	authorized.POST("/clients", handler.handleCreateClient)

	authorized.GET("/products", handler.handleListProducts)
	authorized.POST("/products", handler.handleCreateProduct)
	authorized.PUT("/products", handler.handleUpdateProduct)
	authorized.DELETE("/products/:productId", handler.handleDeleteProduct)

	authorized.GET("/shop", handler.handleListShops)
	authorized.POST("/shop", handler.handleCreateShop)

	authorized.POST("/orders", handler.handleCreateOrder)
	authorized.POST("/credits", handler.handleCreateCredit)

	return router
}

type httpHandler struct {
	logger   *zap.Logger
	service  *commerce.Service
	sessions *auth.Manager
}

// requireSession validates the bearer token. Expired tokens get the exact
// message clients key their refresh flow on; every other failure is a
// generic rejection.
func (handler *httpHandler) requireSession(ctx *gin.Context) {
	header := ctx.GetHeader("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": messageInvalidSession})
		return
	}
	claims, err := handler.sessions.ValidateAccessToken(raw)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": messageExpiredToken})
			return
		}
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": messageInvalidSession})
		return
	}
	ctx.Set(claimsContextKey, claims)
	ctx.Next()
}

func getClaims(ctx *gin.Context) (auth.Claims, bool) {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return auth.Claims{}, false
	}
	claims, ok := claimsValue.(auth.Claims)
	return claims, ok
}

func (handler *httpHandler) handleSignIn(ctx *gin.Context) {
	var request credentialsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "expected JSON body"})
		return
	}
	seller, err := handler.service.GetSellerByUsername(ctx.Request.Context(), request.Username)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"message": messageInvalidCredentials})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(seller.PasswordHash), []byte(request.Password)); err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"message": messageInvalidCredentials})
		return
	}
	pair, err := handler.sessions.IssuePair(ctx.Request.Context(), seller.ID, seller.IsAdmin)
	if err != nil {
		handler.logger.Error("issue session failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"message": "session issue failed"})
		return
	}
	ctx.JSON(http.StatusOK, sessionResponse{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         sellerToPayload(seller),
	})
}

func (handler *httpHandler) handleRefreshToken(ctx *gin.Context) {
	var request refreshRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "expected JSON body"})
		return
	}
	sellerID, err := handler.sessions.Redeem(ctx.Request.Context(), request.RefreshToken)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"message": messageInvalidRefresh})
		return
	}
	seller, err := handler.service.GetSeller(ctx.Request.Context(), sellerID)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"message": messageInvalidRefresh})
		return
	}
	pair, err := handler.sessions.IssuePair(ctx.Request.Context(), seller.ID, seller.IsAdmin)
	if err != nil {
		handler.logger.Error("refresh session failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"message": "session issue failed"})
		return
	}
	ctx.JSON(http.StatusOK, tokenPairResponse{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (handler *httpHandler) handleSellerProfile(ctx *gin.Context) {
	claims, ok := getClaims(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"message": messageInvalidSession})
		return
	}
	seller, err := handler.service.GetSeller(ctx.Request.Context(), claims.SellerID)
	if err != nil {
		handler.respondCommerceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, sellerToPayload(seller))
}

func (handler *httpHandler) handleListClients(ctx *gin.Context) {
	if clientID := ctx.Query("clientId"); clientID != "" {
		client, err := handler.service.GetClient(ctx.Request.Context(), clientID)
		if err != nil {
			handler.respondCommerceError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, clientToPayload(client))
		return
	}
	if name := ctx.Query("name"); name != "" {
		clients, err := handler.service.SearchClients(ctx.Request.Context(), name)
		if err != nil {
			handler.respondCommerceError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, clientsToPayload(clients))
		return
	}
	clients, err := handler.service.ListClients(ctx.Request.Context())
	if err != nil {
		handler.respondCommerceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, clientsToPayload(clients))
}

func (handler *httpHandler) handleCreateClient(ctx *gin.Context) {
	var request createClientRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "expected JSON body"})
		return
	}
	client, err := handler.service.CreateClient(ctx.Request.Context(), request.Name)
	if err != nil {
		handler.respondCommerceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, clientToPayload(client))
}

func (handler *httpHandler) handleListProducts(ctx *gin.Context) {
	if slug := ctx.Query("productSlug"); slug != "" {
		product, err := handler.service.GetProductBySlug(ctx.Request.Context(), slug)
		if err != nil {
			handler.respondCommerceError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, productToPayload(product))
		return
	}
	if productID := ctx.Query("productId"); productID != "" {
		product, err := handler.service.GetProduct(ctx.Request.Context(), productID)
		if err != nil {
			handler.respondCommerceError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, productToPayload(product))
		return
	}
	products, err := handler.service.ListProducts(ctx.Request.Context())
	if err != nil {
		handler.respondCommerceError(ctx, err)
		return
	}
	payloads := make([]productPayload, 0, len(products))
	for _, product := range products {
		payloads = append(payloads, productToPayload(product))
	}
	ctx.JSON(http.StatusOK, payloads)
}

func (handler *httpHandler) handleCreateProduct(ctx *gin.Context) {
	var request createProductRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "expected JSON body"})
		return
	}
	product, err := handler.service.CreateProduct(ctx.Request.Context(), commerce.ProductInput{
		Name:       request.Name,
		Slug:       request.Slug,
		Category:   request.Category,
		PriceCents: ledger.AmountCents(request.Price),
		CostCents:  ledger.AmountCents(request.Cost),
		Amount:     request.Amount,
		Photos:     request.Photos,
	})
	if err != nil {
		handler.respondCommerceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, productToPayload(product))
}

func (handler *httpHandler) handleUpdateProduct(ctx *gin.Context) {
	var request updateProductRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "expected JSON body"})
		return
	}
	update := commerce.ProductUpdate{
		ID:       request.ID,
		Name:     request.Name,
		Category: request.Category,
		Amount:   request.Amount,
	}
	if request.Price != nil {
		price := ledger.AmountCents(*request.Price)
		update.PriceCents = &price
	}
	if request.Cost != nil {
		cost := ledger.AmountCents(*request.Cost)
		update.CostCents = &cost
	}
	product, err := handler.service.UpdateProduct(ctx.Request.Context(), update)
	if err != nil {
		handler.respondCommerceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, productToPayload(product))
}

func (handler *httpHandler) handleDeleteProduct(ctx *gin.Context) {
	if err := handler.service.DeleteProduct(ctx.Request.Context(), ctx.Param("productId")); err != nil {
		handler.respondCommerceError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleListShops(ctx *gin.Context) {
	shops, err := handler.service.ListShops(ctx.Request.Context())
	if err != nil {
		handler.respondCommerceError(ctx, err)
		return
	}
	payloads := make([]shopPayload, 0, len(shops))
	for _, shop := range shops {
		payloads = append(payloads, shopToPayload(shop))
	}
	ctx.JSON(http.StatusOK, payloads)
}

func (handler *httpHandler) handleCreateShop(ctx *gin.Context) {
	var request createShopRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "expected JSON body"})
		return
	}
	shop, err := handler.service.CreateShop(ctx.Request.Context(), commerce.ShopInput{
		ClientID:        request.ClientID,
		AmountPaidCents: ledger.AmountCents(request.AmountPaid),
		TypeOfPayment:   request.TypeOfPayment,
	})
	if err != nil {
		handler.respondCommerceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, shopToPayload(shop))
}

func (handler *httpHandler) handleCreateOrder(ctx *gin.Context) {
	var request createOrderRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "expected JSON body"})
		return
	}
	order, err := handler.service.AddOrder(ctx.Request.Context(), commerce.OrderInput{
		ShopID:    request.ShopID,
		ProductID: request.ProductID,
		Quantity:  request.Quantity,
	})
	if err != nil {
		handler.respondCommerceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, orderToPayload(order))
}

func (handler *httpHandler) handleCreateCredit(ctx *gin.Context) {
	var request createCreditRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "expected JSON body"})
		return
	}
	credit, err := handler.service.CreateCredit(ctx.Request.Context(), request.ClientID, ledger.AmountCents(request.Value))
	if err != nil {
		handler.respondCommerceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, creditToPayload(credit))
}

func (handler *httpHandler) respondCommerceError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, commerce.ErrUnknownClient),
		errors.Is(err, commerce.ErrUnknownProduct),
		errors.Is(err, commerce.ErrUnknownShop),
		errors.Is(err, commerce.ErrUnknownSeller):
		ctx.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	case errors.Is(err, commerce.ErrInvalidClientName),
		errors.Is(err, commerce.ErrInvalidProductName),
		errors.Is(err, commerce.ErrInvalidAmountCents),
		errors.Is(err, commerce.ErrInvalidQuantity):
		ctx.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, commerce.ErrSlugTaken),
		errors.Is(err, commerce.ErrInsufficientStock):
		ctx.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	default:
		handler.logger.Error("request failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}
