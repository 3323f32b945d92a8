package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/avirag26/scholaro-api/internal/auth"
	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/catalog"
	"github.com/avirag26/scholaro-api/internal/checkout"
	"github.com/avirag26/scholaro-api/internal/common"
	"github.com/avirag26/scholaro-api/internal/config"
	"github.com/avirag26/scholaro-api/internal/coupon"
	"github.com/avirag26/scholaro-api/internal/health"
	"github.com/avirag26/scholaro-api/internal/obs"
	"github.com/avirag26/scholaro-api/internal/order"
	"github.com/avirag26/scholaro-api/internal/security"
	"github.com/avirag26/scholaro-api/internal/user"
)

type routerDeps struct {
	cfg         *config.Config
	logger      zerolog.Logger
	auth        auth.Middleware
	idem        common.Idem
	health      health.Handler
	couponLimit func(http.Handler) http.Handler

	catalog  *catalog.Handler
	cart     *cart.Handler
	coupon   *coupon.Handler
	order    *order.Handler
	checkout *checkout.Handler
	user     *user.Handler
}

func newRouter(d routerDeps) http.Handler {
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if d.cfg.Obs.TracingOn {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled {
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(metricsNamespace, nil, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.logger}.Middleware)
	r.Use(security.Headers{HSTSMaxAge: envInt("SECURE_HSTS_MAX_AGE", 0)}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("HTTP_MAX_BODY_BYTES", 1<<20))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(d.cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	r.Get("/health/live", d.health.Live)
	r.Get("/health/ready", d.health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(d.auth.Authenticate)
		v.Use(security.CSRF{SessionCookie: d.auth.AccessCookie}.Middleware)

		v.Get("/courses", d.catalog.Courses)
		v.Get("/courses/{id}", d.catalog.Course)

		// Gateway callbacks authenticate by signature, not by bearer token.
		v.Post("/payments/razorpay/webhook", d.order.RazorpayWebhook)

		v.Group(func(authR chi.Router) {
			authR.Use(d.auth.RequireAuth)

			authR.Get("/users/me", d.user.Me)

			authR.With(d.couponLimit).Post("/coupons/validate", d.coupon.Validate)

			authR.Route("/cart", func(c chi.Router) {
				c.Get("/", d.cart.Get)
				c.Post("/items", d.cart.AddItem)
				c.Delete("/items/{courseId}", d.cart.RemoveItem)
				c.Delete("/", d.cart.Clear)
				c.Post("/items/{courseId}/move-to-wishlist", d.cart.MoveToWishlist)
			})
			authR.Route("/wishlist", func(wl chi.Router) {
				wl.Get("/", d.cart.Wishlist)
				wl.Post("/items", d.cart.AddWishlist)
				wl.Delete("/items/{courseId}", d.cart.RemoveWishlist)
				wl.Post("/items/{courseId}/move-to-cart", d.cart.MoveToCart)
			})

			authR.Route("/checkout/sessions", d.checkout.Routes)

			authR.Route("/orders", func(o chi.Router) {
				o.Get("/", d.order.List)
				o.With(d.idem.Middleware).Post("/", d.order.Create)
				o.Post("/verify", d.order.Verify)
				o.Get("/{id}", d.order.Get)
				o.Post("/{id}/fail", d.order.Fail)
			})

			authR.Route("/tutor/coupons", func(tc chi.Router) {
				tc.Use(auth.RequireRole(common.RoleTutor))
				tc.Get("/", d.coupon.List)
				tc.Post("/", d.coupon.Create)
				tc.Patch("/{id}", d.coupon.Update)
				tc.Delete("/{id}", d.coupon.Deactivate)
			})
		})
	})

	return otelhttp.NewHandler(r, "http.server",
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/metrics" && req.URL.Path != "/health/live"
		}),
	)
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
