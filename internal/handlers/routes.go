package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{DatabaseReady: deps.DatabaseReady}
	authn := AuthHandler{
		Users:        deps.Users,
		Auth:         deps.Auth,
		Sessions:     deps.Sessions,
		Limiter:      deps.AuthLimiter,
		CookieSecure: deps.CookieSecure,
	}
	videos := VideoHandler{Videos: deps.Videos, Sessions: deps.Sessions}
	upload := UploadHandler{
		Issuer:         deps.Uploads,
		Sessions:       deps.Sessions,
		RequireSession: deps.UploadRequireSession,
		Store:          deps.Objects,
		MaxSizeBytes:   deps.UploadMaxBytes,
	}
	pages := PageHandler{Videos: deps.Videos, Sessions: deps.Sessions, Providers: deps.Providers}

	mux.HandleFunc("/healthz", health.Handle)
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}

	mux.HandleFunc("/api/auth/register", authn.Register)
	mux.HandleFunc("/api/auth/login", authn.Login)
	mux.HandleFunc("/api/auth/logout", authn.Logout)
	mux.HandleFunc("/api/auth/session", authn.Session)
	mux.HandleFunc("/api/auth/oauth/{provider}", authn.OAuthStart)
	mux.HandleFunc("/api/auth/oauth/{provider}/callback", authn.OAuthCallback)

	mux.HandleFunc("/api/videos", videos.List)
	mux.HandleFunc("/api/auth/video", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			videos.Create(w, r)
			return
		}
		videos.List(w, r)
	})

	mux.HandleFunc("/api/auth/imagekit-auth", upload.Credentials)
	mux.HandleFunc("/api/uploads", upload.Relay)

	mux.HandleFunc("/{$}", pages.Home)
	mux.HandleFunc("/login", pages.Login)
	mux.HandleFunc("/register", pages.Register)
	mux.HandleFunc("/upload", pages.Upload)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users    UserStore
	Videos   VideoStore
	Auth     Authenticator
	Sessions SessionCookies

	AuthLimiter  RateLimiter
	CookieSecure bool
	Providers    []string

	Uploads              CredentialIssuer
	Objects              ObjectStore
	UploadRequireSession bool
	UploadMaxBytes       int64

	DatabaseReady func() bool
	Metrics       http.Handler
}
