// Command gdrive-auth runs the OAuth consent flow once and prints the
// refresh token to put in GDRIVE_REFRESH_TOKEN.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"captionflow/internal/config"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/storage"
)

func main() {
	wait := flag.Duration("timeout", 3*time.Minute, "how long to wait for the browser callback")
	flag.Parse()

	log := logger.New(logger.Config{Level: "info", Format: "text", Output: os.Stderr})

	clientID := config.Env("GDRIVE_CLIENT_ID", "")
	clientSecret := config.Env("GDRIVE_CLIENT_SECRET", "")
	if clientID == "" || clientSecret == "" {
		log.LogFatal("missing credentials", errors.New("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET must be set"))
	}

	token, err := authorize(context.Background(), clientID, clientSecret, *wait)
	if err != nil {
		log.LogFatal("authorization failed", err)
	}
	if strings.TrimSpace(token.RefreshToken) == "" {
		fmt.Fprintln(os.Stderr, "No refresh token was returned. Revoke the app at https://myaccount.google.com/permissions and run again.")
		os.Exit(1)
	}
	fmt.Println(token.RefreshToken)
}

// authorize serves the redirect on a free loopback port and exchanges the
// returned code for a token.
func authorize(ctx context.Context, clientID, clientSecret string, wait time.Duration) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)
	conf := storage.OAuthConfig(clientID, clientSecret, redirectURL)
	state := randomState()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "invalid state", http.StatusBadRequest)
			errCh <- errors.New("invalid state")
		case q.Get("error") != "":
			http.Error(w, "auth error: "+q.Get("error"), http.StatusBadRequest)
			errCh <- fmt.Errorf("auth error: %s", q.Get("error"))
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			errCh <- errors.New("missing code")
		default:
			fmt.Fprintln(w, "Authorized. You can close this window.")
			codeCh <- q.Get("code")
		}
	})

	srv := &http.Server{Handler: mux, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n\n%s\n\nWaiting for the callback on %s\n", authURL, redirectURL)

	select {
	case code := <-codeCh:
		return conf.Exchange(ctx, code)
	case err := <-errCh:
		return nil, err
	case <-time.After(wait):
		return nil, errors.New("timed out waiting for authorization")
	}
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
