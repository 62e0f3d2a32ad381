// Command mockserver runs the mock chat-completion API for local demos:
//
//	go run ./scripts/mockserver --port 8080 --latency 200ms --fail-every 10 --fail-status 429
//	chatstress run --base-url http://localhost:8080 --api-key demo --model mock -c 5 -r 50
package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/pflag"

	"github.com/torosent/chatstress/internal/mockapi"
)

func main() {
	port := pflag.Int("port", 8080, "Listening port")
	var opts mockapi.Options
	pflag.DurationVar(&opts.Latency, "latency", 0, "Delay before every completion response")
	pflag.IntVar(&opts.FailEvery, "fail-every", 0, "Fail every Nth completion request (0 disables)")
	pflag.IntVar(&opts.FailStatus, "fail-status", http.StatusInternalServerError, "Status code for injected failures")
	pflag.StringVar(&opts.APIKey, "api-key", "", "Require this API key as a bearer token")
	pflag.StringVar(&opts.ClientID, "client-id", "", "Enable the OAuth2 token endpoint for this client id")
	pflag.StringVar(&opts.ClientSecret, "client-secret", "", "Client secret for the OAuth2 token endpoint")
	pflag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           mockapi.New(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("mock chat-completion API listening on %s%s", srv.Addr, mockapi.CompletionsPath)
	log.Fatal(srv.ListenAndServe())
}
