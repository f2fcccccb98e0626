// Program duplexrpc-client is a small command-line client for exercising a
// duplexrpc server: it dials once, issues a single call or broadcast, prints
// the result, and exits.
//
// Usage:
//
//	go build github.com/airyai/duplexrpc/cmd/duplexrpc-client
//	./duplexrpc-client -addr localhost:8080 -method echo -params '["hi"]'
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/airyai/duplexrpc"
)

var (
	addr       = flag.String("addr", "localhost:8080", "Server address")
	method     = flag.String("method", "echo", "Method to call")
	params     = flag.String("params", "[]", "JSON array or object of parameters")
	broadcast  = flag.Bool("broadcast", false, "Issue the call as a broadcast")
	timeout    = flag.Duration("timeout", 10*time.Second, "Call timeout")
	caFile     = flag.String("ca", "", "PEM file of CAs to verify the server certificate against (enables TLS)")
	serverName = flag.String("server-name", "", "Expected server name for TLS verification")
)

func loadTLSConfig() *tls.Config {
	if *caFile == "" {
		return nil
	}
	pem, err := os.ReadFile(*caFile)
	if err != nil {
		log.Fatalf("reading CA file: %v", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		log.Fatal("no certificates found in -ca file")
	}
	return &tls.Config{RootCAs: pool, ServerName: *serverName}
}

func parseParams(raw string) ([]any, map[string]any) {
	var positional []any
	if err := json.Unmarshal([]byte(raw), &positional); err == nil {
		return positional, nil
	}
	var named map[string]any
	if err := json.Unmarshal([]byte(raw), &named); err == nil {
		return nil, named
	}
	log.Fatalf("-params must be a JSON array or object: %q", raw)
	return nil, nil
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := duplexrpc.Dial(ctx, "tcp", *addr, loadTLSConfig(), nil)
	if err != nil {
		log.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	positional, named := parseParams(*params)

	if *broadcast {
		count, err := client.Broadcast(ctx, *method, positional, named)
		if err != nil {
			log.Fatalf("Broadcast: %v", err)
		}
		fmt.Printf("delivered to %d recipient(s)\n", count)
		return
	}

	result, err := client.Call(ctx, *method, positional, named)
	if err != nil {
		log.Fatalf("Call: %v", err)
	}
	fmt.Println(string(result))
}
