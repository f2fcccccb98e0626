// Program duplexrpc-server runs a duplexrpc server that exposes the
// conventional "echo" method plus a small "Math" service, and answers the
// reserved "broadcast" method on every connection it accepts.
//
// Usage:
//
//	go build github.com/airyai/duplexrpc/cmd/duplexrpc-server
//	./duplexrpc-server -addr localhost:8080
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"

	"github.com/airyai/duplexrpc"
	"github.com/airyai/duplexrpc/code"
	"github.com/airyai/duplexrpc/handler"
)

var (
	addr        = flag.String("addr", "localhost:8080", "Address to listen on")
	maxTasks    = flag.Int64("max", 0, "Maximum concurrent inbound requests per session (0 = unbounded)")
	certFile    = flag.String("cert", "", "TLS certificate file (enables TLS if set, along with -key)")
	keyFile     = flag.String("key", "", "TLS private key file")
	clientCA    = flag.String("client-ca", "", "PEM file of CAs to require and verify client certificates against")
)

type math struct{}

type binop struct{ X, Y int }

func (math) Add(ctx context.Context, vs []int) (int, error) {
	sum := 0
	for _, v := range vs {
		sum += v
	}
	return sum, nil
}

func (math) Sub(ctx context.Context, arg binop) (int, error) { return arg.X - arg.Y, nil }
func (math) Mul(ctx context.Context, arg binop) (int, error) { return arg.X * arg.Y, nil }

func (math) Div(ctx context.Context, arg binop) (float64, error) {
	if arg.Y == 0 {
		return 0, duplexrpc.Faultf(code.InvalidParams, "zero divisor")
	}
	return float64(arg.X) / float64(arg.Y), nil
}

func mathAssigner() duplexrpc.Assigner {
	return handler.Map{
		"Add": handler.New(math{}.Add),
		"Sub": handler.New(math{}.Sub),
		"Mul": handler.New(math{}.Mul),
		"Div": handler.New(math{}.Div),
	}
}

func loadTLSConfig() *tls.Config {
	if *certFile == "" && *keyFile == "" && *clientCA == "" {
		return nil
	}
	if *certFile == "" || *keyFile == "" {
		log.Fatal("both -cert and -key are required to enable TLS")
	}
	cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
	if err != nil {
		log.Fatalf("loading certificate: %v", err)
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	if *clientCA != "" {
		pem, err := os.ReadFile(*clientCA)
		if err != nil {
			log.Fatalf("reading client CA: %v", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			log.Fatal("no certificates found in -client-ca file")
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg
}

func main() {
	flag.Parse()

	mux := handler.ServiceMap{"Math": mathAssigner()}
	tlsConfig := loadTLSConfig()

	lst, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("Listen: %v", err)
	}
	if tlsConfig != nil {
		fmt.Printf("listening with TLS at %v\n", lst.Addr())
	} else {
		fmt.Printf("listening at %v\n", lst.Addr())
	}

	srv := duplexrpc.NewServer(mux, &duplexrpc.ServerOptions{
		Logger:      duplexrpc.StdLogger(log.New(os.Stderr, "[duplexrpc.Server] ", log.LstdFlags)),
		Concurrency: *maxTasks,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		cancel()
	}()

	if err := srv.Serve(ctx, lst, tlsConfig); err != nil {
		select {
		case <-ctx.Done():
			// Expected: the listener was closed by signal handling above.
		default:
			log.Fatalf("Serve: %v", err)
		}
	}
}
