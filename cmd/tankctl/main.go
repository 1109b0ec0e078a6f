package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	grpcAdapter "github.com/quentinrf/tank-monitor/internal/adapters/grpc"
	"github.com/quentinrf/tank-monitor/pkg/tlsconfig"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "tank monitor gRPC address")
	caFile := flag.String("ca", "", "CA certificate; enables TLS")
	certFile := flag.String("cert", "", "client certificate for mTLS")
	keyFile := flag.String("key", "", "client key for mTLS")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = func() {
		os.Stderr.WriteString("usage: tankctl [flags] report|series\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	what := "report"
	if flag.NArg() > 0 {
		what = flag.Arg(0)
	}

	creds := insecure.NewCredentials()
	if *caFile != "" {
		tlsCfg, err := tlsconfig.LoadClientTLS(*certFile, *keyFile, *caFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load TLS config")
		}
		creds = credentials.NewTLS(tlsCfg)
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("failed to create client")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := grpcAdapter.NewTankServiceClient(conn)
	var resp *structpb.Struct
	switch what {
	case "report":
		resp, err = client.GetReport(ctx, &emptypb.Empty{})
	case "series":
		resp, err = client.GetSeries(ctx, &emptypb.Empty{})
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("call", what).Msg("request failed")
	}

	out, err := protojson.MarshalOptions{Multiline: true, Indent: "    "}.Marshal(resp)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode response")
	}
	os.Stdout.Write(append(out, '\n'))
}
