// Command embedclient queries a running semembed gRPC front. With no
// arguments it lists the loaded models; otherwise each argument is
// embedded and its dimensions and leading values are printed.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	embeddinggrpc "semembed/embedding/grpc"
)

const (
	defaultAddress = "localhost:50051"
	callTimeout    = 30 * time.Second
	previewValues  = 4
)

func main() {
	address := os.Getenv("SEMEMBED_GRPC_ADDR")
	if address == "" {
		address = defaultAddress
	}
	model := os.Getenv("SEMEMBED_MODEL")

	client, err := embeddinggrpc.NewClient(address, model)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	texts := os.Args[1:]
	if len(texts) == 0 {
		models, err := client.Models(ctx)
		if err != nil {
			log.Fatalf("Failed to list models: %v", err)
		}
		for _, m := range models {
			fmt.Println(m)
		}
		return
	}

	vecs, err := client.Embed(ctx, texts)
	if err != nil {
		log.Fatalf("Failed to embed: %v", err)
	}
	for i, v := range vecs {
		n := min(previewValues, len(v))
		fmt.Printf("[%d] dims=%d tokens=%d %v...\n", i, len(v), client.TokenCount(texts[i]), v[:n])
	}
}
