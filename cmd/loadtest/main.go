package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	natsadapter "github.com/codewandler/cbridge-go/adapters/nats"
	promadapter "github.com/codewandler/cbridge-go/adapters/prometheus"
	"github.com/codewandler/cbridge-go/core/cluster"
	"github.com/codewandler/cbridge-go/core/sharding"
	"github.com/prometheus/client_golang/prometheus"
)

// === Config ===

// NOTE: run nats: docker run --net=host nats:latest

var (
	logLevel    = slog.LevelInfo
	N           = getEnvInt("N", 50_000)
	batchSize   = getEnvInt("B", 1_000)
	numEntities = getEnvInt("E", 100)
	numShards   = getEnvInt("SHARDS", 100)
	backendType = getEnv("BACKEND", "nats")
	maxActive   = getEnvInt("MAX_ACTIVE", 0)
)

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "0")
	if v == "" {
		return fallback
	}
	if v == "1" || strings.ToLower(v) == "true" {
		return true
	}
	return false
}

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

// === Domain ===

type hit struct {
	Amount int `json:"amount"`
}

type counterState struct {
	Total int
	Hits  int
}

func countHits(_ context.Context, e sharding.Entity[counterState], msg hit) error {
	s, _ := e.State()
	s.Total += msg.Amount
	s.Hits++
	e.SetState(s)
	return nil
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	fmt.Printf(" Backend: %s\n", backendType)
	fmt.Printf("Messages: %d over %d entities (%d shards)\n", N, numEntities, numShards)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	var tr cluster.Transport
	switch backendType {
	case "nats":
		var err error
		tr, err = natsadapter.NewTransport(natsadapter.TransportConfig{
			Connect:       natsadapter.ConnectDefault(),
			Log:           log,
			SubjectPrefix: "cbr.loadtest",
		})
		checkErr(err)
	default:
		tr = cluster.NewInMemoryTransport()
	}

	metrics := promadapter.NewAllMetrics(prometheus.NewRegistry())

	s, err := sharding.Start(ctx, sharding.Options{
		Name:              "loadtest",
		Transport:         tr,
		NumShards:         uint32(numShards),
		Log:               log,
		Metrics:           metrics.Sharding,
		MaxActiveEntities: maxActive,
	}, countHits)
	checkErr(err)

	// === START ===

	log.Info("==================================")
	log.Info("Starting ...")

	startAt := time.Now()
	lastTime := time.Now()

	for i := 0; i < N; i++ {
		id := fmt.Sprintf("entity-%d", i%numEntities)
		checkErr(s.Send(ctx, id, hit{Amount: 1}))

		if i == 0 {
			continue
		}
		if i%100 == 0 {
			print(".")
		}
		if i%batchSize == 0 {
			mu := getMemUsage()

			n := time.Now()
			took := n.Sub(lastTime)
			fmt.Printf(" | %5d msgs | %6d ms |  %6d msgs/s | (%d / %d) MiB mem (sys) |\n", batchSize, took.Milliseconds(), int(float64(batchSize)/took.Seconds()), mu.Alloc/1024/1024, mu.Sys/1024/1024)
			lastTime = n
		}
	}

	// === stats ===
	println("")
	println("==========================================")

	doneAt := time.Now()
	took := doneAt.Sub(startAt)
	runtime.GC()

	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("  avg. msgs/s: %d\n", int(float64(N)/took.Seconds()))
}

// === stats helpers ===

type MemUsage struct {
	Alloc      uint64 // bytes allocated and not yet freed (heap)
	TotalAlloc uint64 // cumulative bytes allocated
	Sys        uint64 // total bytes obtained from OS
	NumGC      uint32 // gc cycles
}

func getMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemUsage{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// === Helpers ===

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}
