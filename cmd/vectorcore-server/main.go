// Command vectorcore-server serves the Cluster Manager behind a gRPC
// listener, modeled on platform/store-core/cmd/store-server/main.go:
// env-driven construction of each subsystem and a health server. Any
// subsystem that fails to initialise stops the process.
package main

import (
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nucleus/vectorcore/pkg/clustermanager"
	"github.com/nucleus/vectorcore/pkg/clustermanager/clustermanagerpb"
	"github.com/nucleus/vectorcore/pkg/core"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

func main() {
	addr := getenv("VECTORCORE_GRPC_ADDR", ":9199")

	cfg := core.DefaultConfig()
	cfg.ClusterManager.NumClusters = getenvInt("VECTORCORE_NUM_CLUSTERS", cfg.ClusterManager.NumClusters)
	cfg.ClusterManager.Dimension = getenvInt("VECTORCORE_DIMENSION", cfg.ClusterManager.Dimension)
	if metric := os.Getenv("VECTORCORE_DISTANCE_METRIC"); metric != "" {
		cfg.ClusterManager.DistanceMetric = vectortypes.DistanceMetric(metric)
	}

	c, err := core.NewFromEnv(cfg)
	if err != nil {
		log.Fatalf("core init: %v", err)
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	grpcServer := grpc.NewServer()
	clustermanagerpb.RegisterClusterManagerServiceServer(grpcServer, clustermanager.NewGRPCServer(c.Clusters))

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	go runMigrationLoop(c)

	log.Printf("vectorcore gRPC listening on %s (clusters=%d dim=%d)", addr, cfg.ClusterManager.NumClusters, cfg.ClusterManager.Dimension)
	if err := grpcServer.Serve(lis); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

// runMigrationLoop only logs that no Temporal worker is attached to this
// process; it runs no migration sweep itself. Sweeps run when a Temporal
// worker schedules migration.Activities.EvaluateAndMigrate (see
// SPEC_FULL.md's DOMAIN STACK table).
func runMigrationLoop(c *core.Core) {
	if os.Getenv("VECTORCORE_DISABLE_LOCAL_MIGRATION_LOOP") != "" {
		return
	}
	log.Printf("migration sweep loop: no Temporal worker configured, no in-process sweep is run")
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
