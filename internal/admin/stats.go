package admin

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/matst80/unirelay/internal/obs"
	"github.com/matst80/unirelay/internal/proto"
)

func collectStatus(ctx context.Context, st RelayState, version string) proto.Status {
	local := st.ActiveConnectionCount()
	cluster, err := st.ClusterConnectionCount(ctx)
	if err != nil {
		obs.Error("admin.cluster_count", obs.Fields{"err": err.Error()})
		cluster = local
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return proto.Status{
		Status:             "running",
		UUID:               st.Identifier(),
		Connections:        local,
		ClusterConnections: cluster,
		Uptime:             int64(st.Uptime().Seconds()),
		// Sys is memory obtained from the OS by the runtime, the closest portable figure to RSS
		Memory: proto.Memory{
			RSS:      megabytes(ms.Sys),
			HeapUsed: megabytes(ms.HeapAlloc),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version,
	}
}

func megabytes(n uint64) string {
	return fmt.Sprintf("%d MB", n/1024/1024)
}
