package coordinator

import (
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xushiwei/tfs/pkg/rpc"
)

func dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()), rpc.DialOption())
}

// dataNodePool lazily dials and caches one DataNodeClient per storage
// node address, reused across plan dispatch and compaction-ratio polls
// rather than dialing fresh for every RPC.
type dataNodePool struct {
	mu      sync.Mutex
	clients map[string]*rpc.DataNodeClient
}

func newDataNodePool() *dataNodePool {
	return &dataNodePool{clients: make(map[string]*rpc.DataNodeClient)}
}

func (p *dataNodePool) get(addr string) (*rpc.DataNodeClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[addr]; ok {
		return c, nil
	}
	cc, err := dial(addr)
	if err != nil {
		return nil, err
	}
	c := rpc.NewDataNodeClient(cc)
	p.clients[addr] = c
	return c, nil
}
