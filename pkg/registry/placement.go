package registry

import (
	"sort"
	"sync"

	"github.com/xushiwei/tfs/pkg/types"
)

// placementTracker keeps a rolling average of reported load, the Go
// analogue of the original's calc_elect_seq_num_average: an
// exponential moving average used as the load-below-average term
// instead of a full registry scan on every placement decision.
type placementTracker struct {
	mu    sync.Mutex
	avg   float64
	ready bool
	alpha float64
}

func newPlacementTracker() *placementTracker {
	return &placementTracker{alpha: 0.2}
}

func (t *placementTracker) observe(load float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		t.avg = load
		t.ready = true
		return
	}
	t.avg = t.avg*(1-t.alpha) + load*t.alpha
}

func (t *placementTracker) average() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.avg
}

type scoredServer struct {
	server                 *types.ServerCollect
	capacityRemainingRatio float64
	belowAvgBlockCount     bool
	rackDiverse            bool
	belowAvgLoad           bool
}

// rank orders candidates by (capacity_remaining_ratio,
// block_count_below_average, rack_diversity, load_below_average)
// descending, each boolean term treated as 1/0, with a deterministic
// tie-break on server id.
func (t *placementTracker) rank(candidates []*types.ServerCollect, existingRacks map[string]bool, avgBlockCount float64) []*types.ServerCollect {
	avgLoad := t.average()

	scored := make([]scoredServer, 0, len(candidates))
	for _, sc := range candidates {
		scored = append(scored, scoredServer{
			server:                 sc,
			capacityRemainingRatio: sc.CapacityRemainingRatio(),
			belowAvgBlockCount:     float64(sc.BlockCount) < avgBlockCount,
			rackDiverse:            sc.Rack == "" || !existingRacks[sc.Rack],
			belowAvgLoad:           avgLoad == 0 || float64(sc.CurrentLoad) < avgLoad,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.capacityRemainingRatio != b.capacityRemainingRatio {
			return a.capacityRemainingRatio > b.capacityRemainingRatio
		}
		if a.belowAvgBlockCount != b.belowAvgBlockCount {
			return a.belowAvgBlockCount
		}
		if a.rackDiverse != b.rackDiverse {
			return a.rackDiverse
		}
		if a.belowAvgLoad != b.belowAvgLoad {
			return a.belowAvgLoad
		}
		return a.server.ID < b.server.ID
	})

	out := make([]*types.ServerCollect, len(scored))
	for i, s := range scored {
		out[i] = s.server
	}
	return out
}
