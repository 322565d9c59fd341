package pipelined

// Shard is the contiguous range [Start, End) of draws recorded by one worker.
type Shard struct {
	Index int
	Start int
	End   int
}

func (s Shard) Len() int { return s.End - s.Start }

// Partition splits [0, total) into workers contiguous shards in worker order.
// The first total%workers shards get one extra draw, so sizes differ by at
// most one.
func Partition(total, workers int) []Shard {
	if workers <= 0 {
		return nil
	}
	if total < 0 {
		total = 0
	}
	shards := make([]Shard, workers)
	base, extra := total/workers, total%workers
	start := 0
	for i := range shards {
		n := base
		if i < extra {
			n++
		}
		shards[i] = Shard{Index: i, Start: start, End: start + n}
		start += n
	}
	return shards
}

// maxShardLen is the largest shard Partition produces for total draws.
func maxShardLen(total, workers int) int {
	return (total + workers - 1) / workers
}
