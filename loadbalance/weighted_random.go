package loadbalance

import (
	"fmt"
	"math/rand"
)

// WeightedRandomBalancer seeds its choice with the entry index, so the pick
// is random across entries but identical on every replica.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(members []Member, key Key) (*Member, error) {
	if len(members) == 0 {
		return nil, ErrNoMembers
	}

	// 计算总权重
	totalWeight := 0
	for _, m := range members {
		totalWeight += m.weight()
	}

	// 生成一个随机数，范围是0到总权重
	r := rand.New(rand.NewSource(int64(key.Index))).Intn(totalWeight)
	for i := range members {
		r -= members[i].weight()
		if r < 0 {
			return &members[i], nil
		}
	}

	return nil, fmt.Errorf("unexpected error in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
