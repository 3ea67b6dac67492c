package book

import "github.com/rickgao/polysweep/internal/model"

// ClassifyFunc decides which side of the book a price belongs to given the
// best bid/ask known at that moment. Implementations must be pure.
type ClassifyFunc func(price float64, ctx model.BookContext) model.Side

// DefaultClassify applies, in order:
//
//  1. price <= best bid (when known)  -> BID
//  2. price >= best ask (when known)  -> ASK
//  3. otherwise                       -> BID
//
// The final branch is a heuristic, not a guarantee: near a target close to
// 1.0, an unresolved level is far more likely resting bid interest than ask
// interest. Callers that watch other price regions should supply their own
// ClassifyFunc.
func DefaultClassify(price float64, ctx model.BookContext) model.Side {
	if ctx.HasBid && price <= ctx.BestBid {
		return model.SideBid
	}
	if ctx.HasAsk && price >= ctx.BestAsk {
		return model.SideAsk
	}
	return model.SideBid
}
