package book

import (
	"testing"

	"github.com/rickgao/polysweep/internal/model"
)

func TestDefaultClassify(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		ctx   model.BookContext
		want  model.Side
	}{
		{
			name:  "below best bid",
			price: 0.990,
			ctx:   model.BookContext{BestBid: 0.999, BestAsk: 1.0, HasBid: true, HasAsk: true},
			want:  model.SideBid,
		},
		{
			name:  "equal to best bid",
			price: 0.999,
			ctx:   model.BookContext{BestBid: 0.999, BestAsk: 1.0, HasBid: true, HasAsk: true},
			want:  model.SideBid,
		},
		{
			name:  "above best ask",
			price: 1.0,
			ctx:   model.BookContext{BestBid: 0.998, BestAsk: 0.999, HasBid: true, HasAsk: true},
			want:  model.SideAsk,
		},
		{
			name:  "equal to best ask",
			price: 0.999,
			ctx:   model.BookContext{BestBid: 0.998, BestAsk: 0.999, HasBid: true, HasAsk: true},
			want:  model.SideAsk,
		},
		{
			name:  "crossed book tie resolves bid",
			price: 0.999,
			ctx:   model.BookContext{BestBid: 0.999, BestAsk: 0.999, HasBid: true, HasAsk: true},
			want:  model.SideBid,
		},
		{
			name:  "strictly between falls back to bid",
			price: 0.9985,
			ctx:   model.BookContext{BestBid: 0.998, BestAsk: 0.999, HasBid: true, HasAsk: true},
			want:  model.SideBid,
		},
		{
			name:  "no context falls back to bid",
			price: 0.999,
			ctx:   model.BookContext{},
			want:  model.SideBid,
		},
		{
			name:  "only ask known and below it",
			price: 0.998,
			ctx:   model.BookContext{BestAsk: 0.999, HasAsk: true},
			want:  model.SideBid,
		},
		{
			name:  "only ask known and at it",
			price: 0.999,
			ctx:   model.BookContext{BestAsk: 0.999, HasAsk: true},
			want:  model.SideAsk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultClassify(tt.price, tt.ctx); got != tt.want {
				t.Errorf("DefaultClassify(%v, %+v) = %v, want %v", tt.price, tt.ctx, got, tt.want)
			}
		})
	}
}
