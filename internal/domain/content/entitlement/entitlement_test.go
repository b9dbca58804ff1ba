package entitlement

import (
	"testing"

	"creator_ledger/internal/domain/content/model"
	baseModel "creator_ledger/pkg/model"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func post(owner uint64, visibility string, nsfw bool, price int64) *model.Post {
	return &model.Post{
		BaseModel:   baseModel.BaseModel{ID: 1},
		OwnerID:     owner,
		Visibility:  visibility,
		IsNSFW:      nsfw,
		UnlockPrice: price,
	}
}

func TestCanView(t *testing.T) {
	tests := []struct {
		name       string
		post       *model.Post
		viewer     uint64
		rel        Relations
		wantAccess bool
	}{
		{"owner sees paid nsfw subscriber post", post(9, model.VisibilitySubscribers, true, 500), 9, Relations{}, true},
		{"public free post", post(9, model.VisibilityPublic, false, 0), 1, Relations{}, true},
		{"anonymous on public post", post(9, model.VisibilityPublic, false, 0), 0, Relations{}, true},
		{"followers-only denied to stranger", post(9, model.VisibilityFollowers, false, 0), 1, Relations{}, false},
		{"followers-only allowed to follower", post(9, model.VisibilityFollowers, false, 0), 1, Relations{IsFollowing: true}, true},
		{"followers-only allowed to subscriber", post(9, model.VisibilityFollowers, false, 0), 1, Relations{IsSubscribed: true}, true},
		{"subscribers-only denied to follower", post(9, model.VisibilitySubscribers, false, 0), 1, Relations{IsFollowing: true}, false},
		{"subscribers-only allowed to subscriber", post(9, model.VisibilitySubscribers, false, 0), 1, Relations{IsSubscribed: true}, true},
		{"paid post denied without purchase", post(9, model.VisibilityPublic, false, 100), 1, Relations{IsSubscribed: true, IsFollowing: true}, false},
		{"paid post allowed after purchase", post(9, model.VisibilityPublic, false, 100), 1, Relations{IsPurchased: true}, true},
		{"nsfw denied to follower", post(9, model.VisibilityPublic, true, 0), 1, Relations{IsFollowing: true}, false},
		{"nsfw allowed to subscriber", post(9, model.VisibilityPublic, true, 0), 1, Relations{IsSubscribed: true}, true},
		{"paid nsfw needs both", post(9, model.VisibilityPublic, true, 100), 1, Relations{IsPurchased: true}, false},
		{"purchase does not bypass followers gate", post(9, model.VisibilityFollowers, false, 100), 1, Relations{IsPurchased: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAccess, Resolve(tt.post, tt.viewer, tt.rel))
		})
	}
}

func genPost() gopter.Gen {
	return gopter.CombineGens(
		gen.UInt64Range(1, 5),
		gen.OneConstOf(model.VisibilityPublic, model.VisibilityFollowers, model.VisibilitySubscribers),
		gen.Bool(),
		gen.OneConstOf(int64(0), int64(1), int64(250)),
	).Map(func(v []interface{}) *model.Post {
		return post(v[0].(uint64), v[1].(string), v[2].(bool), v[3].(int64))
	})
}

func TestCanViewProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 500
	properties := gopter.NewProperties(params)

	properties.Property("deterministic for identical inputs", prop.ForAll(
		func(p *model.Post, viewer uint64, f, s, b bool) bool {
			return CanView(p, viewer, f, s, b) == CanView(p, viewer, f, s, b)
		},
		genPost(), gen.UInt64Range(0, 5), gen.Bool(), gen.Bool(), gen.Bool(),
	))

	properties.Property("owner always sees own post", prop.ForAll(
		func(p *model.Post, f, s, b bool) bool {
			return CanView(p, p.OwnerID, f, s, b)
		},
		genPost(), gen.Bool(), gen.Bool(), gen.Bool(),
	))

	properties.Property("unpurchased paid post is hidden from non-owners", prop.ForAll(
		func(p *model.Post, viewer uint64, f, s bool) bool {
			if viewer == p.OwnerID || p.UnlockPrice == 0 {
				return true
			}
			return !CanView(p, viewer, f, s, false)
		},
		genPost(), gen.UInt64Range(0, 5), gen.Bool(), gen.Bool(),
	))

	properties.Property("active subscription is a superset of follower access", prop.ForAll(
		func(p *model.Post, viewer uint64, b bool) bool {
			if CanView(p, viewer, true, false, b) {
				return CanView(p, viewer, false, true, b)
			}
			return true
		},
		genPost(), gen.UInt64Range(0, 5), gen.Bool(),
	))

	properties.Property("granting a relationship never revokes access", prop.ForAll(
		func(p *model.Post, viewer uint64, f, s, b bool) bool {
			if !CanView(p, viewer, f, s, b) {
				return true
			}
			return CanView(p, viewer, true, s, b) && CanView(p, viewer, f, true, b) && CanView(p, viewer, f, s, true)
		},
		genPost(), gen.UInt64Range(0, 5), gen.Bool(), gen.Bool(), gen.Bool(),
	))

	properties.TestingRun(t)
}
