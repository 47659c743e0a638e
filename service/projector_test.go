package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProjector(store *repository.MemoryStore, clock Clock, catalog *models.Catalog) (*QueueProjector, *ClaimManager) {
	claims := newClaimManager(store, clock)
	return NewQueueProjector(store, claims, catalog, 20*time.Millisecond, zerolog.Nop()), claims
}

func TestQueueFilter_Normalize(t *testing.T) {
	f := QueueFilter{}.Normalize()
	assert.Equal(t, models.StageNew, f.Stage)
	assert.Empty(t, f.Categories)

	f = QueueFilter{Stage: models.StageContacted, Categories: []string{"fleet", models.CategoryAll}}.Normalize()
	assert.Equal(t, models.StageContacted, f.Stage)
	assert.Empty(t, f.Categories, "包含all时不按类别筛选")

	f = QueueFilter{Categories: []string{"", "fleet"}}.Normalize()
	assert.Equal(t, []string{"fleet"}, f.Categories)
}

func TestProject_TierBeatsRecency(t *testing.T) {
	store := repository.NewMemoryStore()
	projector, _ := newProjector(store, newFakeClock(t0), nil)

	older := seedLead(t, store, "older", tier(models.Tier2), createdAt(t0.Add(-time.Hour)))
	newer := seedLead(t, store, "newer", tier(models.Tier1), createdAt(t0))

	leads, err := projector.Snapshot(context.Background(), QueueFilter{}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID.Hex(), older.ID.Hex()}, leadIDs(leads))
}

func TestProject_DeterministicOrder(t *testing.T) {
	store := repository.NewMemoryStore()
	catalog := &models.Catalog{Tiers: []string{"vip-custom"}}
	projector, _ := newProjector(store, newFakeClock(t0), catalog)

	var all []models.Lead
	all = append(all, seedLead(t, store, "a", tier(models.Tier3), createdAt(t0)))
	all = append(all, seedLead(t, store, "b", tier("vip-custom"), createdAt(t0)))
	all = append(all, seedLead(t, store, "c", tier("unknown"), createdAt(t0)))
	all = append(all, seedLead(t, store, "d", tier(models.Tier1), createdAt(t0.Add(time.Minute))))
	all = append(all, seedLead(t, store, "e", tier(models.Tier1), createdAt(t0)))
	all = append(all, seedLead(t, store, "f", tier(models.Tier1), createdAt(t0)))

	first := projector.Project(append([]models.Lead{}, all...), QueueFilter{}, "alice")
	require.Len(t, first, len(all))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]models.Lead{}, all...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, leadIDs(first), leadIDs(projector.Project(shuffled, QueueFilter{}, "alice")))
	}

	names := make([]string, len(first))
	for i := range first {
		names[i] = first[i].Name
	}
	// e和f优先级与创建时间相同，按ID排序
	ef := []string{"e", "f"}
	if all[5].ID.Hex() < all[4].ID.Hex() {
		ef = []string{"f", "e"}
	}
	assert.Equal(t, append(ef, "d", "a", "b", "c"), names)
}

func TestProject_Filter(t *testing.T) {
	store := repository.NewMemoryStore()
	projector, _ := newProjector(store, newFakeClock(t0), nil)
	ctx := context.Background()

	detailing := seedLead(t, store, "detailing")
	fleet := seedLead(t, store, "fleet", category(models.CategoryFleet))
	seedLead(t, store, "inactive", func(l *models.Lead) { l.IsActive = false })
	contacted := seedLead(t, store, "contacted", func(l *models.Lead) { l.Stage = models.StageContacted })

	leads, err := projector.Snapshot(ctx, QueueFilter{Categories: []string{models.CategoryAll}}, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{detailing.ID.Hex(), fleet.ID.Hex()}, leadIDs(leads))

	leads, err = projector.Snapshot(ctx, QueueFilter{Categories: []string{models.CategoryFleet}}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{fleet.ID.Hex()}, leadIDs(leads))

	leads, err = projector.Snapshot(ctx, QueueFilter{Stage: models.StageContacted}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{contacted.ID.Hex()}, leadIDs(leads))
}

func TestProject_ExcludesLeadsHeldByOthers(t *testing.T) {
	store := repository.NewMemoryStore()
	clock := newFakeClock(t0)
	projector, claims := newProjector(store, clock, nil)
	ctx := context.Background()

	l1 := seedLead(t, store, "l1")
	l2 := seedLead(t, store, "l2", createdAt(t0.Add(time.Minute)))

	_, err := claims.Claim(ctx, l1.ID.Hex(), "alice")
	require.NoError(t, err)

	forBob, err := projector.Snapshot(ctx, QueueFilter{}, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{l2.ID.Hex()}, leadIDs(forBob))

	forAlice, err := projector.Snapshot(ctx, QueueFilter{}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{l1.ID.Hex(), l2.ID.Hex()}, leadIDs(forAlice), "本人占用的线索仍在自己的队列中")

	// 持有者失联，租约过期后重新出现
	clock.Advance(5*time.Minute + time.Second)
	forBob, err = projector.Snapshot(ctx, QueueFilter{}, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{l1.ID.Hex(), l2.ID.Hex()}, leadIDs(forBob))
}

func TestSubscribe_PushesUpdates(t *testing.T) {
	store := repository.NewMemoryStore()
	projector, _ := newProjector(store, newFakeClock(t0), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seedLead(t, store, "first")
	updates, err := projector.Subscribe(ctx, QueueFilter{}, "alice")
	require.NoError(t, err)

	select {
	case leads := <-updates:
		assert.Len(t, leads, 1)
	case <-time.After(time.Second):
		t.Fatal("未收到初始视图")
	}

	seedLead(t, store, "second")
	require.Eventually(t, func() bool {
		select {
		case leads := <-updates:
			return len(leads) == 2
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-updates:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond, "ctx取消后通道关闭")
}
