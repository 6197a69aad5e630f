package gameconfig

import (
	"context"
	"errors"
	"testing"
	"time"

	"cellarena/account"
	"cellarena/pubsub"
	"cellarena/snapshot"
	"cellarena/worldstate"

	. "github.com/smartystreets/goconvey/convey"
)

// flakyStore fails its first LoadGameplayConfig call and then delegates to
// the embedded store, exercising Bootstrap's retry-once path.
type flakyStore struct {
	*account.InMemoryStore
	failed bool
}

func (s *flakyStore) LoadGameplayConfig(ctx context.Context) (account.GameplayConfig, error) {
	if !s.failed {
		s.failed = true
		return account.GameplayConfig{}, errors.New("gameconfig_test: transient store failure")
	}
	return s.InMemoryStore.LoadGameplayConfig(ctx)
}

func TestServiceBootstrapAndRun(t *testing.T) {
	Convey("Given a service wired to a store, manager, and hub", t, func() {
		store := account.NewInMemoryStore(account.GameplayConfig{
			Width: 1000, Height: 1000, TickRate: 30, FoodCount: 200, SnapshotInterval: 10,
		})
		repo, err := snapshot.NewRepository(t.TempDir(), 2)
		So(err, ShouldBeNil)
		manager := worldstate.NewManager(repo, 30)
		hub := pubsub.NewHub[Update](4)

		var broadcasts []worldstate.PublicConfig
		svc := NewService(store, manager, hub, func(cfg worldstate.PublicConfig) {
			broadcasts = append(broadcasts, cfg)
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		Convey("Bootstrap applies the store's initial config to new worlds", func() {
			So(svc.Bootstrap(ctx), ShouldBeNil)

			worldID := manager.CreateWorld(ctx, "w1")
			time.Sleep(20 * time.Millisecond)

			cfg, ok := manager.ConfigSnapshot(worldID)
			So(ok, ShouldBeTrue)
			So(cfg.Width, ShouldEqual, 1000)
			So(cfg.FoodCount, ShouldEqual, 200)
		})

		Convey("Run applies and broadcasts published updates in order", func() {
			So(svc.Bootstrap(ctx), ShouldBeNil)
			worldID := manager.CreateWorld(ctx, "w1")
			time.Sleep(20 * time.Millisecond)

			go svc.Run(ctx)
			time.Sleep(10 * time.Millisecond)

			svc.Publish(map[string]float64{
				"width": 2000, "height": 2000, "tick_rate": 60,
				"food_count": 50, "snapshot_interval": 5,
			}, 123)
			time.Sleep(50 * time.Millisecond)

			cfg, ok := manager.ConfigSnapshot(worldID)
			So(ok, ShouldBeTrue)
			So(cfg.Width, ShouldEqual, 2000)
			So(cfg.FoodCount, ShouldEqual, 50)

			So(len(broadcasts), ShouldBeGreaterThanOrEqualTo, 1)
			last := broadcasts[len(broadcasts)-1]
			So(last.Width, ShouldEqual, 2000)
			So(last.FoodCount, ShouldEqual, 50)
		})
	})
}

func TestServiceBootstrapRetriesOnce(t *testing.T) {
	Convey("Given a service wired to a store that fails its first load", t, func() {
		store := &flakyStore{InMemoryStore: account.NewInMemoryStore(account.GameplayConfig{
			Width: 1000, Height: 1000, TickRate: 30, FoodCount: 200, SnapshotInterval: 10,
		})}
		repo, err := snapshot.NewRepository(t.TempDir(), 2)
		So(err, ShouldBeNil)
		manager := worldstate.NewManager(repo, 30)
		hub := pubsub.NewHub[Update](4)
		svc := NewService(store, manager, hub, nil)

		Convey("Bootstrap retries once and succeeds", func() {
			So(svc.Bootstrap(context.Background()), ShouldBeNil)
			So(store.failed, ShouldBeTrue)

			worldID := manager.CreateWorld(context.Background(), "w1")
			time.Sleep(20 * time.Millisecond)

			cfg, ok := manager.ConfigSnapshot(worldID)
			So(ok, ShouldBeTrue)
			So(cfg.Width, ShouldEqual, 1000)
		})
	})
}
