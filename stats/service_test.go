package stats

import (
	"context"
	"testing"

	"cellarena/account"
	"cellarena/pubsub"

	. "github.com/smartystreets/goconvey/convey"
)

func TestServiceAddProgress(t *testing.T) {
	Convey("Given a service wired to a store and hub", t, func() {
		store := account.NewInMemoryStore(account.GameplayConfig{})
		store.AddUser("alice", "pw")
		hub := pubsub.NewHub[Update](4)
		sub, dispose := hub.Subscribe(Channel)
		defer dispose()

		svc := NewService(store, hub)
		ctx := context.Background()

		Convey("A nonzero delta updates counters and publishes an update", func() {
			err := svc.AddProgress(ctx, "alice", account.Counters{FoodEaten: 2, CellsEaten: 1})
			So(err, ShouldBeNil)

			update := <-sub
			So(update.Username, ShouldEqual, "alice")
			So(update.Stats, ShouldNotBeNil)
			So(update.Stats.FoodEaten, ShouldEqual, 2)
			So(update.Totals.FoodEaten, ShouldEqual, 2)
		})

		Convey("An all-zero delta is a no-op and publishes nothing", func() {
			err := svc.AddProgress(ctx, "alice", account.Counters{})
			So(err, ShouldBeNil)

			select {
			case <-sub:
				t.Fatal("expected no publish for a zero delta")
			default:
			}
		})

		Convey("An unknown user still publishes totals with a nil Stats", func() {
			err := svc.AddProgress(ctx, "ghost", account.Counters{FoodEaten: 1})
			So(err, ShouldBeNil)

			update := <-sub
			So(update.Stats, ShouldBeNil)
		})
	})
}
