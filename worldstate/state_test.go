package worldstate

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func newTestState(foodCount int) *State {
	return NewState(Config{Name: "t", Width: 1000, Height: 1000, TickRate: 30, FoodCount: foodCount})
}

func addCellAt(s *State, id string, pos Vec2, radius float64) *Cell {
	player := NewPlayer(id, id, "tok-"+id)
	cell := s.AddPlayer(player)
	cell.Position = pos
	cell.Radius = radius
	return cell
}

func TestCellAbsorption(t *testing.T) {
	Convey("Given three overlapping cells owned by different players", t, func() {
		s := newTestState(0)
		a := addCellAt(s, "a", Vec2{X: 500, Y: 500}, 60)
		b := addCellAt(s, "b", Vec2{X: 500, Y: 500}, 40)
		c := addCellAt(s, "c", Vec2{X: 500, Y: 500}, 20)

		Convey("the largest absorbs the middle cell, then the smallest", func() {
			s.tryAbsorb(a, b) // a (60) eats b (40)
			s.tryAbsorb(a, c) // the grown a eats c (20)

			survivors := 0
			for _, p := range []string{"a", "b", "c"} {
				if _, ok := s.Player(p); ok {
					survivors++
				}
			}
			So(survivors, ShouldEqual, 1)

			winner, ok := s.Cell("a")
			So(ok, ShouldBeTrue)
			// a absorbs b (40), discounted area 0.8*pi*40^2, then the
			// resulting cell absorbs c (20) with the same discount.
			afterB := math.Pi*60*60 + 0.8*math.Pi*40*40
			expected := afterB + 0.8*math.Pi*20*20
			So(winner.Radius, ShouldAlmostEqual, math.Sqrt(expected/math.Pi), 0.01)

			winnerPlayer, _ := s.Player("a")
			So(winnerPlayer.CellsEaten, ShouldEqual, 2)

			_, bAlive := s.Player("b")
			_, cAlive := s.Player("c")
			So(bAlive, ShouldBeFalse)
			So(cAlive, ShouldBeFalse)
		})

		_ = a
	})
}

func TestSmallSizeAdvantageAbsorption(t *testing.T) {
	Convey("Given a 52-radius cell and a 50-radius cell", t, func() {
		s := newTestState(0)
		winner := addCellAt(s, "a", Vec2{X: 100, Y: 100}, 52)
		loser := addCellAt(s, "b", Vec2{X: 100, Y: 100}, 50)

		Convey("the cell exceeding the absorb ratio wins", func() {
			s.tryAbsorb(winner, loser)

			_, stillThere := s.Cell("b")
			So(stillThere, ShouldBeFalse)

			winnerAfter, ok := s.Cell("a")
			So(ok, ShouldBeTrue)
			expectedArea := math.Pi*52*52 + 0.8*math.Pi*50*50
			So(winnerAfter.Radius, ShouldAlmostEqual, math.Sqrt(expectedArea/math.Pi), 0.01)
		})
	})
}

func TestEliminationEvent(t *testing.T) {
	Convey("Given a much larger cell colliding with a much smaller one", t, func() {
		s := newTestState(0)
		big := addCellAt(s, "a", Vec2{X: 200, Y: 200}, 60)
		small := addCellAt(s, "b", Vec2{X: 200, Y: 200}, 20)

		Convey("the loser's player is eliminated and an event is recorded", func() {
			s.tryAbsorb(big, small)

			events := s.PopEvents()
			So(events, ShouldHaveLength, 1)
			So(events[0].Type, ShouldEqual, "player_eliminated")
			So(events[0].LoserID, ShouldEqual, "b")
			So(events[0].WinnerID, ShouldEqual, "a")

			winnerPlayer, _ := s.Player("a")
			So(winnerPlayer.CellsEaten, ShouldEqual, 1)

			_, loserStillPlaying := s.Player("b")
			So(loserStillPlaying, ShouldBeFalse)
			So(s.PlayerCellIDs("b"), ShouldBeEmpty)
		})
	})
}

func TestFoodGrowth(t *testing.T) {
	Convey("Given a cell sitting on a food pellet", t, func() {
		s := newTestState(50)
		cell := addCellAt(s, "a", Vec2{X: 300, Y: 300}, 25)
		// Replace the food map with a single known pellet at the cell's
		// position so consumption is deterministic.
		s.foods = map[string]*Food{
			"f1": {ID: "f1", Position: Vec2{X: 300, Y: 300}, Value: 5.0},
		}

		Convey("the cell grows, the player scores, and food is replenished", func() {
			s.handleFoodCollisions()

			So(cell.Radius, ShouldAlmostEqual, 25.5, 1e-9)
			player, _ := s.Player("a")
			So(player.Score, ShouldAlmostEqual, 5.0, 1e-9)
			So(player.FoodEaten, ShouldEqual, 1)
			So(s.FoodCount(), ShouldEqual, 50)
		})
	})
}

func TestSplitCooldown(t *testing.T) {
	Convey("Given a player with one large cell and a controllable clock", t, func() {
		s := newTestState(0)
		cell := addCellAt(s, "a", Vec2{X: 400, Y: 400}, 70)
		s.SetTarget("a", Vec2{X: 1000, Y: 400})

		now := 0.0
		s.clock = func() float64 { return now }

		Convey("a split at t=0 succeeds and starts the cooldown", func() {
			s.SplitPlayer("a")
			So(s.PlayerCellIDs("a"), ShouldHaveLength, 2)

			expectedRadius := 70.0 / math.Sqrt2
			So(cell.Radius, ShouldAlmostEqual, expectedRadius, 0.01)

			Convey("a second split before the cooldown elapses is rejected", func() {
				now = 1.5
				s.SplitPlayer("a")
				So(s.PlayerCellIDs("a"), ShouldHaveLength, 2)
			})

			Convey("a split once the cooldown elapses succeeds again", func() {
				now = 2.5
				s.SplitPlayer("a")
				So(s.PlayerCellIDs("a"), ShouldHaveLength, 3)

				largest, ok := s.Cell(cell.ID)
				So(ok, ShouldBeTrue)
				So(largest.Radius, ShouldAlmostEqual, expectedRadius/math.Sqrt2, 0.01)
			})
		})
	})
}

func TestSplitRejectsBelowMinRadius(t *testing.T) {
	Convey("Given a cell below the split radius floor", t, func() {
		s := newTestState(0)
		addCellAt(s, "a", Vec2{X: 50, Y: 50}, 20)

		Convey("SplitPlayer is a no-op", func() {
			s.SplitPlayer("a")
			So(s.PlayerCellIDs("a"), ShouldHaveLength, 1)
		})
	})
}
