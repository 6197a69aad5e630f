package protocol

import (
	"testing"

	"cellarena/worldstate"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDecodeInbound(t *testing.T) {
	Convey("A well-formed set_target decodes with Valid true", t, func() {
		msg, err := DecodeInbound([]byte(`{"type":"set_target","target":[12.5,-3]}`))
		So(err, ShouldBeNil)
		st, ok := msg.(SetTarget)
		So(ok, ShouldBeTrue)
		So(st.Valid, ShouldBeTrue)
		So(st.Target, ShouldResemble, [2]float64{12.5, -3})
	})

	Convey("A set_target with a non-array target decodes with Valid false", t, func() {
		msg, err := DecodeInbound([]byte(`{"type":"set_target","target":"up"}`))
		So(err, ShouldBeNil)
		st := msg.(SetTarget)
		So(st.Valid, ShouldBeFalse)
	})

	Convey("A set_target missing its target field decodes with Valid false", t, func() {
		msg, err := DecodeInbound([]byte(`{"type":"set_target"}`))
		So(err, ShouldBeNil)
		st := msg.(SetTarget)
		So(st.Valid, ShouldBeFalse)
	})

	Convey("A split decodes to a Split value", t, func() {
		msg, err := DecodeInbound([]byte(`{"type":"split"}`))
		So(err, ShouldBeNil)
		_, ok := msg.(Split)
		So(ok, ShouldBeTrue)
	})

	Convey("An unknown type is an error", t, func() {
		_, err := DecodeInbound([]byte(`{"type":"nonsense"}`))
		So(err, ShouldNotBeNil)
	})

	Convey("Malformed JSON is an error", t, func() {
		_, err := DecodeInbound([]byte(`not json`))
		So(err, ShouldNotBeNil)
	})
}

func TestFrameConstructors(t *testing.T) {
	Convey("NewJoined sets the type and carries the payload through", t, func() {
		player := worldstate.PublicRecord{ID: "p1", Name: "alice"}
		cell := worldstate.PublicCell{ID: "c1", PlayerID: "p1", Radius: 30}
		cfg := worldstate.PublicConfig{Width: 1000, Height: 1000}

		joined := NewJoined(player, cell, cfg)
		So(joined.Type, ShouldEqual, TypeJoined)
		So(joined.Player.ID, ShouldEqual, "p1")
		So(joined.Cell.Radius, ShouldEqual, 30)
	})

	Convey("NewEliminated and NewConfigUpdate set their types", t, func() {
		So(NewEliminated("bob", "w1").Type, ShouldEqual, TypeEliminated)
		So(NewConfigUpdate(worldstate.PublicConfig{}).Type, ShouldEqual, TypeConfigUpdate)
		So(NewError("boom").Type, ShouldEqual, TypeError)
	})
}
