package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"cellarena/worldstate"
)

func TestSaveSnapshotWritesFile(t *testing.T) {
	Convey("Given a repository rooted at a temp directory", t, func() {
		dir := t.TempDir()
		repo, err := NewRepository(dir, 1)
		So(err, ShouldBeNil)

		snap := worldstate.Snapshot{
			Config: worldstate.PublicConfig{Width: 500, Height: 500, TickRate: 30, FoodCount: 10},
		}

		Convey("SaveSnapshot eventually persists valid JSON at {dir}/{id}.json", func() {
			repo.SaveSnapshot("world-1", snap)

			path := filepath.Join(dir, "world-1.json")
			var data []byte
			for i := 0; i < 50; i++ {
				if b, err := os.ReadFile(path); err == nil {
					data = b
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			So(data, ShouldNotBeNil)

			var decoded worldstate.Snapshot
			So(json.Unmarshal(data, &decoded), ShouldBeNil)
			So(decoded.Config.Width, ShouldEqual, 500)
		})
	})
}
