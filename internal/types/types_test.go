package types

import (
	"encoding/json"
	"testing"
)

func TestItemTypeIsValid(t *testing.T) {
	tests := []struct {
		name string
		typ  ItemType
		want bool
	}{
		{"album", ItemTypeAlbum, true},
		{"track", ItemTypeTrack, true},
		{"package", ItemTypePackage, true},
		{"lepledge", ItemTypeLepledge, true},
		{"subscription", ItemTypeSubscription, true},
		{"empty", ItemType(""), false},
		{"unknown", ItemType("cassette"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.IsValid(); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestTargetStageIsValid(t *testing.T) {
	for _, stage := range []TargetStage{StageItems, StageCollectors, StageDone} {
		if !stage.IsValid() {
			t.Errorf("stage %d (%s) should be valid", stage, stage)
		}
	}
	if TargetStage(0).IsValid() {
		t.Error("stage 0 should be invalid")
	}
	if TargetStage(4).IsValid() {
		t.Error("stage 4 should be invalid")
	}
}

func TestDoneTarget(t *testing.T) {
	target := DoneTarget(42)
	if target.FanID != 42 {
		t.Errorf("FanID = %d, want 42", target.FanID)
	}
	if target.Stage != StageDone {
		t.Errorf("Stage = %d, want %d", target.Stage, StageDone)
	}
	if target.CountLeft != 0 || target.CountTotal != 0 || target.ETA != 0 {
		t.Errorf("counts should be zero, got %+v", target)
	}
}

func TestTargetJSONShape(t *testing.T) {
	data, err := json.Marshal(Target{FanID: 7, Stage: StageCollectors, CountLeft: 3, CountTotal: 9, ETA: 9})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"fan_id":7,"stage":2,"count_left":3,"count_total":9,"eta":9}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestScoredItemJSONIncludesScore(t *testing.T) {
	token := "1234:567"
	scored := ScoredItem{
		Item: Item{
			ItemID:             100,
			ItemType:           ItemTypeAlbum,
			ItemTitle:          "OK Computer",
			ItemURL:            "https://radiohead.bandcamp.com/album/ok-computer",
			BandID:             9,
			BandName:           "Radiohead",
			Token:              &token,
			AlsoCollectedCount: 1200,
		},
		Score: 8.0,
	}

	data, err := json.Marshal(scored)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["score"] != 8.0 {
		t.Errorf("score = %v, want 8.0", decoded["score"])
	}
	if decoded["item_type"] != "album" {
		t.Errorf("item_type = %v, want album", decoded["item_type"])
	}
	if _, ok := decoded["last_updated"]; ok {
		t.Error("last_updated should not be serialized")
	}
}
