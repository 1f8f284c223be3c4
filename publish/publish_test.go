package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/metawatch/channels"
	"github.com/hazyhaar/metawatch/loadout"
	"github.com/hazyhaar/metawatch/snapshot"
)

// fakeChannel records every call in order.
type fakeChannel struct {
	history   []channels.Posted // newest first
	calls     []string
	sent      []channels.Embed
	deleted   []string
	sendErr   map[string]error // by title
	deleteErr error
	recentErr error
}

func (f *fakeChannel) Recent(_ context.Context, limit int) ([]channels.Posted, error) {
	f.calls = append(f.calls, "recent")
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if len(f.history) > limit {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeChannel) Delete(_ context.Context, id string) error {
	f.calls = append(f.calls, "delete:"+id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeChannel) Send(_ context.Context, e channels.Embed) (string, error) {
	f.calls = append(f.calls, "send")
	if err := f.sendErr[e.Title]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, e)
	id := fmt.Sprintf("new-%d", len(f.sent))
	f.history = append([]channels.Posted{{ID: id, Title: e.Title}}, f.history...)
	return id, nil
}

func (f *fakeChannel) Close() error { return nil }

var (
	categories    = []string{"Resurgence", "Verdansk"}
	subCategories = []string{"Long Range", "Close Range", "Sniper"}
)

func testConfig() Config {
	return Config{
		Emojis: map[string]string{
			"Resurgence/Long Range":  "🎯",
			"Resurgence/Close Range": "🔫",
			"Resurgence/Sniper":      "🎯",
			"Verdansk/Long Range":    "🏹",
			"Verdansk/Close Range":   "🪖",
			"Verdansk/Sniper":        "🏹",
		},
		Colors: map[string]int{"Resurgence": 0x3498db, "Verdansk": 0x2ecc71},
	}
}

func batch() []loadout.Record {
	var out []loadout.Record
	for i, c := range loadout.Combinations(categories, subCategories) {
		out = append(out, loadout.Record{
			Combination: c,
			WeaponName:  fmt.Sprintf("Gun %d", i),
			Attachments: []string{"• Barrel — Long", fmt.Sprintf("• Magazine — %d Rd", 30+i)},
			LastUpdated: "Jan 1, 2024",
		})
	}
	return out
}

func snapshotOf(records []loadout.Record) snapshot.Map {
	m := snapshot.Map{}
	for i, r := range records {
		e := snapshot.EntryFor(r)
		e.MessageID = fmt.Sprintf("old-%d", i)
		m[r.Key()] = e
	}
	return m
}

func TestPublish_OneChangedOfSix(t *testing.T) {
	// WHAT: With six records of which one differs, exactly one send happens and one entry changes.
	// WHY: Unchanged loadouts must not spam the channel or churn the snapshot.
	records := batch()
	prev := snapshotOf(records)
	prevJSON := map[string]string{}
	for k, v := range prev {
		b, _ := json.Marshal(v)
		prevJSON[k] = string(b)
	}

	records[4].Attachments = []string{"• Barrel — Short"}
	changedKey := records[4].Key()

	ch := &fakeChannel{}
	got, report, err := New(ch, testConfig()).Publish(context.Background(), records, prev)
	if err != nil {
		t.Fatal(err)
	}

	if len(ch.sent) != 1 {
		t.Fatalf("sends: got %d, want 1", len(ch.sent))
	}
	if diff := cmp.Diff([]string{changedKey}, report.Published); diff != "" {
		t.Errorf("published (-want +got):\n%s", diff)
	}
	if len(report.Skipped) != 5 {
		t.Errorf("skipped: got %d, want 5", len(report.Skipped))
	}
	for k, v := range got {
		b, _ := json.Marshal(v)
		if k == changedKey {
			if string(b) == prevJSON[k] {
				t.Errorf("%s: entry not updated", k)
			}
			continue
		}
		if string(b) != prevJSON[k] {
			t.Errorf("%s: entry changed:\n got %s\nwant %s", k, b, prevJSON[k])
		}
	}
	want := snapshot.EntryFor(records[4])
	want.MessageID = "new-1"
	if diff := cmp.Diff(want, got[changedKey]); diff != "" {
		t.Errorf("updated entry (-want +got):\n%s", diff)
	}
}

func TestPublish_NoPriorEntryPublishes(t *testing.T) {
	records := batch()[:2]
	ch := &fakeChannel{}
	got, report, err := New(ch, testConfig()).Publish(context.Background(), records, snapshot.Map{})
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.sent) != 2 || len(report.Published) != 2 {
		t.Errorf("sent %d, published %v", len(ch.sent), report.Published)
	}
	for _, r := range records {
		e, ok := got[r.Key()]
		if !ok {
			t.Fatalf("%s missing from snapshot", r.Key())
		}
		if !e.SameContent(snapshot.EntryFor(r)) || e.MessageID == "" {
			t.Errorf("%s: unexpected entry %+v", r.Key(), e)
		}
	}
}

func TestPublish_WeaponChangePublishes(t *testing.T) {
	records := batch()[:1]
	prev := snapshotOf(records)
	records[0].WeaponName = "Other Gun"

	ch := &fakeChannel{}
	got, _, err := New(ch, testConfig()).Publish(context.Background(), records, prev)
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("sends: got %d, want 1", len(ch.sent))
	}
	if got[records[0].Key()].Gun != "Other Gun" {
		t.Errorf("gun: got %q", got[records[0].Key()].Gun)
	}
}

func TestPublish_EmbedContent(t *testing.T) {
	r := loadout.Record{
		Combination: loadout.Combination{Category: "Verdansk", SubCategory: "Close Range"},
		WeaponName:  "PP-919",
		Attachments: []string{"• Muzzle — Suppressor", "• Stock"},
		ImageURL:    "https://i.imgur.com/x.png",
	}
	ch := &fakeChannel{}
	if _, _, err := New(ch, testConfig()).Publish(context.Background(), []loadout.Record{r}, nil); err != nil {
		t.Fatal(err)
	}
	want := channels.Embed{
		Title:       "🪖 Verdansk Close Range Meta Loadout\n**PP-919**",
		Description: "Attachments:\n• Muzzle — Suppressor\n• Stock",
		Color:       0x2ecc71,
		ImageURL:    "https://i.imgur.com/x.png",
	}
	if diff := cmp.Diff(want, ch.sent[0]); diff != "" {
		t.Errorf("embed (-want +got):\n%s", diff)
	}
}

func TestTitleAndColorFallbacks(t *testing.T) {
	e := New(&fakeChannel{}, testConfig())
	r := loadout.Record{Combination: loadout.Combination{Category: "Rebirth", SubCategory: "Sniper"}}
	if got := e.Title(r); got != "🛡️ Rebirth Sniper Meta Loadout\n**Unknown Weapon**" {
		t.Errorf("title: got %q", got)
	}
	if got := e.Color(r); got != FallbackColor {
		t.Errorf("color: got %#x", got)
	}
}

func TestPublish_DeletesSameTitleFromHistory(t *testing.T) {
	// WHAT: Without a stored message id, the history is scanned and every same-title message is removed before sending.
	records := batch()[:1]
	prev := snapshotOf(records)
	e := prev[records[0].Key()]
	e.MessageID = ""
	prev[records[0].Key()] = e
	records[0].Attachments = []string{"• new"}

	eng := New(nil, testConfig())
	title := eng.Title(records[0])
	ch := &fakeChannel{history: []channels.Posted{
		{ID: "a", Title: "something else"},
		{ID: "b", Title: title + "  "},
		{ID: "c", Title: title},
	}}
	eng.ch = ch

	_, report, err := eng.Publish(context.Background(), records, prev)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"recent", "delete:b", "delete:c", "send"}, ch.calls); diff != "" {
		t.Errorf("call order (-want +got):\n%s", diff)
	}
	if report.Deleted != 2 {
		t.Errorf("deleted: got %d", report.Deleted)
	}
}

func TestPublish_UsesStoredMessageID(t *testing.T) {
	records := batch()[:1]
	prev := snapshotOf(records)
	records[0].Attachments = []string{"• new"}

	ch := &fakeChannel{}
	if _, _, err := New(ch, testConfig()).Publish(context.Background(), records, prev); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"delete:old-0", "send"}, ch.calls); diff != "" {
		t.Errorf("call order (-want +got):\n%s", diff)
	}
}

func TestPublish_StoredIDIgnoredWhenWeaponChanged(t *testing.T) {
	// WHAT: A stored id for a different weapon is not deleted; the title-based scan runs instead.
	records := batch()[:1]
	prev := snapshotOf(records)
	records[0].WeaponName = "Brand New"

	ch := &fakeChannel{history: []channels.Posted{{ID: "old-0", Title: "old title"}}}
	if _, _, err := New(ch, testConfig()).Publish(context.Background(), records, prev); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"recent", "send"}, ch.calls); diff != "" {
		t.Errorf("call order (-want +got):\n%s", diff)
	}
}

func TestPublish_CleanupFailuresDoNotBlockSend(t *testing.T) {
	records := batch()[:1]
	prev := snapshotOf(records)
	records[0].Attachments = []string{"• new"}

	eng := New(nil, testConfig())
	ch := &fakeChannel{
		history:   []channels.Posted{{ID: "x", Title: eng.Title(records[0])}},
		deleteErr: errors.New("missing permissions"),
	}
	eng.ch = ch

	got, report, err := eng.Publish(context.Background(), records, prev)
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.sent) != 1 || report.Deleted != 0 {
		t.Errorf("sent %d, deleted %d", len(ch.sent), report.Deleted)
	}
	if got[records[0].Key()].MessageID != "new-1" {
		t.Errorf("entry not updated: %+v", got[records[0].Key()])
	}

	ch2 := &fakeChannel{recentErr: errors.New("history unavailable")}
	eng.ch = ch2
	prev[records[0].Key()] = snapshot.Entry{Gun: "x", Mode: records[0].Category, Range: records[0].SubCategory}
	if _, _, err := eng.Publish(context.Background(), records, prev); err != nil {
		t.Fatal(err)
	}
	if len(ch2.sent) != 1 {
		t.Errorf("history failure blocked send")
	}
}

func TestPublish_SendFailureKeepsPreviousEntry(t *testing.T) {
	records := batch()[:2]
	prev := snapshotOf(records)
	records[0].Attachments = []string{"• changed"}
	records[1].Attachments = []string{"• changed too"}

	eng := New(nil, testConfig())
	ch := &fakeChannel{sendErr: map[string]error{eng.Title(records[0]): errors.New("500")}}
	eng.ch = ch

	got, report, err := eng.Publish(context.Background(), records, prev)
	if err == nil {
		t.Fatal("expected send error")
	}
	if diff := cmp.Diff(prev[records[0].Key()], got[records[0].Key()]); diff != "" {
		t.Errorf("failed key changed (-want +got):\n%s", diff)
	}
	if !got[records[1].Key()].SameContent(snapshot.EntryFor(records[1])) {
		t.Error("second record should still publish")
	}
	if diff := cmp.Diff([]string{records[0].Key()}, report.Failed); diff != "" {
		t.Errorf("failed (-want +got):\n%s", diff)
	}
}

func TestPublish_PreservesUnprocessedKeys(t *testing.T) {
	prev := snapshot.Map{"Rebirth_Sniper": {Gun: "KAR98", Class: []string{"• x"}, Mode: "Rebirth", Range: "Sniper"}}
	got, _, err := New(&fakeChannel{}, testConfig()).Publish(context.Background(), batch()[:1], prev)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(prev["Rebirth_Sniper"], got["Rebirth_Sniper"]); diff != "" {
		t.Errorf("unprocessed key changed (-want +got):\n%s", diff)
	}
	if len(got) != 2 {
		t.Errorf("entries: got %d, want 2", len(got))
	}
}

func TestPublish_HistoryLimit(t *testing.T) {
	records := batch()[:1]
	eng := New(nil, Config{HistoryLimit: 1})
	title := eng.Title(records[0])
	ch := &fakeChannel{history: []channels.Posted{{ID: "new", Title: "x"}, {ID: "old", Title: title}}}
	eng.ch = ch
	if _, _, err := eng.Publish(context.Background(), records, nil); err != nil {
		t.Fatal(err)
	}
	if len(ch.deleted) != 0 {
		t.Errorf("message beyond the lookback window was deleted: %v", ch.deleted)
	}
}

func TestPublish_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := &fakeChannel{}
	prev := snapshot.Map{"k": {Gun: "g"}}
	got, _, err := New(ch, testConfig()).Publish(ctx, batch(), prev)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(ch.sent) != 0 {
		t.Error("nothing should be sent after cancellation")
	}
	if diff := cmp.Diff(prev, got); diff != "" {
		t.Errorf("snapshot changed (-want +got):\n%s", diff)
	}
}
