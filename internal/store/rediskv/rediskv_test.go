package rediskv

import (
	"testing"
	"time"

	"accord/internal/ledger"
	"accord/internal/model"
)

func ptr(s string) *string { return &s }

func sample() []model.Transfer {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []model.Transfer{
		{ID: "t1", FromUserID: ptr("alice"), ToUserID: ptr("bob"), Status: model.StatusPending, CreatedAt: base},
		{ID: "t2", FromUserID: ptr("bob"), ToUserID: ptr("alice"), Status: model.StatusAccepted, CreatedAt: base.Add(time.Minute)},
		{ID: "t3", FromUserID: ptr("carol"), ToUserID: ptr("bob"), Status: model.StatusPending, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "t4", ToUserID: ptr("alice"), Status: model.StatusAccepted, CreatedAt: base.Add(3 * time.Minute)},
	}
}

func ids(ts []model.Transfer) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func TestFilterAndSort_RoleAndStatus(t *testing.T) {
	got := filterAndSort(sample(), "bob", ledger.ListFilter{Role: ledger.RolePayee, Status: model.StatusPending})
	want := []string{"t3", "t1"}
	if g := ids(got); len(g) != len(want) || g[0] != want[0] || g[1] != want[1] {
		t.Errorf("payee pending = %v, want %v", g, want)
	}

	got = filterAndSort(sample(), "alice", ledger.ListFilter{Role: ledger.RoleAny})
	if g := ids(got); len(g) != 3 || g[0] != "t4" || g[1] != "t2" || g[2] != "t1" {
		t.Errorf("any = %v, want [t4 t2 t1] newest first", g)
	}

	got = filterAndSort(sample(), "alice", ledger.ListFilter{Role: ledger.RolePayer})
	if g := ids(got); len(g) != 1 || g[0] != "t1" {
		t.Errorf("payer = %v, want [t1]", g)
	}
}

func TestFilterAndSort_ExternalRowsMatchOwnerOnly(t *testing.T) {
	// t4 is a deposit for alice: it must never show up for other users.
	got := filterAndSort(sample(), "carol", ledger.ListFilter{Role: ledger.RoleAny})
	if g := ids(got); len(g) != 1 || g[0] != "t3" {
		t.Errorf("carol = %v, want [t3]", g)
	}
}

func TestScriptReply(t *testing.T) {
	code, values, err := scriptReply([]interface{}{int64(1), int64(60)})
	if err != nil || code != 1 || len(values) != 1 || values[0] != 60 {
		t.Errorf("scriptReply = %d %v %v", code, values, err)
	}

	if _, _, err := scriptReply("nope"); err == nil {
		t.Error("expected error for malformed reply")
	}
	if _, _, err := scriptReply([]interface{}{}); err == nil {
		t.Error("expected error for empty reply")
	}
}
