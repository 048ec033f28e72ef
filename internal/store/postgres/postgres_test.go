package postgres

import (
	"strings"
	"testing"

	"accord/internal/ledger"
	"accord/internal/model"
)

func TestListQuery(t *testing.T) {
	q, args := listQuery("alice", ledger.ListFilter{Role: ledger.RolePayee, Status: model.StatusPending})
	if !strings.Contains(q, "to_user_id = $1") {
		t.Errorf("payee query missing to_user_id clause: %s", q)
	}
	if !strings.Contains(q, "status = $2") {
		t.Errorf("status clause missing: %s", q)
	}
	if !strings.Contains(q, "ORDER BY created_at DESC") {
		t.Errorf("ordering missing: %s", q)
	}
	if len(args) != 2 || args[0] != "alice" || args[1] != model.StatusPending {
		t.Errorf("args = %v", args)
	}

	q, args = listQuery("alice", ledger.ListFilter{Role: ledger.RoleAny})
	if !strings.Contains(q, "(from_user_id = $1 OR to_user_id = $1)") {
		t.Errorf("any-role query wrong: %s", q)
	}
	if len(args) != 1 {
		t.Errorf("args = %v, want just the user id", args)
	}

	q, _ = listQuery("alice", ledger.ListFilter{Role: ledger.RolePayer})
	if !strings.Contains(q, "from_user_id = $1") || strings.Contains(q, "OR to_user_id") {
		t.Errorf("payer query wrong: %s", q)
	}
}
