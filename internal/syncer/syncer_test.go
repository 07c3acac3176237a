package syncer

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/orcfax/fact-index/internal/chainindex"
	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/policy"
)

func policyDatumHex(t *testing.T, raw []byte) string {
	t.Helper()
	encoded, err := cbor.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal policy datum fixture: %v", err)
	}
	return hex.EncodeToString(encoded)
}

func testNet() models.Network {
	return models.Network{
		ID:                   "net1",
		Name:                 "testnet",
		FactStatementPointer: "ptr",
		ScriptToken:          "tok",
		ZeroTimeMs:           0,
		ZeroSlot:             0,
		SlotLengthMs:         1000,
	}
}

// TestTickRollback covers a rollback: a stored checkpoint of 100 meets a
// server-reported most-recent-checkpoint of 90, so every fact with
// slot > 90 must be deleted before the new batch is
// applied, and the checkpoint must fall back to 90.
func TestTickRollback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/matches/ptr.tok":
			// Rotate's unspent lookup: no candidate, no rotation.
			w.Header().Set("etag", "bh-ptr")
			w.Header().Set("x-most-recent-checkpoint", "90")
			w.Write([]byte("[]"))
		case r.URL.Path == "/matches/p1hex.*":
			w.Header().Set("etag", "bh90")
			w.Header().Set("x-most-recent-checkpoint", "90")
			w.Write([]byte("[]"))
		default:
			t.Errorf("unexpected request path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := chainindex.NewClient(srv.URL, 0)
	fs := newFakeStore()

	net := testNet()
	net.LastBlockHash = "bh100"
	net.LastCheckpointSlot = 100
	fs.networks[net.ID] = net

	p1 := models.Policy{ID: "p1", NetworkID: net.ID, PolicyID: "p1hex", StartingSlot: 0}
	fs.policies[net.ID] = []models.Policy{p1}
	net.Policies = []models.Policy{p1}

	fs.facts["net1|f85"] = models.FactStatement{NetworkID: net.ID, FactURN: "f85", Slot: 85}
	fs.facts["net1|f101"] = models.FactStatement{NetworkID: net.ID, FactURN: "f101", Slot: 101}
	fs.facts["net1|f150"] = models.FactStatement{NetworkID: net.ID, FactURN: "f150", Slot: 150}

	s := New(fs, policy.New(fs))
	if err := s.Tick(context.Background(), client, net); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if _, ok := fs.facts["net1|f85"]; !ok {
		t.Error("fact at slot 85 should survive the rollback repair")
	}
	if _, ok := fs.facts["net1|f101"]; ok {
		t.Error("fact at slot 101 should have been deleted by the rollback repair")
	}
	if _, ok := fs.facts["net1|f150"]; ok {
		t.Error("fact at slot 150 should have been deleted by the rollback repair")
	}

	updated := fs.networks[net.ID]
	if updated.LastCheckpointSlot != 90 {
		t.Errorf("LastCheckpointSlot = %d, want 90", updated.LastCheckpointSlot)
	}
	if updated.LastBlockHash != "bh90" {
		t.Errorf("LastBlockHash = %q, want bh90", updated.LastBlockHash)
	}
}

// TestTickPolicyRotation covers a policy rotation: policy P1 started at
// slot 50, P2 starts at slot 200, and the last indexed fact under P1 sits
// at slot 120. A rotation tick must close out P1 with a bounded fetch
// [120, 200) and then fetch unbounded under P2 from 200.
func TestTickPolicyRotation(t *testing.T) {
	t.Parallel()

	newPolicyDatum := policyDatumHex(t, []byte{0xab, 0xcd})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.URL.Path == "/matches/ptr.tok" && q.Get("unspent") == "true":
			w.Header().Set("etag", "bh200")
			w.Header().Set("x-most-recent-checkpoint", "200")
			w.Write([]byte(`[{"transaction_id":"tx-rot","output_index":0,"address":"addrR","value":{"coins":0,"assets":{}},"datum_hash":"dh-rotate","datum_type":"inline","created_at":{"slot_no":200,"header_hash":"bh200"}}]`))
		case r.URL.Path == "/datums/dh-rotate":
			w.Write([]byte(fmt.Sprintf(`{"datum":"%s"}`, newPolicyDatum)))
		case r.URL.Path == "/matches/p1hex.*":
			if q.Get("created_after") != "120" || q.Get("created_before") != "200" {
				t.Errorf("close-out fetch query = %v, want created_after=120 created_before=200", q)
			}
			w.Header().Set("etag", "bh-close")
			w.Header().Set("x-most-recent-checkpoint", "200")
			w.Write([]byte("[]"))
		case r.URL.Path == "/matches/abcd.*":
			if q.Get("created_after") != "200" || q.Get("created_before") != "" {
				t.Errorf("new-policy fetch query = %v, want created_after=200 unbounded", q)
			}
			w.Header().Set("etag", "bh-new")
			w.Header().Set("x-most-recent-checkpoint", "200")
			w.Write([]byte("[]"))
		default:
			t.Errorf("unexpected request %s %v", r.URL.Path, q)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := chainindex.NewClient(srv.URL, 0)
	fs := newFakeStore()

	net := testNet()
	p1 := models.Policy{ID: "p1", NetworkID: net.ID, PolicyID: "p1hex", StartingSlot: 50}
	fs.policies[net.ID] = []models.Policy{p1}
	net.Policies = []models.Policy{p1}
	fs.networks[net.ID] = net

	fs.facts["net1|last"] = models.FactStatement{NetworkID: net.ID, FactURN: "last", Slot: 120, PolicyID: p1.ID}

	s := New(fs, policy.New(fs))
	if err := s.Tick(context.Background(), client, net); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	policies := fs.policies[net.ID]
	if len(policies) != 2 {
		t.Fatalf("got %d policies, want 2 (rotation should append one)", len(policies))
	}
	if policies[1].PolicyID != "abcd" || policies[1].StartingSlot != 200 {
		t.Errorf("new policy = %+v, want PolicyID=abcd StartingSlot=200", policies[1])
	}

	updated := fs.networks[net.ID]
	if updated.LastCheckpointSlot != 200 {
		t.Errorf("LastCheckpointSlot = %d, want 200 (checkpoint must persist after a rotation tick too)", updated.LastCheckpointSlot)
	}
	if updated.LastBlockHash != "bh-new" {
		t.Errorf("LastBlockHash = %q, want bh-new", updated.LastBlockHash)
	}
}
