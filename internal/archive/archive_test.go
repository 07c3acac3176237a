package archive

import (
	"context"
	"testing"
	"time"

	"github.com/orcfax/fact-index/internal/models"
)

// TestResolveSourceRotation covers a cached source seen again under a new
// recipient (its publishing key rotated). The old record must be retired
// to inactive and a new one created that inherits the old one's
// presentation metadata.
func TestResolveSourceRotation(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{
		sources: []models.Source{
			{
				NetworkID:       "net1",
				Name:            "kraken",
				Type:            models.ArchiveSourceCEXAPI,
				Sender:          "https://kraken.com",
				Recipient:       "did:key:old",
				Status:          "active",
				Website:         "https://kraken.com",
				ImagePath:       "/img/kraken.png",
				BackgroundColor: "#5741D9",
			},
		},
	}
	idx := &Indexer{store: fs}

	msg := FactSourceMessage{
		IsBasedOn: FactSourceIsBasedOn{AdditionalType: "Central Exchange Data"},
		Sender:    "https://kraken.com",
		Recipient: "did:key:new",
	}

	got, isNew, err := idx.resolveSource(context.Background(), "net1", "message-kraken-2026-01-01T00:00:00Z.json", msg, fs.sources)
	if err != nil {
		t.Fatalf("resolveSource: %v", err)
	}
	if !isNew {
		t.Error("resolveSource should report a new record on rotation")
	}
	if got.Recipient != "did:key:new" {
		t.Errorf("Recipient = %q, want did:key:new", got.Recipient)
	}
	if got.Website != "https://kraken.com" || got.ImagePath != "/img/kraken.png" || got.BackgroundColor != "#5741D9" {
		t.Errorf("new source did not inherit presentation metadata: %+v", got)
	}

	var old models.Source
	for _, s := range fs.sources {
		if s.Recipient == "did:key:old" {
			old = s
		}
	}
	if old.Status != "inactive" {
		t.Errorf("old source status = %q, want inactive", old.Status)
	}
}

func TestResolveSourceReusesByRecipient(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{
		sources: []models.Source{
			{NetworkID: "net1", Name: "kraken", Type: models.ArchiveSourceCEXAPI, Sender: "https://kraken.com", Recipient: "did:key:same", Status: "active"},
		},
	}
	idx := &Indexer{store: fs}
	msg := FactSourceMessage{
		IsBasedOn: FactSourceIsBasedOn{AdditionalType: "Central Exchange Data"},
		Sender:    "https://kraken.com",
		Recipient: "did:key:same",
	}
	_, isNew, err := idx.resolveSource(context.Background(), "net1", "message-kraken-2026-01-01T00:00:00Z.json", msg, fs.sources)
	if err != nil {
		t.Fatalf("resolveSource: %v", err)
	}
	if isNew {
		t.Error("resolveSource should reuse the cached record by recipient, not create a new one")
	}
	if len(fs.sources) != 1 {
		t.Errorf("got %d sources, want 1 (no new record created)", len(fs.sources))
	}
}

func TestExtractContentSignature(t *testing.T) {
	t.Parallel()
	vf := ValidationFile{
		AdditionalType: []ValidationAdditionalType{
			{
				RecordedIn: ValidationRecordedIn{
					Description: ValidationDescription{SHA256: "abc123"},
					HasPart:     []ValidationPart{{Text: "2026-01-15T12:00:00Z"}},
				},
			},
		},
	}
	sig, collected, err := extractContentSignature(vf)
	if err != nil {
		t.Fatalf("extractContentSignature: %v", err)
	}
	if sig != "abc123" {
		t.Errorf("signature = %q, want abc123", sig)
	}
	want := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	if !collected.Equal(want) {
		t.Errorf("collectionDate = %v, want %v", collected, want)
	}
}

func TestSourceNameToken(t *testing.T) {
	t.Parallel()
	tests := []struct{ basename, want string }{
		{"message-kraken-2026-01-15T12:00:00Z.json", "kraken"},
		{"message-coinbase.tick_001.json", "coinbase"},
	}
	for _, tt := range tests {
		if got := sourceNameToken(tt.basename); got != tt.want {
			t.Errorf("sourceNameToken(%q) = %q, want %q", tt.basename, got, tt.want)
		}
	}
}

func TestNormalizeSender(t *testing.T) {
	t.Parallel()
	if got := normalizeSender("https://kraken.com/api/v2/ticker"); got != "https://kraken.com" {
		t.Errorf("normalizeSender = %q, want https://kraken.com", got)
	}
	if got := normalizeSender("did:key:abc"); got != "did:key:abc" {
		t.Errorf("normalizeSender should pass through non-https senders unchanged, got %q", got)
	}
}
