package archive

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/store"
)

// ValidationFile is the parsed shape of an archive's single validation-*
// entry.
type ValidationFile struct {
	IsBasedOn    ValidationIsBasedOn    `json:"isBasedOn"`
	Contributor  ValidationContributor  `json:"contributor"`
	AdditionalType []ValidationAdditionalType `json:"additionalType"`
}

// ValidationIsBasedOn names the node that produced a validation record.
type ValidationIsBasedOn struct {
	Identifier string `json:"identifier"`
}

// ValidationContributor carries presentation metadata for the node.
type ValidationContributor struct {
	Name     string `json:"name"`
	Locality string `json:"locality"`
}

// ValidationAdditionalType wraps the recordedIn block the fact-patch step
// reads content_signature and collection_date from.
type ValidationAdditionalType struct {
	RecordedIn ValidationRecordedIn `json:"recordedIn"`
}

// ValidationRecordedIn carries the content hash and collection timestamp.
type ValidationRecordedIn struct {
	Description ValidationDescription `json:"description"`
	HasPart     []ValidationPart       `json:"hasPart"`
}

// ValidationDescription carries the archive's content signature.
type ValidationDescription struct {
	SHA256 string `json:"sha256"`
}

// ValidationPart is one part of recordedIn.hasPart; index 0 carries the
// collection-date text.
type ValidationPart struct {
	Text string `json:"text"`
}

// FactSourceMessage is the parsed shape of one message-* entry, describing
// a single participating price/liquidity data source.
type FactSourceMessage struct {
	IsBasedOn FactSourceIsBasedOn `json:"isBasedOn"`
	Sender    string              `json:"sender"`
	Recipient string              `json:"recipient"`
}

// FactSourceIsBasedOn classifies the source's underlying venue type.
type FactSourceIsBasedOn struct {
	AdditionalType string `json:"additionalType"`
}

// resolveNode returns the (network, node_urn) node named by vf, creating it
// if not cached. The second return value is non-nil only when the node was
// newly created.
func (idx *Indexer) resolveNode(ctx context.Context, networkID string, vf ValidationFile, nodes []models.Node) (models.Node, *models.Node, error) {
	urn := vf.IsBasedOn.Identifier
	if urn == "" {
		return models.Node{}, nil, fmt.Errorf("validation file missing isBasedOn.identifier")
	}
	for _, n := range nodes {
		if n.NetworkID == networkID && n.NodeURN == urn {
			return n, nil, nil
		}
	}
	created, err := idx.store.CreateNode(ctx, models.Node{
		NetworkID: networkID,
		NodeURN:   urn,
		Name:      vf.Contributor.Name,
		Locality:  vf.Contributor.Locality,
		Status:    "active",
		Type:      models.NodeTypeFederated,
	})
	if err != nil {
		return models.Node{}, nil, fmt.Errorf("create node %s: %w", urn, err)
	}
	return created, &created, nil
}

// resolveSource applies the reuse/rotation rules for participating
// sources: a cached (network, recipient) match is reused outright; a
// cached (network, name, type, sender) match under a *different* recipient
// is retired and a fresh record created carrying forward its presentation
// metadata; otherwise a brand new source is created. The returned bool
// indicates a new record was created (reused records are not "new").
func (idx *Indexer) resolveSource(ctx context.Context, networkID, basename string, msg FactSourceMessage, sources []models.Source) (models.Source, bool, error) {
	name := sourceNameToken(basename)
	if name == "" {
		return models.Source{}, false, fmt.Errorf("could not extract source name from %q", basename)
	}
	srcType := models.ArchiveSourceDEXLP
	if msg.IsBasedOn.AdditionalType == "Central Exchange Data" {
		srcType = models.ArchiveSourceCEXAPI
	}
	sender := normalizeSender(msg.Sender)

	for _, s := range sources {
		if s.NetworkID == networkID && s.Recipient == msg.Recipient {
			return s, false, nil
		}
	}

	for _, s := range sources {
		if s.NetworkID == networkID && s.Name == name && s.Type == srcType && s.Sender == sender && s.Recipient != msg.Recipient {
			s.Status = "inactive"
			if err := idx.store.UpdateSource(ctx, s); err != nil {
				return models.Source{}, false, fmt.Errorf("retire rotated source %s: %w", s.Recipient, err)
			}
			created, err := idx.store.CreateSource(ctx, models.Source{
				NetworkID:       networkID,
				Name:            name,
				Type:            srcType,
				Sender:          sender,
				Recipient:       msg.Recipient,
				Status:          "active",
				Website:         s.Website,
				ImagePath:       s.ImagePath,
				BackgroundColor: s.BackgroundColor,
			})
			if err != nil {
				return models.Source{}, false, fmt.Errorf("create rotated source %s: %w", msg.Recipient, err)
			}
			return created, true, nil
		}
	}

	created, err := idx.store.CreateSource(ctx, models.Source{
		NetworkID: networkID,
		Name:      name,
		Type:      srcType,
		Sender:    sender,
		Recipient: msg.Recipient,
		Status:    "active",
	})
	if err != nil {
		return models.Source{}, false, fmt.Errorf("create source %s: %w", msg.Recipient, err)
	}
	return created, true, nil
}

func normalizeSender(sender string) string {
	if !strings.HasPrefix(sender, "https://") {
		return sender
	}
	rest := strings.TrimPrefix(sender, "https://")
	host := strings.SplitN(rest, "/", 2)[0]
	return "https://" + host
}

// extractContentSignature reads the validation file's content_signature
// and collection_date.
func extractContentSignature(vf ValidationFile) (signature string, collectionDate time.Time, err error) {
	if len(vf.AdditionalType) == 0 {
		return "", time.Time{}, fmt.Errorf("validation file missing additionalType")
	}
	recordedIn := vf.AdditionalType[0].RecordedIn
	signature = recordedIn.Description.SHA256
	if signature == "" {
		return "", time.Time{}, fmt.Errorf("validation file missing recordedIn.description.sha256")
	}
	if len(recordedIn.HasPart) == 0 {
		return "", time.Time{}, fmt.Errorf("validation file missing recordedIn.hasPart")
	}
	text := recordedIn.HasPart[0].Text
	collectionDate, err = time.Parse(time.RFC3339, text)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parse collection date %q: %w", text, err)
	}
	return signature, collectionDate, nil
}

func (idx *Indexer) logFailure(ctx context.Context, networkID string, f models.FactStatement, cause error) {
	log.Printf("[archive] fact %s: %v", f.FactURN, cause)
	if err := idx.store.LogIndexingError(ctx, store.IndexingError{
		NetworkID:     networkID,
		Slot:          f.Slot,
		TransactionID: f.TransactionID,
		Kind:          "PermanentArchiveError",
		Message:       cause.Error(),
	}); err != nil {
		log.Printf("[archive] failed to log indexing error: %v", err)
	}
}
