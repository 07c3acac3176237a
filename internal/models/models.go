// Package models holds the persistence-agnostic entities shared by every
// indexing component. None of these types imply a storage schema; see
// internal/store for the persistence boundary.
package models

import "time"

// FeedStatus is the lifecycle state of a Feed.
type FeedStatus string

const (
	FeedStatusActive   FeedStatus = "active"
	FeedStatusInactive FeedStatus = "inactive"
)

// SourceType classifies where a Feed draws its data from.
type SourceType string

const (
	SourceTypeCEX  SourceType = "CEX"
	SourceTypeDEX  SourceType = "DEX"
	SourceTypeNone SourceType = ""
)

// FundingType classifies how a Feed's publication is funded.
type FundingType string

const (
	FundingShowcase   FundingType = "showcase"
	FundingPaid       FundingType = "paid"
	FundingSubsidized FundingType = "subsidized"
	FundingNone       FundingType = ""
)

// ArchiveSourceType classifies an archived fact's participating Source.
type ArchiveSourceType string

const (
	ArchiveSourceCEXAPI ArchiveSourceType = "CEX API"
	ArchiveSourceDEXLP  ArchiveSourceType = "DEX LP"
)

// NodeType classifies a participating archival Node.
type NodeType string

const (
	NodeTypeFederated    NodeType = "federated"
	NodeTypeDecentralized NodeType = "decentralized"
	NodeTypeITN          NodeType = "itn"
)

// Network is a Cardano network (Mainnet, Preview, ...) this indexer tracks.
//
// Policy is a cyclic reference in the domain model: policies belong to a
// network, and the "current" policy is derived from the last element of
// Policies. We never persist a back-pointer; Policies is hydrated at read
// time from the store by network ID.
type Network struct {
	ID                  string
	Name                string
	FactStatementPointer string // hex policy pointer
	ScriptToken         string // hex asset name
	ChainIndexBaseURL   string
	ActiveFeedsURL      string
	ZeroTimeMs          int64
	ZeroSlot            int64
	SlotLengthMs        int64
	LastBlockHash       string
	LastCheckpointSlot  int64
	IsEnabled           bool
	IgnorePolicies      map[string]struct{}
	Policies            []Policy // ordered ascending by StartingSlot; last is current
	TracksArchives      bool     // archive indexer only runs where true (Mainnet by default)
}

// CurrentPolicy returns the network's active policy, or the zero value and
// false if the network has no policies yet.
func (n Network) CurrentPolicy() (Policy, bool) {
	if len(n.Policies) == 0 {
		return Policy{}, false
	}
	return n.Policies[len(n.Policies)-1], true
}

// Policy is one generation of the oracle's fact-statement-pointer policy
// lineage for a Network. Within a network, Policies are ordered by
// StartingSlot ascending.
type Policy struct {
	ID                string
	NetworkID         string
	PolicyID          string // hex
	StartingSlot      int64
	StartingBlockHash string
	StartingDate      time.Time
}

// FactStatement is a single oracle publication, plus (once archived) the
// fields resolved from its archival package.
type FactStatement struct {
	ID              string
	NetworkID       string
	FeedID          string
	PolicyID        string
	FactURN         string
	StorageURN      string // may be empty when archival failed
	TransactionID   string
	BlockHash       string
	Slot            int64
	Address         string
	OutputIndex     int
	StatementHash   string // BLAKE2b-256(datum_hash || fact_urn), hex
	Value           float64
	ValueInverse    float64
	PublicationDate time.Time // derived from Slot
	ValidationDate  time.Time // from datum
	PublicationCost float64   // coins / 1_000_000
	DatumHash       string
	IsArchiveIndexed bool

	// Post-archive fields.
	ContentSignature    string
	CollectionDate      time.Time
	ParticipatingNodes  []string // Node IDs
	Sources             []string // Source IDs
}

// Feed is a published oracle feed (a "type/label/version" triple).
type Feed struct {
	ID                string
	NetworkID         string
	FeedID            string // "type/label/version"
	Type              string
	Name              string
	Version           string
	Status            FeedStatus
	SourceType        SourceType
	FundingType       FundingType
	CalculationMethod string
	HeartbeatInterval int
	Deviation         float64
	BaseAssetID       string
	QuoteAssetID      string
}

// Asset is a ticker referenced by one or more feeds.
type Asset struct {
	ID                    string
	Ticker                string // unique, case-insensitive
	Fingerprint           string
	HasXerberusRiskRating bool
}

// Node is a federated/decentralized participant that contributed to an
// archived fact's validation.
type Node struct {
	ID        string
	NetworkID string
	NodeURN   string
	Name      string
	Status    string
	Type      NodeType
	Locality  string
	Region    string
	Geo       string
}

// Source is a price/liquidity data source named in an archived fact's
// message files.
type Source struct {
	ID             string
	NetworkID      string
	Name           string
	Type           ArchiveSourceType
	Sender         string
	Recipient      string // uniqueness anchor within a network
	Status         string
	Website        string
	ImagePath      string
	BackgroundColor string
}
