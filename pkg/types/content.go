package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// MetadataKind discriminates the Metadata variants on the wire.
type MetadataKind string

const (
	MetadataHeuristic   MetadataKind = "heuristic"
	MetadataAIGenerated MetadataKind = "ai_generated"
)

// MetadataFields are shared by every Metadata variant.
type MetadataFields struct {
	WebsiteURL  string     `json:"websiteUrl"`
	GeneratedAt time.Time  `json:"generatedAt"`
	TotalPages  int        `json:"totalPages"`
	Categories  []Category `json:"categories"`
}

// Metadata is either HeuristicMetadata or AIGeneratedMetadata. Consumers switch on the
// concrete type.
type Metadata interface {
	Fields() MetadataFields
	Kind() MetadataKind
}

// HeuristicMetadata marks a summary produced by the deterministic renderer.
type HeuristicMetadata struct {
	MetadataFields
}

func (m HeuristicMetadata) Fields() MetadataFields { return m.MetadataFields }
func (HeuristicMetadata) Kind() MetadataKind       { return MetadataHeuristic }

// AIGeneratedMetadata carries the prose returned by the text generator, which supersedes the
// heuristic summary.
type AIGeneratedMetadata struct {
	MetadataFields
	Prose string
}

func (m AIGeneratedMetadata) Fields() MetadataFields { return m.MetadataFields }
func (AIGeneratedMetadata) Kind() MetadataKind       { return MetadataAIGenerated }

// LlmsTxtContent is the synthesized artifact: pages sorted by importance plus metadata.
type LlmsTxtContent struct {
	Pages    []ProcessedPage
	Metadata Metadata
}

type contentStructureJSON struct {
	Pages []ProcessedPage `json:"pages"`
}

type metadataJSON struct {
	Kind MetadataKind `json:"kind"`
	MetadataFields
	AIGeneratedContent string `json:"aiGeneratedContent,omitempty"`
}

type contentJSON struct {
	Structure contentStructureJSON `json:"structure"`
	Metadata  metadataJSON         `json:"metadata"`
}

// MarshalJSON writes {"structure":{"pages":[...]}, "metadata":{"kind":...}}.
func (c LlmsTxtContent) MarshalJSON() ([]byte, error) {
	out := contentJSON{Structure: contentStructureJSON{Pages: c.Pages}}
	if out.Structure.Pages == nil {
		out.Structure.Pages = []ProcessedPage{}
	}
	switch m := c.Metadata.(type) {
	case AIGeneratedMetadata:
		out.Metadata = metadataJSON{Kind: MetadataAIGenerated, MetadataFields: m.MetadataFields, AIGeneratedContent: m.Prose}
	case HeuristicMetadata:
		out.Metadata = metadataJSON{Kind: MetadataHeuristic, MetadataFields: m.MetadataFields}
	case nil:
		out.Metadata = metadataJSON{Kind: MetadataHeuristic}
	default:
		return nil, fmt.Errorf("unsupported metadata type %T", c.Metadata)
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the metadata variant from its kind; a missing kind with prose is
// read as AI generated.
func (c *LlmsTxtContent) UnmarshalJSON(data []byte) error {
	var in contentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.Pages = in.Structure.Pages
	kind := in.Metadata.Kind
	if kind == "" {
		kind = MetadataHeuristic
		if in.Metadata.AIGeneratedContent != "" {
			kind = MetadataAIGenerated
		}
	}
	switch kind {
	case MetadataAIGenerated:
		c.Metadata = AIGeneratedMetadata{MetadataFields: in.Metadata.MetadataFields, Prose: in.Metadata.AIGeneratedContent}
	case MetadataHeuristic:
		c.Metadata = HeuristicMetadata{MetadataFields: in.Metadata.MetadataFields}
	default:
		return fmt.Errorf("unknown metadata kind %q", kind)
	}
	return nil
}

// Fields returns the shared metadata, or the zero value when none is set.
func (c LlmsTxtContent) Fields() MetadataFields {
	if c.Metadata == nil {
		return MetadataFields{}
	}
	return c.Metadata.Fields()
}
