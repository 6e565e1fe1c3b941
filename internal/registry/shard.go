package registry

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// ShardingStrategy selects how a document's content is split into shards,
// ported from original_source's document_sharding.py (SPEC_FULL.md §3.1).
type ShardingStrategy string

const (
	ShardBySection   ShardingStrategy = "section_based"
	ShardBySize      ShardingStrategy = "size_based"
	ShardByParagraph ShardingStrategy = "paragraph"
)

// Shard is one piece of a sharded document.
type Shard struct {
	ID         string    `json:"id"`
	ParentID   string    `json:"parent_id"`
	Index      int       `json:"index"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	References []string  `json:"references"`
	CreatedAt  time.Time `json:"created_at"`
	SizeBytes  int       `json:"size_bytes"`
	LineCount  int       `json:"line_count"`
	WordCount  int       `json:"word_count"`
}

// ShardIndex describes the shards belonging to a document and their
// sibling/reference relationships, for navigation without reassembly.
type ShardIndex struct {
	DocumentID    string              `json:"document_id"`
	Title         string              `json:"title"`
	TotalShards   int                 `json:"total_shards"`
	Shards        []ShardSummary      `json:"shards"`
	Relationships map[string][]string `json:"relationships"`
	CreatedAt     time.Time           `json:"created_at"`
}

// ShardSummary is the lightweight entry recorded per shard in a ShardIndex.
type ShardSummary struct {
	ID        string `json:"id"`
	Index     int    `json:"index"`
	Title     string `json:"title"`
	SizeBytes int    `json:"size_bytes"`
}

// ShardOptions bounds the size of produced shards.
type ShardOptions struct {
	MaxShardSize  int // max characters per shard
	MaxShardLines int // max lines per shard
	MinShardSize  int // section-based strategy only: minimum before a header may start a new shard
}

// DefaultShardOptions mirrors the original system's defaults.
func DefaultShardOptions() ShardOptions {
	return ShardOptions{MaxShardSize: 50000, MaxShardLines: 1000, MinShardSize: 1000}
}

var (
	headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	linkPattern   = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	shardRefRe    = regexp.MustCompile(`@shard:([a-f0-9-]+)`)
	blankLineRe   = regexp.MustCompile(`\n\s*\n`)
)

// ShardDocument splits content into shards under the given strategy and
// returns them alongside a navigable index.
func ShardDocument(documentID, title, content string, strategy ShardingStrategy, opts ShardOptions) ([]Shard, ShardIndex, error) {
	var pieces []titledPiece

	switch strategy {
	case ShardBySection:
		pieces = shardBySection(content, opts)
	case ShardBySize:
		pieces = shardBySize(content, opts)
	case ShardByParagraph:
		pieces = shardByParagraph(content, opts)
	default:
		return nil, ShardIndex{}, orcherr.InvalidArgumentf("unsupported sharding strategy %q", strategy)
	}

	shards := make([]Shard, 0, len(pieces))
	for i, p := range pieces {
		shardTitle := p.title
		if shardTitle == "" {
			shardTitle = title + " - Part " + strconv.Itoa(i+1)
		}
		shards = append(shards, Shard{
			ID:         uuid.New().String(),
			ParentID:   documentID,
			Index:      i,
			Title:      shardTitle,
			Content:    p.content,
			References: extractReferences(p.content),
			CreatedAt:  time.Now().UTC(),
			SizeBytes:  len(p.content),
			LineCount:  len(strings.Split(p.content, "\n")),
			WordCount:  len(strings.Fields(p.content)),
		})
	}

	idx := ShardIndex{
		DocumentID:    documentID,
		Title:         title,
		TotalShards:   len(shards),
		Shards:        make([]ShardSummary, 0, len(shards)),
		Relationships: buildRelationships(shards),
		CreatedAt:     time.Now().UTC(),
	}
	for _, s := range shards {
		idx.Shards = append(idx.Shards, ShardSummary{ID: s.ID, Index: s.Index, Title: s.Title, SizeBytes: s.SizeBytes})
	}

	return shards, idx, nil
}

// Reassemble concatenates shards (already sorted by Index) back into the
// original document content.
func Reassemble(shards []Shard) string {
	parts := make([]string, len(shards))
	for i, s := range shards {
		parts[i] = s.Content
	}
	return strings.Join(parts, "\n")
}

type titledPiece struct {
	title   string
	content string
}

func shardBySection(content string, opts ShardOptions) []titledPiece {
	lines := strings.Split(content, "\n")
	var pieces []titledPiece
	var current []string
	var currentTitle string
	currentSize := 0

	flush := func() {
		if len(current) > 0 {
			pieces = append(pieces, titledPiece{title: currentTitle, content: strings.Join(current, "\n")})
		}
	}

	for _, line := range lines {
		match := headerPattern.FindStringSubmatch(line)
		if match != nil && currentSize > opts.MinShardSize {
			flush()
			current = []string{line}
			currentTitle = match[2]
			currentSize = len(line)
			continue
		}

		current = append(current, line)
		currentSize += len(line)
		if currentTitle == "" && match != nil {
			currentTitle = match[2]
		}

		if currentSize > opts.MaxShardSize || len(current) > opts.MaxShardLines {
			flush()
			current = nil
			currentTitle = ""
			currentSize = 0
		}
	}
	flush()

	if len(pieces) == 0 {
		return []titledPiece{{content: content}}
	}
	return pieces
}

func shardBySize(content string, opts ShardOptions) []titledPiece {
	lines := strings.Split(content, "\n")
	var pieces []titledPiece
	var current []string
	currentSize := 0
	shardNum := 1

	for _, line := range lines {
		current = append(current, line)
		currentSize += len(line)
		if currentSize > opts.MaxShardSize || len(current) > opts.MaxShardLines {
			pieces = append(pieces, titledPiece{title: "Part " + strconv.Itoa(shardNum), content: strings.Join(current, "\n")})
			current = nil
			currentSize = 0
			shardNum++
		}
	}
	if len(current) > 0 {
		pieces = append(pieces, titledPiece{title: "Part " + strconv.Itoa(shardNum), content: strings.Join(current, "\n")})
	}
	if len(pieces) == 0 {
		return []titledPiece{{content: content}}
	}
	return pieces
}

func shardByParagraph(content string, opts ShardOptions) []titledPiece {
	paragraphs := blankLineRe.Split(content, -1)
	var pieces []titledPiece
	var current []string
	currentSize := 0
	shardNum := 1

	for _, para := range paragraphs {
		paraSize := len(para)
		if currentSize+paraSize > opts.MaxShardSize && len(current) > 0 {
			pieces = append(pieces, titledPiece{title: "Part " + strconv.Itoa(shardNum), content: strings.Join(current, "\n\n")})
			current = []string{para}
			currentSize = paraSize
			shardNum++
			continue
		}
		current = append(current, para)
		currentSize += paraSize
	}
	if len(current) > 0 {
		pieces = append(pieces, titledPiece{title: "Part " + strconv.Itoa(shardNum), content: strings.Join(current, "\n\n")})
	}
	if len(pieces) == 0 {
		return []titledPiece{{content: content}}
	}
	return pieces
}

func extractReferences(content string) []string {
	seen := map[string]bool{}
	var refs []string
	add := func(ref string) {
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	for _, m := range linkPattern.FindAllStringSubmatch(content, -1) {
		add(m[2])
	}
	for _, m := range shardRefRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	return refs
}

func buildRelationships(shards []Shard) map[string][]string {
	byID := make(map[string]bool, len(shards))
	for _, s := range shards {
		byID[s.ID] = true
	}

	rel := make(map[string][]string)
	for i, s := range shards {
		var related []string
		if i > 0 {
			related = append(related, shards[i-1].ID)
		}
		if i < len(shards)-1 {
			related = append(related, shards[i+1].ID)
		}
		for _, ref := range s.References {
			if byID[ref] {
				related = append(related, ref)
			}
		}
		if len(related) > 0 {
			rel[s.ID] = related
		}
	}
	return rel
}
