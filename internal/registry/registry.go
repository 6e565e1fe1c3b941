// Package registry implements the Document Registry (C1): a versioned
// artifact store with ACLs, dependencies, and typed search, grounded on
// the teacher's internal/team.Manager write-lock + atomic snapshot style.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// Registry is the single authority on document mutation (spec.md §5).
type Registry struct {
	mu sync.RWMutex

	documents      map[string]*models.Document // id -> document
	versionHistory map[string][]string         // root id -> [ids in creation order]

	typeIndex     map[models.DocumentType]map[string]bool
	statusIndex   map[models.DocumentStatus]map[string]bool
	workflowIndex map[string]map[string]bool
	teamIndex     map[string]map[string]bool
	tagIndex      map[string]map[string]bool
	creatorIndex  map[string]map[string]bool

	store Store
}

// Store persists the registry's full state as a self-describing byte stream.
type Store interface {
	Save(ctx context.Context, snapshot *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// Snapshot is the persisted shape of the registry (spec.md §6).
type Snapshot struct {
	Documents      map[string]*models.Document `json:"documents"`
	VersionHistory map[string][]string         `json:"version_history"`
}

// New builds an empty registry. store may be nil, in which case Save/Load
// are no-ops and the registry is purely in-memory.
func New(store Store) *Registry {
	return &Registry{
		documents:      make(map[string]*models.Document),
		versionHistory: make(map[string][]string),
		typeIndex:      make(map[models.DocumentType]map[string]bool),
		statusIndex:    make(map[models.DocumentStatus]map[string]bool),
		workflowIndex:  make(map[string]map[string]bool),
		teamIndex:      make(map[string]map[string]bool),
		tagIndex:       make(map[string]map[string]bool),
		creatorIndex:   make(map[string]map[string]bool),
		store:          store,
	}
}

// CreateRequest describes a new document.
type CreateRequest struct {
	Title      string
	Type       models.DocumentType
	Content    []byte
	Owner      string
	WorkflowID string
	TeamID     string
	Tags       []string
}

func digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Create stores a new document, rooted at its own id.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*models.Document, error) {
	if req.Title == "" {
		return nil, orcherr.InvalidArgumentf("title is required")
	}
	if req.Owner == "" {
		return nil, orcherr.InvalidArgumentf("owner is required")
	}

	now := time.Now().UTC()
	id := uuid.New().String()

	doc := &models.Document{
		ID:          id,
		RootID:      id,
		Title:       req.Title,
		Type:        req.Type,
		Status:      models.StatusDraft,
		Version:     1,
		Creator:     req.Owner,
		Modifier:    req.Owner,
		CreatedAt:   now,
		UpdatedAt:   now,
		Content:     append([]byte(nil), req.Content...),
		ContentHash: digest(req.Content),
		Owner:       req.Owner,
		Readers:     map[string]bool{req.Owner: true},
		Writers:     map[string]bool{req.Owner: true},
		WorkflowID:  req.WorkflowID,
		TeamID:      req.TeamID,
		Tags:        tagSet(req.Tags),
	}

	r.mu.Lock()
	r.documents[id] = doc
	r.versionHistory[id] = []string{id}
	r.indexDocument(doc)
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return nil, err
	}

	return doc.Clone(), nil
}

func tagSet(tags []string) map[string]bool {
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return m
}

// Get fetches a document by id.
func (r *Registry) Get(id string) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.documents[id]
	if !ok {
		return nil, orcherr.NotFoundf("document %s not found", id)
	}
	return doc.Clone(), nil
}

// UpdateRequest describes a metadata or versioned content update.
type UpdateRequest struct {
	Actor         string
	NewContent    []byte // nil means metadata-only update
	NewStatus     *models.DocumentStatus
	CreateVersion bool
	AddTags       []string
	RemoveTags    []string
}

// Update mutates a document in place (metadata, and content when new
// content is supplied without CreateVersion), or — when CreateVersion
// is set and new content is supplied — appends a new version whose
// parent_version points at the prior leaf (spec.md §4.1, copy-on-write).
func (r *Registry) Update(ctx context.Context, id string, req UpdateRequest) (*models.Document, error) {
	r.mu.Lock()

	doc, ok := r.documents[id]
	if !ok {
		r.mu.Unlock()
		return nil, orcherr.NotFoundf("document %s not found", id)
	}
	if !doc.HasAccess(req.Actor, models.AccessWrite) {
		r.mu.Unlock()
		return nil, orcherr.New(orcherr.PermissionDenied, "actor lacks write access")
	}

	var result *models.Document

	if req.CreateVersion && req.NewContent != nil {
		now := time.Now().UTC()
		newID := uuid.New().String()
		newDoc := doc.Clone()
		newDoc.ID = newID
		newDoc.ParentVersion = doc.ID
		newDoc.Version = doc.Version + 1
		newDoc.Content = append([]byte(nil), req.NewContent...)
		newDoc.ContentHash = digest(req.NewContent)
		newDoc.Modifier = req.Actor
		newDoc.UpdatedAt = now
		newDoc.CreatedAt = now
		if req.NewStatus != nil {
			newDoc.Status = *req.NewStatus
		}
		applyTags(newDoc, req.AddTags, req.RemoveTags)

		r.documents[newID] = newDoc
		r.versionHistory[doc.RootID] = append(r.versionHistory[doc.RootID], newID)
		r.indexDocument(newDoc)
		result = newDoc
	} else {
		if req.NewContent != nil {
			doc.Content = append([]byte(nil), req.NewContent...)
			doc.ContentHash = digest(req.NewContent)
		}
		if req.NewStatus != nil {
			r.deindex(doc)
			doc.Status = *req.NewStatus
			applyTags(doc, req.AddTags, req.RemoveTags)
			r.indexDocument(doc)
		} else {
			applyTags(doc, req.AddTags, req.RemoveTags)
		}
		doc.Modifier = req.Actor
		doc.UpdatedAt = time.Now().UTC()
		result = doc
	}

	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

func applyTags(doc *models.Document, add, remove []string) {
	for _, t := range add {
		doc.Tags[t] = true
	}
	for _, t := range remove {
		delete(doc.Tags, t)
	}
}

// Archive sets a document's status to archived.
func (r *Registry) Archive(ctx context.Context, id, actor string) error {
	archived := models.StatusArchived
	_, err := r.Update(ctx, id, UpdateRequest{Actor: actor, NewStatus: &archived})
	return err
}

// Versions returns the version chain for rootID in creation order, the
// last element being the current document.
func (r *Registry) Versions(rootID string) ([]*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.versionHistory[rootID]
	if !ok {
		return nil, orcherr.NotFoundf("document %s not found", rootID)
	}
	docs := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, r.documents[id].Clone())
	}
	return docs, nil
}

// Current returns the leaf (most recent) version for rootID.
func (r *Registry) Current(rootID string) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids, ok := r.versionHistory[rootID]
	if !ok || len(ids) == 0 {
		return nil, orcherr.NotFoundf("document %s not found", rootID)
	}
	return r.documents[ids[len(ids)-1]].Clone(), nil
}

// SearchFilter narrows Search by any combination of fields (nil/empty = no filter).
type SearchFilter struct {
	Type       *models.DocumentType
	Status     *models.DocumentStatus
	WorkflowID string
	TeamID     string
	Tags       []string
	Creator    string
}

// Search is index-driven: applicable indices are intersected; a full scan
// runs only when no index applies (spec.md §4.1).
func (r *Registry) Search(filter SearchFilter) []*models.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sets []map[string]bool
	if filter.Type != nil {
		sets = append(sets, r.typeIndex[*filter.Type])
	}
	if filter.Status != nil {
		sets = append(sets, r.statusIndex[*filter.Status])
	}
	if filter.WorkflowID != "" {
		sets = append(sets, r.workflowIndex[filter.WorkflowID])
	}
	if filter.TeamID != "" {
		sets = append(sets, r.teamIndex[filter.TeamID])
	}
	if filter.Creator != "" {
		sets = append(sets, r.creatorIndex[filter.Creator])
	}
	for _, tag := range filter.Tags {
		sets = append(sets, r.tagIndex[tag])
	}

	var ids map[string]bool
	if len(sets) == 0 {
		ids = make(map[string]bool, len(r.documents))
		for id := range r.documents {
			ids[id] = true
		}
	} else {
		ids = intersect(sets)
	}

	out := make([]*models.Document, 0, len(ids))
	for id := range ids {
		out = append(out, r.documents[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func intersect(sets []map[string]bool) map[string]bool {
	if len(sets) == 0 {
		return nil
	}
	result := make(map[string]bool)
	for id := range sets[0] {
		result[id] = true
	}
	for _, s := range sets[1:] {
		for id := range result {
			if !s[id] {
				delete(result, id)
			}
		}
	}
	return result
}

// GrantAccess grants the given level to agentID on the document.
func (r *Registry) GrantAccess(ctx context.Context, docID, actor, agentID string, level models.AccessLevel) error {
	r.mu.Lock()
	doc, ok := r.documents[docID]
	if !ok {
		r.mu.Unlock()
		return orcherr.NotFoundf("document %s not found", docID)
	}
	if !doc.HasAccess(actor, models.AccessAdmin) && actor != doc.Owner {
		r.mu.Unlock()
		return orcherr.New(orcherr.PermissionDenied, "only the owner may grant access")
	}
	switch level {
	case models.AccessRead:
		doc.Readers[agentID] = true
	case models.AccessWrite:
		doc.Readers[agentID] = true
		doc.Writers[agentID] = true
	}
	r.mu.Unlock()
	return r.persist(ctx)
}

// RevokeAccess revokes all access for agentID on the document.
func (r *Registry) RevokeAccess(ctx context.Context, docID, actor, agentID string) error {
	r.mu.Lock()
	doc, ok := r.documents[docID]
	if !ok {
		r.mu.Unlock()
		return orcherr.NotFoundf("document %s not found", docID)
	}
	if actor != doc.Owner {
		r.mu.Unlock()
		return orcherr.New(orcherr.PermissionDenied, "only the owner may revoke access")
	}
	delete(doc.Readers, agentID)
	delete(doc.Writers, agentID)
	r.mu.Unlock()
	return r.persist(ctx)
}

// AddDependency appends depID to docID's dependency list. Cycles are
// tolerated, not forbidden (spec.md §9).
func (r *Registry) AddDependency(ctx context.Context, docID, depID string) error {
	r.mu.Lock()
	doc, ok := r.documents[docID]
	if !ok {
		r.mu.Unlock()
		return orcherr.NotFoundf("document %s not found", docID)
	}
	if _, ok := r.documents[depID]; !ok {
		r.mu.Unlock()
		return orcherr.NotFoundf("dependency %s not found", depID)
	}
	doc.Dependencies = append(doc.Dependencies, depID)
	r.mu.Unlock()
	return r.persist(ctx)
}

// Dependencies lists docID's dependencies, transitively if transitive is true.
// Transitive closure is BFS with a visited set, terminating even on cycles.
func (r *Registry) Dependencies(docID string, transitive bool) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[docID]
	if !ok {
		return nil, orcherr.NotFoundf("document %s not found", docID)
	}
	if !transitive {
		return append([]string(nil), doc.Dependencies...), nil
	}

	visited := map[string]bool{docID: true}
	queue := append([]string(nil), doc.Dependencies...)
	var closure []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		closure = append(closure, id)
		if d, ok := r.documents[id]; ok {
			queue = append(queue, d.Dependencies...)
		}
	}
	return closure, nil
}

// Statistics summarizes registry contents.
type Statistics struct {
	TotalDocuments int                         `json:"total_documents"`
	ByType         map[models.DocumentType]int `json:"by_type"`
	ByStatus       map[models.DocumentStatus]int `json:"by_status"`
}

// Statistics computes summary counts across the registry.
func (r *Registry) Statistics() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := Statistics{ByType: map[models.DocumentType]int{}, ByStatus: map[models.DocumentStatus]int{}}
	for _, doc := range r.documents {
		stats.TotalDocuments++
		stats.ByType[doc.Type]++
		stats.ByStatus[doc.Status]++
	}
	return stats
}

func (r *Registry) indexDocument(doc *models.Document) {
	addToIndex(r.typeIndex, doc.Type, doc.ID)
	addToIndex(r.statusIndex, doc.Status, doc.ID)
	if doc.WorkflowID != "" {
		addToIndex(r.workflowIndex, doc.WorkflowID, doc.ID)
	}
	if doc.TeamID != "" {
		addToIndex(r.teamIndex, doc.TeamID, doc.ID)
	}
	if doc.Creator != "" {
		addToIndex(r.creatorIndex, doc.Creator, doc.ID)
	}
	for tag := range doc.Tags {
		addToIndex(r.tagIndex, tag, doc.ID)
	}
}

func (r *Registry) deindex(doc *models.Document) {
	removeFromIndex(r.typeIndex, doc.Type, doc.ID)
	removeFromIndex(r.statusIndex, doc.Status, doc.ID)
}

func addToIndex[K comparable](idx map[K]map[string]bool, key K, id string) {
	if idx[key] == nil {
		idx[key] = make(map[string]bool)
	}
	idx[key][id] = true
}

func removeFromIndex[K comparable](idx map[K]map[string]bool, key K, id string) {
	if set, ok := idx[key]; ok {
		delete(set, id)
	}
}

func (r *Registry) persist(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.mu.RLock()
	snap := &Snapshot{
		Documents:      make(map[string]*models.Document, len(r.documents)),
		VersionHistory: make(map[string][]string, len(r.versionHistory)),
	}
	for id, doc := range r.documents {
		snap.Documents[id] = doc
	}
	for root, chain := range r.versionHistory {
		snap.VersionHistory[root] = chain
	}
	r.mu.RUnlock()

	if err := r.store.Save(ctx, snap); err != nil {
		return orcherr.Wrap(orcherr.Fatal, "persist document registry", err)
	}
	return nil
}

// LoadSnapshot restores registry state from store, rebuilding indices.
func (r *Registry) LoadSnapshot(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	snap, err := r.store.Load(ctx)
	if err != nil {
		return orcherr.Wrap(orcherr.Fatal, "load document registry snapshot", err)
	}
	if snap == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = snap.Documents
	r.versionHistory = snap.VersionHistory
	r.typeIndex = make(map[models.DocumentType]map[string]bool)
	r.statusIndex = make(map[models.DocumentStatus]map[string]bool)
	r.workflowIndex = make(map[string]map[string]bool)
	r.teamIndex = make(map[string]map[string]bool)
	r.tagIndex = make(map[string]map[string]bool)
	r.creatorIndex = make(map[string]map[string]bool)
	for _, doc := range r.documents {
		r.indexDocument(doc)
	}
	return nil
}
