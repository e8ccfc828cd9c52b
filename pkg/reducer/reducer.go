package reducer

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/distribd/distribd/pkg/distribdtypes"
	"github.com/distribd/distribd/pkg/events"
)

// Kind distinguishes the two content-addressed families the reducer tracks.
type Kind int

const (
	KindBlob Kind = iota
	KindManifest
)

func (k Kind) String() string {
	if k == KindManifest {
		return "manifest"
	}
	return "blob"
}

type locationSet = map[string]struct{}
type repoSet = map[string]struct{}

// Reducer folds committed log entries into queryable indexes. A zero value
// is not usable; construct with New. A Reducer is safe for concurrent use:
// Apply and the query methods share one RWMutex.
type Reducer struct {
	mu sync.RWMutex

	blobLocations     map[string]locationSet
	blobRepos         map[string]repoSet
	manifestLocations map[string]locationSet
	manifestRepos     map[string]repoSet
	tags              map[string]map[string]string // repository -> tag -> digest

	lastApplied uint64
	broker      *events.Broker
}

// New creates an empty Reducer that publishes deltas to broker. broker may
// be nil, in which case deltas are computed but never published (useful for
// property tests that only care about index determinism).
func New(broker *events.Broker) *Reducer {
	return &Reducer{
		blobLocations:     make(map[string]locationSet),
		blobRepos:         make(map[string]repoSet),
		manifestLocations: make(map[string]locationSet),
		manifestRepos:     make(map[string]repoSet),
		tags:              make(map[string]map[string]string),
		broker:            broker,
	}
}

// LastApplied returns the index of the most recently applied entry, or 0
// if none have been applied yet.
func (r *Reducer) LastApplied() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastApplied
}

// Counts returns the number of distinct blob and manifest digests the
// reducer currently tracks, for metrics exposition.
func (r *Reducer) Counts() (blobs, manifests int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobLocations), len(r.manifestLocations)
}

// Apply applies the entry at the given 1-indexed log position. index must
// be exactly LastApplied()+1; this is the "applying the same entry twice is
// forbidden" invariant made mechanical rather than advisory. An unknown
// action tag is a programming error (ErrUnknownAction) and callers must
// treat it as fatal, never silently skipped.
func (r *Reducer) Apply(index uint64, entry distribdtypes.Entry) (events.Delta, error) {
	r.mu.Lock()

	if index != r.lastApplied+1 {
		r.mu.Unlock()
		return events.Delta{}, fmt.Errorf("apply out of order: got index %d, expected %d", index, r.lastApplied+1)
	}

	delta, err := r.applyLocked(entry.Action)
	if err != nil {
		r.mu.Unlock()
		return events.Delta{}, err
	}
	r.lastApplied = index
	r.mu.Unlock()

	if r.broker != nil {
		r.broker.Publish(&delta)
	}
	return delta, nil
}

func (r *Reducer) applyLocked(action distribdtypes.ActionRecord) (events.Delta, error) {
	switch action.Type {
	case distribdtypes.ActionBlobStored:
		r.addLocation(r.blobLocations, action.Digest, action.Location)
		return r.delta(events.KindBlobStored, KindBlob, action.Digest, action.Repository, ""), nil

	case distribdtypes.ActionBlobDeleted:
		delete(r.blobLocations, action.Digest)
		delete(r.blobRepos, action.Digest)
		return r.delta(events.KindBlobDeleted, KindBlob, action.Digest, "", ""), nil

	case distribdtypes.ActionBlobMounted:
		r.addRepo(r.blobRepos, action.Digest, action.Repository)
		return r.delta(events.KindBlobMounted, KindBlob, action.Digest, action.Repository, ""), nil

	case distribdtypes.ActionManifestStored:
		r.addLocation(r.manifestLocations, action.Digest, action.Location)
		return r.delta(events.KindManifestStored, KindManifest, action.Digest, action.Repository, ""), nil

	case distribdtypes.ActionManifestDeleted:
		delete(r.manifestLocations, action.Digest)
		delete(r.manifestRepos, action.Digest)
		return r.delta(events.KindManifestDeleted, KindManifest, action.Digest, "", ""), nil

	case distribdtypes.ActionManifestMounted:
		r.addRepo(r.manifestRepos, action.Digest, action.Repository)
		return r.delta(events.KindManifestMounted, KindManifest, action.Digest, action.Repository, ""), nil

	case distribdtypes.ActionHashTagged:
		repoTags, ok := r.tags[action.Repository]
		if !ok {
			repoTags = make(map[string]string)
			r.tags[action.Repository] = repoTags
		}
		repoTags[action.Tag] = action.Digest
		return events.Delta{
			Kind:       events.KindHashTagged,
			Digest:     action.Digest,
			Repository: action.Repository,
			Tag:        action.Tag,
		}, nil

	default:
		return events.Delta{}, fmt.Errorf("%w: %q", distribdtypes.ErrUnknownAction, action.Type)
	}
}

func (r *Reducer) addLocation(index map[string]locationSet, digest, location string) {
	set, ok := index[digest]
	if !ok {
		set = make(locationSet)
		index[digest] = set
	}
	set[location] = struct{}{}
}

func (r *Reducer) addRepo(index map[string]repoSet, digest, repository string) {
	set, ok := index[digest]
	if !ok {
		set = make(repoSet)
		index[digest] = set
	}
	set[repository] = struct{}{}
}

func (r *Reducer) delta(kind events.Kind, contentKind Kind, digest, repository, tag string) events.Delta {
	locations := r.locationsLocked(contentKind, digest)
	available := len(locations) > 0 && len(r.reposLocked(contentKind, digest)) > 0
	return events.Delta{
		Kind:       kind,
		Digest:     digest,
		Repository: repository,
		Tag:        tag,
		Locations:  locations,
		Available:  available,
	}
}

func (r *Reducer) locationsLocked(kind Kind, digest string) []string {
	index := r.blobLocations
	if kind == KindManifest {
		index = r.manifestLocations
	}
	set, ok := index[digest]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for loc := range set {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

func (r *Reducer) reposLocked(kind Kind, digest string) []string {
	index := r.blobRepos
	if kind == KindManifest {
		index = r.manifestRepos
	}
	set, ok := index[digest]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for repo := range set {
		out = append(out, repo)
	}
	sort.Strings(out)
	return out
}

// Locations returns the set of locations known to hold digest, sorted for
// determinism.
func (r *Reducer) Locations(kind Kind, digest string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locationsLocked(kind, digest)
}

// Repositories returns the repositories digest is mounted to, sorted for
// determinism.
func (r *Reducer) Repositories(kind Kind, digest string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reposLocked(kind, digest)
}

// IsBlobAvailable reports whether digest has at least one known location
// and is associated with repository, per the reducer invariant in the data
// model.
func (r *Reducer) IsBlobAvailable(repository, digest string) bool {
	return r.isAvailable(KindBlob, repository, digest)
}

// IsManifestAvailable is the manifest analogue of IsBlobAvailable.
func (r *Reducer) IsManifestAvailable(repository, digest string) bool {
	return r.isAvailable(KindManifest, repository, digest)
}

func (r *Reducer) isAvailable(kind Kind, repository, digest string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	locIndex := r.blobLocations
	repoIndex := r.blobRepos
	if kind == KindManifest {
		locIndex = r.manifestLocations
		repoIndex = r.manifestRepos
	}

	locs, ok := locIndex[digest]
	if !ok || len(locs) == 0 {
		return false
	}
	repos, ok := repoIndex[digest]
	if !ok {
		return false
	}
	_, ok = repos[repository]
	return ok
}

// GetTags returns the tags known for repository, sorted for determinism.
func (r *Reducer) GetTags(repository string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	repoTags, ok := r.tags[repository]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(repoTags))
	for tag := range repoTags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// GetTag resolves repository's tag to the most recently hash-tagged
// digest, or ErrUnknownTag if the pair has never been bound.
func (r *Reducer) GetTag(repository, tag string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	repoTags, ok := r.tags[repository]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", distribdtypes.ErrUnknownTag, repository, tag)
	}
	digest, ok := repoTags[tag]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", distribdtypes.ErrUnknownTag, repository, tag)
	}
	return digest, nil
}

// State is the JSON-serializable form of a Reducer's indexes, used to save
// and restore a snapshot. Sets are encoded as sorted string slices so State
// is byte-stable for identical index contents.
type State struct {
	LastApplied       uint64                       `json:"last_applied"`
	BlobLocations     map[string][]string          `json:"blob_locations"`
	BlobRepos         map[string][]string          `json:"blob_repos"`
	ManifestLocations map[string][]string          `json:"manifest_locations"`
	ManifestRepos     map[string][]string          `json:"manifest_repos"`
	Tags              map[string]map[string]string `json:"tags"`
}

// ExportState marshals the reducer's current indexes for handoff to
// pkg/snapshot. Safe to call concurrently with Apply.
func (r *Reducer) ExportState() ([]byte, uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := State{
		LastApplied:       r.lastApplied,
		BlobLocations:     flattenSets(r.blobLocations),
		BlobRepos:         flattenSets(r.blobRepos),
		ManifestLocations: flattenSets(r.manifestLocations),
		ManifestRepos:     flattenSets(r.manifestRepos),
		Tags:              r.tags,
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal reducer state: %w", err)
	}
	return data, r.lastApplied, nil
}

// RestoreState replaces the reducer's indexes with a previously exported
// snapshot. Callers must then replay the log from state's LastApplied+1
// onward; RestoreState itself does not touch the log. It must only be
// called before the reducer has applied any entries.
func (r *Reducer) RestoreState(data []byte) error {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("unmarshal reducer state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastApplied = state.LastApplied
	r.blobLocations = inflateSets(state.BlobLocations)
	r.blobRepos = inflateSets(state.BlobRepos)
	r.manifestLocations = inflateSets(state.ManifestLocations)
	r.manifestRepos = inflateSets(state.ManifestRepos)
	r.tags = state.Tags
	if r.tags == nil {
		r.tags = make(map[string]map[string]string)
	}
	return nil
}

func flattenSets(index map[string]locationSet) map[string][]string {
	out := make(map[string][]string, len(index))
	for digest, set := range index {
		keys := make([]string, 0, len(set))
		for k := range set {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out[digest] = keys
	}
	return out
}

func inflateSets(flat map[string][]string) map[string]locationSet {
	out := make(map[string]locationSet, len(flat))
	for digest, keys := range flat {
		set := make(locationSet, len(keys))
		for _, k := range keys {
			set[k] = struct{}{}
		}
		out[digest] = set
	}
	return out
}
