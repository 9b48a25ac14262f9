package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionAgents = "agents"
	collectionFacts  = "facts"
)

// Firestore implements Repository on Cloud Firestore. Facts live in a
// subcollection under their agent document and carry a Vector32 field for
// native nearest-neighbor queries.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore repository for the given project and
// database.
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID), goerr.V("database_id", databaseID))
	}
	return &Firestore{client: client}, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

type profileDoc struct {
	AgentID           string    `firestore:"agent_id"`
	Openness          float64   `firestore:"openness"`
	Conscientiousness float64   `firestore:"conscientiousness"`
	Extraversion      float64   `firestore:"extraversion"`
	Agreeableness     float64   `firestore:"agreeableness"`
	Neuroticism       float64   `firestore:"neuroticism"`
	BiasStrength      float64   `firestore:"bias_strength"`
	Background        string    `firestore:"background"`
	CreatedAt         time.Time `firestore:"created_at"`
	UpdatedAt         time.Time `firestore:"updated_at"`
}

type factDoc struct {
	ID            string             `firestore:"id"`
	AgentID       string             `firestore:"agent_id"`
	Text          string             `firestore:"text"`
	Type          string             `firestore:"type"`
	OccurredStart *time.Time         `firestore:"occurred_start"`
	OccurredEnd   *time.Time         `firestore:"occurred_end"`
	Entities      []string           `firestore:"entities"`
	Context       string             `firestore:"context"`
	DocumentID    string             `firestore:"document_id"`
	Embedding     firestore.Vector32 `firestore:"embedding"`
	CreatedAt     time.Time          `firestore:"created_at"`

	// Populated by FindNearest queries only
	VectorDistance float64 `firestore:"vector_distance"`
}

func toProfileDoc(p *model.AgentProfile) *profileDoc {
	return &profileDoc{
		AgentID:           string(p.AgentID),
		Openness:          p.Personality.Openness,
		Conscientiousness: p.Personality.Conscientiousness,
		Extraversion:      p.Personality.Extraversion,
		Agreeableness:     p.Personality.Agreeableness,
		Neuroticism:       p.Personality.Neuroticism,
		BiasStrength:      p.Personality.BiasStrength,
		Background:        p.Background,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func (d *profileDoc) toModel() *model.AgentProfile {
	return &model.AgentProfile{
		AgentID: model.AgentID(d.AgentID),
		Personality: model.Personality{
			Openness:          d.Openness,
			Conscientiousness: d.Conscientiousness,
			Extraversion:      d.Extraversion,
			Agreeableness:     d.Agreeableness,
			Neuroticism:       d.Neuroticism,
			BiasStrength:      d.BiasStrength,
		},
		Background: d.Background,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func toFactDoc(f *model.MemoryFact) *factDoc {
	return &factDoc{
		ID:            string(f.ID),
		AgentID:       string(f.AgentID),
		Text:          f.Text,
		Type:          string(f.Type),
		OccurredStart: f.OccurredStart,
		OccurredEnd:   f.OccurredEnd,
		Entities:      f.Entities,
		Context:       f.Context,
		DocumentID:    f.DocumentID,
		Embedding:     firestore.Vector32(f.Embedding),
		CreatedAt:     f.CreatedAt,
	}
}

func (d *factDoc) toModel() *model.MemoryFact {
	return &model.MemoryFact{
		ID:            model.FactID(d.ID),
		AgentID:       model.AgentID(d.AgentID),
		Text:          d.Text,
		Type:          model.FactType(d.Type),
		OccurredStart: d.OccurredStart,
		OccurredEnd:   d.OccurredEnd,
		Entities:      d.Entities,
		Context:       d.Context,
		DocumentID:    d.DocumentID,
		Embedding:     []float32(d.Embedding),
		CreatedAt:     d.CreatedAt,
	}
}

func (r *Firestore) agentRef(id model.AgentID) *firestore.DocumentRef {
	return r.client.Collection(collectionAgents).Doc(string(id))
}

func (r *Firestore) factsRef(id model.AgentID) *firestore.CollectionRef {
	return r.agentRef(id).Collection(collectionFacts)
}

func (r *Firestore) GetProfile(ctx context.Context, id model.AgentID) (*model.AgentProfile, error) {
	snap, err := r.agentRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, goerr.Wrap(model.ErrNotFound, "profile not found", goerr.V("agent_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get profile", goerr.V("agent_id", id))
	}

	var doc profileDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode profile", goerr.V("agent_id", id))
	}
	return doc.toModel(), nil
}

func (r *Firestore) PutProfile(ctx context.Context, profile *model.AgentProfile) error {
	if _, err := r.agentRef(profile.AgentID).Set(ctx, toProfileDoc(profile)); err != nil {
		return goerr.Wrap(err, "failed to put profile", goerr.V("agent_id", profile.AgentID))
	}
	return nil
}

func (r *Firestore) ListProfiles(ctx context.Context) ([]*model.AgentProfile, error) {
	iter := r.client.Collection(collectionAgents).Documents(ctx)
	defer iter.Stop()

	var profiles []*model.AgentProfile
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate profiles")
		}

		var doc profileDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode profile", goerr.V("doc_id", snap.Ref.ID))
		}
		profiles = append(profiles, doc.toModel())
	}
	return profiles, nil
}

func (r *Firestore) DeleteAgent(ctx context.Context, id model.AgentID) error {
	// Delete the facts subcollection first; Firestore does not cascade.
	// Job results are checked after the flush so a failed fact deletion
	// surfaces instead of leaving facts dangling under a removed profile.
	bw := r.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob

	iter := r.factsRef(id).DocumentRefs(ctx)
	for {
		ref, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to iterate fact refs", goerr.V("agent_id", id))
		}
		job, err := bw.Delete(ref)
		if err != nil {
			return goerr.Wrap(err, "failed to enqueue fact deletion", goerr.V("agent_id", id))
		}
		jobs = append(jobs, job)
	}

	job, err := bw.Delete(r.agentRef(id))
	if err != nil {
		return goerr.Wrap(err, "failed to enqueue profile deletion", goerr.V("agent_id", id))
	}
	jobs = append(jobs, job)

	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(err, "failed to delete agent data", goerr.V("agent_id", id))
		}
	}
	return nil
}

func (r *Firestore) PutFacts(ctx context.Context, facts []*model.MemoryFact) error {
	// Doc ID equals fact ID, so replays of the same batch overwrite with
	// identical content instead of duplicating.
	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(facts))
	for _, fact := range facts {
		ref := r.factsRef(fact.AgentID).Doc(string(fact.ID))
		job, err := bw.Set(ref, toFactDoc(fact))
		if err != nil {
			return goerr.Wrap(err, "failed to enqueue fact", goerr.V("fact_id", fact.ID))
		}
		jobs = append(jobs, job)
	}

	bw.End()
	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(err, "failed to store fact", goerr.V("fact_id", facts[i].ID))
		}
	}
	return nil
}

func (r *Firestore) ListFacts(ctx context.Context, id model.AgentID) ([]*model.MemoryFact, error) {
	iter := r.factsRef(id).OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var facts []*model.MemoryFact
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate facts", goerr.V("agent_id", id))
		}

		var doc factDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode fact", goerr.V("doc_id", snap.Ref.ID))
		}
		facts = append(facts, doc.toModel())
	}
	return facts, nil
}

func (r *Firestore) SearchSimilarFacts(ctx context.Context, id model.AgentID, embedding []float32, limit int) ([]*model.FactMatch, error) {
	if limit <= 0 || len(embedding) == 0 {
		return nil, nil
	}

	query := r.factsRef(id).FindNearest("embedding",
		firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{
			DistanceResultField: "vector_distance",
		})

	iter := query.Documents(ctx)
	defer iter.Stop()

	var matches []*model.FactMatch
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrRetrieval, "vector query failed",
				goerr.V("agent_id", id), goerr.V("cause", err.Error()))
		}

		var doc factDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode fact", goerr.V("doc_id", snap.Ref.ID))
		}
		matches = append(matches, &model.FactMatch{
			Fact:       doc.toModel(),
			Similarity: 1.0 - doc.VectorDistance, // cosine distance to similarity
		})
	}
	return matches, nil
}
