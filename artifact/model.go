// Package artifact persists a fitted encoder, pipeline and explainer as one
// named, independently loadable, integrity-checked bundle.
//
// Layout per model name (keys of a Store):
//
//	<name>.encoder    gob envelope, CategoricalEncoder state
//	<name>.pipeline   gob envelope, trained model.Pipeline
//	<name>.explainer  gob envelope, fitted model.Explainer
//	<name>.manifest   JSON, written last; its presence commits the artifact
//
// Every envelope carries the artifact ID and a SHA-256 of its payload, which
// the manifest repeats. Load refuses anything that does not match.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/dataset"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"
	"github.com/YuminosukeSato/churnscope/preprocessing"

	// concrete pipeline and explainer types must be registered with gob
	// before a stored artifact can be decoded
	_ "github.com/YuminosukeSato/churnscope/explain"
	_ "github.com/YuminosukeSato/churnscope/pipeline"
)

// Component names.
const (
	Encoder   = "encoder"
	Pipeline  = "pipeline"
	Explainer = "explainer"
	manifest  = "manifest"
)

// ErrArtifactExists is returned by Save when the name is already committed
// by a different artifact.
var ErrArtifactExists = errors.New("artifact already exists")

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

func key(name, component string) string { return name + "." + component }

// Manifest describes a committed artifact.
type Manifest struct {
	Name       string            `json:"name"`
	ArtifactID string            `json:"artifact_id"`
	Version    int               `json:"format_version"`
	CreatedAt  time.Time         `json:"created_at"`
	Components map[string]string `json:"components"` // component → sha256 of payload
	Features   []string          `json:"features"`
	Summary    dataset.Summary   `json:"summary"`
}

// Prediction is the churn outcome for one record.
type Prediction struct {
	Probability float64 `json:"probability"`
	Churn       bool    `json:"churn"`
}

// ExplainedModel bundles the three fitted components under one name. It is
// immutable once constructed; retraining produces a new ExplainedModel.
type ExplainedModel struct {
	name      string
	id        string
	createdAt time.Time
	summary   dataset.Summary

	encoder   *preprocessing.CategoricalEncoder
	pipeline  model.Pipeline
	explainer model.Explainer
	store     Store
}

// New validates the training data against its labels and assembles an
// artifact ready to Save. data is the raw training table the encoder was
// fitted on; only derived summary statistics are kept.
func New(data *dataset.Table, labels []bool, name string, encoder *preprocessing.CategoricalEncoder,
	pipeline model.Pipeline, explainer model.Explainer, store Store) (*ExplainedModel, error) {
	if !validName.MatchString(name) {
		return nil, errors.NewValidationError("name", "must match "+validName.String(), name)
	}
	if data == nil {
		return nil, errors.NewValidationError("data", "must not be nil", nil)
	}
	if len(labels) != data.Len() {
		return nil, errors.NewValidationError("labels",
			fmt.Sprintf("have %d labels for %d rows", len(labels), data.Len()), len(labels))
	}
	if encoder == nil || !encoder.IsFitted() {
		return nil, errors.NewValidationError("encoder", "must be fitted", nil)
	}
	if pipeline == nil || explainer == nil || store == nil {
		return nil, errors.NewValidationError("components", "pipeline, explainer and store are required", nil)
	}
	summary, err := dataset.Summarize(data, encoder.Schema(), labels)
	if err != nil {
		return nil, err
	}
	return &ExplainedModel{
		name:      name,
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		summary:   summary,
		encoder:   encoder,
		pipeline:  pipeline,
		explainer: explainer,
		store:     store,
	}, nil
}

func (m *ExplainedModel) Name() string { return m.name }
func (m *ExplainedModel) ID() string { return m.id }
func (m *ExplainedModel) Summary() dataset.Summary { return m.summary }
func (m *ExplainedModel) Encoder() *preprocessing.CategoricalEncoder { return m.encoder }
func (m *ExplainedModel) Pipeline() model.Pipeline { return m.pipeline }

// Explainer returns nil for models opened with LoadScorer.
func (m *ExplainedModel) Explainer() model.Explainer { return m.explainer }

type pipelineBox struct{ P model.Pipeline }
type explainerBox struct{ E model.Explainer }

// Save writes the encoder, pipeline and explainer, then the manifest. Each
// write is atomic; an interrupted Save leaves no manifest and Load reports
// the artifact as not found. Saving an already committed artifact again is a
// no-op; saving a different artifact under a committed name fails with
// ErrArtifactExists.
func (m *ExplainedModel) Save(ctx context.Context) (err error) {
	defer errors.Recover(&err, "ExplainedModel.Save")

	logger := log.GetLoggerWithName("artifact").With(
		log.ModelNameKey, m.name,
		log.ArtifactIDKey, m.id,
		log.OperationKey, log.OperationSave,
	)
	start := time.Now()

	if existing, err := readManifest(m.store, m.name); err == nil {
		if existing.ArtifactID != m.id {
			return errors.Wrapf(ErrArtifactExists, "model %q is committed as %s", m.name, existing.ArtifactID)
		}
		logger.Debug("Artifact already committed")
		return nil
	}

	encoderBytes, err := m.encoder.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "encode encoder")
	}
	pipelineBytes, err := model.EncodeBytes(&pipelineBox{m.pipeline})
	if err != nil {
		return errors.Wrap(err, "encode pipeline")
	}
	explainerBytes, err := model.EncodeBytes(&explainerBox{m.explainer})
	if err != nil {
		return errors.Wrap(err, "encode explainer")
	}

	man := Manifest{
		Name:       m.name,
		ArtifactID: m.id,
		Version:    formatVersion,
		CreatedAt:  m.createdAt,
		Components: make(map[string]string, 3),
		Features:   m.encoder.FeatureNames(),
		Summary:    m.summary,
	}
	// seal and encode everything before the first write
	type sealedComponent struct {
		name string
		blob []byte
	}
	var sealed []sealedComponent
	for _, c := range []struct {
		name    string
		payload []byte
	}{
		{Encoder, encoderBytes},
		{Pipeline, pipelineBytes},
		{Explainer, explainerBytes},
	} {
		blob, sum, err := seal(c.name, m.id, c.payload)
		if err != nil {
			return errors.Wrapf(err, "seal %s", c.name)
		}
		man.Components[c.name] = sum
		sealed = append(sealed, sealedComponent{c.name, blob})
	}
	manBytes, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}

	for _, c := range sealed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.store.Put(key(m.name, c.name), c.blob); err != nil {
			return err
		}
		logger.Debug("Component written", log.StorageKeyKey, key(m.name, c.name), "bytes", len(c.blob))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.store.Put(key(m.name, manifest), manBytes); err != nil {
		return err
	}

	logger.Info("Artifact saved",
		log.PhaseKey, log.PhasePersistence,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func readManifest(store Store, name string) (*Manifest, error) {
	if !validName.MatchString(name) {
		return nil, errors.NewNotFoundError(name, "", "invalid model name")
	}
	if !store.Has(key(name, manifest)) {
		return nil, errors.NewNotFoundError(name, "", "no committed artifact")
	}
	raw, err := store.Get(key(name, manifest))
	if err != nil {
		return nil, errors.NewNotFoundError(name, manifest, err.Error())
	}
	var man Manifest
	if err := json.Unmarshal(raw, &man); err != nil {
		return nil, errors.NewNotFoundError(name, manifest, "unreadable manifest")
	}
	if man.Name != name || man.ArtifactID == "" || man.Version != formatVersion {
		return nil, errors.NewNotFoundError(name, manifest, "inconsistent manifest")
	}
	return &man, nil
}

// ReadManifest returns the manifest of a committed artifact.
func ReadManifest(ctx context.Context, store Store, name string) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readManifest(store, name)
}

func readComponent(store Store, man *Manifest, component string) ([]byte, error) {
	k := key(man.Name, component)
	if !store.Has(k) {
		return nil, errors.NewNotFoundError(man.Name, component, "missing")
	}
	raw, err := store.Get(k)
	if err != nil {
		return nil, errors.NewNotFoundError(man.Name, component, err.Error())
	}
	return open(man.Name, component, man.ArtifactID, man.Components[component], raw)
}

// Load opens every component of a committed artifact.
func Load(ctx context.Context, name string, store Store) (*ExplainedModel, error) {
	return load(ctx, name, store, true)
}

// LoadScorer opens only the encoder and pipeline, for batch scoring.
func LoadScorer(ctx context.Context, name string, store Store) (*ExplainedModel, error) {
	return load(ctx, name, store, false)
}

func load(ctx context.Context, name string, store Store, withExplainer bool) (*ExplainedModel, error) {
	start := time.Now()
	man, err := ReadManifest(ctx, store, name)
	if err != nil {
		return nil, err
	}

	m := &ExplainedModel{
		name:      man.Name,
		id:        man.ArtifactID,
		createdAt: man.CreatedAt,
		summary:   man.Summary,
		store:     store,
	}

	payload, err := readComponent(store, man, Encoder)
	if err != nil {
		return nil, err
	}
	m.encoder = &preprocessing.CategoricalEncoder{}
	if err := m.encoder.UnmarshalBinary(payload); err != nil {
		return nil, errors.NewNotFoundError(name, Encoder, "undecodable: "+err.Error())
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err = readComponent(store, man, Pipeline)
	if err != nil {
		return nil, err
	}
	var pb pipelineBox
	if err := model.DecodeBytes(payload, &pb); err != nil || pb.P == nil {
		return nil, errors.NewNotFoundError(name, Pipeline, "undecodable pipeline")
	}
	m.pipeline = pb.P

	if withExplainer {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload, err = readComponent(store, man, Explainer)
		if err != nil {
			return nil, err
		}
		var eb explainerBox
		if err := model.DecodeBytes(payload, &eb); err != nil || eb.E == nil {
			return nil, errors.NewNotFoundError(name, Explainer, "undecodable explainer")
		}
		m.explainer = eb.E
	}

	log.GetLoggerWithName("artifact").Info("Artifact loaded",
		log.ModelNameKey, name,
		log.ArtifactIDKey, m.id,
		log.OperationKey, log.OperationLoad,
		"explainer", withExplainer,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return m, nil
}

// Remove deletes the manifest first, then the components, so a concurrent
// Load never sees a manifest without its components.
func Remove(ctx context.Context, store Store, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := readManifest(store, name); err != nil {
		return err
	}
	for _, c := range []string{manifest, Encoder, Pipeline, Explainer} {
		if store.Has(key(name, c)) {
			if err := store.Delete(key(name, c)); err != nil {
				return err
			}
		}
	}
	return nil
}

// List returns the sorted names of committed artifacts.
func List(store Store) []string {
	var names []string
	for _, k := range store.Keys("") {
		if name, ok := strings.CutSuffix(k, "."+manifest); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Predict scores one raw record. Unseen categories surface as the encoder's
// UnseenCategoryError.
func (m *ExplainedModel) Predict(record dataset.Record) (Prediction, error) {
	x, err := m.encoder.TransformRecord(record)
	if err != nil {
		return Prediction{}, err
	}
	proba, err := m.pipeline.PredictProba(mat.NewDense(1, len(x), x))
	if err != nil {
		return Prediction{}, err
	}
	p := proba.At(0, 1)
	return Prediction{Probability: p, Churn: p >= 0.5}, nil
}

// PredictBatch scores every row of t in order.
func (m *ExplainedModel) PredictBatch(t *dataset.Table) ([]Prediction, error) {
	X, err := m.encoder.Transform(t)
	if err != nil {
		return nil, err
	}
	proba, err := m.pipeline.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := make([]Prediction, t.Len())
	for i := range out {
		p := proba.At(i, 1)
		out[i] = Prediction{Probability: p, Churn: p >= 0.5}
	}
	log.GetLoggerWithName("artifact").Debug("Batch scored",
		log.ModelNameKey, m.name, log.PredsKey, len(out))
	return out, nil
}

// Explain returns the numFeatures strongest contributions for one raw
// record (all when numFeatures <= 0).
func (m *ExplainedModel) Explain(record dataset.Record, numFeatures int) ([]model.Contribution, error) {
	if m.explainer == nil {
		return nil, errors.NewNotFoundError(m.name, Explainer, "not loaded")
	}
	x, err := m.encoder.TransformRecord(record)
	if err != nil {
		return nil, err
	}
	return m.explainer.ExplainInstance(x, m.pipeline.PredictProba, numFeatures)
}
