// Standard attribute keys for churnscope log records.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples")
// so log pipelines can filter on a prefix.

package log

// Model and Operation Context
const (
	// ModelNameKey is the artifact name an operation belongs to, e.g. "churn-v1".
	ModelNameKey = "model.name"

	// ArtifactIDKey is the UUID assigned to a saved artifact.
	ArtifactIDKey = "model.artifact_id"

	// EstimatorKey identifies the estimator type, e.g. "CategoricalEncoder".
	EstimatorKey = "model.estimator"

	// OperationKey specifies the operation being performed.
	// Standard values: see the Operation* constants below.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package performing the operation.
	// Examples: "preprocessing", "pipeline", "explain", "artifact"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey is the number of rows processed.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of columns in the processed matrix.
	FeaturesKey = "data.features"

	// ColumnKey names a single table column.
	ColumnKey = "data.column"

	// ClassesKey is the number of classes recorded for a categorical column.
	ClassesKey = "data.classes"

	// DroppedKey is the number of rows removed by cleaning.
	DroppedKey = "data.dropped"

	// SourceKey describes where a table was loaded from (file path or driver).
	SourceKey = "data.source"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records classification accuracy.
	AccuracyKey = "metrics.accuracy"

	// AUCKey records the ROC AUC of churn probabilities.
	AUCKey = "metrics.auc"

	// LossKey records log loss.
	LossKey = "metrics.loss"

	// IterationKey records the current iteration number of an optimiser.
	IterationKey = "training.iteration"

	// FoldKey records the cross-validation fold index.
	FoldKey = "training.fold"
)

// Prediction and Explanation Context
const (
	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"

	// ConfidenceKey records a churn probability.
	ConfidenceKey = "preds.confidence"

	// NumSamplesKey is the neighbourhood size used for a local explanation.
	NumSamplesKey = "explain.num_samples"

	// TopFeatureKey is the highest weighted feature of an explanation.
	TopFeatureKey = "explain.top_feature"
)

// Error Context
const (
	// ErrorTypeKey categorizes the error, e.g. "UnseenCategoryError".
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"
)

// Hyperparameters, Configuration and Storage
const (
	// HyperParamsKey contains estimator hyperparameters.
	HyperParamsKey = "model.hyperparams"

	// RegularizationKey records the chosen inverse regularization strength C.
	RegularizationKey = "hyperparams.C"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// StorageRootKey is the artifact store base directory.
	StorageRootKey = "storage.root"

	// StorageKeyKey is a single key inside the artifact store.
	StorageKeyKey = "storage.key"
)

// Standard attribute values.
const (
	OperationFit              = "fit"
	OperationTransform        = "transform"
	OperationFitTransform     = "fit_transform"
	OperationInverseTransform = "inverse_transform"
	OperationPredict          = "predict"
	OperationExplain          = "explain"
	OperationScore            = "score"
	OperationSave             = "save"
	OperationLoad             = "load"

	PhaseTraining      = "training"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
	PhasePersistence   = "persistence"
)
