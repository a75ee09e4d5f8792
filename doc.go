// Package churnscope trains, persists and explains customer churn models.
//
// A churn table of mixed categorical and numeric columns goes through three
// fitted components that are saved together as one named artifact:
//
//   - preprocessing.CategoricalEncoder maps category labels to stable
//     integer codes and back
//   - pipeline.Pipeline expands the codes one-hot, scales them and runs a
//     probabilistic classifier (cross-validated logistic regression by
//     default, or a random forest)
//   - explain.LimeTabular fits a weighted local surrogate around one
//     customer and reports per-feature contributions
//
// # Quick Start
//
//	enc, _ := preprocessing.NewCategoricalEncoder(schema)
//	X, _ := enc.FitTransform(table)
//
//	pipe, _ := pipeline.New(categories, pipeline.DefaultOptions())
//	_ = pipe.Fit(X, labels)
//
//	lime, _ := explain.NewLimeTabular(X, enc.FeatureNames(),
//	    enc.CategoricalIndices(), enc.ClassNames())
//
//	store, _ := artifact.NewDiskStore("models")
//	m, _ := artifact.New(table, labels, "churn", enc, pipe, lime, store)
//	_ = m.Save(ctx)
//
//	loaded, _ := artifact.Load(ctx, "churn", store)
//	p, _ := loaded.Predict(dataset.Record{"Contract": "Month-to-month", ...})
//	why, _ := loaded.Explain(record, 5)
//
// # Packages
//
//   - dataset: tables, CSV and SQL loading, cleaning, splitting, summaries
//   - preprocessing: CategoricalEncoder, OneHotEncoder, scalers
//   - pipeline: the encode→scale→classify chain
//   - sklearn/linear_model, sklearn/tree, sklearn/ensemble: classifiers
//   - sklearn/model_selection: stratified folds
//   - linear: weighted ridge regression used by the explainer
//   - explain: LIME for tabular data
//   - artifact: atomic, checksummed persistence and a loaded-model cache
//   - metrics: AUC, log loss, accuracy, confusion matrix
//   - report: explanation and churn-rate charts
//   - config: YAML configuration for the churnscope command
//   - core/model, core/parallel: shared estimator plumbing
//   - pkg/errors, pkg/log: error types and structured logging
//
// The churnscope command in cmd/churnscope wraps the same steps:
//
//	churnscope train --config churnscope.yaml
//	churnscope explain --model churn --set Contract=Month-to-month --set tenure=2 ...
package churnscope
