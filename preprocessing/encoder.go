package preprocessing

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/core/parallel"
	"github.com/YuminosukeSato/churnscope/dataset"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"
)

// CategoricalEncoder はカテゴリ列を整数コードに、数値列をそのまま float64 に変換する。
//
// 出力行列の列順はスキーマ順で固定される。Fit 後のクラス順序（ソート済み）は凍結され、
// 未知のカテゴリ値は UnseenCategoryError として拒否される（既定値への置換は行わない）。
//
// 使用例:
//
//	enc, err := preprocessing.NewCategoricalEncoder(dataset.Schema{
//	    {Name: "gender", Kind: dataset.Categorical},
//	    {Name: "tenure", Kind: dataset.Numeric},
//	})
//	X, err := enc.FitTransform(table)
type CategoricalEncoder struct {
	model.BaseEstimator

	schema  dataset.Schema
	index   map[string]int            // 列名 → 出力行列の列位置
	classes map[string][]string       // 列名 → ソート済みクラス
	codes   map[string]map[string]int // 列名 → ラベル → コード
}

// NewCategoricalEncoder は列スペックを検証してエンコーダを作成する
func NewCategoricalEncoder(schema dataset.Schema) (*CategoricalEncoder, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	e := &CategoricalEncoder{schema: schema.Clone()}
	e.buildIndex()
	return e, nil
}

func (e *CategoricalEncoder) buildIndex() {
	e.index = make(map[string]int, len(e.schema))
	for i, c := range e.schema {
		e.index[c.Name] = i
	}
}

func (e *CategoricalEncoder) buildCodes() {
	e.codes = make(map[string]map[string]int, len(e.classes))
	for col, cls := range e.classes {
		m := make(map[string]int, len(cls))
		for i, v := range cls {
			m[v] = i
		}
		e.codes[col] = m
	}
}

// Fit はカテゴリ列ごとに観測値をソートしてクラス一覧を作る。
// 同じテーブルとスキーマからは常に同じクラス順序が得られる。
func (e *CategoricalEncoder) Fit(t *dataset.Table) error {
	if missing := t.Missing(e.schema.Names()); len(missing) > 0 {
		return errors.NewSchemaError("CategoricalEncoder.Fit", missing...)
	}
	if t.Len() == 0 {
		return errors.NewModelError("CategoricalEncoder.Fit", "empty data", errors.ErrEmptyData)
	}

	classes := make(map[string][]string)
	for _, c := range e.schema {
		if c.Kind != dataset.Categorical {
			continue
		}
		seen := make(map[string]struct{})
		for _, r := range t.Rows {
			seen[r[c.Name]] = struct{}{}
		}
		cls := make([]string, 0, len(seen))
		for v := range seen {
			cls = append(cls, v)
		}
		sort.Strings(cls)
		classes[c.Name] = cls
	}

	e.classes = classes
	e.buildCodes()
	e.SetFitted()

	logger := log.GetLoggerWithName("preprocessing")
	if logger.Enabled(context.Background(), log.LevelDebug) {
		for _, name := range e.schema.Categorical() {
			logger.Debug("Categorical column fitted",
				log.OperationKey, log.OperationFit,
				log.ColumnKey, name,
				log.ClassesKey, len(classes[name]),
			)
		}
	}
	return nil
}

// Transform はテーブルを整数コード行列に変換する。
// テーブルの列はスキーマの上位集合であればよい（余分な列は無視）。
// 未知のカテゴリがあればエラーを返し、部分的な出力は返さない。
func (e *CategoricalEncoder) Transform(t *dataset.Table) (*mat.Dense, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("CategoricalEncoder", "Transform")
	}
	if missing := t.Missing(e.schema.Names()); len(missing) > 0 {
		return nil, errors.NewSchemaError("CategoricalEncoder.Transform", missing...)
	}
	n := t.Len()
	if n == 0 {
		return nil, errors.NewModelError("CategoricalEncoder.Transform", "empty data", errors.ErrEmptyData)
	}

	out := mat.NewDense(n, len(e.schema), nil)
	err := parallel.Rows(n, parallel.DefaultRowThreshold, func(start, end int) error {
		for i := start; i < end; i++ {
			if err := e.encodeRow(t.Rows[i], i, out.RawRowView(i)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FitTransform は Fit と Transform を順に実行する
func (e *CategoricalEncoder) FitTransform(t *dataset.Table) (*mat.Dense, error) {
	if err := e.Fit(t); err != nil {
		return nil, err
	}
	return e.Transform(t)
}

// TransformRecord は1レコードを特徴ベクトルに変換する
func (e *CategoricalEncoder) TransformRecord(r dataset.Record) ([]float64, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("CategoricalEncoder", "TransformRecord")
	}
	var missing []string
	for _, c := range e.schema {
		if _, ok := r[c.Name]; !ok {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewSchemaError("CategoricalEncoder.TransformRecord", missing...)
	}
	row := make([]float64, len(e.schema))
	if err := e.encodeRow(r, 0, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (e *CategoricalEncoder) encodeRow(r dataset.Record, rowIdx int, dst []float64) error {
	for j, c := range e.schema {
		v := r[c.Name]
		switch c.Kind {
		case dataset.Categorical:
			code, ok := e.codes[c.Name][v]
			if !ok {
				return errors.NewUnseenCategoryError(c.Name, v, rowIdx)
			}
			dst[j] = float64(code)
		case dataset.Numeric:
			f, ok := dataset.ParseNumeric(v)
			if !ok {
				return errors.NewValueError("CategoricalEncoder.Transform",
					fmt.Sprintf("column '%s' row %d: %q is not a finite number", c.Name, rowIdx, v))
			}
			dst[j] = f
		}
	}
	return nil
}

// InverseTransform はコード行列を元のラベルに戻す。
// 数値列は strconv.FormatFloat(v, 'f', -1, 64) で文字列化する。
func (e *CategoricalEncoder) InverseTransform(X mat.Matrix) (*dataset.Table, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("CategoricalEncoder", "InverseTransform")
	}
	r, c := X.Dims()
	if c != len(e.schema) {
		return nil, errors.NewDimensionError("CategoricalEncoder.InverseTransform", len(e.schema), c, 1)
	}

	rows := make([]dataset.Record, r)
	for i := 0; i < r; i++ {
		rec := make(dataset.Record, c)
		for j, col := range e.schema {
			v := X.At(i, j)
			switch col.Kind {
			case dataset.Categorical:
				cls := e.classes[col.Name]
				code := int(v)
				if v != math.Trunc(v) || code < 0 || code >= len(cls) {
					return nil, errors.NewValueError("CategoricalEncoder.InverseTransform",
						fmt.Sprintf("column '%s' row %d: code %v outside [0, %d)", col.Name, i, v, len(cls)))
				}
				rec[col.Name] = cls[code]
			case dataset.Numeric:
				rec[col.Name] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		rows[i] = rec
	}
	return dataset.NewTable(e.schema.Names(), rows), nil
}

// Classes はカテゴリ列のクラス一覧（コード順）のコピーを返す
func (e *CategoricalEncoder) Classes(column string) ([]string, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("CategoricalEncoder", "Classes")
	}
	cls, ok := e.classes[column]
	if !ok {
		return nil, errors.NewSchemaError("CategoricalEncoder.Classes", column)
	}
	out := make([]string, len(cls))
	copy(out, cls)
	return out, nil
}

// NumClasses はカテゴリ列のクラス数を返す。未学習・数値列・未知の列では 0
func (e *CategoricalEncoder) NumClasses(column string) int {
	return len(e.classes[column])
}

// Index は列名に対応する出力行列の列位置を返す
func (e *CategoricalEncoder) Index(column string) (int, bool) {
	i, ok := e.index[column]
	return i, ok
}

// Schema は列スペックのコピーを返す
func (e *CategoricalEncoder) Schema() dataset.Schema {
	return e.schema.Clone()
}

// FeatureNames は出力行列の列名を返す
func (e *CategoricalEncoder) FeatureNames() []string {
	return e.schema.Names()
}

// CategoricalIndices はカテゴリ列の列位置を昇順で返す
func (e *CategoricalEncoder) CategoricalIndices() []int {
	var idx []int
	for i, c := range e.schema {
		if c.Kind == dataset.Categorical {
			idx = append(idx, i)
		}
	}
	return idx
}

// ClassNames returns the class list of every categorical column, keyed by
// output column position.
func (e *CategoricalEncoder) ClassNames() map[int][]string {
	out := make(map[int][]string, len(e.classes))
	for col, cls := range e.classes {
		c := make([]string, len(cls))
		copy(c, cls)
		out[e.index[col]] = c
	}
	return out
}

type encoderState struct {
	Schema  dataset.Schema
	Classes map[string][]string
	Fitted  bool
}

// MarshalBinary は gob でエンコーダの状態をシリアライズする
func (e *CategoricalEncoder) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	st := encoderState{Schema: e.schema, Classes: e.classes, Fitted: e.IsFitted()}
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, errors.Wrap(err, "failed to encode CategoricalEncoder")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary は MarshalBinary の逆変換。スキーマも再検証する
func (e *CategoricalEncoder) UnmarshalBinary(data []byte) error {
	var st encoderState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "failed to decode CategoricalEncoder")
	}
	if err := st.Schema.Validate(); err != nil {
		return err
	}
	for _, name := range st.Schema.Categorical() {
		if _, ok := st.Classes[name]; st.Fitted && !ok {
			return errors.NewValueError("CategoricalEncoder.UnmarshalBinary",
				fmt.Sprintf("no classes recorded for column '%s'", name))
		}
	}

	e.schema = st.Schema
	e.classes = st.Classes
	e.buildIndex()
	e.buildCodes()
	e.Reset()
	if st.Fitted {
		e.SetFitted()
	}
	return nil
}
